package browser

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const blankDocument = `<!doctype html><html><head></head><body></body></html>`

func mustProfile(t *testing.T, name string) Profile {
	t.Helper()
	set, err := LoadProfiles("")
	require.NoError(t, err)
	p, ok := set.Get(name)
	require.True(t, ok, "profile %s", name)
	return p
}

func newTestPage(t *testing.T, profile string, document string, opts PageOptions) *Page {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = zaptest.NewLogger(t)
	}
	p, err := NewPage(mustProfile(t, profile), document, opts)
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p
}

func TestPageReportsProfile(t *testing.T) {
	p := newTestPage(t, "chrome", blankDocument, PageOptions{Referrer: "https://search.example/"})

	nav, err := p.Navigator()
	require.NoError(t, err)
	prof := p.Profile()
	assert.Equal(t, prof.Navigator.UserAgent, nav.UserAgent)
	assert.Equal(t, "Win32", nav.Platform)
	assert.Equal(t, []string{"en-US", "en"}, nav.Languages)
	assert.Equal(t, 8, nav.HardwareConcurrency)
	require.NotNil(t, nav.DeviceMemory)
	assert.Equal(t, 8.0, *nav.DeviceMemory)
	assert.Nil(t, nav.DoNotTrack)
	assert.Equal(t, 5, nav.Plugins)

	screen, err := p.Screen()
	require.NoError(t, err)
	assert.Equal(t, Screen{Width: 1920, Height: 1080, ColorDepth: 24, PixelRatio: 1}, screen)

	vp, err := p.Viewport()
	require.NoError(t, err)
	assert.Equal(t, Viewport{Width: 1920, Height: 959}, vp)

	assert.Equal(t, DefaultPageURL, p.Location())
	assert.Equal(t, "https://search.example/", p.Referrer())
	assert.Equal(t, "America/New_York", p.Timezone())
	assert.True(t, p.HasGlobal("chrome"))
	assert.False(t, p.HasGlobal("domAutomation"))
}

func TestPageTimezoneOverride(t *testing.T) {
	p := newTestPage(t, "chrome", blankDocument, PageOptions{Timezone: "Asia/Tokyo"})
	assert.Equal(t, "Asia/Tokyo", p.Timezone())
}

func TestHeadlessProfileMarkers(t *testing.T) {
	p := newTestPage(t, "headless", blankDocument, PageOptions{})

	nav, err := p.Navigator()
	require.NoError(t, err)
	assert.True(t, nav.Webdriver)
	assert.Zero(t, nav.Plugins)
	assert.NotNil(t, nav.DeviceMemory)
	assert.False(t, p.HasGlobal("chrome"))
	assert.True(t, p.HasGlobal("domAutomation"))

	doc, err := p.Document()
	require.NoError(t, err)
	assert.True(t, doc.HasProperty("__webdriver_script_fn"))

	_, err = p.NewAudioContext()
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestInlineScriptsPatchGlobals(t *testing.T) {
	doc := `<html><head><script>
navigator.webdriver = false;
navigator.userAgent = "Mozilla/5.0 Patched";
Function.prototype.toString = function () { return "patched"; };
</script></head><body></body></html>`
	p := newTestPage(t, "headless", doc, PageOptions{})

	nav, err := p.Navigator()
	require.NoError(t, err)
	assert.False(t, nav.Webdriver)
	assert.Equal(t, "Mozilla/5.0 Patched", nav.UserAgent)

	src, err := p.NativeFunctionSource()
	require.NoError(t, err)
	assert.Equal(t, "patched", src)
}

func TestNativeFunctionSourceUntouched(t *testing.T) {
	p := newTestPage(t, "chrome", blankDocument, PageOptions{})
	src, err := p.NativeFunctionSource()
	require.NoError(t, err)
	assert.Contains(t, src, "[native code]")
}

func TestContentPolicyBlocksInlineScripts(t *testing.T) {
	doc := `<html><head><script>navigator.userAgent = "changed";</script></head><body></body></html>`

	tests := []struct {
		name   string
		header string
		meta   string
		ran    bool
	}{
		{name: "no policy", ran: true},
		{name: "unsafe-inline header", header: "script-src 'self' 'unsafe-inline'", ran: true},
		{name: "self only header", header: "script-src 'self'", ran: false},
		{name: "default-src fallback", header: "default-src 'self'", ran: false},
		{name: "meta policy", meta: "script-src 'none'", ran: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			html := doc
			if tt.meta != "" {
				html = `<html><head><meta http-equiv="Content-Security-Policy" content="` + tt.meta + `">` +
					`<script>navigator.userAgent = "changed";</script></head><body></body></html>`
			}
			p := newTestPage(t, "chrome", html, PageOptions{CSPHeader: tt.header})
			nav, err := p.Navigator()
			require.NoError(t, err)
			assert.Equal(t, tt.ran, nav.UserAgent == "changed")
		})
	}
}

func TestInjectedScriptHonoursPolicy(t *testing.T) {
	permissive := newTestPage(t, "chrome", blankDocument, PageOptions{})
	doc, err := permissive.Document()
	require.NoError(t, err)
	head, err := doc.Head()
	require.NoError(t, err)
	script, err := doc.CreateElement("script")
	require.NoError(t, err)
	require.NoError(t, script.SetText("window.injected = true;"))
	require.NoError(t, head.AppendChild(script))
	assert.True(t, permissive.HasGlobal("injected"))
	require.NoError(t, head.RemoveChild(script))
	assert.NotContains(t, permissive.HTML(), "injected")

	strict := newTestPage(t, "chrome", blankDocument, PageOptions{CSPHeader: "script-src 'self'"})
	doc, err = strict.Document()
	require.NoError(t, err)
	head, err = doc.Head()
	require.NoError(t, err)
	script, err = doc.CreateElement("script")
	require.NoError(t, err)
	require.NoError(t, script.SetText("window.injected = true;"))
	assert.ErrorIs(t, head.AppendChild(script), ErrBlocked)
	assert.False(t, script.Attached())
	assert.False(t, strict.HasGlobal("injected"))
}

func TestStorageFacilities(t *testing.T) {
	p := newTestPage(t, "chrome", blankDocument, PageOptions{})

	for _, kind := range []StorageKind{SessionStorage, LocalStorage} {
		s, err := p.Storage(kind)
		require.NoError(t, err, kind.String())
		require.NoError(t, s.SetItem("k", "v"))
		v, ok, err := s.GetItem("k")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "v", v)
		require.NoError(t, s.RemoveItem("k"))
		_, ok, _ = s.GetItem("k")
		assert.False(t, ok)
	}

	// page scripts see the same session storage
	s, err := p.Storage(SessionStorage)
	require.NoError(t, err)
	require.NoError(t, p.RunScript(`sessionStorage.setItem("sessionId", "abc")`))
	v, ok, err := s.GetItem("sessionId")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc", v)
}

func TestBlockedStorage(t *testing.T) {
	prof := mustProfile(t, "chrome")
	prof.BlockedStorage = []string{"local", "cookie"}
	p, err := NewPage(prof, blankDocument, PageOptions{})
	require.NoError(t, err)
	defer p.Close()

	_, err = p.Storage(SessionStorage)
	assert.NoError(t, err)
	_, err = p.Storage(LocalStorage)
	assert.ErrorIs(t, err, ErrSecurity)
	_, err = p.Cookies()
	assert.ErrorIs(t, err, ErrSecurity)
	assert.False(t, p.HasGlobal("localStorage"))
	assert.True(t, p.HasGlobal("sessionStorage"))
}

func TestReadyDelay(t *testing.T) {
	p := newTestPage(t, "chrome", blankDocument, PageOptions{ReadyDelay: 20 * time.Millisecond})
	doc, err := p.Document()
	require.NoError(t, err)
	assert.Equal(t, ReadyLoading, doc.ReadyState())

	done := make(chan struct{})
	doc.OnReady(func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ready callback never ran")
	}
	assert.Equal(t, ReadyComplete, doc.ReadyState())

	// already ready: runs right away
	again := make(chan struct{})
	doc.OnReady(func() { close(again) })
	select {
	case <-again:
	case <-time.After(2 * time.Second):
		t.Fatal("late ready callback never ran")
	}
}

func TestClickListeners(t *testing.T) {
	p := newTestPage(t, "chrome", blankDocument, PageOptions{})
	doc, err := p.Document()
	require.NoError(t, err)

	var first, second atomic.Int32
	remove := doc.OnClick(func(time.Time) { first.Add(1) })
	doc.OnClick(func(time.Time) { second.Add(1) })

	now := time.Now()
	p.Click(now)
	remove()
	p.Click(now.Add(time.Second))

	assert.EqualValues(t, 1, first.Load())
	assert.EqualValues(t, 2, second.Load())
}

func TestAudioContextLifecycle(t *testing.T) {
	p := newTestPage(t, "chrome", blankDocument, PageOptions{})

	ac, err := p.NewAudioContext()
	require.NoError(t, err)
	assert.Equal(t, 1, p.OpenAudioContexts())
	require.NoError(t, ac.Close())
	assert.Error(t, ac.Close())
	assert.Zero(t, p.OpenAudioContexts())

	_, err = p.NewOfflineAudioContext(1, 10, 100)
	assert.Error(t, err)
}

func TestInvalidProfileRejected(t *testing.T) {
	prof := mustProfile(t, "chrome")
	prof.Navigator.UserAgent = ""
	_, err := NewPage(prof, blankDocument, PageOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UserAgent")
}
