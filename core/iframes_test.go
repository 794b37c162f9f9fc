package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"riskagent/browser"
	"riskagent/utils"
)

const framedDocument = `<html><body>
<iframe src="/pixel" style="width:0;height:0"></iframe>
<iframe src="https://evil.example/overlay" style="left:-5000px;width:300px;height:200px"></iframe>
<iframe src="https://ads.example.net/slot" style="width:300px;height:200px"></iframe>
<iframe src="https://localhost/widget" style="width:300px;height:200px"></iframe>
</body></html>`

func TestIframeScan(t *testing.T) {
	page := newPage(t, mustProfile(t, "chrome"), framedDocument, browser.PageOptions{})

	scan := IframeScanner{OrgHosts: utils.NewHostAllowlist([]string{"localhost"})}.Scan(page)
	assert.Equal(t, IframeScan{
		Total:       4,
		Suspicious:  3,
		Hidden:      1,
		Offscreen:   1,
		CrossOrigin: 2,
		NotFromOrg:  2,
	}, scan)
}

func TestIframeScanWithoutAllowlist(t *testing.T) {
	page := newPage(t, mustProfile(t, "chrome"), framedDocument, browser.PageOptions{})

	scan := IframeScanner{}.Scan(page)
	assert.Equal(t, 4, scan.Total)
	assert.Equal(t, 0, scan.NotFromOrg)
	assert.Equal(t, 3, scan.Suspicious)
}

func TestIframeScanCountsEachFrameOnce(t *testing.T) {
	doc := `<html><body>
<iframe src="https://evil.example/" style="left:-5000px;width:0;height:0"></iframe>
</body></html>`
	page := newPage(t, mustProfile(t, "chrome"), doc, browser.PageOptions{})

	scan := IframeScanner{OrgHosts: utils.NewHostAllowlist([]string{"localhost"})}.Scan(page)
	assert.Equal(t, IframeScan{Total: 1, Suspicious: 1, Hidden: 1, Offscreen: 1, CrossOrigin: 1, NotFromOrg: 1}, scan)
}

func TestIframeScanNoFrames(t *testing.T) {
	page := newTestPage(t, "chrome", browser.PageOptions{})
	assert.Equal(t, IframeScan{}, IframeScanner{}.Scan(page))
}

// stubFrame answers style, layout and src. A nil style func panics.
type stubFrame struct {
	browser.Frame
	src   string
	style func() (browser.Style, error)
	rect  browser.Rect
}

func (f *stubFrame) Src() string { return f.src }

func (f *stubFrame) ComputedStyle() (browser.Style, error) { return f.style() }

func (f *stubFrame) BoundingRect() (browser.Rect, error) { return f.rect, nil }

func TestIframeScanFailsClosedPerFrame(t *testing.T) {
	visible := func() (browser.Style, error) {
		return browser.Style{Display: "inline", Visibility: "visible", Opacity: 1}, nil
	}
	box := browser.Rect{Width: 300, Height: 150}

	doc := &stubDocument{frames: []browser.Frame{
		&stubFrame{src: "https://localhost/ok", style: visible, rect: box},
		&stubFrame{src: "https://localhost/denied", rect: box, style: func() (browser.Style, error) {
			return browser.Style{}, errors.New("denied")
		}},
		&stubFrame{src: "https://localhost/panics", rect: box},
		&stubFrame{src: "blob:https://localhost/1234", style: visible, rect: box},
	}}
	w := &stubWindow{
		location: "https://localhost/",
		doc:      func() (browser.Document, error) { return doc, nil },
	}

	// the stub has no viewport, so only negative offsets could count
	scan := IframeScanner{}.Scan(w)
	assert.Equal(t, IframeScan{Total: 4, Suspicious: 2, Hidden: 2}, scan)
}

func TestClassifyOrigins(t *testing.T) {
	s := IframeScanner{OrgHosts: utils.NewHostAllowlist([]string{"example.com"})}
	visible := func() (browser.Style, error) {
		return browser.Style{Display: "block", Visibility: "visible", Opacity: 1}, nil
	}
	box := browser.Rect{Width: 10, Height: 10}

	tests := []struct {
		src         string
		crossOrigin bool
		notFromOrg  bool
	}{
		{src: "", crossOrigin: false, notFromOrg: false},
		{src: "about:blank", crossOrigin: false, notFromOrg: false},
		{src: "https://example.com/frame", crossOrigin: false, notFromOrg: false},
		{src: "https://cdn.example.com/frame", crossOrigin: true, notFromOrg: true},
		{src: "http://example.com/frame", crossOrigin: true, notFromOrg: false},
		{src: "https://tracker.example.org/", crossOrigin: true, notFromOrg: true},
		{src: "data:text/html,hi", crossOrigin: true, notFromOrg: false},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			c := s.classify(&stubFrame{src: tt.src, style: visible, rect: box}, &browser.Viewport{Width: 800, Height: 600}, "https://example.com")
			assert.Equal(t, tt.crossOrigin, c.crossOrigin)
			assert.Equal(t, tt.notFromOrg, c.notFromOrg)
			assert.False(t, c.hidden)
		})
	}
}

func TestClassifyOnOpaquePage(t *testing.T) {
	s := IframeScanner{}
	visible := func() (browser.Style, error) {
		return browser.Style{Display: "block", Visibility: "visible", Opacity: 1}, nil
	}
	box := browser.Rect{Width: 10, Height: 10}

	tests := []struct {
		src         string
		crossOrigin bool
	}{
		{src: "data:text/html,hi", crossOrigin: true},
		{src: "file:///tmp/frame.html", crossOrigin: true},
		{src: "https://example.com/frame", crossOrigin: true},
		{src: "about:blank", crossOrigin: false},
		{src: "blob:null/4f2a", crossOrigin: false},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			c := s.classify(&stubFrame{src: tt.src, style: visible, rect: box}, nil, "null")
			assert.Equal(t, tt.crossOrigin, c.crossOrigin)
		})
	}
}

func TestSameOrigin(t *testing.T) {
	assert.True(t, sameOrigin("https://example.com", "https://example.com"))
	assert.False(t, sameOrigin("https://example.com", "https://example.com:8443"))
	assert.False(t, sameOrigin("null", "null"))
	assert.False(t, sameOrigin("null", "https://example.com"))
}

func TestClassifyOffscreen(t *testing.T) {
	s := IframeScanner{}
	visible := func() (browser.Style, error) {
		return browser.Style{Display: "block", Visibility: "visible", Opacity: 1}, nil
	}
	vp := &browser.Viewport{Width: 800, Height: 600}

	tests := []struct {
		name string
		rect browser.Rect
		want bool
	}{
		{name: "inside", rect: browser.Rect{Left: 10, Top: 10, Width: 100, Height: 100}},
		{name: "partly left", rect: browser.Rect{Left: -50, Top: 10, Width: 100, Height: 100}},
		{name: "left", rect: browser.Rect{Left: -200, Top: 10, Width: 100, Height: 100}, want: true},
		{name: "above", rect: browser.Rect{Left: 10, Top: -200, Width: 100, Height: 100}, want: true},
		{name: "right", rect: browser.Rect{Left: 800, Top: 10, Width: 100, Height: 100}, want: true},
		{name: "below", rect: browser.Rect{Left: 10, Top: 700, Width: 100, Height: 100}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := s.classify(&stubFrame{style: visible, rect: tt.rect}, vp, "https://example.com")
			assert.Equal(t, tt.want, c.offscreen)
		})
	}
}
