package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"riskagent/browser"
)

const blankDocument = `<!doctype html><html><head></head><body></body></html>`

func mustProfile(t *testing.T, name string) browser.Profile {
	t.Helper()
	set, err := browser.LoadProfiles("")
	require.NoError(t, err)
	p, ok := set.Get(name)
	require.True(t, ok, "profile %s", name)
	return p
}

func newPage(t *testing.T, profile browser.Profile, document string, opts browser.PageOptions) *browser.Page {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = zaptest.NewLogger(t)
	}
	p, err := browser.NewPage(profile, document, opts)
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p
}

func newTestPage(t *testing.T, profile string, opts browser.PageOptions) *browser.Page {
	t.Helper()
	return newPage(t, mustProfile(t, profile), blankDocument, opts)
}

// stubWindow overrides single capabilities. Anything not overridden calls
// through the nil embedded Window and panics, which probes must survive.
type stubWindow struct {
	browser.Window

	nav      func() (browser.Navigator, error)
	doc      func() (browser.Document, error)
	canvas   func() (browser.Canvas, error)
	location string
	referrer string
	native   func() (string, error)
}

func (s *stubWindow) Navigator() (browser.Navigator, error) {
	if s.nav == nil {
		return s.Window.Navigator()
	}
	return s.nav()
}

func (s *stubWindow) Document() (browser.Document, error) {
	if s.doc == nil {
		return s.Window.Document()
	}
	return s.doc()
}

func (s *stubWindow) NewCanvas(int, int) (browser.Canvas, error) {
	if s.canvas == nil {
		return s.Window.NewCanvas(0, 0)
	}
	return s.canvas()
}

func (s *stubWindow) NativeFunctionSource() (string, error) {
	if s.native == nil {
		return s.Window.NativeFunctionSource()
	}
	return s.native()
}

func (s *stubWindow) Location() string { return s.location }
func (s *stubWindow) Referrer() string { return s.referrer }

type stubDocument struct {
	browser.Document
	frames []browser.Frame
}

func (d *stubDocument) Frames() ([]browser.Frame, error) { return d.frames, nil }

func (d *stubDocument) OnClick(func(time.Time)) func() { return func() {} }

// fixedClock returns the same instant on every call.
func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}
