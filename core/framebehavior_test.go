package core

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskagent/browser"
)

// countingWindow counts frame removals from the body.
type countingWindow struct {
	*browser.Page
	removals atomic.Int32
}

func (w *countingWindow) Document() (browser.Document, error) {
	doc, err := w.Page.Document()
	if err != nil {
		return nil, err
	}
	return &countingDocument{Document: doc, w: w}, nil
}

type countingDocument struct {
	browser.Document
	w *countingWindow
}

func (d *countingDocument) Body() (browser.Node, error) {
	body, err := d.Document.Body()
	if err != nil {
		return nil, err
	}
	return &countingNode{Node: body, w: d.w}, nil
}

type countingNode struct {
	browser.Node
	w *countingWindow
}

func (n *countingNode) RemoveChild(child browser.Element) error {
	n.w.removals.Add(1)
	return n.Node.RemoveChild(child)
}

func assertNoFrames(t *testing.T, page *browser.Page) {
	t.Helper()
	doc, err := page.Document()
	require.NoError(t, err)
	frames, err := doc.Frames()
	require.NoError(t, err)
	assert.Empty(t, frames)
	assert.NotContains(t, page.HTML(), "<iframe")
}

func TestFrameProbeTriggers(t *testing.T) {
	tests := []struct {
		name    string
		delay   time.Duration
		timeout time.Duration
		want    string
	}{
		{name: "loads on attach", delay: 0, timeout: time.Second, want: TriggerLoad},
		{name: "loads later", delay: 20 * time.Millisecond, timeout: time.Second, want: TriggerLoad},
		{name: "never loads", delay: -1, timeout: 30 * time.Millisecond, want: TriggerTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := newTestPage(t, "chrome", browser.PageOptions{FrameLoadDelay: tt.delay})

			v := FrameBehaviorProbe{Timeout: tt.timeout}.Resolve(context.Background(), page)
			assert.Equal(t, tt.want, v.Trigger)
			assert.False(t, v.Mismatch)
			assertNoFrames(t, page)
		})
	}
}

func TestFrameProbeCancel(t *testing.T) {
	page := newTestPage(t, "chrome", browser.PageOptions{FrameLoadDelay: -1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	v := FrameBehaviorProbe{Timeout: 5 * time.Second}.Resolve(ctx, page)
	assert.Equal(t, TriggerCancel, v.Trigger)
	assert.Less(t, time.Since(start), time.Second)
	assertNoFrames(t, page)
}

func TestFrameProbeRemovesExactlyOnce(t *testing.T) {
	page := newTestPage(t, "chrome", browser.PageOptions{FrameLoadDelay: 10 * time.Millisecond})
	w := &countingWindow{Page: page}

	// load and timeout land together; only one may resolve
	FrameBehaviorProbe{Timeout: 10 * time.Millisecond}.Resolve(context.Background(), w)
	time.Sleep(50 * time.Millisecond)

	assert.EqualValues(t, 1, w.removals.Load())
	assertNoFrames(t, page)
}

func TestFrameProbeDetectsPatchedParent(t *testing.T) {
	doc := `<html><head><script>navigator.userAgent = "Mozilla/5.0 Spoofed";</script></head><body></body></html>`
	page := newPage(t, mustProfile(t, "chrome"), doc, browser.PageOptions{})

	assert.True(t, FrameBehaviorProbe{}.Probe(context.Background(), page))
	assertNoFrames(t, page)
}

func TestFrameProbeAcceptsConsistentPatch(t *testing.T) {
	page := newTestPage(t, "chrome", browser.PageOptions{
		InitScripts: []string{`navigator.userAgent = "Mozilla/5.0 Spoofed";`},
	})

	assert.False(t, FrameBehaviorProbe{}.Probe(context.Background(), page))
}

func TestFrameProbeFailsClosed(t *testing.T) {
	noDoc := &stubWindow{doc: func() (browser.Document, error) { return nil, browser.ErrNoDocument }}
	v := FrameBehaviorProbe{}.Resolve(context.Background(), noDoc)
	assert.True(t, v.Mismatch)
	assert.Equal(t, TriggerError, v.Trigger)

	// navigator unreadable once the frame is up
	page := newTestPage(t, "chrome", browser.PageOptions{})
	w := &stubWindow{
		Window: page,
		nav:    func() (browser.Navigator, error) { return browser.Navigator{}, errors.New("denied") },
	}
	w.location = page.Location()
	v = FrameBehaviorProbe{}.Resolve(context.Background(), w)
	assert.True(t, v.Mismatch)
	assertNoFrames(t, page)
}

// scriptedFrame never fires load; its ready state comes from ready.
type scriptedFrame struct {
	browser.Frame
	ready    func() (string, error)
	attached atomic.Bool
}

func (f *scriptedFrame) SetAttribute(string, string) error { return nil }
func (f *scriptedFrame) OnLoad(func()) func() { return func() {} }
func (f *scriptedFrame) ContentReadyState() (string, error) { return f.ready() }
func (f *scriptedFrame) ContentNavigator() (browser.Navigator, error) {
	return browser.Navigator{UserAgent: "Mozilla/5.0", Platform: "Win32"}, nil
}

type scriptedBody struct {
	frame    *scriptedFrame
	removals atomic.Int32
}

func (b *scriptedBody) AppendChild(browser.Element) error {
	b.frame.attached.Store(true)
	return nil
}

func (b *scriptedBody) RemoveChild(browser.Element) error {
	b.removals.Add(1)
	b.frame.attached.Store(false)
	return nil
}

type scriptedDocument struct {
	browser.Document
	body *scriptedBody
}

func (d *scriptedDocument) Body() (browser.Node, error)         { return d.body, nil }
func (d *scriptedDocument) CreateFrame() (browser.Frame, error) { return d.body.frame, nil }

func scriptedWindow(ready func() (string, error)) (*stubWindow, *scriptedBody) {
	body := &scriptedBody{frame: &scriptedFrame{ready: ready}}
	doc := &scriptedDocument{body: body}
	return &stubWindow{
		nav: func() (browser.Navigator, error) {
			return browser.Navigator{UserAgent: "Mozilla/5.0", Platform: "Win32"}, nil
		},
		doc: func() (browser.Document, error) { return doc, nil },
	}, body
}

func TestFrameProbeAlreadyComplete(t *testing.T) {
	w, body := scriptedWindow(func() (string, error) { return browser.ReadyComplete, nil })

	start := time.Now()
	v := FrameBehaviorProbe{Timeout: 5 * time.Second}.Resolve(context.Background(), w)

	assert.Equal(t, TriggerImmediate, v.Trigger)
	assert.False(t, v.Mismatch)
	assert.Less(t, time.Since(start), time.Second)
	assert.EqualValues(t, 1, body.removals.Load())
	assert.False(t, body.frame.attached.Load())
}

func TestFrameProbeDetachesOnHostPanic(t *testing.T) {
	w, body := scriptedWindow(func() (string, error) { panic("host crashed") })

	start := time.Now()
	v := FrameBehaviorProbe{Timeout: 5 * time.Second}.Resolve(context.Background(), w)

	assert.Equal(t, FrameVerdict{Mismatch: true, Trigger: TriggerError}, v)
	assert.Less(t, time.Since(start), time.Second)
	assert.EqualValues(t, 1, body.removals.Load())
	assert.False(t, body.frame.attached.Load())
}
