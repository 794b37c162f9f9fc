package core

import (
	"context"
	"sync"
	"time"

	"riskagent/browser"
)

const DefaultFrameProbeTimeout = 500 * time.Millisecond

// Resolution triggers, reported for metrics.
const (
	TriggerImmediate = "immediate"
	TriggerLoad      = "load"
	TriggerTimeout   = "timeout"
	TriggerCancel    = "cancel"
	TriggerError     = "error"
)

type FrameVerdict struct {
	Mismatch bool
	Trigger  string
}

// FrameBehaviorProbe compares the navigator of a fresh blank child frame
// with the page's own. Stealth patches applied to the page often miss new
// frames, so a difference, or an unreadable frame, is suspicious.
type FrameBehaviorProbe struct {
	Timeout time.Duration
}

func (p FrameBehaviorProbe) Probe(ctx context.Context, w browser.Window) bool {
	return p.Resolve(ctx, w).Mismatch
}

// Resolve runs the probe and reports which trigger settled it. Failure
// anywhere resolves to a mismatch.
func (p FrameBehaviorProbe) Resolve(ctx context.Context, w browser.Window) FrameVerdict {
	v, ok := attempt(func() (FrameVerdict, error) { return p.race(ctx, w) })
	if !ok {
		return FrameVerdict{Mismatch: true, Trigger: TriggerError}
	}
	return v
}

func (p FrameBehaviorProbe) race(ctx context.Context, w browser.Window) (FrameVerdict, error) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultFrameProbeTimeout
	}

	doc, err := w.Document()
	if err != nil {
		return FrameVerdict{}, err
	}
	body, err := doc.Body()
	if err != nil {
		return FrameVerdict{}, err
	}
	frame, err := doc.CreateFrame()
	if err != nil {
		return FrameVerdict{}, err
	}
	if err := frame.SetAttribute("style", "display:none"); err != nil {
		return FrameVerdict{}, err
	}
	if err := frame.SetAttribute("src", "about:blank"); err != nil {
		return FrameVerdict{}, err
	}

	r := &frameResolver{w: w, body: body, frame: frame, done: make(chan struct{})}
	// no-op once resolved; on a host panic it still detaches the frame
	defer r.resolve(TriggerError)
	cancelLoad := frame.OnLoad(func() { r.resolve(TriggerLoad) })
	defer cancelLoad()

	if err := body.AppendChild(frame); err != nil {
		// the host may have attached it before failing
		r.resolve(TriggerError)
		return FrameVerdict{Mismatch: true, Trigger: TriggerError}, nil
	}

	timer := time.AfterFunc(timeout, func() { r.resolve(TriggerTimeout) })
	defer timer.Stop()
	stop := context.AfterFunc(ctx, func() { r.resolve(TriggerCancel) })
	defer stop()

	if state, err := frame.ContentReadyState(); err == nil && state == browser.ReadyComplete {
		r.resolve(TriggerImmediate)
	}

	<-r.done
	return r.verdict, nil
}

// frameResolver is the single resolution sink both triggers feed. The
// first caller compares and removes the frame; later calls do nothing.
type frameResolver struct {
	w     browser.Window
	body  browser.Node
	frame browser.Frame

	once    sync.Once
	done    chan struct{}
	verdict FrameVerdict
}

func (r *frameResolver) resolve(trigger string) {
	r.once.Do(func() {
		defer close(r.done)
		r.verdict = FrameVerdict{Mismatch: r.compare(), Trigger: trigger}
		_ = capture(func() error { return r.body.RemoveChild(r.frame) })
	})
}

func (r *frameResolver) compare() bool {
	parent, ok := attempt(func() (browser.Navigator, error) { return r.w.Navigator() })
	if !ok {
		return true
	}
	child, ok := attempt(func() (browser.Navigator, error) { return r.frame.ContentNavigator() })
	if !ok {
		return true
	}
	return parent.UserAgent != child.UserAgent || parent.Platform != child.Platform
}
