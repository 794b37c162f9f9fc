package core

import (
	"sync"
	"time"

	"riskagent/browser"
)

// InteractionWindowSize is how many inter-click gaps are kept.
const InteractionWindowSize = 20

// InteractionTracker keeps the most recent inter-click gaps in a fixed ring.
// One tracker lives as long as its page; a reload gets a new one.
type InteractionTracker struct {
	mu    sync.Mutex
	gaps  [InteractionWindowSize]float64
	start int
	count int
	last  time.Time
	seen  bool
}

func NewInteractionTracker() *InteractionTracker {
	return &InteractionTracker{}
}

// Attach listens for clicks on doc until the returned func is called.
func (t *InteractionTracker) Attach(doc browser.Document) (detach func()) {
	return doc.OnClick(t.Record)
}

// Record registers a click. The first click only sets the reference time.
func (t *InteractionTracker) Record(at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.seen {
		t.seen = true
		t.last = at
		return
	}
	gap := float64(at.Sub(t.last)) / float64(time.Millisecond)
	t.last = at

	if t.count < InteractionWindowSize {
		t.gaps[(t.start+t.count)%InteractionWindowSize] = gap
		t.count++
		return
	}
	// full: overwrite the oldest
	t.gaps[t.start] = gap
	t.start = (t.start + 1) % InteractionWindowSize
}

// Gaps returns the window oldest first.
func (t *InteractionTracker) Gaps() []float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]float64, t.count)
	for i := range out {
		out[i] = t.gaps[(t.start+i)%InteractionWindowSize]
	}
	return out
}

// Mean is the average gap in milliseconds, ok == false before any gap.
func (t *InteractionTracker) Mean() (float64, bool) {
	gaps := t.Gaps()
	if len(gaps) == 0 {
		return 0, false
	}
	sum := 0.0
	for _, g := range gaps {
		sum += g
	}
	return sum / float64(len(gaps)), true
}

func (t *InteractionTracker) Summary() InteractionSummary {
	s := InteractionSummary{Samples: len(t.Gaps())}
	if mean, ok := t.Mean(); ok {
		s.ClickIntervalAvg = &mean
	}
	return s
}
