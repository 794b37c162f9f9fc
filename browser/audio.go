package browser

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
)

// audioContexts counts realtime contexts that were opened and not closed.
type audioContexts struct {
	open atomic.Int64
}

type emulatedAudioContext struct {
	once   sync.Once
	parent *audioContexts
}

func (a *audioContexts) newContext() *emulatedAudioContext {
	a.open.Add(1)
	return &emulatedAudioContext{parent: a}
}

func (c *emulatedAudioContext) Close() error {
	closed := false
	c.once.Do(func() {
		c.parent.open.Add(-1)
		closed = true
	})
	if !closed {
		return fmt.Errorf("audio context already closed")
	}
	return nil
}

type emulatedOfflineContext struct {
	channels   int
	length     int
	sampleRate float64
	skew       float64
}

// Render synthesizes the oscillator into channel 0. skew scales every
// sample, standing in for the DSP differences between audio stacks.
func (o *emulatedOfflineContext) Render(ctx context.Context, osc Oscillator) (AudioBuffer, error) {
	wave, err := waveform(osc.Type)
	if err != nil {
		return AudioBuffer{}, err
	}

	buf := AudioBuffer{SampleRate: o.sampleRate, Channels: make([][]float32, o.channels)}
	for ch := range buf.Channels {
		buf.Channels[ch] = make([]float32, o.length)
	}

	for i := 0; i < o.length; i++ {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return AudioBuffer{}, err
			}
		}
		phase := math.Mod(osc.Frequency*float64(i)/o.sampleRate, 1)
		buf.Channels[0][i] = float32(wave(phase) * (1 + o.skew))
	}
	return buf, nil
}

func waveform(kind string) (func(phase float64) float64, error) {
	switch kind {
	case "", "sine":
		return func(p float64) float64 { return math.Sin(2 * math.Pi * p) }, nil
	case "triangle":
		return func(p float64) float64 {
			switch {
			case p < 0.25:
				return 4 * p
			case p < 0.75:
				return 2 - 4*p
			default:
				return 4*p - 4
			}
		}, nil
	case "square":
		return func(p float64) float64 {
			if p < 0.5 {
				return 1
			}
			return -1
		}, nil
	case "sawtooth":
		return func(p float64) float64 {
			if p < 0.5 {
				return 2 * p
			}
			return 2*p - 2
		}, nil
	}
	return nil, fmt.Errorf("oscillator type %q: %w", kind, ErrUnsupported)
}
