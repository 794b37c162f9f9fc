package utils

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClickPath(t *testing.T) {
	targets := [][2]int{{40, 113}, {280, 113}, {175, 146}}
	events := ClickPath(rand.New(rand.NewSource(7)), [2]int{0, 0}, targets)

	offsets := ClickOffsets(events)
	require.Len(t, offsets, len(targets))

	// 21 samples per segment at 10-19ms, plus an up delay under 10ms
	assert.GreaterOrEqual(t, offsets[0], 210*time.Millisecond)
	assert.LessOrEqual(t, offsets[0], 21*19*time.Millisecond)
	for i := 1; i < len(offsets); i++ {
		gap := offsets[i] - offsets[i-1]
		assert.GreaterOrEqual(t, gap, 210*time.Millisecond)
		assert.LessOrEqual(t, gap, (21*19+9)*time.Millisecond)
	}

	// every click lands on its target
	i := 0
	for _, ev := range events {
		if ev.Event.Type == "Down" {
			assert.Equal(t, targets[i], [2]int{ev.Event.X, ev.Event.Y})
			i++
		}
	}
}

func TestClickPathIsSeeded(t *testing.T) {
	targets := [][2]int{{10, 10}, {300, 200}}
	a := ClickPath(rand.New(rand.NewSource(42)), [2]int{5, 5}, targets)
	b := ClickPath(rand.New(rand.NewSource(42)), [2]int{5, 5}, targets)
	assert.Equal(t, a, b)

	assert.Len(t, ClickOffsets(ClickPath(nil, [2]int{}, targets)), 2)
}

func TestBezierEndpoints(t *testing.T) {
	points := makeBezier([2]int{0, 0}, [2]int{10, 50}, [2]int{90, 50}, [2]int{100, 0}, []float64{0, 0.5, 1})
	require.Len(t, points, 3)
	assert.Equal(t, [2]int{0, 0}, points[0])
	assert.Equal(t, [2]int{50, 37}, points[1])
	assert.Equal(t, [2]int{100, 0}, points[2])
}
