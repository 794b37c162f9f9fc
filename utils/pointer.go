package utils

import (
	"math"
	"math/rand"
	"time"
)

type PointerEvent struct {
	Type string // Move, Down, Up
	X    int
	Y    int
}

type TimedEvent struct {
	Event         PointerEvent
	SincePrevious time.Duration
}

// Path shape. speed is the number of samples per segment.
const (
	pathDeviation = 20
	pathSpeed     = 20
)

func clickEvents(rng *rand.Rand, at [2]int) []TimedEvent {
	return []TimedEvent{
		{Event: PointerEvent{"Down", at[0], at[1]}, SincePrevious: 0},
		{Event: PointerEvent{"Up", at[0], at[1]}, SincePrevious: time.Duration(rng.Intn(10)) * time.Millisecond},
	}
}

// bezierPath moves through coords on cubic curves with jittered control
// points, 10-19ms between samples.
func bezierPath(rng *rand.Rand, coords [][2]int, deviation, speed int) []TimedEvent {
	var path []TimedEvent
	for i := 0; i < len(coords)-1; i++ {
		start, end := coords[i], coords[i+1]
		tValues := make([]float64, speed+1)
		for t := 0; t <= speed; t++ {
			tValues[t] = float64(t) / float64(speed)
		}
		ctrl1 := randomControlPoint(rng, start, end, deviation)
		ctrl2 := randomControlPoint(rng, start, end, deviation)
		for _, point := range makeBezier(start, ctrl1, ctrl2, end, tValues) {
			path = append(path, TimedEvent{
				Event:         PointerEvent{"Move", point[0], point[1]},
				SincePrevious: time.Duration(rng.Intn(10)+10) * time.Millisecond,
			})
		}
	}
	return path
}

func randomControlPoint(rng *rand.Rand, p1, p2 [2]int, deviation int) [2]int {
	midX := (p1[0] + p2[0]) / 2
	midY := (p1[1] + p2[1]) / 2

	return [2]int{
		midX + rng.Intn(deviation) - deviation/2,
		midY + rng.Intn(deviation) - deviation/2,
	}
}

func makeBezier(start, ctrl1, ctrl2, end [2]int, tValues []float64) [][2]int {
	points := make([][2]int, 0, len(tValues))
	for _, t := range tValues {
		x := math.Pow(1-t, 3)*float64(start[0]) + 3*t*math.Pow(1-t, 2)*float64(ctrl1[0]) +
			3*(1-t)*t*t*float64(ctrl2[0]) + t*t*t*float64(end[0])
		y := math.Pow(1-t, 3)*float64(start[1]) + 3*t*math.Pow(1-t, 2)*float64(ctrl1[1]) +
			3*(1-t)*t*t*float64(ctrl2[1]) + t*t*t*float64(end[1])
		points = append(points, [2]int{int(x), int(y)})
	}
	return points
}

// ClickPath travels from start to each target in turn and clicks it. A nil
// rng uses a time-seeded source.
func ClickPath(rng *rand.Rand, start [2]int, targets [][2]int) []TimedEvent {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	var events []TimedEvent
	from := start
	for _, target := range targets {
		events = append(events, bezierPath(rng, [][2]int{from, target}, pathDeviation, pathSpeed)...)
		events = append(events, clickEvents(rng, target)...)
		from = target
	}
	return events
}

// ClickOffsets returns when each Down event happens, relative to the start
// of the path.
func ClickOffsets(events []TimedEvent) []time.Duration {
	var (
		out     []time.Duration
		elapsed time.Duration
	)
	for _, ev := range events {
		elapsed += ev.SincePrevious
		if ev.Event.Type == "Down" {
			out = append(out, elapsed)
		}
	}
	return out
}
