package core

import (
	"errors"
	"fmt"
)

// ErrNoWindow aborts a collection: there is no window or document to probe.
var ErrNoWindow = errors.New("core: no window or document")

// ErrUnknownSource rejects a Source whose Name has no digest slot.
var ErrUnknownSource = errors.New("core: unknown rendering source")

// attempt runs one probe step behind a failure boundary. Errors and panics
// from the host both come back as ok == false.
func attempt[T any](fn func() (T, error)) (out T, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			out, ok = zero, false
		}
	}()
	v, err := fn()
	if err != nil {
		var zero T
		return zero, false
	}
	return v, true
}

// capture is attempt for steps whose error matters to the caller.
func capture(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("probe panic: %v", r)
		}
	}()
	return fn()
}
