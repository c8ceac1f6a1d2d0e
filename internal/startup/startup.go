// Package startup holds the one error type that is allowed to leave the
// pipeline: a failure to bring a component up. Everything that happens per
// frame is absorbed by the loops and only shows up in counters.
package startup

import (
	"errors"
	"fmt"
)

// Error is a fatal startup failure. The process should exit non-zero.
type Error struct {
	Component string // "capture", "publish", ...
	Op        string // what was being attempted
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: startup failed: %s: %v", e.Component, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap returns nil if err is nil, err itself if it is already an *Error,
// and a new *Error otherwise.
func Wrap(component, op string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Component: component, Op: op, Err: err}
}

// Is reports whether err is (or wraps) a startup failure.
func Is(err error) bool {
	var se *Error
	return errors.As(err, &se)
}
