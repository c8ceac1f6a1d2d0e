package source

import (
	"errors"
	"strings"
)

// ErrorCategory classifies hard capture errors for telemetry.
type ErrorCategory int

const (
	// ErrCategoryDevice indicates the device went away or failed (unplugged, I/O error)
	ErrCategoryDevice ErrorCategory = iota
	// ErrCategoryFormat indicates negotiation or pixel format problems
	ErrCategoryFormat
	// ErrCategoryBusy indicates another process holds the device
	ErrCategoryBusy
	// ErrCategoryUnknown indicates unclassified errors
	ErrCategoryUnknown
)

// String returns a human-readable name of the category
func (e ErrorCategory) String() string {
	switch e {
	case ErrCategoryDevice:
		return "device"
	case ErrCategoryFormat:
		return "format"
	case ErrCategoryBusy:
		return "busy"
	default:
		return "unknown"
	}
}

// ClassifyError buckets a capture error by sentinel first, then by message
// keywords. Driver errors rarely carry typed causes, so string matching is
// the fallback.
func ClassifyError(err error) ErrorCategory {
	if err == nil {
		return ErrCategoryUnknown
	}

	switch {
	case errors.Is(err, ErrUnsupportedMode):
		return ErrCategoryFormat
	case errors.Is(err, ErrNoDevice), errors.Is(err, ErrNotOpen):
		return ErrCategoryDevice
	}

	msg := strings.ToLower(err.Error())

	// Busy is the most specific, check it first.
	if containsAny(msg, "busy", "in use", "ebusy", "resource temporarily") {
		return ErrCategoryBusy
	}
	if containsAny(msg, "format", "negotiat", "caps", "not supported", "unsupported", "resolution") {
		return ErrCategoryFormat
	}
	if containsAny(msg, "device", "no such", "disconnect", "i/o", "ioctl", "v4l2", "end of stream", "eos") {
		return ErrCategoryDevice
	}

	return ErrCategoryUnknown
}

func containsAny(s string, keywords ...string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
