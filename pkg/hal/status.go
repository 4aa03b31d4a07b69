package hal

import (
	"fmt"
)

// Status is a backend status code. The names follow the HAL error codes
// a caller can act on; backend specific codes are wrapped in StatusError.Err.
type Status int32

const (
	StatusOK Status = iota
	StatusUnknownProperty
	StatusBadDevice
	StatusBadStream
	StatusIllegalOperation
	StatusUnsupportedFormat
	StatusNotRunning
	StatusUnspecified
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusUnknownProperty:
		return "unknown property"
	case StatusBadDevice:
		return "bad device"
	case StatusBadStream:
		return "bad stream"
	case StatusIllegalOperation:
		return "illegal operation"
	case StatusUnsupportedFormat:
		return "unsupported format"
	case StatusNotRunning:
		return "not running"
	default:
		return "unspecified"
	}
}

// StatusError reports a failed HAL call.
type StatusError struct {
	Op     string
	Status Status
	Err    error
}

// NewStatusError returns a StatusError for op.
func NewStatusError(op string, status Status, err error) *StatusError {
	return &StatusError{Op: op, Status: status, Err: err}
}

func (e *StatusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("hal: %s: %s: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("hal: %s: %s", e.Op, e.Status)
}

func (e *StatusError) Unwrap() error { return e.Err }

// Is matches another StatusError with the same status, so callers can test
// errors.Is(err, &hal.StatusError{Status: hal.StatusBadDevice}).
func (e *StatusError) Is(target error) bool {
	t, ok := target.(*StatusError)
	if !ok {
		return false
	}
	return t.Status == e.Status && (t.Op == "" || t.Op == e.Op)
}
