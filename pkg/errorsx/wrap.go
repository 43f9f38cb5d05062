// Package errorsx attaches machine-readable reason codes to errors so logs
// and metrics can aggregate failures without string matching.
package errorsx

import (
	"errors"
	"fmt"
)

// ReasonedError carries a reason code alongside the underlying error.
type ReasonedError struct {
	Reason ReasonCode
	Err    error
}

func (e *ReasonedError) Error() string {
	if e.Err == nil {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *ReasonedError) Unwrap() error { return e.Err }

// Wrap attaches a reason to err. The innermost reason wins: wrapping an
// already-reasoned error returns it unchanged.
func Wrap(err error, reason ReasonCode) error {
	if err == nil {
		return nil
	}
	var re *ReasonedError
	if errors.As(err, &re) {
		return err
	}
	return &ReasonedError{Reason: reason, Err: err}
}

// Reason returns the reason code carried by err, or ReasonUnknown.
func Reason(err error) ReasonCode {
	var re *ReasonedError
	if errors.As(err, &re) {
		return re.Reason
	}
	return ReasonUnknown
}

// HasReason reports whether err carries the given reason code.
func HasReason(err error, reason ReasonCode) bool {
	return err != nil && Reason(err) == reason
}
