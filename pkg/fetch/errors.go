package fetch

import (
	"errors"
	"fmt"
)

// The fetch core classifies every failure into one of four kinds so callers
// can pick fallback behavior without string matching.

// ValidationError reports malformed input: a bad method token, an unparseable
// URL, a rejected init field, or a body that failed to decode at consumption
// time.
type ValidationError struct {
	Msg string
	Err error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *ValidationError) Unwrap() error { return e.Err }

// StateError reports a contract violation: a body consumed twice, a second
// response decision on the same event, a transport handle used outside its
// execution context. These are never retried.
type StateError struct {
	Msg string
}

func (e *StateError) Error() string { return e.Msg }

// TransmissionError reports a transport-level failure, including a redirect
// chain broken by a non-rewindable body. The fetch layer never retries these.
type TransmissionError struct {
	Msg string
	Err error
}

func (e *TransmissionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *TransmissionError) Unwrap() error { return e.Err }

// CapabilityError reports an operation not supported by the current
// configuration, such as cross-context channel resolution on a fetcher that
// does not implement it, or a verb removed by a compatibility gate. It is
// distinguishable from TransmissionError so callers can fall back.
type CapabilityError struct {
	Msg string
}

func (e *CapabilityError) Error() string { return e.Msg }

func validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

func statef(format string, args ...any) error {
	return &StateError{Msg: fmt.Sprintf(format, args...)}
}

func transmissionf(format string, args ...any) error {
	return &TransmissionError{Msg: fmt.Sprintf(format, args...)}
}

func capabilityf(format string, args ...any) error {
	return &CapabilityError{Msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsState reports whether err is a StateError.
func IsState(err error) bool {
	var se *StateError
	return errors.As(err, &se)
}

// IsTransmission reports whether err is a TransmissionError.
func IsTransmission(err error) bool {
	var te *TransmissionError
	return errors.As(err, &te)
}

// IsCapability reports whether err is a CapabilityError.
func IsCapability(err error) bool {
	var ce *CapabilityError
	return errors.As(err, &ce)
}
