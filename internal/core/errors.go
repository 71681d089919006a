package core

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound marks lookups of unknown transactions or categories.
	ErrNotFound = errors.New("not found")

	ErrInvalidAmount = &ValidationError{Msg: "amount must be greater than zero"}
)

// ValidationError is a business-rule violation: bad or missing fields,
// insufficient balance, identical from/to selections. Surfaced to callers
// as 4xx with the message intact; nothing has been mutated when one is
// returned.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Validationf builds a ValidationError from a format string.
func Validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// UpstreamError marks failures of the external language-model call:
// timeouts, transport errors, malformed replies. Kept distinct from
// validation failures so callers can offer "retry" instead of "fix your
// input".
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// IsUpstream reports whether err is (or wraps) an UpstreamError.
func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}
