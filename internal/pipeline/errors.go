package pipeline

import (
	"errors"
	"fmt"
)

// ErrMalformedJob marks a payload that can never be processed: bad JSON, an
// unknown stage, or a missing identifier.
var ErrMalformedJob = errors.New("malformed job")

func malformed(reason string) error {
	return fmt.Errorf("%w: %s", ErrMalformedJob, reason)
}

// PermanentError wraps a failure that will not succeed on retry.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return "permanent: " + e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent marks err as permanent. A nil err stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	var pe *PermanentError
	if errors.As(err, &pe) {
		return err
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err should be acknowledged without retry.
// Anything not marked permanent is treated as transient.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrMalformedJob) {
		return true
	}
	var pe *PermanentError
	return errors.As(err, &pe)
}
