package base

import (
	"errors"
	"fmt"
)

// Failure taxonomy shared by the scheduler, the durable queue, the coordinator and the gateways.
// Gateways wrap provider errors so that errors.Is against these sentinels classifies them.
var (
	ErrRateLimited         = errors.New("rate limited by provider")
	ErrNetworkUnavailable  = errors.New("network unavailable")
	ErrValidation          = errors.New("validation failed")
	ErrProviderHardFailure = errors.New("provider failure")
	ErrExhausted           = errors.New("retry budget exhausted")
	ErrUndoImpossible      = errors.New("undo impossible")

	ErrStorageUnavailable = errors.New("durable storage unavailable")
	ErrFlushInProgress    = errors.New("flush already in progress")
	ErrSchedulerCleared   = errors.New("scheduler cleared")
)

// RetryError is returned once a retryable failure has used up its attempts.
// It matches ErrExhausted as well as the last underlying cause.
type RetryError struct {
	Attempts int
	Err      error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("%s after %d attempts: %v", ErrExhausted, e.Attempts, e.Err)
}

func (e *RetryError) Unwrap() []error {
	return []error{ErrExhausted, e.Err}
}

// Classify wraps err with a taxonomy sentinel, keeping the original message.
func Classify(kind, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, kind) {
		return err
	}
	return &classified{kind: kind, err: err}
}

type classified struct {
	kind error
	err  error
}

func (c *classified) Error() string {
	return fmt.Sprintf("%s: %v", c.kind, c.err)
}

func (c *classified) Unwrap() []error {
	return []error{c.kind, c.err}
}

// Validationf builds an ErrValidation with a formatted reason.
func Validationf(format string, args ...any) error {
	return Classify(ErrValidation, fmt.Errorf(format, args...))
}

func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

func IsNetworkUnavailable(err error) bool {
	return errors.Is(err, ErrNetworkUnavailable)
}

// IsPermanent reports whether err can never succeed on a later attempt, no matter how often
// it is retried.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrUndoImpossible)
}

// IsRetryable reports whether a later attempt could succeed.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrUndoImpossible) || errors.Is(err, ErrExhausted) {
		return false
	}
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrNetworkUnavailable) ||
		errors.Is(err, ErrProviderHardFailure)
}
