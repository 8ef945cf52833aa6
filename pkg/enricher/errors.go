package enricher

import (
	"fmt"
	"time"

	"github.com/pulsesync/server/pkg/types"
)

// RetryableError indicates that enrichment failed because upstream data is not
// available yet (e.g. vendor ingestion lag) and should be retried after a delay.
type RetryableError struct {
	Err        error
	RetryAfter time.Duration
	Reason     string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable error (after %v): %s: %v", e.RetryAfter, e.Reason, e.Err)
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new RetryableError.
func NewRetryableError(err error, after time.Duration, reason string) *RetryableError {
	return &RetryableError{
		Err:        err,
		RetryAfter: after,
		Reason:     reason,
	}
}

// WaitForInputError signals that a provider needs user-supplied values before
// the pipeline can continue. The engine records a pending input and parks the
// run; the resume service republishes the original envelope once the input is
// resolved.
type WaitForInputError struct {
	// ActivityID is the source-side external id of the activity waiting on input.
	ActivityID string

	Prompt          string
	RequestedFields []types.RequestedField

	// Defaults, when present, allow the auto-resume sweep to fill the input
	// after AutoDeadline passes without a user response.
	Defaults     map[string]string
	AutoDeadline time.Time

	Provider types.EnricherProviderType
}

func (e *WaitForInputError) Error() string {
	return fmt.Sprintf("waiting for user input on activity %s (provider %s)", e.ActivityID, e.Provider)
}
