package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrDuplicateTaskID    = errors.New("duplicate task id")
	ErrMissingTaskID      = errors.New("no task id found")
	ErrConflictingOutcome = errors.New("result url and error message are mutually exclusive")
	ErrUnknownProvider    = errors.New("unknown provider")
	ErrAuthentication     = errors.New("webhook authentication failed")
	ErrTimeout            = errors.New("generation timed out")
	ErrNoResult           = errors.New("no result URL returned")
	ErrEncoding           = errors.New("image could not be encoded")
)

// ProviderError carries an explicit failure message reported by a generation
// provider, as opposed to transport-level failures.
type ProviderError struct {
	Provider Provider
	Message  string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// HTTPError represents a non-2xx response from a provider endpoint.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("http status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("http status %d", e.StatusCode)
}

// IsTerminalRejection reports whether the error should not be retried.
func IsTerminalRejection(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) || errors.Is(err, ErrAuthentication) || errors.Is(err, ErrMissingTaskID)
}
