package upstream

import (
	"errors"
	"fmt"
)

var (
	ErrNotConfigured   = errors.New("upstream provider not configured")
	ErrTimeout         = errors.New("upstream request timeout")
	ErrTransport       = errors.New("upstream unreachable")
	ErrInvalidResponse = errors.New("upstream returned invalid response")
)

// StatusError is returned when the provider answers with a non-2xx status.
// Body holds the provider's response text unchanged.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.StatusCode)
}
