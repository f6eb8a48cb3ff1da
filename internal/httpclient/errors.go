// Package httpclient holds helpers shared by the outbound HTTP callers.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// IsTimeout reports whether err came from a deadline, either the context's or
// the http.Client's.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// ClassifyError wraps a transport failure in timeoutErr when it was a timeout
// and in otherErr otherwise. The original error text is kept in the message.
func ClassifyError(err, timeoutErr, otherErr error) error {
	if IsTimeout(err) {
		return fmt.Errorf("%w: %v", timeoutErr, err)
	}
	return fmt.Errorf("%w: %v", otherErr, err)
}
