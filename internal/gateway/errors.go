package gateway

import (
	"errors"
	"fmt"
)

// Error is a non-2xx (or transport-level) backend response. Status 0 means
// the request never produced an HTTP response.
type Error struct {
	Status    int
	Message   string
	RequestID string
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("backend unreachable: %s", e.Message)
	}
	return fmt.Sprintf("backend error %d: %s", e.Status, e.Message)
}

// Retryable reports whether callers may retry the request. 4xx responses are
// caller mistakes and are never retried; 5xx and transport failures are
// transient.
func (e *Error) Retryable() bool {
	return e.Status == 0 || e.Status >= 500
}

// AsError unwraps err to a *Error when one is present in the chain.
func AsError(err error) (*Error, bool) {
	var ge *Error
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}

// IsRetryable reports whether err is a gateway error a caller may retry.
// Non-gateway errors are treated as transient transport problems.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if ge, ok := AsError(err); ok {
		return ge.Retryable()
	}
	return true
}
