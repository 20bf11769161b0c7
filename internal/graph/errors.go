package graph

import (
	"errors"
	"fmt"
	"net/http"
)

// AuthError means the credential exchange was rejected or a call came back
// unauthorized. There is no point in retrying it.
type AuthError struct {
	Status int
	Detail string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: status=%d detail=%s", e.Status, e.Detail)
}

// NotFoundError means the configured site, library or file path does not
// exist on the remote side. Configuration problem, not retryable.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("remote resource not found: %s", e.Resource)
}

// TransientError covers the failures worth retrying: the document locked by
// another writer (423), throttling (429), gateway hiccups (502/503/504) and
// plain network/timeout errors (Status == 0).
type TransientError struct {
	Status int
	Err    error
}

func (e *TransientError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("transient network failure: %v", e.Err)
	}
	return fmt.Sprintf("transient remote failure: status=%d", e.Status)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Locked reports whether the failure was a 423 from a concurrent writer.
func (e *TransientError) Locked() bool { return e.Status == http.StatusLocked }

// SaveFailedError is raised by the retry policy once a write operation has
// exhausted its attempt budget.
type SaveFailedError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *SaveFailedError) Error() string {
	return fmt.Sprintf("operation %q failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *SaveFailedError) Unwrap() error { return e.Err }

var retryableStatus = map[int]bool{
	http.StatusLocked:             true,
	http.StatusTooManyRequests:    true,
	http.StatusBadGateway:         true,
	http.StatusServiceUnavailable: true,
	http.StatusGatewayTimeout:     true,
}

// IsTransient reports whether err should go through the backoff loop.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
