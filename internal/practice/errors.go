package practice

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthorized is returned for 401 responses. Tokens are never refreshed
	// mid-session, so callers report it.
	ErrUnauthorized = errors.New("practice: unauthorized")
	// ErrCredentialNotFound means no vendor credential matched the practice.
	ErrCredentialNotFound = errors.New("practice: vendor credential not found")
	// ErrEmptyToken means the token exchange returned a blank body.
	ErrEmptyToken = errors.New("practice: empty token")
	// ErrMissingPatientID is returned by GetPatientAppointment for a blank id.
	ErrMissingPatientID = errors.New("practice: missing patient id")
)

// APIError is a non-2xx response from the practice API.
type APIError struct {
	Op          string
	Status      int
	Message     string
	UserMessage string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("practice: %s: status %d: %s", e.Op, e.Status, msg)
}

func (e *APIError) Unwrap() error {
	if e.Status == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

// clientSide reports whether the failure was caused by the request rather
// than the remote service being unhealthy.
func (e *APIError) clientSide() bool {
	return e.Status >= 400 && e.Status < 500 && e.Status != http.StatusTooManyRequests
}
