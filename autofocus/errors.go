package autofocus

import (
	"errors"
	"fmt"
	"net"
)

var (
	// ErrNoCookie is returned when a search submission is accepted without a cookie
	ErrNoCookie = errors.New("search response did not include af_cookie")

	// ErrNotSubmitted is returned when a session is polled before submission
	ErrNotSubmitted = errors.New("search session not submitted")

	// ErrAlreadySubmitted is returned when a session is submitted twice
	ErrAlreadySubmitted = errors.New("search session already submitted")
)

// RemoteRequestError is an HTTP-status failure. It is fatal for the calling operation.
type RemoteRequestError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *RemoteRequestError) Error() string {
	return fmt.Sprintf("AutoFocus request to %s failed: HTTP %d", e.URL, e.StatusCode)
}

// TransportError is a connection-level failure (reset, disconnect, truncated response).
// Polls failing this way are retried.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("AutoFocus %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a retryable transport failure
func IsTransient(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsUnsent reports whether err is a transport failure that happened before the request
// reached the server (dial or name resolution), so re-issuing it cannot duplicate work
func IsUnsent(err error) bool {
	if !IsTransient(err) {
		return false
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

// AsRemoteRequestError extracts the HTTP failure from err
func AsRemoteRequestError(err error) (*RemoteRequestError, bool) {
	var re *RemoteRequestError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
