package crashapi

import "fmt"

// AuthError is a 401/403 response: the credential is missing or invalid and
// the session is unusable until re-authenticated.
type AuthError struct {
	Status int
	Body   string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("crash API auth failed (status %d): %s", e.Status, e.Body)
}

// StatusError is any other non-2xx response, carrying status and body text.
// Business rejections (wrong phase, insufficient balance) surface through it.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("crash API status %d: %s", e.Status, e.Body)
}

// TransportError is a network-level failure; recoverable by retrying once
// connectivity returns.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("crash API transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError is a response body that could not be decoded.
type ProtocolError struct {
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("crash API protocol: %v", e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}
