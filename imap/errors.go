package imap

import (
	"errors"
	"fmt"
)

// ErrTimeout is found in the chain of a ConnectionError caused by an elapsed deadline.
var ErrTimeout = errors.New("imap: operation timed out")

// ConnectionError reports a network or TLS failure talking to the server.
type ConnectionError struct {
	Op   string
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("imap %s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// AuthError reports that the server rejected the credentials.
type AuthError struct {
	User string
	Err  error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("imap login failed for %s: %v", e.User, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// StateError reports an operation issued in the wrong session state.
type StateError struct {
	Op    string
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("imap %s not allowed in state %s", e.Op, e.State)
}

// IsConnectionError reports whether err (or any error in its chain) is a ConnectionError.
func IsConnectionError(err error) bool {
	var connErr *ConnectionError
	return errors.As(err, &connErr)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}
