package server

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionClosed is returned by Send after the connection was closed.
	ErrSessionClosed = errors.New("server: session closed")

	// ErrSendQueueFull is returned by Send when the peer is not draining its
	// queue. The router closes such peers.
	ErrSendQueueFull = errors.New("server: send queue full")

	// ErrConnectionClosed is the close reason for a connection the client
	// ended.
	ErrConnectionClosed = errors.New("server: connection closed")

	// ErrServerShutdown is the close reason for connections ended by
	// Shutdown.
	ErrServerShutdown = errors.New("server: shutting down")

	// ErrServerClosed is returned by Run once the server was shut down.
	ErrServerClosed = errors.New("server: closed")
)

// SessionError wraps an error with session context for debugging.
type SessionError struct {
	SessionID string
	Op        string
	Err       error
}

func (e *SessionError) Error() string {
	if e.SessionID == "" {
		return fmt.Sprintf("server: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("server: session %s: %s: %v", e.SessionID, e.Op, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}
