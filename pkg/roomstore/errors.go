package roomstore

import (
	"errors"
	"fmt"
)

var (
	// ErrRoomNotFound is returned by mutations on a room id the store does not hold.
	ErrRoomNotFound = errors.New("roomstore: room not found")

	// ErrStoreClosed is returned when the store or a backend is used after Close.
	ErrStoreClosed = errors.New("roomstore: store closed")
)

// BackendError wraps a failure from a durable backend.
type BackendError struct {
	Backend string // "file", "sqlite", "s3", "memory"
	Op      string // "load", "save", "save_room"
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("roomstore: %s %s: %v", e.Backend, e.Op, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

func backendErr(backend, op string, err error) error {
	if err == nil {
		return nil
	}
	return &BackendError{Backend: backend, Op: op, Err: err}
}
