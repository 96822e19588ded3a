package router

import (
	"errors"

	"github.com/balco-dev/balco/pkg/roomstore"
)

var (
	// ErrRoomNotFound is returned for events on a room that does not exist.
	ErrRoomNotFound = roomstore.ErrRoomNotFound

	// ErrRouterClosed is returned by Submit once Run has returned.
	ErrRouterClosed = errors.New("router: closed")

	// ErrAlreadyRunning is returned by a second concurrent call to Run.
	ErrAlreadyRunning = errors.New("router: already running")
)
