package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/balco-dev/balco/pkg/board"
)

// Outbound is a decoded server event, as seen by clients.
type Outbound interface {
	Event() string

	outbound()
}

// RoomState is the full snapshot sent to a joining connection.
type RoomState struct {
	board.Snapshot
}

// UserJoined announces a new member to the rest of the room.
type UserJoined struct {
	UserID string `json:"userId"`
}

// NoteUpdated carries a created or replaced note.
type NoteUpdated struct {
	Note board.Note
}

// NoteDeleted carries the id of a removed note.
type NoteDeleted struct {
	NoteID string
}

// ConnectionUpdated carries a created or replaced connection.
type ConnectionUpdated struct {
	Connection board.Connection
}

// ConnectionDeleted carries the id of a removed connection.
type ConnectionDeleted struct {
	ConnectionID string
}

// RoomNameUpdated carries a room's new name.
type RoomNameUpdated struct {
	Name string
}

// UserCursor relays another member's pointer.
type UserCursor struct {
	UserID   string         `json:"userId"`
	Position board.Position `json:"position"`
}

// ErrorEvent tells the sender its last event was rejected.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (RoomState) Event() string         { return EventRoomState }
func (UserJoined) Event() string        { return EventUserJoined }
func (NoteUpdated) Event() string       { return EventNoteUpdated }
func (NoteDeleted) Event() string       { return EventNoteDeleted }
func (ConnectionUpdated) Event() string { return EventConnectionUpdated }
func (ConnectionDeleted) Event() string { return EventConnectionDeleted }
func (RoomNameUpdated) Event() string   { return EventRoomNameUpdated }
func (UserCursor) Event() string        { return EventUserCursor }
func (ErrorEvent) Event() string        { return EventError }

func (RoomState) outbound()         {}
func (UserJoined) outbound()        {}
func (NoteUpdated) outbound()       {}
func (NoteDeleted) outbound()       {}
func (ConnectionUpdated) outbound() {}
func (ConnectionDeleted) outbound() {}
func (RoomNameUpdated) outbound()   {}
func (UserCursor) outbound()        {}
func (ErrorEvent) outbound()        {}

// payload returns the value placed in the envelope's data member. Deltas
// carry the bare entity, id or name rather than a wrapper object.
func payload(out Outbound) any {
	switch e := out.(type) {
	case RoomState:
		return e.Snapshot
	case NoteUpdated:
		return e.Note
	case NoteDeleted:
		return e.NoteID
	case ConnectionUpdated:
		return e.Connection
	case ConnectionDeleted:
		return e.ConnectionID
	case RoomNameUpdated:
		return e.Name
	default:
		return out
	}
}

// EncodeOutbound renders a server event as a frame.
func EncodeOutbound(out Outbound) ([]byte, error) {
	return marshalEnvelope(out.Event(), payload(out))
}

// DecodeOutbound parses a server frame.
func DecodeOutbound(frame []byte) (Outbound, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}

	var (
		out Outbound
		err error
	)
	switch env.Event {
	case EventRoomState:
		var e RoomState
		err = json.Unmarshal(env.Data, &e.Snapshot)
		out = e
	case EventUserJoined:
		var e UserJoined
		err = json.Unmarshal(env.Data, &e)
		out = e
	case EventNoteUpdated:
		var e NoteUpdated
		err = json.Unmarshal(env.Data, &e.Note)
		out = e
	case EventNoteDeleted:
		var e NoteDeleted
		err = json.Unmarshal(env.Data, &e.NoteID)
		out = e
	case EventConnectionUpdated:
		var e ConnectionUpdated
		err = json.Unmarshal(env.Data, &e.Connection)
		out = e
	case EventConnectionDeleted:
		var e ConnectionDeleted
		err = json.Unmarshal(env.Data, &e.ConnectionID)
		out = e
	case EventRoomNameUpdated:
		var e RoomNameUpdated
		err = json.Unmarshal(env.Data, &e.Name)
		out = e
	case EventUserCursor:
		var e UserCursor
		err = json.Unmarshal(env.Data, &e)
		out = e
	case EventError:
		var e ErrorEvent
		err = json.Unmarshal(env.Data, &e)
		out = e
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
	if err != nil {
		return nil, &PayloadError{Event: env.Event, Err: err}
	}
	return out, nil
}

// Frame constructors used by the router. Each returns a ready-to-send frame.

// RoomStateFrame encodes a room-state event.
func RoomStateFrame(s board.Snapshot) ([]byte, error) {
	return EncodeOutbound(RoomState{Snapshot: s})
}

// UserJoinedFrame encodes a user-joined event.
func UserJoinedFrame(userID string) ([]byte, error) {
	return EncodeOutbound(UserJoined{UserID: userID})
}

// NoteUpdatedFrame encodes a note-updated event.
func NoteUpdatedFrame(n board.Note) ([]byte, error) {
	return EncodeOutbound(NoteUpdated{Note: n})
}

// NoteDeletedFrame encodes a note-deleted event.
func NoteDeletedFrame(noteID string) ([]byte, error) {
	return EncodeOutbound(NoteDeleted{NoteID: noteID})
}

// ConnectionUpdatedFrame encodes a connection-updated event.
func ConnectionUpdatedFrame(c board.Connection) ([]byte, error) {
	return EncodeOutbound(ConnectionUpdated{Connection: c})
}

// ConnectionDeletedFrame encodes a connection-deleted event.
func ConnectionDeletedFrame(connectionID string) ([]byte, error) {
	return EncodeOutbound(ConnectionDeleted{ConnectionID: connectionID})
}

// RoomNameUpdatedFrame encodes a room-name-updated event.
func RoomNameUpdatedFrame(name string) ([]byte, error) {
	return EncodeOutbound(RoomNameUpdated{Name: name})
}

// UserCursorFrame encodes a user-cursor event.
func UserCursorFrame(userID string, pos board.Position) ([]byte, error) {
	return EncodeOutbound(UserCursor{UserID: userID, Position: pos})
}

// ErrorFrame encodes an error event for a rejected client event.
func ErrorFrame(err error) ([]byte, error) {
	return EncodeOutbound(ErrorEvent{Code: ErrorCode(err), Message: err.Error()})
}
