package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/balco-dev/balco/pkg/board"
)

// Envelope is the frame every message travels in.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Inbound is a decoded client event. The set of implementations is closed.
type Inbound interface {
	// Event returns the wire name.
	Event() string
	// Room returns the room the event targets, or "" for Disconnect.
	Room() string

	inbound()
}

// JoinRoom makes the sender a member of a room, creating it if absent.
type JoinRoom struct {
	RoomID string `json:"roomId" validate:"required"`
}

// UnmarshalJSON accepts either {"roomId": "..."} or a bare room id string.
func (j *JoinRoom) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		return json.Unmarshal(trimmed, &j.RoomID)
	}
	type plain JoinRoom
	return json.Unmarshal(trimmed, (*plain)(j))
}

// UpdateNote creates or replaces a note.
type UpdateNote struct {
	RoomID string     `json:"roomId" validate:"required"`
	Note   board.Note `json:"note"`
}

// DeleteNote removes a note.
type DeleteNote struct {
	RoomID string `json:"roomId" validate:"required"`
	NoteID string `json:"noteId" validate:"required"`
}

// UpdateConnection creates or replaces a connection.
type UpdateConnection struct {
	RoomID     string           `json:"roomId" validate:"required"`
	Connection board.Connection `json:"connection"`
}

// DeleteConnection removes a connection.
type DeleteConnection struct {
	RoomID       string `json:"roomId" validate:"required"`
	ConnectionID string `json:"connectionId" validate:"required"`
}

// UpdateRoomName renames a room. The name may be empty but must be present.
type UpdateRoomName struct {
	RoomID string  `json:"roomId" validate:"required"`
	Name   *string `json:"name" validate:"required"`
}

// CursorMove relays the sender's pointer position. It changes no state.
type CursorMove struct {
	RoomID   string          `json:"roomId" validate:"required"`
	Position *board.Position `json:"position" validate:"required"`
}

// Disconnect is synthesized by the transport when a connection ends.
type Disconnect struct{}

func (JoinRoom) Event() string         { return EventJoinRoom }
func (UpdateNote) Event() string       { return EventUpdateNote }
func (DeleteNote) Event() string       { return EventDeleteNote }
func (UpdateConnection) Event() string { return EventUpdateConnection }
func (DeleteConnection) Event() string { return EventDeleteConnection }
func (UpdateRoomName) Event() string   { return EventUpdateRoomName }
func (CursorMove) Event() string       { return EventCursorMove }
func (Disconnect) Event() string       { return EventDisconnect }

func (e JoinRoom) Room() string         { return e.RoomID }
func (e UpdateNote) Room() string       { return e.RoomID }
func (e DeleteNote) Room() string       { return e.RoomID }
func (e UpdateConnection) Room() string { return e.RoomID }
func (e DeleteConnection) Room() string { return e.RoomID }
func (e UpdateRoomName) Room() string   { return e.RoomID }
func (e CursorMove) Room() string       { return e.RoomID }
func (Disconnect) Room() string         { return "" }

func (JoinRoom) inbound()         {}
func (UpdateNote) inbound()       {}
func (DeleteNote) inbound()       {}
func (UpdateConnection) inbound() {}
func (DeleteConnection) inbound() {}
func (UpdateRoomName) inbound()   {}
func (CursorMove) inbound()       {}
func (Disconnect) inbound()       {}

// PeekEvent returns the event name of a frame without decoding its payload.
// It returns "" when the frame is not an envelope.
func PeekEvent(frame []byte) string {
	var env struct {
		Event string `json:"event"`
	}
	if json.Unmarshal(frame, &env) != nil {
		return ""
	}
	return env.Event
}

// Decode parses and validates one client frame.
func Decode(frame []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if env.Event == "" {
		return nil, fmt.Errorf("%w: missing event name", ErrMalformedEnvelope)
	}

	switch env.Event {
	case EventJoinRoom:
		return decodePayload[JoinRoom](env)
	case EventUpdateNote:
		return decodePayload[UpdateNote](env)
	case EventDeleteNote:
		return decodePayload[DeleteNote](env)
	case EventUpdateConnection:
		return decodePayload[UpdateConnection](env)
	case EventDeleteConnection:
		return decodePayload[DeleteConnection](env)
	case EventUpdateRoomName:
		return decodePayload[UpdateRoomName](env)
	case EventCursorMove:
		return decodePayload[CursorMove](env)
	case EventDisconnect:
		return nil, fmt.Errorf("%w: %s", ErrReservedEvent, env.Event)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
}

func decodePayload[T Inbound](env Envelope) (Inbound, error) {
	var payload T
	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, &PayloadError{Event: env.Event, Err: fmt.Errorf("missing data")}
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, &PayloadError{Event: env.Event, Err: err}
	}
	if err := validatePayload(env.Event, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// Encode wraps an inbound event in an envelope, for clients.
func Encode(in Inbound) ([]byte, error) {
	return marshalEnvelope(in.Event(), in)
}

func marshalEnvelope(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}
