package protocol

// Client event names.
const (
	EventJoinRoom         = "join-room"
	EventUpdateNote       = "update-note"
	EventDeleteNote       = "delete-note"
	EventUpdateConnection = "update-connection"
	EventDeleteConnection = "delete-connection"
	EventUpdateRoomName   = "update-room-name"
	EventCursorMove       = "cursor-move"
	EventDisconnect       = "disconnect"
)

// Server event names.
const (
	EventRoomState         = "room-state"
	EventUserJoined        = "user-joined"
	EventNoteUpdated       = "note-updated"
	EventNoteDeleted       = "note-deleted"
	EventConnectionUpdated = "connection-updated"
	EventConnectionDeleted = "connection-deleted"
	EventRoomNameUpdated   = "room-name-updated"
	EventUserCursor        = "user-cursor"
	EventError             = "error"
)
