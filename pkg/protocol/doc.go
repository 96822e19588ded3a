// Package protocol defines the room synchronization wire protocol.
//
// Every message is a WebSocket text frame holding one JSON envelope:
//
//	{"event": "update-note", "data": {"roomId": "abc123", "note": {...}}}
//
// Client events form a closed set. Decode maps each event name to exactly one
// Go type and rejects unknown names, reserved names and payloads missing
// required fields:
//
//	join-room          JoinRoom           {"roomId"} or a bare room id string
//	update-note        UpdateNote         {"roomId", "note"}
//	delete-note        DeleteNote         {"roomId", "noteId"}
//	update-connection  UpdateConnection   {"roomId", "connection"}
//	delete-connection  DeleteConnection   {"roomId", "connectionId"}
//	update-room-name   UpdateRoomName     {"roomId", "name"}
//	cursor-move        CursorMove         {"roomId", "position"}
//
// "disconnect" is produced by the transport when a connection ends and is
// never accepted from a client.
//
// Server events:
//
//	room-state          board.Snapshot, to the joining connection only
//	user-joined         {"userId"}
//	note-updated        the note object
//	note-deleted        the note id as a bare string
//	connection-updated  the connection object
//	connection-deleted  the connection id as a bare string
//	room-name-updated   the name as a bare string
//	user-cursor         {"userId", "position"}
//	error               {"code", "message"}, to the sender of a rejected event
package protocol
