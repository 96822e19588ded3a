// Package board holds the in-memory state of a single whiteboard room.
//
// A Room is a name plus two id-keyed sets: sticky notes and the connections
// drawn between them. Updates are whole-entity last-write-wins by id; there is
// no field-level merge and no version comparison. A Room is not safe for
// concurrent use; the room store serializes access.
//
// Connections are not checked against the notes they reference. Deleting a
// note leaves any connection pointing at it in place (a dangling edge), and
// clients are expected to skip edges whose endpoints are missing.
//
// Snapshot is both the payload a joining client receives and the durable
// record written by the room store:
//
//	{
//	  "name": "Untitled Room",
//	  "notes": [{"id": "note-1", "title": "X", "position": {"x": 10, "y": 20}}],
//	  "connections": [{"id": "conn-1", "from": "note-1", "to": "note-2"}]
//	}
package board
