package board

// DefaultName is the name given to a room created by its first join.
const DefaultName = "Untitled Room"

// Room is the state of one whiteboard room.
type Room struct {
	name        string
	notes       entitySet[Note]
	connections entitySet[Connection]
}

// NewRoom returns an empty room named DefaultName.
func NewRoom() *Room {
	return &Room{name: DefaultName}
}

// Name returns the display name.
func (r *Room) Name() string { return r.name }

// SetName replaces the display name.
func (r *Room) SetName(name string) { r.name = name }

// UpsertNote stores n, replacing any note with the same id.
// It reports whether the note is new.
func (r *Room) UpsertNote(n Note) (created bool) {
	return r.notes.put(n.ID, n)
}

// DeleteNote removes the note with the given id and reports whether it
// existed. Connections that reference it are kept.
func (r *Room) DeleteNote(id string) bool {
	return r.notes.remove(id)
}

// Note returns the note with the given id.
func (r *Room) Note(id string) (Note, bool) {
	return r.notes.get(id)
}

// UpsertConnection stores c, replacing any connection with the same id.
func (r *Room) UpsertConnection(c Connection) (created bool) {
	return r.connections.put(c.ID, c)
}

// DeleteConnection removes the connection with the given id.
func (r *Room) DeleteConnection(id string) bool {
	return r.connections.remove(id)
}

// Connection returns the connection with the given id.
func (r *Room) Connection(id string) (Connection, bool) {
	return r.connections.get(id)
}

// NoteCount returns the number of notes.
func (r *Room) NoteCount() int { return r.notes.len() }

// ConnectionCount returns the number of connections.
func (r *Room) ConnectionCount() int { return r.connections.len() }

// DanglingConnections returns the connections whose from or to note is not
// in the room.
func (r *Room) DanglingConnections() []Connection {
	var out []Connection
	for _, c := range r.connections.values() {
		_, fromOK := r.notes.get(c.From)
		_, toOK := r.notes.get(c.To)
		if !fromOK || !toOK {
			out = append(out, c)
		}
	}
	return out
}

// Snapshot returns a copy of the room's full state. Notes and connections are
// in first-insertion order.
func (r *Room) Snapshot() Snapshot {
	return Snapshot{
		Name:        r.name,
		Notes:       r.notes.values(),
		Connections: r.connections.values(),
	}
}

// FromSnapshot rebuilds a room from a snapshot. Later entries win when ids
// repeat. An empty name is replaced with DefaultName.
func FromSnapshot(s Snapshot) *Room {
	r := NewRoom()
	if s.Name != "" {
		r.name = s.Name
	}
	for _, n := range s.Notes {
		r.notes.put(n.ID, n)
	}
	for _, c := range s.Connections {
		r.connections.put(c.ID, c)
	}
	return r
}

// Snapshot is the full state of a room at one instant. Notes and
// Connections are never nil so they encode as [] when empty.
type Snapshot struct {
	Name        string       `json:"name"`
	Notes       []Note       `json:"notes"`
	Connections []Connection `json:"connections"`
}

// NoteIDs returns the ids of the snapshot's notes in order.
func (s Snapshot) NoteIDs() []string {
	ids := make([]string, len(s.Notes))
	for i, n := range s.Notes {
		ids[i] = n.ID
	}
	return ids
}

// ConnectionIDs returns the ids of the snapshot's connections in order.
func (s Snapshot) ConnectionIDs() []string {
	ids := make([]string, len(s.Connections))
	for i, c := range s.Connections {
		ids[i] = c.ID
	}
	return ids
}

// entitySet is an id-keyed set that remembers first-insertion order.
type entitySet[T any] struct {
	order []string
	items map[string]T
}

func (s *entitySet[T]) put(id string, v T) bool {
	if s.items == nil {
		s.items = make(map[string]T)
	}
	_, exists := s.items[id]
	s.items[id] = v
	if !exists {
		s.order = append(s.order, id)
	}
	return !exists
}

func (s *entitySet[T]) remove(id string) bool {
	if _, ok := s.items[id]; !ok {
		return false
	}
	delete(s.items, id)
	for i, k := range s.order {
		if k == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *entitySet[T]) get(id string) (T, bool) {
	v, ok := s.items[id]
	return v, ok
}

func (s *entitySet[T]) len() int { return len(s.items) }

func (s *entitySet[T]) values() []T {
	out := make([]T, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.items[id])
	}
	return out
}
