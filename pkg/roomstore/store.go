package roomstore

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/balco-dev/balco/pkg/board"
)

// Store is the process-wide mapping from room id to room state.
//
// Mutations are applied in memory first and are visible immediately; the
// caller decides when to Persist. Reads may happen concurrently with the
// single writer.
type Store struct {
	mu      sync.RWMutex
	rooms   map[string]*board.Room
	backend Backend
	logger  *slog.Logger
	closed  bool
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates an empty store writing through to backend.
// A nil backend is replaced with a MemoryBackend.
func New(backend Backend, opts ...Option) *Store {
	if backend == nil {
		backend = NewMemoryBackend()
	}
	s := &Store{
		rooms:   make(map[string]*board.Room),
		backend: backend,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "roomstore")
	return s
}

// Load replaces the in-memory mapping with the backend's contents and
// returns the number of rooms loaded. Any backend error is logged and the
// store starts empty.
func (s *Store) Load(ctx context.Context) int {
	loaded, err := s.backend.Load(ctx)
	if err != nil {
		s.logger.Error("load failed, starting with no rooms", "error", err)
		loaded = nil
	}

	rooms := make(map[string]*board.Room, len(loaded))
	for id, snap := range loaded {
		rooms[id] = board.FromSnapshot(snap)
	}

	s.mu.Lock()
	s.rooms = rooms
	s.mu.Unlock()

	s.logger.Info("rooms loaded", "rooms", len(rooms))
	return len(rooms)
}

// Lookup is the result of GetOrCreate.
type Lookup struct {
	Room    board.Snapshot
	Created bool
}

// GetOrCreate returns the room with the given id, creating an empty
// "Untitled Room" if absent. A created room is persisted before returning;
// the returned error reports only that write, and the Lookup is valid either
// way.
func (s *Store) GetOrCreate(ctx context.Context, roomID string) (Lookup, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Lookup{}, ErrStoreClosed
	}
	room, ok := s.rooms[roomID]
	if !ok {
		room = board.NewRoom()
		s.rooms[roomID] = room
	}
	lookup := Lookup{Room: room.Snapshot(), Created: !ok}
	s.mu.Unlock()

	if lookup.Created {
		s.logger.Debug("room created", "room_id", roomID)
		return lookup, s.Persist(ctx, roomID)
	}
	return lookup, nil
}

// Get returns a snapshot of the room with the given id.
func (s *Store) Get(roomID string) (board.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return board.Snapshot{}, false
	}
	return room.Snapshot(), true
}

// Has reports whether the store holds a room with the given id.
func (s *Store) Has(roomID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.rooms[roomID]
	return ok
}

// UpsertNote stores n in the room, replacing any note with the same id.
func (s *Store) UpsertNote(roomID string, n board.Note) (created bool, err error) {
	err = s.mutate(roomID, func(r *board.Room) { created = r.UpsertNote(n) })
	return created, err
}

// DeleteNote removes a note from the room. Removing an id that is not there
// is not an error.
func (s *Store) DeleteNote(roomID, noteID string) (removed bool, err error) {
	err = s.mutate(roomID, func(r *board.Room) { removed = r.DeleteNote(noteID) })
	return removed, err
}

// UpsertConnection stores c in the room, replacing any connection with the
// same id.
func (s *Store) UpsertConnection(roomID string, c board.Connection) (created bool, err error) {
	err = s.mutate(roomID, func(r *board.Room) { created = r.UpsertConnection(c) })
	return created, err
}

// DeleteConnection removes a connection from the room.
func (s *Store) DeleteConnection(roomID, connectionID string) (removed bool, err error) {
	err = s.mutate(roomID, func(r *board.Room) { removed = r.DeleteConnection(connectionID) })
	return removed, err
}

// SetName renames the room.
func (s *Store) SetName(roomID, name string) error {
	return s.mutate(roomID, func(r *board.Room) { r.SetName(name) })
}

func (s *Store) mutate(roomID string, fn func(*board.Room)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	room, ok := s.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	fn(room)
	return nil
}

// Persist writes the room with the given id to the backend. Backends that
// implement RoomSaver write only that room; others rewrite every room.
func (s *Store) Persist(ctx context.Context, roomID string) error {
	if saver, ok := s.backend.(RoomSaver); ok {
		snap, found := s.Get(roomID)
		if !found {
			return ErrRoomNotFound
		}
		if s.isClosed() {
			return ErrStoreClosed
		}
		return saver.SaveRoom(ctx, roomID, snap)
	}
	return s.PersistAll(ctx)
}

// PersistAll rewrites every room to the backend.
func (s *Store) PersistAll(ctx context.Context) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrStoreClosed
	}
	all := make(map[string]board.Snapshot, len(s.rooms))
	for id, room := range s.rooms {
		all[id] = room.Snapshot()
	}
	s.mu.RUnlock()

	return s.backend.Save(ctx, all)
}

// RoomIDs returns the ids of every room, sorted.
func (s *Store) RoomIDs() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Len returns the number of rooms.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}

// Close flushes every room to the backend and closes it. The flush error, if
// any, is returned after the backend is closed.
func (s *Store) Close(ctx context.Context) error {
	flushErr := s.PersistAll(ctx)
	if flushErr != nil && flushErr != ErrStoreClosed {
		s.logger.Error("final flush failed", "error", flushErr)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if err := s.backend.Close(); err != nil {
		return err
	}
	return flushErr
}

func (s *Store) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}
