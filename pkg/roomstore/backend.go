package roomstore

import (
	"context"
	"sync"

	"github.com/balco-dev/balco/pkg/board"
)

// Backend is the durable copy of the room mapping.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Load returns every stored room. A backend with nothing stored yet
	// returns an empty map and no error.
	Load(ctx context.Context) (map[string]board.Snapshot, error)

	// Save replaces the stored mapping with rooms.
	Save(ctx context.Context, rooms map[string]board.Snapshot) error

	// Close releases any resources held by the backend.
	Close() error
}

// RoomSaver is implemented by backends that can persist a single room
// without rewriting the others.
type RoomSaver interface {
	SaveRoom(ctx context.Context, roomID string, room board.Snapshot) error
}

// MemoryBackend keeps the "durable" copy in memory. A Store restarted on the
// same MemoryBackend sees what the previous Store saved.
type MemoryBackend struct {
	mu     sync.Mutex
	rooms  map[string]board.Snapshot
	saves  int
	closed bool
}

// NewMemoryBackend returns an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{rooms: make(map[string]board.Snapshot)}
}

// Load returns a copy of the saved rooms.
func (m *MemoryBackend) Load(ctx context.Context) (map[string]board.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrStoreClosed
	}
	out := make(map[string]board.Snapshot, len(m.rooms))
	for id, snap := range m.rooms {
		out[id] = snap
	}
	return out, nil
}

// Save replaces the saved rooms.
func (m *MemoryBackend) Save(ctx context.Context, rooms map[string]board.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	m.rooms = make(map[string]board.Snapshot, len(rooms))
	for id, snap := range rooms {
		m.rooms[id] = snap
	}
	m.saves++
	return nil
}

// SaveRoom replaces one saved room.
func (m *MemoryBackend) SaveRoom(ctx context.Context, roomID string, room board.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	m.rooms[roomID] = room
	m.saves++
	return nil
}

// Saves returns how many Save or SaveRoom calls have succeeded.
func (m *MemoryBackend) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// Close marks the backend closed. Further calls return ErrStoreClosed.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

var (
	_ Backend   = (*MemoryBackend)(nil)
	_ RoomSaver = (*MemoryBackend)(nil)
)
