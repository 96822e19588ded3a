package roomstore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/balco-dev/balco/pkg/board"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type failingBackend struct {
	loadErr error
	saveErr error
	saves   int
}

func (f *failingBackend) Load(ctx context.Context) (map[string]board.Snapshot, error) {
	return nil, f.loadErr
}

func (f *failingBackend) Save(ctx context.Context, rooms map[string]board.Snapshot) error {
	f.saves++
	return f.saveErr
}

func (f *failingBackend) Close() error { return nil }

func TestStore_GetOrCreateTaggedResult(t *testing.T) {
	backend := NewMemoryBackend()
	s := New(backend, WithLogger(quietLogger()))
	ctx := context.Background()

	first, err := s.GetOrCreate(ctx, "abc123")
	if err != nil {
		t.Fatalf("GetOrCreate error: %v", err)
	}
	if !first.Created {
		t.Fatal("first GetOrCreate should report Created")
	}
	if first.Room.Name != "Untitled Room" || len(first.Room.Notes) != 0 || len(first.Room.Connections) != 0 {
		t.Fatalf("new room = %+v", first.Room)
	}
	if backend.Saves() != 1 {
		t.Fatalf("Saves() = %d, want 1 (created room persisted)", backend.Saves())
	}

	second, err := s.GetOrCreate(ctx, "abc123")
	if err != nil {
		t.Fatalf("GetOrCreate error: %v", err)
	}
	if second.Created {
		t.Fatal("second GetOrCreate should report existing")
	}
	if backend.Saves() != 1 {
		t.Fatalf("Saves() = %d, existing room must not be rewritten", backend.Saves())
	}
	if !reflect.DeepEqual(first.Room, second.Room) {
		t.Fatalf("snapshots differ: %+v vs %+v", first.Room, second.Room)
	}
}

func TestStore_MutationsOnMissingRoom(t *testing.T) {
	s := New(nil, WithLogger(quietLogger()))

	if _, err := s.UpsertNote("nope", board.Note{ID: "n"}); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("UpsertNote error = %v, want ErrRoomNotFound", err)
	}
	if _, err := s.DeleteNote("nope", "n"); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("DeleteNote error = %v, want ErrRoomNotFound", err)
	}
	if _, err := s.UpsertConnection("nope", board.Connection{ID: "c"}); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("UpsertConnection error = %v, want ErrRoomNotFound", err)
	}
	if _, err := s.DeleteConnection("nope", "c"); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("DeleteConnection error = %v, want ErrRoomNotFound", err)
	}
	if err := s.SetName("nope", "x"); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("SetName error = %v, want ErrRoomNotFound", err)
	}
	if s.Len() != 0 {
		t.Fatalf("Len() = %d, mutations must not create rooms", s.Len())
	}
}

func TestStore_MutateAndGet(t *testing.T) {
	s := New(nil, WithLogger(quietLogger()))
	ctx := context.Background()
	if _, err := s.GetOrCreate(ctx, "r"); err != nil {
		t.Fatalf("GetOrCreate error: %v", err)
	}

	created, err := s.UpsertNote("r", board.Note{ID: "n1", Title: "a"})
	if err != nil || !created {
		t.Fatalf("UpsertNote = %v, %v", created, err)
	}
	created, err = s.UpsertNote("r", board.Note{ID: "n1", Title: "b"})
	if err != nil || created {
		t.Fatalf("UpsertNote update = %v, %v", created, err)
	}
	if _, err := s.UpsertConnection("r", board.Connection{ID: "c1", From: "n1", To: "n2"}); err != nil {
		t.Fatalf("UpsertConnection error: %v", err)
	}
	if err := s.SetName("r", "Sprint"); err != nil {
		t.Fatalf("SetName error: %v", err)
	}
	removed, err := s.DeleteNote("r", "ghost")
	if err != nil || removed {
		t.Fatalf("DeleteNote(ghost) = %v, %v", removed, err)
	}

	snap, ok := s.Get("r")
	if !ok {
		t.Fatal("Get(r) missing")
	}
	if snap.Name != "Sprint" {
		t.Fatalf("Name = %q", snap.Name)
	}
	if len(snap.Notes) != 1 || snap.Notes[0].Title != "b" {
		t.Fatalf("Notes = %+v", snap.Notes)
	}
	if !reflect.DeepEqual(snap.ConnectionIDs(), []string{"c1"}) {
		t.Fatalf("ConnectionIDs = %v", snap.ConnectionIDs())
	}
}

func TestStore_LoadFailureStartsEmpty(t *testing.T) {
	s := New(&failingBackend{loadErr: errors.New("disk on fire")}, WithLogger(quietLogger()))

	if n := s.Load(context.Background()); n != 0 {
		t.Fatalf("Load() = %d, want 0", n)
	}
	if s.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", s.Len())
	}
}

func TestStore_PersistFailureKeepsMemoryState(t *testing.T) {
	backend := &failingBackend{saveErr: errors.New("read-only file system")}
	s := New(backend, WithLogger(quietLogger()))
	ctx := context.Background()

	lookup, err := s.GetOrCreate(ctx, "r")
	if err == nil {
		t.Fatal("expected persist error from GetOrCreate")
	}
	if !lookup.Created || lookup.Room.Name != board.DefaultName {
		t.Fatalf("lookup must be valid despite persist error: %+v", lookup)
	}
	if _, err := s.UpsertNote("r", board.Note{ID: "n"}); err != nil {
		t.Fatalf("UpsertNote error: %v", err)
	}
	if err := s.Persist(ctx, "r"); err == nil {
		t.Fatal("expected Persist error")
	}

	snap, _ := s.Get("r")
	if len(snap.Notes) != 1 {
		t.Fatalf("in-memory state lost: %+v", snap)
	}
}

func TestStore_PersistUsesRoomSaver(t *testing.T) {
	backend := NewMemoryBackend()
	s := New(backend, WithLogger(quietLogger()))
	ctx := context.Background()

	s.GetOrCreate(ctx, "a")
	s.GetOrCreate(ctx, "b")
	s.UpsertNote("a", board.Note{ID: "n"})
	if err := s.Persist(ctx, "a"); err != nil {
		t.Fatalf("Persist error: %v", err)
	}

	saved, err := backend.Load(ctx)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if len(saved) != 2 || len(saved["a"].Notes) != 1 {
		t.Fatalf("saved = %+v", saved)
	}
	if err := s.Persist(ctx, "missing"); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("Persist(missing) error = %v, want ErrRoomNotFound", err)
	}
}

func TestStore_RecoversAfterRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "rooms.json")
	ctx := context.Background()

	before := New(NewFileBackend(path), WithLogger(quietLogger()))
	before.Load(ctx)
	before.GetOrCreate(ctx, "abc123")
	before.UpsertNote("abc123", board.Note{ID: "note-1", Title: "X", Color: "#ffeb3b", Position: board.Position{X: 10, Y: 20}})
	before.UpsertConnection("abc123", board.Connection{ID: "conn-1", From: "note-1", To: "note-2"})
	before.SetName("abc123", "Retro")
	if err := before.Persist(ctx, "abc123"); err != nil {
		t.Fatalf("Persist error: %v", err)
	}
	want, _ := before.Get("abc123")
	if err := before.Close(ctx); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	after := New(NewFileBackend(path), WithLogger(quietLogger()))
	if n := after.Load(ctx); n != 1 {
		t.Fatalf("Load() = %d, want 1", n)
	}
	lookup, err := after.GetOrCreate(ctx, "abc123")
	if err != nil {
		t.Fatalf("GetOrCreate error: %v", err)
	}
	if lookup.Created {
		t.Fatal("room should be recovered, not created")
	}
	if !reflect.DeepEqual(lookup.Room, want) {
		t.Fatalf("recovered = %+v, want %+v", lookup.Room, want)
	}
}

func TestStore_CloseFlushesAndRejects(t *testing.T) {
	backend := NewMemoryBackend()
	s := New(backend, WithLogger(quietLogger()))
	ctx := context.Background()
	s.GetOrCreate(ctx, "r")

	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if _, err := s.GetOrCreate(ctx, "r2"); !errors.Is(err, ErrStoreClosed) {
		t.Fatalf("GetOrCreate after Close error = %v, want ErrStoreClosed", err)
	}
	if err := s.Close(ctx); err != nil {
		t.Fatalf("second Close error: %v", err)
	}
}

func TestStore_RoomIDsSorted(t *testing.T) {
	s := New(nil, WithLogger(quietLogger()))
	ctx := context.Background()
	for _, id := range []string{"zeta", "alpha", "mid"} {
		s.GetOrCreate(ctx, id)
	}
	if got := s.RoomIDs(); !reflect.DeepEqual(got, []string{"alpha", "mid", "zeta"}) {
		t.Fatalf("RoomIDs() = %v", got)
	}
}
