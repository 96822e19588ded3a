package roomstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/balco-dev/balco/pkg/board"
)

func sampleRooms() map[string]board.Snapshot {
	return map[string]board.Snapshot{
		"abc123": {
			Name: "Untitled Room",
			Notes: []board.Note{
				{ID: "note-1", Title: "X", Color: "#ffeb3b", Position: board.Position{X: 10, Y: 20}},
			},
			Connections: []board.Connection{
				{ID: "conn-1", From: "note-1", To: "note-9"},
			},
		},
		"empty": {Name: "Empty", Notes: []board.Note{}, Connections: []board.Connection{}},
	}
}

func TestFileBackend_MissingFileIsEmpty(t *testing.T) {
	b := NewFileBackend(filepath.Join(t.TempDir(), "nope.json"))

	rooms, err := b.Load(context.Background())
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if rooms == nil || len(rooms) != 0 {
		t.Fatalf("rooms = %v, want empty map", rooms)
	}
}

func TestFileBackend_CorruptFileErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rooms.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := NewFileBackend(path).Load(context.Background())
	var be *BackendError
	if !errors.As(err, &be) || be.Op != "load" || be.Backend != "file" {
		t.Fatalf("Load error = %v, want file load BackendError", err)
	}
}

func TestFileBackend_JSONRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "rooms.json")
	b := NewFileBackend(path)
	ctx := context.Background()

	if err := b.Save(ctx, sampleRooms()); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile error: %v", err)
	}
	if !strings.Contains(string(data), "\n  \"abc123\": {\n    \"name\": \"Untitled Room\"") {
		t.Fatalf("file is not two-space indented:\n%s", data)
	}

	got, err := b.Load(ctx)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if !reflect.DeepEqual(got, sampleRooms()) {
		t.Fatalf("Load = %+v, want %+v", got, sampleRooms())
	}
}

func TestFileBackend_ReadsLegacyLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rooms.json")
	legacy := `{
  "abc123": {
    "name": "Untitled Room",
    "notes": [
      {
        "id": "note-1700000000000",
        "title": "New Note",
        "color": "#ffeb3b",
        "position": {"x": 120, "y": 80}
      }
    ],
    "connections": []
  }
}`
	if err := os.WriteFile(path, []byte(legacy), 0o644); err != nil {
		t.Fatal(err)
	}

	rooms, err := NewFileBackend(path).Load(context.Background())
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	room := rooms["abc123"]
	if len(room.Notes) != 1 || room.Notes[0].Title != "New Note" || room.Notes[0].Position.X != 120 {
		t.Fatalf("room = %+v", room)
	}
}

func TestFileBackend_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rooms.yaml")
	b := NewFileBackend(path)
	if b.Format() != FormatYAML {
		t.Fatalf("Format() = %q, want yaml", b.Format())
	}
	ctx := context.Background()

	rooms := sampleRooms()
	n := rooms["abc123"].Notes[0]
	n.Extra = board.Fields{"zIndex": []byte("3")}
	rooms["abc123"].Notes[0] = n

	if err := b.Save(ctx, rooms); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "abc123:") {
		t.Fatalf("not YAML:\n%s", data)
	}

	got, err := b.Load(ctx)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	note := got["abc123"].Notes[0]
	if note.Color != "#ffeb3b" || note.Position != (board.Position{X: 10, Y: 20}) {
		t.Fatalf("note = %+v", note)
	}
	if string(note.Extra["zIndex"]) != "3" {
		t.Fatalf("Extra = %v, want zIndex 3", note.Extra)
	}
}

func TestFileBackend_SaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	b := NewFileBackend(filepath.Join(dir, "rooms.json"))
	for i := 0; i < 3; i++ {
		if err := b.Save(context.Background(), sampleRooms()); err != nil {
			t.Fatalf("Save error: %v", err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "rooms.json" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("dir contents = %v, want only rooms.json", names)
	}
}

func TestFileBackend_Closed(t *testing.T) {
	b := NewFileBackend(filepath.Join(t.TempDir(), "rooms.json"))
	b.Close()
	if err := b.Save(context.Background(), nil); !errors.Is(err, ErrStoreClosed) {
		t.Fatalf("Save after Close error = %v, want ErrStoreClosed", err)
	}
}
