package roomstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/balco-dev/balco/pkg/board"
	"gopkg.in/yaml.v3"
)

// Format is the encoding of a FileBackend document.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// DefaultDataFile is where the file backend keeps rooms unless told otherwise.
const DefaultDataFile = "data/rooms.json"

const tempFilePrefix = ".balco-rooms-"

// FileBackend stores every room in a single file, rewritten atomically on
// each save.
type FileBackend struct {
	mu     sync.Mutex
	path   string
	format Format
	perm   os.FileMode
	closed bool
}

// FileOption configures a FileBackend.
type FileOption func(*FileBackend)

// WithFormat sets the encoding. Default: inferred from the file extension,
// YAML for .yaml and .yml, JSON otherwise.
func WithFormat(format Format) FileOption {
	return func(b *FileBackend) {
		if format != "" {
			b.format = format
		}
	}
}

// WithFileMode sets the permissions of the written file. Default: 0644.
func WithFileMode(perm os.FileMode) FileOption {
	return func(b *FileBackend) {
		b.perm = perm
	}
}

// NewFileBackend returns a backend that reads and writes path.
func NewFileBackend(path string, opts ...FileOption) *FileBackend {
	if path == "" {
		path = DefaultDataFile
	}
	b := &FileBackend{
		path:   path,
		format: formatFromPath(path),
		perm:   0o644,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func formatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Path returns the file the backend writes.
func (b *FileBackend) Path() string { return b.path }

// Format returns the encoding in use.
func (b *FileBackend) Format() Format { return b.format }

// Load reads the file. A missing or empty file is an empty mapping.
func (b *FileBackend) Load(ctx context.Context) (map[string]board.Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrStoreClosed
	}

	data, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]board.Snapshot{}, nil
	}
	if err != nil {
		return nil, backendErr("file", "load", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]board.Snapshot{}, nil
	}

	rooms, err := decodeRooms(data, b.format)
	if err != nil {
		return nil, backendErr("file", "load", fmt.Errorf("parse %s: %w", b.path, err))
	}
	return rooms, nil
}

// Save encodes rooms and replaces the file.
func (b *FileBackend) Save(ctx context.Context, rooms map[string]board.Snapshot) error {
	data, err := encodeRooms(rooms, b.format)
	if err != nil {
		return backendErr("file", "save", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrStoreClosed
	}
	if err := ctx.Err(); err != nil {
		return backendErr("file", "save", err)
	}
	return backendErr("file", "save", writeFileAtomic(b.path, data, b.perm))
}

// Close marks the backend closed.
func (b *FileBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// encodeRooms renders the mapping with two-space indentation. YAML output is
// produced from the JSON form so notes keep their unmodelled members.
func encodeRooms(rooms map[string]board.Snapshot, format Format) ([]byte, error) {
	if rooms == nil {
		rooms = map[string]board.Snapshot{}
	}
	data, err := json.MarshalIndent(rooms, "", "  ")
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatJSON, "":
		return data, nil
	case FormatYAML:
		var generic map[string]any
		if err := json.Unmarshal(data, &generic); err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}

func decodeRooms(data []byte, format Format) (map[string]board.Snapshot, error) {
	switch format {
	case FormatJSON, "":
	case FormatYAML:
		var generic map[string]any
		if err := yaml.Unmarshal(data, &generic); err != nil {
			return nil, err
		}
		var err error
		if data, err = json.Marshal(generic); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}

	rooms := make(map[string]board.Snapshot)
	if err := json.Unmarshal(data, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

// writeFileAtomic writes data to a temp file in the target directory and
// renames it over filename.
func writeFileAtomic(filename string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, tempFilePrefix+"*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filename); err != nil {
		return fmt.Errorf("rename temp file to %s: %w", filename, err)
	}
	return nil
}

var _ Backend = (*FileBackend)(nil)
