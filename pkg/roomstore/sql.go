package roomstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/balco-dev/balco/pkg/board"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// DefaultTableName is the table SQLBackend keeps rooms in.
const DefaultTableName = "balco_rooms"

// SQLBackend stores one row per room in SQLite:
//
//	CREATE TABLE balco_rooms (
//	    id TEXT PRIMARY KEY,
//	    data TEXT NOT NULL,
//	    updated_at INTEGER NOT NULL
//	);
//
// data holds the room's JSON snapshot. It implements RoomSaver, so a
// mutation rewrites a single row.
type SQLBackend struct {
	db        *sql.DB
	tableName string
	ownsDB    bool
	now       func() time.Time
}

// SQLOption configures a SQLBackend.
type SQLOption func(*SQLBackend)

// WithTableName sets the table name. Default: "balco_rooms".
func WithTableName(name string) SQLOption {
	return func(b *SQLBackend) {
		if name != "" {
			b.tableName = name
		}
	}
}

// OpenSQLite opens (creating if needed) the SQLite database at path and
// returns a backend that closes it on Close. Use ":memory:" for a
// throwaway database.
func OpenSQLite(ctx context.Context, path string, opts ...SQLOption) (*SQLBackend, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, backendErr("sqlite", "open", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	b, err := NewSQLBackend(ctx, db, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	b.ownsDB = true
	return b, nil
}

// NewSQLBackend wraps an open database and creates the table if it does not
// exist. The caller keeps ownership of db.
func NewSQLBackend(ctx context.Context, db *sql.DB, opts ...SQLOption) (*SQLBackend, error) {
	b := &SQLBackend{
		db:        db,
		tableName: DefaultTableName,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}

	schema := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			data TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`, b.tableName)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, backendErr("sqlite", "create_table", err)
	}
	return b, nil
}

// Load reads every row.
func (b *SQLBackend) Load(ctx context.Context) (map[string]board.Snapshot, error) {
	rows, err := b.db.QueryContext(ctx, fmt.Sprintf(`SELECT id, data FROM %s`, b.tableName))
	if err != nil {
		return nil, backendErr("sqlite", "load", err)
	}
	defer rows.Close()

	rooms := make(map[string]board.Snapshot)
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, backendErr("sqlite", "load", err)
		}
		var snap board.Snapshot
		if err := json.Unmarshal([]byte(data), &snap); err != nil {
			return nil, backendErr("sqlite", "load", fmt.Errorf("room %s: %w", id, err))
		}
		rooms[id] = snap
	}
	if err := rows.Err(); err != nil {
		return nil, backendErr("sqlite", "load", err)
	}
	return rooms, nil
}

// SaveRoom upserts one row.
func (b *SQLBackend) SaveRoom(ctx context.Context, roomID string, room board.Snapshot) error {
	data, err := json.Marshal(room)
	if err != nil {
		return backendErr("sqlite", "save_room", err)
	}
	_, err = b.db.ExecContext(ctx, b.upsertQuery(), roomID, string(data), b.now().UnixMilli())
	return backendErr("sqlite", "save_room", err)
}

// Save replaces the table contents in one transaction.
func (b *SQLBackend) Save(ctx context.Context, rooms map[string]board.Snapshot) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return backendErr("sqlite", "save", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, b.tableName)); err != nil {
		return backendErr("sqlite", "save", err)
	}
	now := b.now().UnixMilli()
	for id, snap := range rooms {
		data, err := json.Marshal(snap)
		if err != nil {
			return backendErr("sqlite", "save", fmt.Errorf("room %s: %w", id, err))
		}
		if _, err := tx.ExecContext(ctx, b.upsertQuery(), id, string(data), now); err != nil {
			return backendErr("sqlite", "save", err)
		}
	}
	return backendErr("sqlite", "save", tx.Commit())
}

func (b *SQLBackend) upsertQuery() string {
	return fmt.Sprintf(`
		INSERT INTO %s (id, data, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at`, b.tableName)
}

// Close closes the database if the backend opened it.
func (b *SQLBackend) Close() error {
	if b.ownsDB {
		return b.db.Close()
	}
	return nil
}

var (
	_ Backend   = (*SQLBackend)(nil)
	_ RoomSaver = (*SQLBackend)(nil)
)
