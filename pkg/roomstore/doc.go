// Package roomstore owns every room in the process and their durable copy.
//
// A Store holds the authoritative in-memory mapping from room id to
// board.Room and writes through to a Backend after each mutation. The
// in-memory state always wins: a failed write is reported to the caller, who
// is expected to log it and carry on.
//
// Backends:
//
//   - FileBackend: one JSON (or YAML) document holding every room, rewritten
//     atomically on each save. The JSON layout is the same mapping of room id
//     to {name, notes, connections} older deployments kept in data/rooms.json.
//   - SQLBackend: one row per room in SQLite, so a mutation rewrites only the
//     room it touched.
//   - S3Backend: one object holding every room, behind a circuit breaker.
//   - MemoryBackend: no durability, for tests and throwaway servers.
//
// Loading never fails the process. A missing or unreadable durable copy
// starts the store empty.
package roomstore
