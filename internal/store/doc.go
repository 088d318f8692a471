// Package store provides SQLite persistence for courier.
//
// # Overview
//
// SQLiteStore persists the two pieces of state worth surviving a restart:
//
//   - the acknowledgement cursor (source.CursorStore)
//   - conversation states with deadlines (conversation.StateStore)
//
// An empty database path in the configuration disables persistence entirely;
// the engine then runs memory-only.
//
// # SQLite Configuration
//
// The store uses modernc.org/sqlite (pure Go, no cgo) with WAL mode:
//
//	PRAGMA journal_mode=WAL;
//
// The schema is created automatically on open. ":memory:" gives an ephemeral
// store for tests.
//
// # Semantics
//
// Writes are upserts keyed by a fixed row id (cursor) or the conversation key
// (states). Loading an absent cursor returns zero, not an error. Zero
// deadlines are stored NULL and come back zero.
package store
