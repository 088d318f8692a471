// ABOUTME: SQLite persistence for the acknowledgement cursor and conversation states
// ABOUTME: Uses modernc.org/sqlite with automatic schema creation and WAL mode

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/candourhq/courier/internal/conversation"
)

// SQLiteStore persists the acknowledgement cursor and conversation states so
// a restarted process resumes where it left off. It implements
// source.CursorStore and conversation.StateStore.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) the database at path. Parent directories
// are created if needed; ":memory:" gives an ephemeral store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL improves concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the tables if they don't exist.
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS cursor (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			position INTEGER NOT NULL,
			updated_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS conversation_states (
			key TEXT PRIMARY KEY,
			state TEXT NOT NULL,
			deadline DATETIME,
			updated_at DATETIME NOT NULL
		);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// SaveCursor upserts the acknowledgement position.
func (s *SQLiteStore) SaveCursor(ctx context.Context, position int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cursor (id, position, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET position = excluded.position, updated_at = excluded.updated_at`,
		position, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("saving cursor: %w", err)
	}
	return nil
}

// LoadCursor returns the persisted acknowledgement position, zero when none
// has been saved.
func (s *SQLiteStore) LoadCursor(ctx context.Context) (int64, error) {
	var position int64
	err := s.db.QueryRowContext(ctx, `SELECT position FROM cursor WHERE id = 1`).Scan(&position)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("loading cursor: %w", err)
	}
	return position, nil
}

// SaveState upserts one conversation state. A zero deadline is stored NULL.
func (s *SQLiteStore) SaveState(ctx context.Context, key string, state string, deadline time.Time) error {
	var dl any
	if !deadline.IsZero() {
		dl = deadline.UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversation_states (key, state, deadline, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET state = excluded.state, deadline = excluded.deadline, updated_at = excluded.updated_at`,
		key, state, dl, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("saving state for %s: %w", key, err)
	}
	return nil
}

// DeleteState removes one conversation state. Deleting an absent key is not
// an error.
func (s *SQLiteStore) DeleteState(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM conversation_states WHERE key = ?`, key); err != nil {
		return fmt.Errorf("deleting state for %s: %w", key, err)
	}
	return nil
}

// LoadStates returns every persisted conversation state keyed by
// conversation key.
func (s *SQLiteStore) LoadStates(ctx context.Context) (map[string]conversation.PersistedState, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, state, deadline FROM conversation_states`)
	if err != nil {
		return nil, fmt.Errorf("loading states: %w", err)
	}
	defer rows.Close()

	states := make(map[string]conversation.PersistedState)
	for rows.Next() {
		var (
			key      string
			state    string
			deadline sql.NullTime
		)
		if err := rows.Scan(&key, &state, &deadline); err != nil {
			return nil, fmt.Errorf("scanning state row: %w", err)
		}
		ps := conversation.PersistedState{State: state}
		if deadline.Valid {
			ps.Deadline = deadline.Time
		}
		states[key] = ps
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating state rows: %w", err)
	}
	return states, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
