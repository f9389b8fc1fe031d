// Package history persists the interaction log in SQLite.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"ragserver/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS interactions (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	query      TEXT NOT NULL,
	answer     TEXT NOT NULL,
	source_ids TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_interactions_session ON interactions(session_id, created_at);
`

// Store is an append-only log of chat interactions. The answering pipeline
// writes to it and never reads it back.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the log database at path, with WAL mode for
// concurrent writers.
func NewStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Append records one completed exchange.
func (s *Store) Append(ctx context.Context, it domain.Interaction) error {
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	if it.CreatedAt.IsZero() {
		it.CreatedAt = time.Now().UTC()
	}
	sources, err := json.Marshal(it.SourceIDs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO interactions (id, session_id, query, answer, source_ids, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		it.ID, it.SessionID, it.Query, it.Answer, string(sources), it.CreatedAt)
	return err
}

func (s *Store) Close() error { return s.db.Close() }
