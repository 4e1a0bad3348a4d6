// Package sqlite keeps the audit trail of mediated ceremonies.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Decisions recorded for a ceremony.
const (
	DecisionApproved = "approved"
	DecisionDenied   = "denied"
	DecisionAnswered = "answered"
	DecisionAborted  = "aborted"
	DecisionFailed   = "failed"
)

// Ceremony is one request the daemon answered or saw aborted.
type Ceremony struct {
	Origin     string    `json:"origin"`
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	RPID       string    `json:"rpId,omitempty"`
	Decision   string    `json:"decision"`
	Error      string    `json:"error,omitempty"`
	ReceivedAt time.Time `json:"receivedAt"`
	AnsweredAt time.Time `json:"answeredAt"`
}

// Store owns the SQLite database for a profile.
type Store struct {
	db          *sql.DB
	path        string
	journalMode string
	synchronous string
}

// Option tunes the store before Init.
type Option func(*Store)

// WithJournalMode sets PRAGMA journal_mode (DELETE, WAL, ...).
func WithJournalMode(mode string) Option {
	return func(s *Store) {
		if mode != "" {
			s.journalMode = strings.ToUpper(mode)
		}
	}
}

// WithSynchronous sets PRAGMA synchronous (OFF, NORMAL, FULL, EXTRA).
func WithSynchronous(level string) Option {
	return func(s *Store) {
		if level != "" {
			s.synchronous = strings.ToUpper(level)
		}
	}
}

var (
	journalModes = map[string]bool{"DELETE": true, "TRUNCATE": true, "PERSIST": true, "MEMORY": true, "WAL": true, "OFF": true}
	syncLevels   = map[string]bool{"OFF": true, "NORMAL": true, "FULL": true, "EXTRA": true}
)

// Path returns the underlying SQLite file path.
func (s *Store) Path() string {
	return s.path
}

// Open initializes a SQLite database at path.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{path: path, journalMode: "DELETE", synchronous: "FULL"}
	for _, opt := range opts {
		opt(s)
	}
	if !journalModes[s.journalMode] {
		return nil, fmt.Errorf("unsupported journal mode %q", s.journalMode)
	}
	if !syncLevels[s.synchronous] {
		return nil, fmt.Errorf("unsupported synchronous level %q", s.synchronous)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s.db = db
	return s, nil
}

// Close releases database resources.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Init ensures pragmas and schema are configured.
func (s *Store) Init(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("nil store")
	}
	pragmas := []string{
		"PRAGMA journal_mode = " + s.journalMode + ";",
		"PRAGMA synchronous = " + s.synchronous + ";",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, stmt := range pragmas {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply pragma %q: %w", stmt, err)
		}
	}
	return s.applySchema(ctx)
}

func (s *Store) applySchema(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`INSERT OR IGNORE INTO meta(key,value) VALUES ('schemaVersion','1');`,
		`CREATE TABLE IF NOT EXISTS ceremonies (
			origin TEXT NOT NULL,
			id TEXT NOT NULL,
			type TEXT NOT NULL,
			rp_id TEXT NOT NULL DEFAULT '',
			decision TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			received_at INTEGER NOT NULL,
			answered_at INTEGER NOT NULL,
			PRIMARY KEY (origin, id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_ceremonies_received ON ceremonies(received_at);`,
	}
	for _, stmt := range ddl {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// Record stores c. A later record for the same origin and id, such as an
// abort following a decision, replaces the earlier one.
func (s *Store) Record(ctx context.Context, c Ceremony) error {
	if c.Origin == "" || c.ID == "" {
		return errors.New("ceremony origin and id required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ceremonies(origin, id, type, rp_id, decision, error, received_at, answered_at)
		VALUES(?,?,?,?,?,?,?,?)
		ON CONFLICT(origin, id) DO UPDATE SET
			type = excluded.type,
			rp_id = CASE WHEN excluded.rp_id = '' THEN ceremonies.rp_id ELSE excluded.rp_id END,
			decision = excluded.decision,
			error = excluded.error,
			answered_at = excluded.answered_at;
	`, c.Origin, c.ID, c.Type, c.RPID, c.Decision, c.Error, c.ReceivedAt.UnixMilli(), c.AnsweredAt.UnixMilli())
	return err
}

// Recent returns up to limit ceremonies, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Ceremony, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT origin, id, type, rp_id, decision, error, received_at, answered_at
		FROM ceremonies
		ORDER BY received_at DESC, rowid DESC
		LIMIT ?;
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Ceremony
	for rows.Next() {
		var (
			c        Ceremony
			received int64
			answered int64
		)
		if err := rows.Scan(&c.Origin, &c.ID, &c.Type, &c.RPID, &c.Decision, &c.Error, &received, &answered); err != nil {
			return nil, err
		}
		c.ReceivedAt = time.UnixMilli(received)
		c.AnsweredAt = time.UnixMilli(answered)
		out = append(out, c)
	}
	return out, rows.Err()
}

// Count returns the number of recorded ceremonies.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ceremonies`).Scan(&n)
	return n, err
}
