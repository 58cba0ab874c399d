package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/codehive/collab-server/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS session_activity (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id  TEXT NOT NULL,
	client_id   TEXT NOT NULL,
	user        TEXT NOT NULL,
	kind        TEXT NOT NULL,
	occurred_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_session_activity_project
	ON session_activity(project_id, occurred_at DESC);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New opens (or creates) the database at dbPath and applies the schema.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// RecordActivity appends one membership change.
func (s *SQLiteStore) RecordActivity(ctx context.Context, act store.Activity) error {
	occurred := act.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_activity (project_id, client_id, user, kind, occurred_at)
		 VALUES (?, ?, ?, ?, ?)`,
		act.ProjectID, act.ClientID, act.User, string(act.Kind), occurred.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

// RecentActivity returns the latest membership changes for a project.
func (s *SQLiteStore) RecentActivity(ctx context.Context, projectID string, limit int) ([]store.Activity, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, client_id, user, kind, occurred_at
		 FROM session_activity
		 WHERE project_id = ?
		 ORDER BY occurred_at DESC, id DESC
		 LIMIT ?`,
		projectID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query activity: %w", err)
	}
	defer rows.Close()

	var acts []store.Activity
	for rows.Next() {
		var act store.Activity
		var kind string
		if err := rows.Scan(&act.ID, &act.ProjectID, &act.ClientID, &act.User, &kind, &act.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		act.Kind = store.ActivityKind(kind)
		acts = append(acts, act)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity: %w", err)
	}
	return acts, nil
}
