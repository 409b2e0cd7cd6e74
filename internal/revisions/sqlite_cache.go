package revisions

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"scribedesk/internal/domain"

	_ "modernc.org/sqlite"
)

// Fixed width so lexical order matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteCache keeps the last fetched revision list per session so history
// stays browsable while the backend is unreachable.
type SQLiteCache struct {
	db *sql.DB
}

func NewSQLiteCache(dbPath string) (*SQLiteCache, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	cache := &SQLiteCache{db: db}
	if err := cache.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return cache, nil
}

func (c *SQLiteCache) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS revisions (
  id TEXT PRIMARY KEY,
  session_id TEXT NOT NULL,
  content TEXT NOT NULL,
  note TEXT NOT NULL DEFAULT '',
  created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS revisions_session_created ON revisions (session_id, created_at);
`
	if _, err := c.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create revisions table: %w", err)
	}
	return nil
}

// Replace swaps the cached list for a session in one transaction.
func (c *SQLiteCache) Replace(ctx context.Context, sessionID string, revisions []domain.Revision) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cache tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM revisions WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("clear cached revisions: %w", err)
	}

	const stmt = `
INSERT INTO revisions (id, session_id, content, note, created_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  session_id=excluded.session_id,
  content=excluded.content,
  note=excluded.note,
  created_at=excluded.created_at;
`
	for _, rev := range revisions {
		if _, err := tx.ExecContext(ctx, stmt,
			rev.ID,
			sessionID,
			rev.Content,
			rev.Note,
			rev.CreatedAt.UTC().Format(timeLayout),
		); err != nil {
			return fmt.Errorf("cache revision %s: %w", rev.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit cache tx: %w", err)
	}
	return nil
}

// List returns the cached revisions for a session, newest first.
func (c *SQLiteCache) List(ctx context.Context, sessionID string) ([]domain.Revision, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, session_id, content, note, created_at FROM revisions WHERE session_id = ? ORDER BY created_at DESC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query cached revisions: %w", err)
	}
	defer rows.Close()

	var out []domain.Revision
	for rows.Next() {
		var (
			rev     domain.Revision
			created string
		)
		if err := rows.Scan(&rev.ID, &rev.SessionID, &rev.Content, &rev.Note, &created); err != nil {
			return nil, fmt.Errorf("scan cached revision: %w", err)
		}
		rev.CreatedAt, err = time.Parse(timeLayout, created)
		if err != nil {
			return nil, fmt.Errorf("parse cached revision time: %w", err)
		}
		out = append(out, rev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cached revisions: %w", err)
	}
	return out, nil
}

func (c *SQLiteCache) Close() error {
	return c.db.Close()
}
