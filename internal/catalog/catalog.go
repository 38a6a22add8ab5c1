package catalog

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"mvfetch/internal/model"
	"mvfetch/internal/runstore"
)

//go:embed schema.sql
var schema string

// fixed width so recorded_at sorts lexically
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Entry is one recorded final outcome.
type Entry struct {
	RunID      string `json:"run_id"`
	SourcePath string `json:"source_path"`
	Artist     string `json:"artist,omitempty"`
	Title      string `json:"title,omitempty"`
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"`
	VideoID    string `json:"video_id,omitempty"`
	OutputPath string `json:"output_path,omitempty"`
	RecordedAt string `json:"recorded_at"`
}

// Catalog is the cross-run history of item outcomes.
type Catalog struct {
	db *sql.DB
}

func Open(path string) (*Catalog, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("catalog path is required")
	}
	if err := runstore.Mkdir(filepath.Dir(path)); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open catalog %s: %w", path, err)
	}
	// sqlite allows one writer at a time
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init catalog schema: %w", err)
	}
	return &Catalog{db: db}, nil
}

func (c *Catalog) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Record upserts the outcome of one item within a run.
func (c *Catalog) Record(ctx context.Context, runID string, item model.WorkItem) error {
	if c == nil || c.db == nil {
		return nil
	}
	const q = `
	INSERT INTO outcomes (run_id, source_path, artist, title, status, reason, video_id, output_path, recorded_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(run_id, source_path) DO UPDATE SET
		artist = excluded.artist,
		title = excluded.title,
		status = excluded.status,
		reason = excluded.reason,
		video_id = COALESCE(NULLIF(excluded.video_id, ''), outcomes.video_id),
		output_path = COALESCE(NULLIF(excluded.output_path, ''), outcomes.output_path),
		recorded_at = excluded.recorded_at;`
	_, err := c.db.ExecContext(ctx, q,
		runID, item.ID, item.Artist, item.Title, item.Status, item.Reason,
		item.VideoID, item.OutputPath, time.Now().UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("record outcome for %s: %w", item.ID, err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (c *Catalog) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	return c.query(ctx, `SELECT run_id, source_path, artist, title, status, reason, video_id, output_path, recorded_at
	FROM outcomes ORDER BY recorded_at DESC, rowid DESC LIMIT ?`, limit)
}

// ForSource returns every recorded outcome for one source file, newest first.
func (c *Catalog) ForSource(ctx context.Context, sourcePath string) ([]Entry, error) {
	return c.query(ctx, `SELECT run_id, source_path, artist, title, status, reason, video_id, output_path, recorded_at
	FROM outcomes WHERE source_path = ? ORDER BY recorded_at DESC, rowid DESC`, sourcePath)
}

func (c *Catalog) query(ctx context.Context, q string, args ...any) ([]Entry, error) {
	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query catalog: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.RunID, &e.SourcePath, &e.Artist, &e.Title, &e.Status, &e.Reason, &e.VideoID, &e.OutputPath, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan catalog row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
