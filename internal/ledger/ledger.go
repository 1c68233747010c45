// Package ledger is the durable record of which Drive documents have already
// been processed. It is the pipeline's source of truth for "seen": an id is
// added only after the Notion write succeeded, so a crash between write and
// mark causes a harmless re-attempt, never a false "processed" entry.
package ledger

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/m-okabe/papersync/internal/common"
)

// Entry statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Entry is one row of the processed-files table.
type Entry struct {
	FileID       string
	FileName     string
	ProcessedAt  time.Time
	NotionPageID string
	Status       string
	ErrorMessage string
}

const schema = `
CREATE TABLE IF NOT EXISTS processed_files (
	file_id       TEXT PRIMARY KEY,
	file_name     TEXT NOT NULL,
	processed_at  TIMESTAMP NOT NULL,
	notion_page_id TEXT,
	status        TEXT NOT NULL,
	error_message TEXT
);
CREATE INDEX IF NOT EXISTS idx_processed_at ON processed_files (processed_at);
CREATE INDEX IF NOT EXISTS idx_status ON processed_files (status);
`

// Ledger is a persisted set of already-processed document identifiers backed
// by SQLite. Mark/MarkFailed are serialized by a mutex; each write commits its
// own transaction, so a mark is durable by the time the call returns.
type Ledger struct {
	db     *sql.DB
	logger *slog.Logger

	mu        sync.Mutex
	completed map[string]struct{}
}

// Open opens (or creates) the ledger database and verifies its integrity.
// A corrupted store is a configuration error: refusing to start is safer than
// silently reprocessing everything or silently treating everything as done.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Ledger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, common.NewConfigError("open ledger database", err)
	}
	db.SetMaxOpenConns(1)

	var check string
	if err := db.QueryRowContext(ctx, "PRAGMA quick_check").Scan(&check); err != nil {
		_ = db.Close()
		return nil, common.NewConfigError("ledger integrity check failed", err)
	}
	if check != "ok" {
		_ = db.Close()
		return nil, common.NewConfigError(fmt.Sprintf("ledger database %q is corrupted: %s", path, check), nil)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, common.NewConfigError("initialize ledger schema", err)
	}

	return &Ledger{
		db:        db,
		logger:    logger,
		completed: make(map[string]struct{}),
	}, nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

// Load reconstructs the in-memory completed set from the database. An empty
// store means nothing has been processed yet.
func (l *Ledger) Load(ctx context.Context) error {
	rows, err := l.db.QueryContext(ctx,
		"SELECT file_id FROM processed_files WHERE status = ?", StatusCompleted)
	if err != nil {
		return common.NewConfigError("load ledger", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			l.logger.Warn("ledger.load.close_rows", "error", err)
		}
	}()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.completed = make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return common.NewConfigError("scan ledger row", err)
		}
		l.completed[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return common.NewConfigError("iterate ledger rows", err)
	}
	l.logger.Info("ledger.load.ok", "completed", len(l.completed))
	return nil
}

// Contains reports whether fileID has been fully processed.
func (l *Ledger) Contains(fileID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.completed[fileID]
	return ok
}

// Mark records fileID as fully processed. Marking an already-present id is a
// no-op, not an error. The row is committed before Mark returns.
func (l *Ledger) Mark(ctx context.Context, fileID, fileName, notionPageID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO processed_files (file_id, file_name, processed_at, notion_page_id, status, error_message)
		VALUES (?, ?, ?, ?, ?, NULL)
		ON CONFLICT(file_id) DO UPDATE SET
			file_name = excluded.file_name,
			processed_at = excluded.processed_at,
			notion_page_id = excluded.notion_page_id,
			status = excluded.status,
			error_message = NULL`,
		fileID, fileName, time.Now().UTC(), notionPageID, StatusCompleted)
	if err != nil {
		return fmt.Errorf("mark %s: %w", fileID, err)
	}
	l.completed[fileID] = struct{}{}
	l.logger.Info("ledger.mark.ok", "file_id", fileID, "file_name", fileName)
	return nil
}

// MarkFailed records a failed attempt. The id stays out of the completed set,
// so the document is retried on the next cycle.
func (l *Ledger) MarkFailed(ctx context.Context, fileID, fileName, errMsg string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, done := l.completed[fileID]; done {
		// Never downgrade a completed entry.
		return nil
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO processed_files (file_id, file_name, processed_at, notion_page_id, status, error_message)
		VALUES (?, ?, ?, NULL, ?, ?)
		ON CONFLICT(file_id) DO UPDATE SET
			processed_at = excluded.processed_at,
			status = excluded.status,
			error_message = excluded.error_message`,
		fileID, fileName, time.Now().UTC(), StatusFailed, errMsg)
	if err != nil {
		return fmt.Errorf("mark failed %s: %w", fileID, err)
	}
	l.logger.Warn("ledger.mark_failed", "file_id", fileID, "error", errMsg)
	return nil
}

// Stats returns entry counts per status.
func (l *Ledger) Stats(ctx context.Context) (map[string]int, error) {
	rows, err := l.db.QueryContext(ctx,
		"SELECT status, COUNT(*) FROM processed_files GROUP BY status")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	stats := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		stats[status] = n
	}
	return stats, rows.Err()
}

// History returns all ledger entries ordered by processing time.
func (l *Ledger) History(ctx context.Context) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT file_id, file_name, processed_at, COALESCE(notion_page_id, ''), status, COALESCE(error_message, '')
		FROM processed_files ORDER BY processed_at ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.FileID, &e.FileName, &e.ProcessedAt, &e.NotionPageID, &e.Status, &e.ErrorMessage); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// MigrateFromTextFile imports ids from the legacy one-id-per-line tracking
// file. Missing file is a no-op.
func (l *Ledger) MigrateFromTextFile(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	defer func() { _ = f.Close() }()

	migrated := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		id := strings.TrimSpace(sc.Text())
		if id == "" {
			continue
		}
		if err := l.Mark(ctx, id, "migrated "+id, ""); err != nil {
			return migrated, err
		}
		migrated++
	}
	if err := sc.Err(); err != nil {
		return migrated, err
	}
	l.logger.Info("ledger.migrate.ok", "path", path, "migrated", migrated)
	return migrated, nil
}
