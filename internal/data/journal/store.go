package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"modsplit/internal/core/ports"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const (
	driverName         = "sqlite"
	maxAttempts        = 5
	defaultBusyTimeout = 5 * time.Second
	defaultListLimit   = 20
	// Fixed width so timestamps sort lexically.
	timeLayout         = "2006-01-02T15:04:05.000000000Z07:00"
)

// Store is a SQLite-backed commit journal.
type Store struct {
	path string
	db   *sql.DB
	mu   sync.Mutex
	now  func() time.Time
}

var _ ports.CommitJournal = (*Store)(nil)

func Open(path string, busyTimeout time.Duration) (*Store, error) {
	cleanPath := strings.TrimSpace(path)
	if cleanPath == "" {
		return nil, fmt.Errorf("journal path must not be empty")
	}
	if info, err := os.Stat(cleanPath); err == nil && info.IsDir() {
		return nil, fmt.Errorf("journal path %q is a directory, expected file", cleanPath)
	}

	dir := filepath.Dir(cleanPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal directory %q: %w", dir, err)
		}
	}

	if busyTimeout <= 0 {
		busyTimeout = defaultBusyTimeout
	}
	dsn := fmt.Sprintf(
		"file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)",
		cleanPath, busyTimeout.Milliseconds(),
	)
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite journal %q: %w", cleanPath, err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite journal %q: %w", cleanPath, err)
	}
	if err := EnsureSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize sqlite schema %q: %w", cleanPath, err)
	}

	return &Store{path: cleanPath, db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Begin records a pending commit. The entry must carry the original source
// bytes so the commit can be undone after a crash, and the hash of the updated
// source so recovery can tell a finished commit from later edits.
func (s *Store) Begin(ctx context.Context, entry ports.JournalEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == uuid.Nil {
		return fmt.Errorf("journal entry id must be set")
	}
	if entry.SourceBackup == nil {
		entry.SourceBackup = []byte{}
	}
	ts := s.now().UTC().Format(timeLayout)

	return s.withRetry("begin journal entry", func() error {
		_, err := s.db.ExecContext(ctx, `
INSERT INTO edit_journal (
  id, label, source_path, source_backup, created_path, created_dirs, updated_hash,
  status, error, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, '', ?, ?)`,
			entry.ID.String(),
			entry.Label,
			entry.SourcePath,
			entry.SourceBackup,
			entry.CreatedPath,
			strings.Join(entry.CreatedDirs, "\n"),
			entry.UpdatedHash,
			string(ports.JournalPending),
			ts,
			ts,
		)
		return err
	})
}

func (s *Store) MarkCommitted(ctx context.Context, id uuid.UUID) error {
	return s.setStatus(ctx, id, ports.JournalCommitted, "")
}

func (s *Store) MarkRolledBack(ctx context.Context, id uuid.UUID, reason string) error {
	return s.setStatus(ctx, id, ports.JournalRolledBack, reason)
}

func (s *Store) setStatus(ctx context.Context, id uuid.UUID, status ports.JournalStatus, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var affected int64
	err := s.withRetry("update journal entry", func() error {
		// Committed entries no longer need the source backup.
		query := `UPDATE edit_journal SET status = ?, error = ?, updated_at = ? WHERE id = ? AND status = ?`
		if status == ports.JournalCommitted {
			query = `UPDATE edit_journal SET status = ?, error = ?, updated_at = ?, source_backup = x'' WHERE id = ? AND status = ?`
		}
		res, err := s.db.ExecContext(ctx, query,
			string(status),
			reason,
			s.now().UTC().Format(timeLayout),
			id.String(),
			string(ports.JournalPending),
		)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("journal entry %s is not pending", id)
	}
	return nil
}

// Pending lists entries whose commit never finished, oldest first.
func (s *Store) Pending(ctx context.Context) ([]ports.JournalEntry, error) {
	return s.query(ctx, "load pending journal entries",
		`WHERE status = ? ORDER BY created_at ASC, rowid ASC`, string(ports.JournalPending))
}

// List returns the most recent entries, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]ports.JournalEntry, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	return s.query(ctx, "list journal entries",
		`ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
}

func (s *Store) query(ctx context.Context, op, clause string, args ...any) ([]ports.JournalEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := `
SELECT id, label, source_path, source_backup, created_path, created_dirs, updated_hash,
  status, error, created_at, updated_at
FROM edit_journal
` + clause

	var rows *sql.Rows
	err := s.withRetry(op, func() error {
		var qErr error
		rows, qErr = s.db.QueryContext(ctx, q, args...)
		return qErr
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]ports.JournalEntry, 0)
	for rows.Next() {
		var (
			idRaw, dirsRaw, status string
			createdRaw, updatedRaw string
			entry                  ports.JournalEntry
		)
		if err := rows.Scan(
			&idRaw,
			&entry.Label,
			&entry.SourcePath,
			&entry.SourceBackup,
			&entry.CreatedPath,
			&dirsRaw,
			&entry.UpdatedHash,
			&status,
			&entry.Error,
			&createdRaw,
			&updatedRaw,
		); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}

		id, err := uuid.Parse(idRaw)
		if err != nil {
			return nil, fmt.Errorf("parse journal id %q: %w", idRaw, err)
		}
		entry.ID = id
		entry.Status = ports.JournalStatus(status)
		if dirsRaw != "" {
			entry.CreatedDirs = strings.Split(dirsRaw, "\n")
		}
		if entry.CreatedAt, err = parseTime(createdRaw); err != nil {
			return nil, err
		}
		if entry.UpdatedAt, err = parseTime(updatedRaw); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal rows: %w", err)
	}
	return entries, nil
}

func parseTime(raw string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse journal timestamp %q: %w", raw, err)
	}
	return ts.UTC(), nil
}

func (s *Store) withRetry(op string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isLockError(err) || attempt == maxAttempts {
			break
		}
		time.Sleep(time.Duration(attempt*25) * time.Millisecond)
	}
	return fmt.Errorf("%s: %w", op, lastErr)
}

func isLockError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}
