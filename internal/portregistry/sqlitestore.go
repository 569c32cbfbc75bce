package portregistry

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"captionkit/internal/logging"
)

//go:embed schema.sql
var schemaSQL string

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// SQLiteStore keeps reservations in a SQLite table keyed by port.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
	now    func() time.Time
}

// OpenSQLite opens or creates the registry database at path.
func OpenSQLite(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create registry directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Pragmas are per connection.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode=WAL",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		path:   path,
		logger: logging.NewComponentLogger(logger, "portregistry"),
		now:    time.Now,
	}, nil
}

// Tracking is always true for the SQLite backend.
func (s *SQLiteStore) Tracking() bool {
	return true
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) Reserve(ctx context.Context, req Request) (Result, error) {
	if err := validateRequest(req); err != nil {
		return Result{}, err
	}
	entry := newEntry(req, s.now())

	var result Result
	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin reserve tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		res, err := tx.ExecContext(ctx, `INSERT INTO reservations
			(port, name, storage_path, kind, image_ref, gpu, cache_flag, created, seq)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM reservations))
			ON CONFLICT(port) DO NOTHING`,
			entry.Port, entry.Name, entry.StoragePath, entry.Kind, entry.ImageRef,
			boolToInt(entry.GPU), boolToInt(entry.CacheFlag), entry.Created.Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("insert reservation: %w", err)
		}
		inserted, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("insert reservation: %w", err)
		}
		if inserted == 1 {
			result = Result{Granted: true, Tracked: true, Holder: req.Name}
			return tx.Commit()
		}

		var holder, holderPath string
		if err := tx.QueryRowContext(ctx,
			"SELECT name, storage_path FROM reservations WHERE port = ?", req.Port,
		).Scan(&holder, &holderPath); err != nil {
			return fmt.Errorf("lookup holder: %w", err)
		}
		if holder != req.Name || holderPath != req.StoragePath {
			return &ConflictError{Port: req.Port, Holder: holder, StoragePath: holderPath}
		}
		result = Result{Granted: true, AlreadyHeld: true, Tracked: true, Holder: holder}
		return tx.Commit()
	})
	if err != nil {
		return Result{}, err
	}
	s.logger.Info("port reserved",
		logging.String("name", req.Name),
		logging.Int("port", req.Port),
		logging.String("storage_path", req.StoragePath),
		logging.Bool("already_held", result.AlreadyHeld))
	return result, nil
}

func (s *SQLiteStore) Release(ctx context.Context, name, storagePath string, port int) (bool, error) {
	var removed bool
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			"DELETE FROM reservations WHERE port = ? AND name = ? AND storage_path = ?",
			port, name, storagePath)
		if err != nil {
			return fmt.Errorf("delete reservation: %w", err)
		}
		count, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete reservation: %w", err)
		}
		removed = count > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	if removed {
		s.logger.Info("port released", logging.String("name", name), logging.Int("port", port))
	}
	return removed, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT port, name, storage_path, kind, image_ref, gpu, cache_flag, created
		FROM reservations ORDER BY seq, port`)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry     Entry
			gpu       int
			cacheFlag int
			created   string
		)
		if err := rows.Scan(&entry.Port, &entry.Name, &entry.StoragePath, &entry.Kind,
			&entry.ImageRef, &gpu, &cacheFlag, &created); err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		entry.GPU = gpu != 0
		entry.CacheFlag = cacheFlag != 0
		if err := entry.Created.UnmarshalText([]byte(created)); err != nil {
			return nil, fmt.Errorf("parse created for port %d: %w", entry.Port, err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reservations: %w", err)
	}
	return entries, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
