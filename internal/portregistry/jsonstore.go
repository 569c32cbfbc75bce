package portregistry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"captionkit/internal/fileutil"
	"captionkit/internal/logging"
)

const lockRetryDelay = 25 * time.Millisecond

// JSONStore keeps reservations in a shared JSON array file.
type JSONStore struct {
	path     string
	lockPath string
	logger   *slog.Logger
	now      func() time.Time
}

// NewJSONStore returns a store backed by the file at path. The file is not
// created; use InitFile to opt into tracking.
func NewJSONStore(path string, logger *slog.Logger) *JSONStore {
	return &JSONStore{
		path:     path,
		lockPath: path + ".lock",
		logger:   logging.NewComponentLogger(logger, "portregistry"),
		now:      time.Now,
	}
}

// InitFile creates an empty registry at path if none exists and reports
// whether it created one.
func InitFile(ctx context.Context, path string) (bool, error) {
	store := NewJSONStore(path, nil)
	var created bool
	err := store.withLock(ctx, func() error {
		if _, err := os.Stat(path); err == nil {
			return nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("stat registry: %w", err)
		}
		if err := store.save(nil); err != nil {
			return err
		}
		created = true
		return nil
	})
	return created, err
}

// Path returns the registry file location.
func (s *JSONStore) Path() string {
	return s.path
}

// Tracking reports whether the registry file exists.
func (s *JSONStore) Tracking() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

func (s *JSONStore) Reserve(ctx context.Context, req Request) (Result, error) {
	if err := validateRequest(req); err != nil {
		return Result{}, err
	}
	if !s.Tracking() {
		s.logger.Debug("registry file absent; reservation not tracked",
			logging.String("path", s.path),
			logging.Int("port", req.Port))
		return Result{Granted: true, Holder: req.Name}, nil
	}

	var result Result
	err := s.withLock(ctx, func() error {
		entries, err := s.load()
		if err != nil {
			return err
		}
		held, conflict := decide(entries, req)
		if conflict != nil {
			return &ConflictError{Port: req.Port, Holder: conflict.Name, StoragePath: conflict.StoragePath}
		}
		result = Result{Granted: true, AlreadyHeld: held, Tracked: true, Holder: req.Name}
		if held {
			return nil
		}
		entries = append(entries, newEntry(req, s.now()))
		return s.save(entries)
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

func (s *JSONStore) Release(ctx context.Context, name, storagePath string, port int) (bool, error) {
	if !s.Tracking() {
		return false, nil
	}
	var removed bool
	err := s.withLock(ctx, func() error {
		entries, err := s.load()
		if err != nil {
			return err
		}
		kept := entries[:0]
		for _, entry := range entries {
			if entry.Port == port && entry.sameOwner(name, storagePath) {
				removed = true
				continue
			}
			kept = append(kept, entry)
		}
		if !removed {
			return nil
		}
		return s.save(kept)
	})
	if err != nil {
		return false, err
	}
	if removed {
		s.logger.Info("port released",
			logging.String("name", name),
			logging.Int("port", port))
	}
	return removed, nil
}

func (s *JSONStore) List(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !s.Tracking() {
		return nil, nil
	}
	return s.load()
}

func (s *JSONStore) Close() error {
	return nil
}

// withLock runs fn while holding the exclusive registry lock. Each call opens
// its own lock handle so goroutines in one process exclude each other too.
func (s *JSONStore) withLock(ctx context.Context, fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(s.lockPath), 0o755); err != nil {
		return fmt.Errorf("create registry directory: %w", err)
	}
	lock := flock.New(s.lockPath)
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("acquire registry lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("acquire registry lock: %s busy", s.lockPath)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logging.WarnWithContext(s.logger, "failed to release registry lock", "registry_unlock_failed",
				logging.String("lock_path", s.lockPath),
				logging.String(logging.FieldImpact, "other sessions wait until this process exits"),
				logging.Error(err))
		}
	}()
	return fn()
}

func (s *JSONStore) load() ([]Entry, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read registry: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse registry %s: %w", s.path, err)
	}
	return entries, nil
}

func (s *JSONStore) save(entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal registry: %w", err)
	}
	data = append(data, '\n')
	if err := fileutil.WriteFileAtomic(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write registry: %w", err)
	}
	return nil
}
