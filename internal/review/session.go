package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"captionkit/internal/dataset"
	"captionkit/internal/logging"
	"captionkit/internal/portregistry"
	"captionkit/internal/services"
)

// DefaultName is the registry name used by review sessions.
const DefaultName = "review-ui"

// Options configures a review session.
type Options struct {
	// DatasetDir holds captions.json, captions.csv, and usually the images.
	DatasetDir string
	// CaptionsPath and CSVPath default to the standard names in DatasetDir.
	CaptionsPath string
	CSVPath      string
	Host         string
	Port         int
	Name         string
	// Concept is shown to reviewers only.
	Concept string
}

// Session is one running review server.
type Session struct {
	opts     Options
	registry portregistry.Store
	logger   *slog.Logger

	mu      sync.Mutex
	records []dataset.Record

	// lifecycle guards the fields below; Start and Stop may race with
	// signal-driven shutdown.
	lifecycle sync.Mutex
	server    *http.Server
	listener  net.Listener
	reserved  bool
	port      int
}

// NewSession loads the batch described by opts.
func NewSession(opts Options, registry portregistry.Store, logger *slog.Logger) (*Session, error) {
	dir, err := filepath.Abs(strings.TrimSpace(opts.DatasetDir))
	if err != nil {
		return nil, services.Wrap(services.ErrInputNotFound, "review", "load", "resolve dataset dir", err)
	}
	opts.DatasetDir = dir
	if opts.CaptionsPath == "" {
		opts.CaptionsPath = filepath.Join(dir, dataset.CaptionsJSONName)
	}
	if opts.CSVPath == "" {
		opts.CSVPath = filepath.Join(dir, dataset.CaptionsCSVName)
	}
	if opts.Name == "" {
		opts.Name = DefaultName
	}
	if opts.Host == "" {
		opts.Host = "127.0.0.1"
	}

	records, err := dataset.LoadRecords(opts.CaptionsPath)
	if err != nil {
		return nil, services.Wrap(services.ErrInputNotFound, "review", "load", opts.CaptionsPath, err)
	}

	return &Session{
		opts:     opts,
		registry: registry,
		logger:   logging.NewComponentLogger(logger, "review"),
		records:  records,
	}, nil
}

// Start claims the port and begins serving. A port held by another session
// aborts the launch with an error wrapping ErrRegistryConflict.
func (s *Session) Start(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if s.server != nil {
		return errors.New("review session already started")
	}

	var listener net.Listener
	port := s.opts.Port
	if port == 0 {
		// Ephemeral port: the registry can only record it once bound.
		var err error
		listener, err = net.Listen("tcp", net.JoinHostPort(s.opts.Host, "0"))
		if err != nil {
			return fmt.Errorf("review listen: %w", err)
		}
		port = listener.Addr().(*net.TCPAddr).Port
	}

	if err := s.reserve(ctx, port); err != nil {
		if listener != nil {
			_ = listener.Close()
		}
		return err
	}

	if listener == nil {
		var err error
		listener, err = net.Listen("tcp", net.JoinHostPort(s.opts.Host, strconv.Itoa(port)))
		if err != nil {
			s.release()
			return fmt.Errorf("review listen: %w", err)
		}
	}
	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.server = server
	s.listener = listener
	s.port = port

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("review server error", logging.Error(err))
		}
	}()

	s.logger.Info("review session listening",
		logging.String("address", listener.Addr().String()),
		logging.String("dataset", s.opts.DatasetDir),
		logging.Int("record_count", s.total()))
	return nil
}

// Run starts the session and blocks until ctx is done, then stops it.
func (s *Session) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return nil
}

// Stop shuts the server down and releases the port reservation.
func (s *Session) Stop() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
		s.server = nil
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
	s.release()
}

// Addr returns the bound address, or "" before Start.
func (s *Session) Addr() string {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// URL returns the base URL of the running session.
func (s *Session) URL() string {
	if addr := s.Addr(); addr != "" {
		return "http://" + addr
	}
	return ""
}

func (s *Session) reserve(ctx context.Context, port int) error {
	if s.registry == nil {
		return nil
	}
	result, err := s.registry.Reserve(ctx, portregistry.Request{
		Name:        s.opts.Name,
		Port:        port,
		StoragePath: s.opts.DatasetDir,
		Meta:        portregistry.Meta{Kind: "review", ImageRef: "captionkit"},
	})
	if err != nil {
		var conflict *portregistry.ConflictError
		if errors.As(err, &conflict) {
			logging.ErrorWithContext(s.logger, "review port already reserved", "registry_conflict",
				logging.Int("port", conflict.Port),
				logging.String("holder", conflict.Holder),
				logging.String("holder_storage", conflict.StoragePath),
				logging.String(logging.FieldErrorHint, "stop the other session or pick another --port"))
		}
		return err
	}
	s.reserved = result.Tracked && !result.AlreadyHeld
	s.port = port
	if !result.Tracked {
		s.logger.Debug("port registry disabled; reservation not recorded", logging.Int("port", port))
	}
	return nil
}

func (s *Session) release() {
	if !s.reserved || s.registry == nil {
		return
	}
	s.reserved = false
	if _, err := s.registry.Release(context.Background(), s.opts.Name, s.opts.DatasetDir, s.port); err != nil {
		logging.WarnWithContext(s.logger, "failed to release review port", "registry_release_failed",
			logging.Int("port", s.port),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run captionkit ports release"),
			logging.String(logging.FieldImpact, "the port stays reserved until released manually"))
	}
}

func (s *Session) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
