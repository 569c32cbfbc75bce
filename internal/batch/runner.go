package batch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"captionkit/internal/caption"
	"captionkit/internal/config"
	"captionkit/internal/dataset"
	"captionkit/internal/logging"
	"captionkit/internal/services"
	"captionkit/internal/services/captioner"
	"captionkit/internal/validation"
)

// Captioner is the subset of the captioning client used by a run.
type Captioner interface {
	Caption(ctx context.Context, imagePath string) (string, error)
	WaitReady(ctx context.Context, attempts int, delay time.Duration) (captioner.HealthStatus, error)
}

// ProgressFunc is called after each image is captioned. done counts
// completed images, which may finish out of order when concurrency > 1.
type ProgressFunc func(done, total int, image string)

// Request describes one run.
type Request struct {
	ImageDir string
	// OutputDir defaults to ImageDir.
	OutputDir   string
	Concept     string
	Tagify      bool
	Overwrite   bool
	Instruction string
}

// Summary describes a completed run.
type Summary struct {
	RunID     string
	Records   []dataset.Record
	Issues    []validation.Issue
	OutputDir string
	Paths     dataset.Paths
	// IssuesPath is empty when the batch had no issues.
	IssuesPath string
	Duration   time.Duration
}

// Runner executes captioning runs.
type Runner struct {
	cfg       *config.Config
	captioner Captioner
	logger    *slog.Logger
	progress  ProgressFunc
	newRunID  func() string
}

// Option customizes a Runner.
type Option func(*Runner)

// WithProgress registers a progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(r *Runner) {
		r.progress = fn
	}
}

// WithRunIDGenerator overrides run ID generation (useful for tests).
func WithRunIDGenerator(fn func() string) Option {
	return func(r *Runner) {
		if fn != nil {
			r.newRunID = fn
		}
	}
}

// NewRunner constructs a Runner.
func NewRunner(cfg *config.Config, client Captioner, logger *slog.Logger, opts ...Option) *Runner {
	runner := &Runner{
		cfg:       cfg,
		captioner: client,
		logger:    logging.NewComponentLogger(logger, "batch"),
		newRunID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(runner)
	}
	return runner
}

// Run executes req end to end.
func (r *Runner) Run(ctx context.Context, req Request) (Summary, error) {
	start := time.Now()
	runID := r.newRunID()
	ctx = services.WithRunID(ctx, runID)

	req.Concept = strings.TrimSpace(req.Concept)
	if req.Concept == "" {
		return Summary{}, services.Wrap(services.ErrValidation, "batch", "prepare", "concept label is required", nil)
	}
	if strings.TrimSpace(req.OutputDir) == "" {
		req.OutputDir = req.ImageDir
	}

	images, err := r.prepare(ctx, req)
	if err != nil {
		return Summary{}, err
	}

	logger := logging.WithContext(ctx, r.logger)
	logger.Info("caption run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.String("image_dir", req.ImageDir),
		logging.String("output_dir", req.OutputDir),
		logging.String("concept", req.Concept),
		logging.Int("image_count", len(images)),
		logging.Bool("tagify", req.Tagify),
		logging.Int("concurrency", r.concurrency()))

	readyCtx := services.WithStage(ctx, "ready")
	if _, err := r.captioner.WaitReady(readyCtx, r.cfg.Captioner.ReadyAttempts, r.cfg.ReadyDelay()); err != nil {
		logging.ErrorWithContext(logging.WithContext(readyCtx, r.logger), "captioning service unavailable", "service_unavailable",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "start the captioning service or check captioner.base_url"))
		return Summary{}, err
	}

	raws, err := r.captionAll(services.WithStage(ctx, "caption"), images)
	if err != nil {
		return Summary{}, err
	}

	opts := caption.Options{Tagify: req.Tagify, Instruction: req.Instruction}
	records := make([]dataset.Record, len(images))
	for i, image := range images {
		records[i] = dataset.Record{
			Image:        image,
			RawCaption:   raws[i],
			FinalCaption: caption.Normalize(raws[i], req.Concept, opts),
		}
	}

	issues := validation.Validate(records, r.validationOptions())
	paths, err := dataset.WriteBatch(req.OutputDir, records, issues)
	if err != nil {
		return Summary{}, fmt.Errorf("write outputs to %s: %w", req.OutputDir, err)
	}

	summary := Summary{
		RunID:      runID,
		Records:    records,
		Issues:     issues,
		OutputDir:  req.OutputDir,
		Paths:      paths,
		IssuesPath: paths.IssuesCSV,
		Duration:   time.Since(start),
	}
	logger.Info("caption run completed",
		logging.String(logging.FieldEventType, "run_complete"),
		logging.Int("record_count", len(records)),
		logging.Int("issue_count", len(issues)),
		logging.String("captions_json", paths.CaptionsJSON),
		logging.Duration("run_duration", summary.Duration))
	if len(issues) > 0 {
		logging.WarnWithContext(logger, "caption batch has validation issues", "validation_issues",
			logging.Int("issue_count", len(issues)),
			logging.String("issues_csv", paths.IssuesCSV),
			logging.String(logging.FieldErrorHint, "review flagged captions before training"),
			logging.String(logging.FieldImpact, "outputs were written; flagged captions may hurt training"))
	}
	return summary, nil
}

func (r *Runner) prepare(ctx context.Context, req Request) ([]string, error) {
	info, err := os.Stat(req.ImageDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, services.Wrap(services.ErrInputNotFound, "batch", "prepare", fmt.Sprintf("image directory %s", req.ImageDir), err)
		}
		return nil, services.Wrap(services.ErrInputNotFound, "batch", "prepare", "stat image directory", err)
	}
	if !info.IsDir() {
		return nil, services.Wrap(services.ErrInputNotFound, "batch", "prepare", fmt.Sprintf("%s is not a directory", req.ImageDir), nil)
	}

	if !req.Overwrite {
		exists, err := dataset.OutputsExist(req.OutputDir)
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "batch", "prepare", "check outputs", err)
		}
		if exists {
			return nil, services.Wrap(services.ErrOutputExists, "batch", "prepare",
				fmt.Sprintf("%s already holds captions (use --overwrite)", req.OutputDir), nil)
		}
	}

	images, err := dataset.DiscoverImages(req.ImageDir)
	if err != nil {
		return nil, services.Wrap(services.ErrInputNotFound, "batch", "discover", req.ImageDir, err)
	}
	if len(images) == 0 {
		return nil, services.Wrap(services.ErrNoImages, "batch", "discover", req.ImageDir, nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return images, nil
}

func (r *Runner) captionAll(ctx context.Context, images []string) ([]string, error) {
	raws := make([]string, len(images))
	workers := r.concurrency()
	if workers > len(images) {
		workers = len(images)
	}

	if workers <= 1 {
		for i, image := range images {
			text, err := r.captionOne(ctx, image)
			if err != nil {
				return nil, err
			}
			raws[i] = text
			r.report(i+1, len(images), image)
		}
		return raws, nil
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(workers)
	var (
		completed  atomic.Int64
		progressMu sync.Mutex
	)
	for i, image := range images {
		if groupCtx.Err() != nil {
			break
		}
		group.Go(func() error {
			if groupCtx.Err() != nil {
				return groupCtx.Err()
			}
			text, err := r.captionOne(groupCtx, image)
			if err != nil {
				return err
			}
			raws[i] = text
			progressMu.Lock()
			r.report(int(completed.Add(1)), len(images), image)
			progressMu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return raws, nil
}

func (r *Runner) captionOne(ctx context.Context, image string) (string, error) {
	imageCtx := services.WithImage(ctx, filepath.Base(image))
	logger := logging.WithContext(imageCtx, r.logger)
	started := time.Now()
	text, err := r.captioner.Caption(imageCtx, image)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			logging.ErrorWithContext(logger, "caption request failed", "caption_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the captioning service logs; the run was aborted"))
		}
		return "", err
	}
	logger.Debug("image captioned",
		logging.Int("caption_length", len(text)),
		logging.Duration("request_duration", time.Since(started)))
	return text, nil
}

func (r *Runner) report(done, total int, image string) {
	if r.progress != nil {
		r.progress(done, total, image)
	}
}

func (r *Runner) concurrency() int {
	if r.cfg == nil || r.cfg.Captioner.Concurrency < 1 {
		return 1
	}
	return r.cfg.Captioner.Concurrency
}

func (r *Runner) validationOptions() validation.Options {
	return validation.Options{
		MinTags:            r.cfg.Validation.MinTags,
		MaxTags:            r.cfg.Validation.MaxTags,
		DuplicateThreshold: r.cfg.Validation.DuplicateThreshold,
	}
}
