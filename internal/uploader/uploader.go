// Package uploader writes vector points to a store in fixed-size batches.
package uploader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docingest/internal/document"
)

// ErrInvalidConfig indicates invalid configuration.
var ErrInvalidConfig = errors.New("invalid uploader configuration")

// Defaults.
const (
	DefaultBatchSize      = 100
	DefaultMaxRetries     = 3
	DefaultInitialBackoff = time.Second
	DefaultMaxBackoff     = 10 * time.Second
)

// Upserter is the store capability the uploader needs.
type Upserter interface {
	Upsert(ctx context.Context, collection string, points []document.VectorPoint) error
}

// Config controls batching and retries.
type Config struct {
	BatchSize int
	// MaxRetries is the number of attempts after the first, per batch.
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultConfig returns the standard batching and retry settings.
func DefaultConfig() Config {
	return Config{
		BatchSize:      DefaultBatchSize,
		MaxRetries:     DefaultMaxRetries,
		InitialBackoff: DefaultInitialBackoff,
		MaxBackoff:     DefaultMaxBackoff,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: batch size must be positive, got %d", ErrInvalidConfig, c.BatchSize)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries must not be negative", ErrInvalidConfig)
	}
	if c.InitialBackoff < 0 || c.MaxBackoff < 0 {
		return fmt.Errorf("%w: backoff must not be negative", ErrInvalidConfig)
	}
	if c.MaxBackoff < c.InitialBackoff {
		return fmt.Errorf("%w: max backoff %s is below initial backoff %s", ErrInvalidConfig, c.MaxBackoff, c.InitialBackoff)
	}
	return nil
}

// SleepFunc pauses for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Option configures an Uploader.
type Option func(*Uploader)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(u *Uploader) {
		if l != nil {
			u.logger = l
		}
	}
}

// WithSleep replaces the pause between attempts.
func WithSleep(fn SleepFunc) Option {
	return func(u *Uploader) {
		if fn != nil {
			u.sleep = fn
		}
	}
}

// Uploader pushes points into one collection.
type Uploader struct {
	store      Upserter
	collection string
	cfg        Config
	logger     *zap.Logger
	sleep      SleepFunc
}

// New creates an Uploader for collection.
func New(store Upserter, collection string, cfg Config, opts ...Option) (*Uploader, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidConfig)
	}
	if collection == "" {
		return nil, fmt.Errorf("%w: collection is required", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	u := &Uploader{
		store:      store,
		collection: collection,
		cfg:        cfg,
		logger:     zap.NewNop(),
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u, nil
}

// Collection returns the target collection.
func (u *Uploader) Collection() string {
	return u.collection
}

// BatchOutcome records what happened to one batch.
type BatchOutcome struct {
	// Index is the batch's position, starting at 0.
	Index    int
	Size     int
	Attempts int
	Err      error
}

// UploadResult summarizes an UploadAll call.
type UploadResult struct {
	TotalPoints    int
	UploadedPoints int
	FailedBatches  int
	Batches        []BatchOutcome
}

// SuccessRate is the uploaded share of all points as a percentage, or 0 when
// there were no points.
func (r *UploadResult) SuccessRate() float64 {
	if r.TotalPoints == 0 {
		return 0
	}
	return float64(r.UploadedPoints) / float64(r.TotalPoints) * 100
}

// Errors returns the errors of the failed batches in order.
func (r *UploadResult) Errors() []error {
	var errs []error
	for _, b := range r.Batches {
		if b.Err != nil {
			errs = append(errs, b.Err)
		}
	}
	return errs
}

// UploadBatch upserts points as one request, retrying with exponential
// backoff. An empty batch returns 0 without touching the store.
func (u *Uploader) UploadBatch(ctx context.Context, points []document.VectorPoint) (int, error) {
	n, _, err := u.uploadBatch(ctx, points)
	return n, err
}

func (u *Uploader) uploadBatch(ctx context.Context, points []document.VectorPoint) (int, int, error) {
	if len(points) == 0 {
		return 0, 0, nil
	}

	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= u.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := u.backoff(attempt)
			u.logger.Warn("retrying batch upload",
				zap.String("collection", u.collection),
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", delay),
				zap.Error(lastErr))
			if err := u.sleep(ctx, delay); err != nil {
				return 0, attempts, err
			}
		}
		attempts++

		err := u.store.Upsert(ctx, u.collection, points)
		if err == nil {
			return len(points), attempts, nil
		}
		lastErr = err
	}
	return 0, attempts, fmt.Errorf("uploading %d points after %d attempts: %w", len(points), attempts, lastErr)
}

// backoff returns the pause before the given retry (1-based): the initial
// backoff doubled per earlier retry, capped at MaxBackoff.
func (u *Uploader) backoff(retry int) time.Duration {
	d := u.cfg.InitialBackoff
	for i := 1; i < retry; i++ {
		d *= 2
		if d >= u.cfg.MaxBackoff {
			return u.cfg.MaxBackoff
		}
	}
	return min(d, u.cfg.MaxBackoff)
}

// UploadAll splits points into ordered batches of BatchSize and uploads each.
// A batch that exhausts its retries is counted and the next batch proceeds.
// When ctx ends, the remaining batches are recorded as failed with the
// context error.
func (u *Uploader) UploadAll(ctx context.Context, points []document.VectorPoint) *UploadResult {
	res := &UploadResult{TotalPoints: len(points)}

	for i, start := 0, 0; start < len(points); i, start = i+1, start+u.cfg.BatchSize {
		end := min(start+u.cfg.BatchSize, len(points))
		batch := points[start:end]

		outcome := BatchOutcome{Index: i, Size: len(batch)}
		if err := ctx.Err(); err != nil {
			outcome.Err = err
		} else {
			n, attempts, err := u.uploadBatch(ctx, batch)
			outcome.Attempts = attempts
			outcome.Err = err
			res.UploadedPoints += n
		}

		if outcome.Err != nil {
			res.FailedBatches++
			u.logger.Error("batch upload failed",
				zap.String("collection", u.collection),
				zap.Int("batch", i),
				zap.Int("size", len(batch)),
				zap.Error(outcome.Err))
		}
		res.Batches = append(res.Batches, outcome)
	}

	u.logger.Info("upload finished",
		zap.String("collection", u.collection),
		zap.Int("total_points", res.TotalPoints),
		zap.Int("uploaded_points", res.UploadedPoints),
		zap.Int("failed_batches", res.FailedBatches))
	return res
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
