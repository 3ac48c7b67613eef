// Package vectorizer embeds chunks into vector points.
package vectorizer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docingest/internal/document"
)

var (
	// ErrEmptyInput is returned for an empty chunk list.
	ErrEmptyInput = errors.New("no chunks to vectorize")

	// ErrMalformedChunk is returned when a chunk has no text or no source.
	ErrMalformedChunk = errors.New("malformed chunk")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid vectorizer configuration")

	errDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Defaults.
const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = time.Second
)

// Embedder is the embedding capability the vectorizer needs.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// Config controls retries.
type Config struct {
	// MaxRetries is the number of attempts after the first.
	MaxRetries int
	// RetryDelay is the fixed pause between attempts.
	RetryDelay time.Duration
}

// Validate rejects negative values.
func (c Config) Validate() error {
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: max_retries must not be negative", ErrInvalidConfig)
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("%w: retry_delay must not be negative", ErrInvalidConfig)
	}
	return nil
}

// SleepFunc pauses for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Option configures a Vectorizer.
type Option func(*Vectorizer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(v *Vectorizer) {
		if l != nil {
			v.logger = l
		}
	}
}

// WithSleep replaces the pause between attempts.
func WithSleep(fn SleepFunc) Option {
	return func(v *Vectorizer) {
		if fn != nil {
			v.sleep = fn
		}
	}
}

// WithIDFunc replaces the point ID generator.
func WithIDFunc(fn func() string) Option {
	return func(v *Vectorizer) {
		if fn != nil {
			v.newID = fn
		}
	}
}

// Vectorizer embeds chunks one at a time with a bounded number of attempts.
type Vectorizer struct {
	embedder Embedder
	cfg      Config
	logger   *zap.Logger
	sleep    SleepFunc
	newID    func() string
}

// New creates a Vectorizer.
func New(embedder Embedder, cfg Config, opts ...Option) (*Vectorizer, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	v := &Vectorizer{
		embedder: embedder,
		cfg:      cfg,
		logger:   zap.NewNop(),
		sleep:    sleepContext,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Failure describes a chunk that could not be embedded.
type Failure struct {
	// Position is the chunk's position in the input.
	Position int
	Source   string
	// ChunkIndex is the chunk_index metadata.
	ChunkIndex int
	Attempts   int
	Err        error
}

func (f Failure) Error() string {
	return fmt.Sprintf("chunk %d of %s failed after %d attempts: %v", f.ChunkIndex, f.Source, f.Attempts, f.Err)
}

// Result holds the points produced and the chunks skipped.
type Result struct {
	Points   []document.VectorPoint
	Failures []Failure
}

// Vectorize embeds every chunk in order. A chunk that fails every attempt is
// recorded in Result.Failures and left out of Result.Points.
//
// It returns an error only for an empty or malformed input, or when ctx ends
// during a retry pause.
func (v *Vectorizer) Vectorize(ctx context.Context, chunks []document.Chunk) (*Result, error) {
	if len(chunks) == 0 {
		return nil, ErrEmptyInput
	}
	for i, c := range chunks {
		if isBlank(c.Text) {
			return nil, fmt.Errorf("%w: chunk %d has no text", ErrMalformedChunk, i)
		}
		if c.Source() == "" {
			return nil, fmt.Errorf("%w: chunk %d has no source", ErrMalformedChunk, i)
		}
	}

	res := &Result{Points: make([]document.VectorPoint, 0, len(chunks))}
	dim := 0
	for i, c := range chunks {
		vec, attempts, err := v.embedWithRetry(ctx, c.Text, dim)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, ctxErr
			}
			f := Failure{Position: i, Source: c.Source(), ChunkIndex: c.Index(), Attempts: attempts, Err: err}
			v.logger.Warn("skipping chunk after failed embedding attempts",
				zap.String("source", f.Source),
				zap.Int("chunk_index", f.ChunkIndex),
				zap.Int("attempts", attempts),
				zap.Error(err))
			res.Failures = append(res.Failures, f)
			continue
		}
		if dim == 0 {
			dim = len(vec)
		}

		res.Points = append(res.Points, document.VectorPoint{
			ID:     v.newID(),
			Vector: vec,
			Payload: document.Payload{
				Text:     c.Text,
				Source:   c.Source(),
				Metadata: document.CopyMetadata(c.Metadata),
			},
		})
	}

	v.logger.Info("vectorized chunks",
		zap.Int("chunks", len(chunks)),
		zap.Int("points", len(res.Points)),
		zap.Int("failed", len(res.Failures)))
	return res, nil
}

// embedWithRetry makes up to MaxRetries+1 attempts. A vector whose length
// differs from dim (when dim is known) counts as a failed attempt.
func (v *Vectorizer) embedWithRetry(ctx context.Context, text string, dim int) ([]float32, int, error) {
	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= v.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := v.sleep(ctx, v.cfg.RetryDelay); err != nil {
				return nil, attempts, err
			}
		}
		attempts++

		vec, err := v.embedOnce(ctx, text, dim)
		if err == nil {
			return vec, attempts, nil
		}
		lastErr = err
		v.logger.Debug("embedding attempt failed",
			zap.Int("attempt", attempts),
			zap.Int("max_attempts", v.cfg.MaxRetries+1),
			zap.Error(err))
	}
	return nil, attempts, lastErr
}

func (v *Vectorizer) embedOnce(ctx context.Context, text string, dim int) ([]float32, error) {
	vectors, err := v.embedder.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("embedder returned %d vectors", len(vectors))
	}
	if dim > 0 && len(vectors[0]) != dim {
		return nil, fmt.Errorf("%w: got %d, want %d", errDimensionMismatch, len(vectors[0]), dim)
	}
	return vectors[0], nil
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

func isBlank(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}
