// Package pipeline turns files into vectors in a collection.
//
// A run has four phases: load, split, vectorize and upload. Loading is
// isolated per file, so one unreadable file is recorded and the run goes
// on. The later phases work on the whole batch, and a failure in one of them
// ends the run with the counts reached so far.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/fyrsmithlabs/docingest/internal/document"
	"github.com/fyrsmithlabs/docingest/internal/ignore"
	"github.com/fyrsmithlabs/docingest/internal/loader"
	"github.com/fyrsmithlabs/docingest/internal/logging"
	"github.com/fyrsmithlabs/docingest/internal/secrets"
	"github.com/fyrsmithlabs/docingest/internal/splitter"
	"github.com/fyrsmithlabs/docingest/internal/uploader"
	"github.com/fyrsmithlabs/docingest/internal/vectorizer"
)

const instrumentationName = "github.com/fyrsmithlabs/docingest/internal/pipeline"

var (
	// ErrPathNotFound indicates the file or directory does not exist.
	ErrPathNotFound = errors.New("path not found")

	// ErrNoLoader indicates no configured loader supports the file.
	ErrNoLoader = errors.New("no loader supports file")

	// ErrNotDirectory indicates a directory was expected.
	ErrNotDirectory = errors.New("not a directory")

	// ErrInvalidConfig indicates a missing collaborator or bad option.
	ErrInvalidConfig = errors.New("invalid pipeline configuration")

	// ErrNoChunks indicates the split phase produced nothing.
	ErrNoChunks = errors.New("no chunks produced")

	// ErrNoVectors indicates every chunk failed to embed.
	ErrNoVectors = errors.New("no vectors produced")

	// ErrNothingUploaded indicates every upload batch failed.
	ErrNothingUploaded = errors.New("no points uploaded")
)

// Vectorizer embeds chunks.
type Vectorizer interface {
	Vectorize(ctx context.Context, chunks []document.Chunk) (*vectorizer.Result, error)
}

// Uploader writes points in batches.
type Uploader interface {
	UploadAll(ctx context.Context, points []document.VectorPoint) *uploader.UploadResult
}

// Phase names a pipeline stage.
type Phase string

const (
	PhaseLoad      Phase = "load"
	PhaseSplit     Phase = "split"
	PhaseVectorize Phase = "vectorize"
	PhaseUpload    Phase = "upload"
)

// PhaseError is a failure that ended a run.
type PhaseError struct {
	Phase Phase
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s phase failed: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// IngestionResult summarizes a run.
type IngestionResult struct {
	// DocumentsLoaded counts files that loaded successfully.
	DocumentsLoaded int
	ChunksCreated   int
	VectorsUploaded int
	FailedFiles     []string
	Errors          []string

	// FilesSkipped counts files no loader supports.
	FilesSkipped int
	// ChunksFailed counts chunks the vectorizer gave up on.
	ChunksFailed  int
	FailedBatches int
	// Splitter is the name of the strategy used for the run.
	Splitter string
	// StoppedAt is the phase that ended the run early, or "" when every
	// phase completed.
	StoppedAt Phase
	Duration  time.Duration
}

// SuccessRate is loaded/(loaded+failed) as a percentage, or 0 when no file
// was attempted.
func (r *IngestionResult) SuccessRate() float64 {
	total := r.DocumentsLoaded + len(r.FailedFiles)
	if total == 0 {
		return 0
	}
	return float64(r.DocumentsLoaded) / float64(total) * 100
}

// Failed reports whether any file failed or any error was recorded.
func (r *IngestionResult) Failed() bool {
	return len(r.FailedFiles) > 0 || len(r.Errors) > 0
}

// Complete reports whether every phase ran and nothing was left out:
// no file failed, no chunk was skipped and no upload batch failed.
func (r *IngestionResult) Complete() bool {
	return r.StoppedAt == "" && len(r.FailedFiles) == 0 && r.ChunksFailed == 0 && r.FailedBatches == 0
}

func (r *IngestionResult) stop(err error) {
	var pe *PhaseError
	if errors.As(err, &pe) {
		r.StoppedAt = pe.Phase
	}
	r.addError("%v", err)
}

func (r *IngestionResult) addError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithChineseThreshold sets the Chinese ratio at or above which the Chinese
// splitter is chosen.
func WithChineseThreshold(t float64) Option {
	return func(p *Pipeline) { p.threshold = t }
}

// WithAutoDetectChinese turns language detection on or off. When off, the
// default splitter is always used.
func WithAutoDetectChinese(on bool) Option {
	return func(p *Pipeline) { p.autoDetect = on }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithRedactor masks credentials in chunk text before embedding. A nil
// redactor leaves text unchanged.
func WithRedactor(r *secrets.Redactor) Option {
	return func(p *Pipeline) { p.redactor = r }
}

// WithExclusions sets the ignore file names read from the root of an
// ingested directory and extra exclude patterns in the same syntax. Nil
// files keep ignore.DefaultFiles.
func WithExclusions(files, patterns []string) Option {
	return func(p *Pipeline) {
		if files != nil {
			p.ignoreFiles = files
		}
		p.exclude = patterns
	}
}

// WithTracer sets the tracer used for run and phase spans.
func WithTracer(t trace.Tracer) Option {
	return func(p *Pipeline) {
		if t != nil {
			p.tracer = t
		}
	}
}

// Pipeline ingests files. It is not safe for concurrent runs.
type Pipeline struct {
	loaders    []loader.Loader
	splitters  *splitter.Table
	vectorizer Vectorizer
	uploader   Uploader

	threshold  float64
	autoDetect bool
	redactor   *secrets.Redactor
	logger     *logging.Logger

	ignoreFiles []string
	exclude     []string

	tracer trace.Tracer
}

// New creates a Pipeline. Auto-detection is on with the default threshold.
func New(loaders []loader.Loader, splitters *splitter.Table, v Vectorizer, u Uploader, opts ...Option) (*Pipeline, error) {
	if len(loaders) == 0 {
		return nil, fmt.Errorf("%w: at least one loader is required", ErrInvalidConfig)
	}
	if splitters == nil || v == nil || u == nil {
		return nil, fmt.Errorf("%w: splitters, vectorizer and uploader are required", ErrInvalidConfig)
	}

	p := &Pipeline{
		loaders:    loaders,
		splitters:  splitters,
		vectorizer: v,
		uploader:   u,
		threshold:  splitter.DefaultChineseThreshold,
		autoDetect: true,
		logger:     logging.NewNop(),
		tracer:     otel.Tracer(instrumentationName),

		ignoreFiles: ignore.DefaultFiles,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.threshold < 0 || p.threshold > 1 {
		return nil, fmt.Errorf("%w: chinese threshold must be in [0, 1], got %v", ErrInvalidConfig, p.threshold)
	}
	if _, err := ignore.Load("", nil, p.exclude); err != nil {
		return nil, fmt.Errorf("%w: exclude patterns: %v", ErrInvalidConfig, err)
	}
	return p, nil
}

// Extensions returns the file extensions the configured loaders handle.
func (p *Pipeline) Extensions() []string {
	return loader.Extensions(p.loaders)
}
