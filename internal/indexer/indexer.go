// Package indexer manages a collection built by the ingestion pipeline:
// clearing it, rebuilding it from a directory, checking its health, and
// applying incremental updates tracked by an explicit FileState.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docingest/internal/logging"
	"github.com/fyrsmithlabs/docingest/internal/pipeline"
	"github.com/fyrsmithlabs/docingest/internal/vectorstore"
)

const instrumentationName = "github.com/fyrsmithlabs/docingest/internal/indexer"

var (
	// ErrInvalidConfig indicates a bad collection name or vector size.
	ErrInvalidConfig = errors.New("invalid indexer configuration")

	// ErrInvalidState indicates a state file that cannot be used.
	ErrInvalidState = errors.New("invalid index state")

	// ErrStateMismatch indicates a state that tracks a different directory.
	ErrStateMismatch = errors.New("state tracks a different directory")
)

// Ingestor is the pipeline surface the manager drives.
type Ingestor interface {
	IngestDirectory(ctx context.Context, dir string) (*pipeline.IngestionResult, error)
	IngestFiles(ctx context.Context, paths []string) (*pipeline.IngestionResult, error)
	// CollectFiles lists the files IngestDirectory would ingest.
	CollectFiles(ctx context.Context, dir string) ([]string, error)
}

// Store is the collection management surface the manager needs.
type Store interface {
	EnsureCollection(ctx context.Context, collection string, vectorSize int) error
	CollectionExists(ctx context.Context, collection string) (bool, error)
	GetCollectionInfo(ctx context.Context, collection string) (*vectorstore.CollectionInfo, error)
	DeleteCollection(ctx context.Context, collection string) error
	DeleteBySource(ctx context.Context, collection, source string) error
}

// Config names the managed collection.
type Config struct {
	Collection string
	VectorSize int
}

// Validate checks the collection name and vector size.
func (c Config) Validate() error {
	if err := vectorstore.ValidateCollectionName(c.Collection); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive, got %d", ErrInvalidConfig, c.VectorSize)
	}
	return nil
}

// Manager performs index-level operations on one collection.
type Manager struct {
	ingestor Ingestor
	store    Store
	cfg      Config
	logger   *logging.Logger
	tracer   trace.Tracer
}

// New creates a Manager. A nil logger discards output.
func New(ingestor Ingestor, store Store, cfg Config, logger *logging.Logger) (*Manager, error) {
	if ingestor == nil || store == nil {
		return nil, fmt.Errorf("%w: ingestor and store are required", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{
		ingestor: ingestor,
		store:    store,
		cfg:      cfg,
		logger:   logger.Named("indexer"),
		tracer:   otel.Tracer(instrumentationName),
	}, nil
}

func (m *Manager) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("collection", m.cfg.Collection))
	ctx, span := m.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	return logging.WithCollection(ctx, m.cfg.Collection), span
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// Clear deletes the collection, if it exists, and creates it empty.
func (m *Manager) Clear(ctx context.Context) error {
	ctx, span := m.start(ctx, "indexer.Clear")
	defer span.End()

	exists, err := m.store.CollectionExists(ctx, m.cfg.Collection)
	if err != nil {
		return fail(span, fmt.Errorf("checking collection: %w", err))
	}
	if exists {
		if err := m.store.DeleteCollection(ctx, m.cfg.Collection); err != nil {
			return fail(span, fmt.Errorf("deleting collection: %w", err))
		}
		m.logger.Info(ctx, "deleted collection")
	}
	if err := m.store.EnsureCollection(ctx, m.cfg.Collection, m.cfg.VectorSize); err != nil {
		return fail(span, fmt.Errorf("creating collection: %w", err))
	}
	m.logger.Info(ctx, "collection cleared", zap.Int("vector_size", m.cfg.VectorSize))
	return nil
}

// Reindex clears the collection and ingests dir. dir is checked first so
// an unusable path leaves the collection untouched.
func (m *Manager) Reindex(ctx context.Context, dir string) (*pipeline.IngestionResult, error) {
	ctx, span := m.start(ctx, "indexer.Reindex", attribute.String("dir", dir))
	defer span.End()

	if err := checkDir(dir); err != nil {
		return nil, fail(span, err)
	}
	if err := m.Clear(ctx); err != nil {
		return nil, fail(span, err)
	}
	res, err := m.ingestor.IngestDirectory(ctx, dir)
	if err != nil {
		return nil, fail(span, err)
	}
	return res, nil
}

// Report is the outcome of Verify.
type Report struct {
	Collection         string
	Exists             bool
	PointCount         int
	VectorSize         int
	ExpectedVectorSize int
	Problems           []string
}

// Healthy reports whether the collection exists, holds points and has the
// expected vector size.
func (r *Report) Healthy() bool {
	return len(r.Problems) == 0
}

// Verify inspects the collection. Store errors are returned; health
// problems are reported in the Report.
func (m *Manager) Verify(ctx context.Context) (*Report, error) {
	ctx, span := m.start(ctx, "indexer.Verify")
	defer span.End()

	r := &Report{Collection: m.cfg.Collection, ExpectedVectorSize: m.cfg.VectorSize}
	exists, err := m.store.CollectionExists(ctx, m.cfg.Collection)
	if err != nil {
		return nil, fail(span, fmt.Errorf("checking collection: %w", err))
	}
	r.Exists = exists
	if !exists {
		r.Problems = append(r.Problems, "collection does not exist")
		m.logger.Warn(ctx, "verification failed", zap.Strings("problems", r.Problems))
		return r, nil
	}

	info, err := m.store.GetCollectionInfo(ctx, m.cfg.Collection)
	if err != nil {
		return nil, fail(span, fmt.Errorf("reading collection info: %w", err))
	}
	r.PointCount = info.PointCount
	r.VectorSize = info.VectorSize

	if r.PointCount == 0 {
		r.Problems = append(r.Problems, "collection is empty")
	}
	if r.VectorSize != r.ExpectedVectorSize {
		r.Problems = append(r.Problems, fmt.Sprintf("vector size is %d, expected %d", r.VectorSize, r.ExpectedVectorSize))
	}

	span.SetAttributes(
		attribute.Int("points", r.PointCount),
		attribute.Bool("healthy", r.Healthy()),
	)
	if r.Healthy() {
		m.logger.Info(ctx, "collection verified", zap.Int("points", r.PointCount), zap.Int("vector_size", r.VectorSize))
	} else {
		m.logger.Warn(ctx, "verification failed", zap.Strings("problems", r.Problems))
	}
	return r, nil
}

// UpdateResult describes an incremental update.
type UpdateResult struct {
	Changes Changes
	// Ingestion is nil when no file needed ingesting.
	Ingestion *pipeline.IngestionResult
	// Advanced counts state entries recorded or forgotten.
	Advanced int
	Errors   []string
}

// Update brings the collection in line with dir using state, then advances
// state. Changed and removed files have their points deleted by source,
// then added and changed files are ingested. The state records each
// ingested file that did not fail, unless the run stopped early or dropped
// chunks or batches; files not recorded stay pending and are retried on the
// next update. Removed files are forgotten once their points are deleted.
// A file whose points cannot be deleted is neither ingested nor forgotten,
// so the next update sees the same change again.
//
// The caller persists state afterwards.
func (m *Manager) Update(ctx context.Context, dir string, state *FileState) (*UpdateResult, error) {
	if state == nil {
		return nil, fmt.Errorf("%w: state is required", ErrInvalidState)
	}
	ctx, span := m.start(ctx, "indexer.Update", attribute.String("dir", dir))
	defer span.End()

	if err := checkDir(dir); err != nil {
		return nil, fail(span, err)
	}
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fail(span, err)
	}
	if state.Root != "" && state.Root != root {
		return nil, fail(span, fmt.Errorf("%w: %s, not %s", ErrStateMismatch, state.Root, root))
	}

	if err := m.store.EnsureCollection(ctx, m.cfg.Collection, m.cfg.VectorSize); err != nil {
		return nil, fail(span, fmt.Errorf("ensuring collection: %w", err))
	}

	files, err := m.ingestor.CollectFiles(ctx, root)
	if err != nil {
		return nil, fail(span, fmt.Errorf("scanning %s: %w", dir, err))
	}
	snap, err := Snapshot(files)
	if err != nil {
		return nil, fail(span, err)
	}
	state.Root = root

	res := &UpdateResult{Changes: state.Diff(snap)}
	span.SetAttributes(
		attribute.Int("added", len(res.Changes.Added)),
		attribute.Int("modified", len(res.Changes.Modified)),
		attribute.Int("deleted", len(res.Changes.Deleted)),
	)
	m.logger.Info(ctx, "computed changes",
		zap.Int("added", len(res.Changes.Added)),
		zap.Int("modified", len(res.Changes.Modified)),
		zap.Int("deleted", len(res.Changes.Deleted)),
		zap.Int("unchanged", res.Changes.Unchanged))
	if res.Changes.Empty() {
		return res, nil
	}

	for _, path := range res.Changes.Deleted {
		deleted, err := m.deleteSource(ctx, path, res)
		if err != nil {
			return res, fail(span, err)
		}
		if !deleted {
			continue
		}
		state.Forget(path)
		res.Advanced++
	}

	// Points of added files are cleared too, in case an earlier incomplete
	// run uploaded some of them. A file whose old points could not be removed
	// is not ingested and stays pending.
	var pending []string
	for _, path := range slices.Concat(res.Changes.Added, res.Changes.Modified) {
		deleted, err := m.deleteSource(ctx, path, res)
		if err != nil {
			return res, fail(span, err)
		}
		if deleted {
			pending = append(pending, path)
		}
	}
	if len(pending) == 0 {
		return res, nil
	}

	ing, err := m.ingestor.IngestFiles(ctx, pending)
	if err != nil {
		return res, fail(span, fmt.Errorf("ingesting changed files: %w", err))
	}
	res.Ingestion = ing

	if !advancesState(ing) {
		m.logger.Warn(ctx, "ingestion incomplete, changed files stay pending",
			zap.Int("pending", len(pending)),
			zap.String("stopped_at", string(ing.StoppedAt)),
			zap.Int("chunks_failed", ing.ChunksFailed),
			zap.Int("failed_batches", ing.FailedBatches))
		return res, nil
	}
	for _, path := range pending {
		if slices.Contains(ing.FailedFiles, path) {
			continue
		}
		state.Record(path, snap[path])
		res.Advanced++
	}
	return res, nil
}

// advancesState reports whether an ingestion run can be credited per file.
// Skipped chunks and failed batches cannot be traced to a file, and a run
// stopped by a fatal phase left every file partly done.
func advancesState(ing *pipeline.IngestionResult) bool {
	return ing.StoppedAt == "" && ing.ChunksFailed == 0 && ing.FailedBatches == 0
}

// deleteSource removes the points of path and reports whether it did. A
// store failure is recorded on res; only context cancellation is returned.
func (m *Manager) deleteSource(ctx context.Context, path string, res *UpdateResult) (bool, error) {
	err := m.store.DeleteBySource(ctx, m.cfg.Collection, path)
	if err == nil {
		return true, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return false, ctxErr
	}
	res.Errors = append(res.Errors, fmt.Sprintf("deleting points of %s: %v", path, err))
	m.logger.Warn(logging.WithSource(ctx, path), "failed to delete points", zap.Error(err))
	return false, nil
}

func checkDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", pipeline.ErrPathNotFound, dir)
		}
		return fmt.Errorf("stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s", pipeline.ErrNotDirectory, dir)
	}
	return nil
}
