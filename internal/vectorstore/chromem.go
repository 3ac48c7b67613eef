package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docingest/internal/document"
)

var chromemTracer = otel.Tracer("docingest.vectorstore.chromem")

// errNoEmbedding is returned if chromem ever asks the store to embed text.
// Points always arrive with their vectors.
var errNoEmbedding = errors.New("chromem store does not embed text: points must carry vectors")

// ChromemConfig holds configuration for the chromem-go embedded database.
type ChromemConfig struct {
	// Path is the directory for persistent storage. Empty keeps everything
	// in memory.
	Path string

	// Compress enables gzip compression for stored data.
	Compress bool

	// VectorSize is reported for collections whose size has not been seen
	// by this process, e.g. after reopening a persisted database.
	VectorSize int

	// Concurrency bounds parallel document inserts.
	// Default: runtime.NumCPU()
	Concurrency int
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Concurrency == 0 {
		c.Concurrency = runtime.NumCPU()
	}
}

// Validate validates the configuration.
func (c *ChromemConfig) Validate() error {
	if c.VectorSize < 0 {
		return fmt.Errorf("%w: vector size must not be negative", ErrInvalidConfig)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("%w: concurrency must be at least 1", ErrInvalidConfig)
	}
	return nil
}

// ChromemStore implements Store using chromem-go.
//
// Pure Go with no external service, suitable for local runs and tests.
type ChromemStore struct {
	db     *chromem.DB
	config ChromemConfig
	logger *zap.Logger

	mu    sync.RWMutex
	sizes map[string]int
}

// NewChromemStore opens a chromem database. An empty Path gives an in-memory
// store.
func NewChromemStore(config ChromemConfig, logger *zap.Logger) (*ChromemStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	var db *chromem.DB
	if config.Path == "" {
		db = chromem.NewDB()
	} else {
		path, err := expandChromemPath(config.Path)
		if err != nil {
			return nil, fmt.Errorf("expanding path: %w", err)
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", path, err)
		}
		db, err = chromem.NewPersistentDB(path, config.Compress)
		if err != nil {
			return nil, fmt.Errorf("creating chromem DB: %w", err)
		}
		config.Path = path
	}

	logger.Info("chromem store initialized",
		zap.String("path", config.Path),
		zap.Bool("persistent", config.Path != ""),
		zap.Bool("compress", config.Compress))

	return &ChromemStore{
		db:     db,
		config: config,
		logger: logger,
		sizes:  make(map[string]int),
	}, nil
}

// expandChromemPath expands ~ to home directory.
func expandChromemPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

func rejectEmbedding(context.Context, string) ([]float32, error) {
	return nil, errNoEmbedding
}

// collection must be passed an embedding function; chromem falls back to its
// OpenAI default for persisted collections otherwise.
func (s *ChromemStore) collection(name string) *chromem.Collection {
	return s.db.GetCollection(name, rejectEmbedding)
}

func (s *ChromemStore) vectorSize(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n, ok := s.sizes[name]; ok {
		return n
	}
	return s.config.VectorSize
}

func (s *ChromemStore) setVectorSize(name string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sizes[name] = n
}

// Upsert adds points to an existing collection. Points with a known ID are
// replaced.
func (s *ChromemStore) Upsert(ctx context.Context, collection string, points []document.VectorPoint) (err error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Upsert")
	defer span.End()
	defer observe(backendChromem, "upsert", time.Now(), &err)

	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Int("point_count", len(points)),
	)

	if err := ValidateCollectionName(collection); err != nil {
		return err
	}
	if len(points) == 0 {
		return ErrEmptyPoints
	}

	c := s.collection(collection)
	if c == nil {
		span.SetStatus(codes.Error, "collection not found")
		return ErrCollectionNotFound
	}

	want := s.vectorSize(collection)
	docs := make([]chromem.Document, len(points))
	for i, p := range points {
		if len(p.Vector) == 0 {
			return fmt.Errorf("%w: point %s has no vector", ErrDimensionMismatch, p.ID)
		}
		if want == 0 {
			want = len(p.Vector)
		}
		if len(p.Vector) != want {
			return fmt.Errorf("%w: point %s has %d dimensions, want %d", ErrDimensionMismatch, p.ID, len(p.Vector), want)
		}
		docs[i] = chromem.Document{
			ID:        p.ID,
			Metadata:  flattenMetadata(p.Payload),
			Embedding: slices.Clone(p.Vector),
			Content:   p.Payload.Text,
		}
	}

	if err := c.AddDocuments(ctx, docs, s.config.Concurrency); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("adding documents to %s: %w", collection, err)
	}
	s.setVectorSize(collection, want)

	pointsWritten.WithLabelValues(backendChromem).Add(float64(len(points)))
	span.SetStatus(codes.Ok, "success")

	s.logger.Debug("upserted points into chromem",
		zap.String("collection", collection),
		zap.Int("count", len(points)))
	return nil
}

// EnsureCollection creates the collection when missing.
func (s *ChromemStore) EnsureCollection(ctx context.Context, collection string, vectorSize int) (err error) {
	_, span := chromemTracer.Start(ctx, "ChromemStore.EnsureCollection")
	defer span.End()
	defer observe(backendChromem, "ensure_collection", time.Now(), &err)

	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Int("vector_size", vectorSize),
	)

	if err := ValidateCollectionName(collection); err != nil {
		return err
	}
	if vectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}

	if s.collection(collection) != nil {
		if have := s.vectorSize(collection); have != 0 && have != vectorSize {
			return fmt.Errorf("%w: collection %s has size %d, want %d", ErrDimensionMismatch, collection, have, vectorSize)
		}
		s.setVectorSize(collection, vectorSize)
		return nil
	}

	if _, err := s.db.CreateCollection(collection, nil, rejectEmbedding); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("creating collection %s: %w", collection, err)
	}
	s.setVectorSize(collection, vectorSize)

	s.logger.Info("created chromem collection",
		zap.String("collection", collection),
		zap.Int("vector_size", vectorSize))
	span.SetStatus(codes.Ok, "success")
	return nil
}

// CollectionExists checks if a collection exists.
func (s *ChromemStore) CollectionExists(ctx context.Context, collection string) (bool, error) {
	_, span := chromemTracer.Start(ctx, "ChromemStore.CollectionExists")
	defer span.End()

	span.SetAttributes(attribute.String("collection", collection))

	if err := ValidateCollectionName(collection); err != nil {
		return false, err
	}
	return s.collection(collection) != nil, nil
}

// GetCollectionInfo returns metadata about a collection.
func (s *ChromemStore) GetCollectionInfo(ctx context.Context, collection string) (*CollectionInfo, error) {
	_, span := chromemTracer.Start(ctx, "ChromemStore.GetCollectionInfo")
	defer span.End()

	span.SetAttributes(attribute.String("collection", collection))

	if err := ValidateCollectionName(collection); err != nil {
		return nil, err
	}

	c := s.collection(collection)
	if c == nil {
		span.SetStatus(codes.Error, "collection not found")
		return nil, ErrCollectionNotFound
	}

	info := &CollectionInfo{
		Name:       collection,
		PointCount: c.Count(),
		VectorSize: s.vectorSize(collection),
	}
	span.SetAttributes(attribute.Int("point_count", info.PointCount))
	span.SetStatus(codes.Ok, "success")
	return info, nil
}

// DeleteCollection deletes a collection and all its points.
func (s *ChromemStore) DeleteCollection(ctx context.Context, collection string) (err error) {
	_, span := chromemTracer.Start(ctx, "ChromemStore.DeleteCollection")
	defer span.End()
	defer observe(backendChromem, "delete_collection", time.Now(), &err)

	span.SetAttributes(attribute.String("collection", collection))

	if err := ValidateCollectionName(collection); err != nil {
		return err
	}

	if err := s.db.DeleteCollection(collection); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting collection %s: %w", collection, err)
	}

	s.mu.Lock()
	delete(s.sizes, collection)
	s.mu.Unlock()

	s.logger.Info("deleted chromem collection", zap.String("collection", collection))
	span.SetStatus(codes.Ok, "success")
	return nil
}

// DeleteBySource deletes points whose source metadata matches.
func (s *ChromemStore) DeleteBySource(ctx context.Context, collection, source string) (err error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.DeleteBySource")
	defer span.End()
	defer observe(backendChromem, "delete_by_source", time.Now(), &err)

	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.String("source", source),
	)

	if err := ValidateCollectionName(collection); err != nil {
		return err
	}
	if source == "" {
		return fmt.Errorf("%w: source is required", ErrInvalidConfig)
	}

	c := s.collection(collection)
	if c == nil {
		span.SetStatus(codes.Error, "collection not found")
		return ErrCollectionNotFound
	}

	if err := c.Delete(ctx, map[string]string{PayloadSource: source}, nil); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting points of %s from %s: %w", source, collection, err)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// Close is a no-op: chromem persists on every write.
func (s *ChromemStore) Close() error {
	s.logger.Debug("chromem store closed")
	return nil
}

var _ Store = (*ChromemStore)(nil)
