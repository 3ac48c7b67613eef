// Package vectorstore persists vector points in a named collection.
package vectorstore

import (
	"context"
	"errors"

	"github.com/fyrsmithlabs/docingest/internal/document"
)

// Sentinel errors for vector store operations.
var (
	// ErrCollectionNotFound is returned when a collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyPoints indicates an empty or nil point batch.
	ErrEmptyPoints = errors.New("empty or nil points")

	// ErrConnectionFailed indicates gRPC connection issues.
	ErrConnectionFailed = errors.New("failed to connect to Qdrant")

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = errors.New("invalid collection name")

	// ErrDimensionMismatch is returned when a point's vector length differs
	// from the collection's.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// Payload keys written with every point.
const (
	PayloadText     = "text"
	PayloadSource   = "source"
	PayloadMetadata = "metadata"
)

// CollectionInfo contains metadata about a vector collection.
type CollectionInfo struct {
	// Name is the collection name.
	Name string `json:"name"`

	// PointCount is the number of vectors in the collection.
	PointCount int `json:"point_count"`

	// VectorSize is the dimensionality of vectors in this collection.
	VectorSize int `json:"vector_size"`
}

// Store is the vector database the uploader and index manager talk to.
//
// Implementations:
//   - ChromemStore: embedded chromem-go, in memory or persisted to a directory
//   - QdrantStore: external Qdrant over gRPC
type Store interface {
	// Upsert writes points into collection, replacing points with the same ID.
	Upsert(ctx context.Context, collection string, points []document.VectorPoint) error

	// EnsureCollection creates collection with the given vector size unless it
	// already exists.
	EnsureCollection(ctx context.Context, collection string, vectorSize int) error

	// CollectionExists reports whether collection exists.
	CollectionExists(ctx context.Context, collection string) (bool, error)

	// GetCollectionInfo returns ErrCollectionNotFound for a missing collection.
	GetCollectionInfo(ctx context.Context, collection string) (*CollectionInfo, error)

	// DeleteCollection removes collection and all its points. Deleting a
	// missing collection is not an error.
	DeleteCollection(ctx context.Context, collection string) error

	// DeleteBySource removes every point whose payload source equals source.
	DeleteBySource(ctx context.Context, collection, source string) error

	// Close releases the store's resources.
	Close() error
}
