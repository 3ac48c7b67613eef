// Package splitter turns loaded documents into bounded chunks.
//
// Two strategies are provided: a sentence-boundary splitter tuned for
// Chinese text and a recursive character splitter for everything else. The
// strategy for a batch of documents is chosen from a Table keyed by the
// detected language Profile.
package splitter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docingest/internal/document"
)

var (
	// ErrInvalidConfig indicates a chunk size or overlap that cannot work.
	ErrInvalidConfig = errors.New("invalid splitter configuration")

	// ErrInvalidInput indicates text that cannot be split, such as empty text.
	ErrInvalidInput = errors.New("invalid input")
)

// Splitter splits a block of text into ordered chunks.
type Splitter interface {
	// Name identifies the strategy. It is stored on every chunk as the
	// "splitter" metadata value.
	Name() string

	// SplitText returns the chunks of text. Empty text is ErrInvalidInput.
	SplitText(text string) ([]string, error)
}

// Config holds the parameters shared by every splitter strategy.
type Config struct {
	ChunkSize               int  `koanf:"chunk_size"`
	ChunkOverlap            int  `koanf:"chunk_overlap"`
	RespectSentenceBoundary bool `koanf:"respect_sentence_boundary"`
}

// Validate checks ChunkSize > 0 and 0 <= ChunkOverlap < ChunkSize.
func (c Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk_size must be positive, got %d", ErrInvalidConfig, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap must be in [0, %d), got %d",
			ErrInvalidConfig, c.ChunkSize, c.ChunkOverlap)
	}
	return nil
}

// Failure records a document the batch variant had to skip.
type Failure struct {
	Source string
	Err    error
}

// Batch is the outcome of splitting a sequence of documents.
type Batch struct {
	Chunks   []document.Chunk
	Failures []Failure
}

// SplitDocuments applies s to every document. Each chunk carries a copy of
// its document's metadata plus chunk_index, counted per document, and the
// splitter name. A document that fails to split is logged and skipped.
//
// The only error returned is the context's.
func SplitDocuments(ctx context.Context, s Splitter, docs []document.Document, logger *zap.Logger) (*Batch, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	batch := &Batch{}
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return batch, err
		}

		parts, err := s.SplitText(doc.Text)
		if err != nil {
			logger.Warn("skipping document that failed to split",
				zap.String("source", doc.Source()),
				zap.String("splitter", s.Name()),
				zap.Error(err))
			batch.Failures = append(batch.Failures, Failure{Source: doc.Source(), Err: err})
			continue
		}

		for i, part := range parts {
			batch.Chunks = append(batch.Chunks, document.NewChunk(doc, part, i, s.Name()))
		}
	}

	logger.Debug("split documents",
		zap.String("splitter", s.Name()),
		zap.Int("documents", len(docs)),
		zap.Int("chunks", len(batch.Chunks)),
		zap.Int("failed", len(batch.Failures)))
	return batch, nil
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
