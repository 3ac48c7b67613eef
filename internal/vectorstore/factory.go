package vectorstore

import (
	"fmt"
	"strings"

	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docingest/internal/config"
)

// NewStore creates the store selected by cfg.VectorStore.Provider:
//   - "chromem" (default): embedded chromem-go, in memory unless a path is set
//   - "qdrant": external Qdrant server over gRPC
func NewStore(cfg *config.Config, logger *zap.Logger) (Store, error) {
	switch cfg.VectorStore.Provider {
	case "chromem", "":
		return NewChromemStore(ChromemConfig{
			Path:       cfg.VectorStore.Chromem.Path,
			Compress:   cfg.VectorStore.Chromem.Compress,
			VectorSize: cfg.Index.VectorSize,
		}, logger)

	case "qdrant":
		distance, err := ParseDistance(cfg.VectorStore.Qdrant.Distance)
		if err != nil {
			return nil, err
		}
		return NewQdrantStore(QdrantConfig{
			Host:         cfg.VectorStore.Qdrant.Host,
			Port:         cfg.VectorStore.Qdrant.Port,
			APIKey:       cfg.VectorStore.Qdrant.APIKey.Value(),
			UseTLS:       cfg.VectorStore.Qdrant.UseTLS,
			Distance:     distance,
			MaxRetries:   cfg.VectorStore.Qdrant.MaxRetries,
			RetryBackoff: cfg.VectorStore.Qdrant.Backoff.Duration(),
		}, logger)

	default:
		return nil, fmt.Errorf("%w: unsupported vectorstore provider: %s (supported: chromem, qdrant)", ErrInvalidConfig, cfg.VectorStore.Provider)
	}
}

// ParseDistance maps a distance name to the Qdrant metric. Empty means cosine.
func ParseDistance(name string) (qdrant.Distance, error) {
	switch strings.ToLower(name) {
	case "", "cosine":
		return qdrant.Distance_Cosine, nil
	case "euclid":
		return qdrant.Distance_Euclid, nil
	case "dot":
		return qdrant.Distance_Dot, nil
	default:
		return 0, fmt.Errorf("%w: unknown distance %q", ErrInvalidConfig, name)
	}
}
