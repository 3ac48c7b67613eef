package vectorstore_test

import (
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docingest/internal/config"
	"github.com/fyrsmithlabs/docingest/internal/vectorstore"
)

func TestNewStore_Chromem(t *testing.T) {
	cfg := config.Default()
	cfg.VectorStore.Chromem.Path = ""

	store, err := vectorstore.NewStore(cfg, zap.NewNop())
	require.NoError(t, err)
	defer store.Close()

	_, ok := store.(*vectorstore.ChromemStore)
	assert.True(t, ok)
}

func TestNewStore_Unsupported(t *testing.T) {
	cfg := config.Default()
	cfg.VectorStore.Provider = "milvus"

	_, err := vectorstore.NewStore(cfg, zap.NewNop())
	assert.ErrorIs(t, err, vectorstore.ErrInvalidConfig)
}

func TestParseDistance(t *testing.T) {
	tests := []struct {
		in   string
		want qdrant.Distance
	}{
		{"", qdrant.Distance_Cosine},
		{"cosine", qdrant.Distance_Cosine},
		{"Euclid", qdrant.Distance_Euclid},
		{"dot", qdrant.Distance_Dot},
	}
	for _, tt := range tests {
		got, err := vectorstore.ParseDistance(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := vectorstore.ParseDistance("manhattan")
	assert.ErrorIs(t, err, vectorstore.ErrInvalidConfig)
}
