package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 500, cfg.Splitter.ChunkSize)
	assert.Equal(t, 50, cfg.Splitter.ChunkOverlap)
	assert.True(t, cfg.Splitter.RespectSentenceBoundary)
	assert.True(t, cfg.Splitter.AutoDetect)
	assert.InDelta(t, 0.3, cfg.Splitter.ChineseThreshold, 1e-9)
	assert.Equal(t, "tei", cfg.Embeddings.Provider)
	assert.Equal(t, 3, cfg.Vectorizer.MaxRetries)
	assert.Equal(t, time.Second, cfg.Vectorizer.RetryDelay.Duration())
	assert.Equal(t, "chromem", cfg.VectorStore.Provider)
	assert.Equal(t, 100, cfg.Uploader.BatchSize)
	assert.Equal(t, 3, cfg.Uploader.MaxRetries)
	assert.Equal(t, time.Second, cfg.Uploader.InitialBackoff.Duration())
	assert.Equal(t, 10*time.Second, cfg.Uploader.MaxBackoff.Duration())
	assert.Equal(t, "documents", cfg.Index.Collection)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, "docingest.yaml", `
splitter:
  chunk_size: 300
  chunk_overlap: 30
  respect_sentence_boundary: false
embeddings:
  provider: openai
  api_key: sk-test
  model: text-embedding-3-small
vectorstore:
  provider: qdrant
  qdrant:
    host: qdrant.internal
    port: 6335
uploader:
  batch_size: 64
  initial_backoff: 500ms
loader:
  exclude: ["drafts/", "*.bak.md"]
index:
  collection: kb_zh
  vector_size: 1536
redaction:
  enabled: true
  allow_list: ["example"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 300, cfg.Splitter.ChunkSize)
	assert.Equal(t, 30, cfg.Splitter.ChunkOverlap)
	assert.False(t, cfg.Splitter.RespectSentenceBoundary)
	assert.Equal(t, "openai", cfg.Embeddings.Provider)
	assert.Equal(t, "sk-test", cfg.Embeddings.APIKey.Value())
	assert.Equal(t, "qdrant", cfg.VectorStore.Provider)
	assert.Equal(t, "qdrant.internal", cfg.VectorStore.Qdrant.Host)
	assert.Equal(t, 6335, cfg.VectorStore.Qdrant.Port)
	assert.Equal(t, 64, cfg.Uploader.BatchSize)
	assert.Equal(t, 500*time.Millisecond, cfg.Uploader.InitialBackoff.Duration())
	assert.Equal(t, "kb_zh", cfg.Index.Collection)
	assert.Equal(t, 1536, cfg.Index.VectorSize)
	assert.True(t, cfg.Redaction.Enabled)
	assert.Equal(t, []string{"example"}, cfg.Redaction.AllowList)
	assert.Equal(t, []string{"drafts/", "*.bak.md"}, cfg.Loader.Exclude)
	assert.Nil(t, cfg.Loader.IgnoreFiles)
}

func TestLoad_TOML(t *testing.T) {
	path := writeConfig(t, "docingest.toml", `
[splitter]
chunk_size = 200
chunk_overlap = 20

[vectorstore]
provider = "chromem"

[vectorstore.chromem]
path = "/tmp/docingest-store"
compress = true

[uploader]
max_backoff = "30s"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 200, cfg.Splitter.ChunkSize)
	assert.Equal(t, 20, cfg.Splitter.ChunkOverlap)
	assert.Equal(t, "/tmp/docingest-store", cfg.VectorStore.Chromem.Path)
	assert.True(t, cfg.VectorStore.Chromem.Compress)
	assert.Equal(t, 30*time.Second, cfg.Uploader.MaxBackoff.Duration())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "docingest.yaml", `
uploader:
  batch_size: 64
vectorstore:
  qdrant:
    host: from-file
`)
	t.Setenv("DOCINGEST_UPLOADER_BATCH_SIZE", "32")
	t.Setenv("DOCINGEST_VECTORSTORE_QDRANT_HOST", "from-env")
	t.Setenv("DOCINGEST_SPLITTER_CHUNK_SIZE", "400")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 32, cfg.Uploader.BatchSize)
	assert.Equal(t, "from-env", cfg.VectorStore.Qdrant.Host)
	assert.Equal(t, 400, cfg.Splitter.ChunkSize)
}

func TestLoad_DefaultFileInWorkingDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "docingest.yml"), []byte("index:\n  collection: local_docs\n"), 0o600))
	t.Chdir(dir)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "local_docs", cfg.Index.Collection)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		perm    os.FileMode
	}{
		{name: "unsupported extension", file: "config.ini", content: "x=1", perm: 0o600},
		{name: "world writable", file: "docingest.yaml", content: "index: {}", perm: 0o666},
		{name: "invalid yaml", file: "docingest.yaml", content: "splitter: [", perm: 0o600},
		{name: "overlap not below size", file: "docingest.yaml", content: "splitter:\n  chunk_size: 10\n  chunk_overlap: 10\n", perm: 0o600},
		{name: "unknown provider", file: "docingest.yaml", content: "vectorstore:\n  provider: milvus\n", perm: 0o600},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.file, tt.content)
			require.NoError(t, os.Chmod(path, tt.perm))

			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"DOCINGEST_UPLOADER_BATCH_SIZE":        "uploader.batch_size",
		"DOCINGEST_VECTORSTORE_PROVIDER":       "vectorstore.provider",
		"DOCINGEST_VECTORSTORE_QDRANT_USE_TLS": "vectorstore.qdrant.use_tls",
		"DOCINGEST_VECTORSTORE_CHROMEM_PATH":   "vectorstore.chromem.path",
		"DOCINGEST_SPLITTER_CHINESE_THRESHOLD": "splitter.chinese_threshold",
		"DOCINGEST_EMBEDDINGS_API_KEY":         "embeddings.api_key",
		"DOCINGEST_METRICS":                    "metrics",
	}
	for in, want := range tests {
		assert.Equal(t, want, envKey(in), in)
	}
}

func TestTOMLParser_RoundTrip(t *testing.T) {
	p := TOMLParser()
	m, err := p.Unmarshal([]byte("[index]\ncollection = \"docs\"\nvector_size = 384\n"))
	require.NoError(t, err)

	index, ok := m["index"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "docs", index["collection"])
	assert.EqualValues(t, 384, index["vector_size"])

	out, err := p.Marshal(m)
	require.NoError(t, err)
	assert.Contains(t, string(out), `collection = "docs"`)
}
