package indexer_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/docingest/internal/document"
	"github.com/fyrsmithlabs/docingest/internal/indexer"
	"github.com/fyrsmithlabs/docingest/internal/pipeline"
	"github.com/fyrsmithlabs/docingest/internal/vectorstore"
)

const (
	testCollection = "docs"
	testDim        = 2
)

// fakeIngestor writes one point per file straight into the store.
type fakeIngestor struct {
	store      *vectorstore.ChromemStore
	dirs       []string
	batches    [][]string
	incomplete bool
	failing    map[string]bool
}

func (f *fakeIngestor) CollectFiles(ctx context.Context, dir string) ([]string, error) {
	return pipeline.WalkFiles(ctx, dir, []string{".md", ".txt"}, nil, nil)
}

func (f *fakeIngestor) IngestDirectory(ctx context.Context, dir string) (*pipeline.IngestionResult, error) {
	f.dirs = append(f.dirs, dir)
	files, err := f.CollectFiles(ctx, dir)
	if err != nil {
		return nil, err
	}
	return f.ingest(ctx, files)
}

func (f *fakeIngestor) IngestFiles(ctx context.Context, paths []string) (*pipeline.IngestionResult, error) {
	f.batches = append(f.batches, paths)
	return f.ingest(ctx, paths)
}

func (f *fakeIngestor) ingest(ctx context.Context, paths []string) (*pipeline.IngestionResult, error) {
	res := &pipeline.IngestionResult{}
	if f.incomplete {
		res.FailedFiles = paths
		res.Errors = []string{"embedding service unavailable"}
		res.StoppedAt = pipeline.PhaseVectorize
		return res, nil
	}
	for _, path := range paths {
		if f.failing[path] {
			res.FailedFiles = append(res.FailedFiles, path)
			res.Errors = append(res.Errors, path+": invalid file format")
			continue
		}
		if err := f.store.Upsert(ctx, testCollection, []document.VectorPoint{sourcePoint(path)}); err != nil {
			return nil, err
		}
		res.DocumentsLoaded++
		res.VectorsUploaded++
	}
	return res, nil
}

func sourcePoint(source string) document.VectorPoint {
	return document.VectorPoint{
		ID:     uuid.NewString(),
		Vector: []float32{1, 0},
		Payload: document.Payload{
			Text:     "text of " + source,
			Source:   source,
			Metadata: map[string]any{document.KeySource: source, document.KeyChunkIndex: 0},
		},
	}
}

type fixture struct {
	store    *vectorstore.ChromemStore
	ingestor *fakeIngestor
	manager  *indexer.Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ing := &fakeIngestor{store: store}
	m, err := indexer.New(ing, store, indexer.Config{Collection: testCollection, VectorSize: testDim}, nil)
	require.NoError(t, err)
	return &fixture{store: store, ingestor: ing, manager: m}
}

func (f *fixture) points(t *testing.T) int {
	t.Helper()
	info, err := f.store.GetCollectionInfo(context.Background(), testCollection)
	require.NoError(t, err)
	return info.PointCount
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     indexer.Config
		wantErr bool
	}{
		{"valid", indexer.Config{Collection: "documents", VectorSize: 512}, false},
		{"bad name", indexer.Config{Collection: "My Docs", VectorSize: 512}, true},
		{"empty name", indexer.Config{VectorSize: 512}, true},
		{"zero size", indexer.Config{Collection: "documents"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, indexer.ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := indexer.New(nil, nil, indexer.Config{Collection: "docs", VectorSize: 2}, nil)
	assert.ErrorIs(t, err, indexer.ErrInvalidConfig)
}

func TestClear(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Creates a missing collection.
	require.NoError(t, f.manager.Clear(ctx))
	assert.Equal(t, 0, f.points(t))

	require.NoError(t, f.store.Upsert(ctx, testCollection, []document.VectorPoint{sourcePoint("/d/a.txt")}))
	assert.Equal(t, 1, f.points(t))

	require.NoError(t, f.manager.Clear(ctx))
	assert.Equal(t, 0, f.points(t))
}

func TestReindex(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "alpha")
	writeFile(t, filepath.Join(dir, "b.md"), "# beta")

	require.NoError(t, f.manager.Clear(ctx))
	require.NoError(t, f.store.Upsert(ctx, testCollection, []document.VectorPoint{sourcePoint("/old/stale.txt")}))

	res, err := f.manager.Reindex(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 2, res.DocumentsLoaded)
	assert.Equal(t, []string{dir}, f.ingestor.dirs)
	assert.Equal(t, 2, f.points(t), "stale point should be gone")
}

func TestReindex_BadDirectoryKeepsCollection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.manager.Clear(ctx))
	require.NoError(t, f.store.Upsert(ctx, testCollection, []document.VectorPoint{sourcePoint("/d/a.txt")}))

	_, err := f.manager.Reindex(ctx, filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, pipeline.ErrPathNotFound)

	file := filepath.Join(t.TempDir(), "a.txt")
	writeFile(t, file, "x")
	_, err = f.manager.Reindex(ctx, file)
	assert.ErrorIs(t, err, pipeline.ErrNotDirectory)

	assert.Equal(t, 1, f.points(t))
	assert.Empty(t, f.ingestor.dirs)
}

func TestVerify(t *testing.T) {
	ctx := context.Background()

	t.Run("missing collection", func(t *testing.T) {
		f := newFixture(t)
		r, err := f.manager.Verify(ctx)
		require.NoError(t, err)
		assert.False(t, r.Exists)
		assert.False(t, r.Healthy())
		assert.Equal(t, []string{"collection does not exist"}, r.Problems)
	})

	t.Run("empty collection", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.manager.Clear(ctx))
		r, err := f.manager.Verify(ctx)
		require.NoError(t, err)
		assert.True(t, r.Exists)
		assert.False(t, r.Healthy())
		assert.Equal(t, []string{"collection is empty"}, r.Problems)
	})

	t.Run("healthy", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.manager.Clear(ctx))
		require.NoError(t, f.store.Upsert(ctx, testCollection, []document.VectorPoint{sourcePoint("/d/a.txt")}))
		r, err := f.manager.Verify(ctx)
		require.NoError(t, err)
		assert.True(t, r.Healthy())
		assert.Equal(t, 1, r.PointCount)
		assert.Equal(t, testDim, r.VectorSize)
	})

	t.Run("vector size mismatch", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.store.EnsureCollection(ctx, testCollection, testDim))
		require.NoError(t, f.store.Upsert(ctx, testCollection, []document.VectorPoint{sourcePoint("/d/a.txt")}))

		m, err := indexer.New(f.ingestor, f.store, indexer.Config{Collection: testCollection, VectorSize: 8}, nil)
		require.NoError(t, err)
		r, err := m.Verify(ctx)
		require.NoError(t, err)
		assert.False(t, r.Healthy())
		assert.Equal(t, []string{"vector size is 2, expected 8"}, r.Problems)
	})
}

func TestUpdate_Lifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "sub", "b.md")
	writeFile(t, a, "alpha")
	writeFile(t, b, "# beta")
	writeFile(t, filepath.Join(dir, "ignored.bin"), "binary")

	state := indexer.NewFileState()

	// First run indexes everything.
	res, err := f.manager.Update(ctx, dir, state)
	require.NoError(t, err)
	assert.Equal(t, []string{a, b}, res.Changes.Added)
	assert.Equal(t, 2, res.Advanced)
	require.NotNil(t, res.Ingestion)
	assert.Equal(t, dir, state.Root)
	assert.Len(t, state.Files, 2)
	assert.Equal(t, 2, f.points(t))

	// Nothing changed.
	res, err = f.manager.Update(ctx, dir, state)
	require.NoError(t, err)
	assert.True(t, res.Changes.Empty())
	assert.Equal(t, 2, res.Changes.Unchanged)
	assert.Nil(t, res.Ingestion)
	assert.Len(t, f.ingestor.batches, 1)

	// Modify a, remove b, add c.
	writeFile(t, a, "alpha, longer now")
	require.NoError(t, os.Remove(b))
	c := filepath.Join(dir, "c.txt")
	writeFile(t, c, "gamma")

	res, err = f.manager.Update(ctx, dir, state)
	require.NoError(t, err)
	assert.Equal(t, []string{c}, res.Changes.Added)
	assert.Equal(t, []string{a}, res.Changes.Modified)
	assert.Equal(t, []string{b}, res.Changes.Deleted)
	assert.Empty(t, res.Errors)
	assert.Equal(t, []string{c, a}, f.ingestor.batches[1])

	assert.Equal(t, 2, f.points(t), "a replaced, b removed, c added")
	assert.Contains(t, state.Files, a)
	assert.Contains(t, state.Files, c)
	assert.NotContains(t, state.Files, b)
}

func TestUpdate_ModifiedByTimeOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	writeFile(t, a, "alpha")

	state := indexer.NewFileState()
	_, err := f.manager.Update(ctx, dir, state)
	require.NoError(t, err)

	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(a, later, later))

	res, err := f.manager.Update(ctx, dir, state)
	require.NoError(t, err)
	assert.Equal(t, []string{a}, res.Changes.Modified)
	assert.Equal(t, 1, f.points(t))
}

func TestUpdate_IncompleteIngestionKeepsFilesPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	writeFile(t, a, "alpha")
	writeFile(t, b, "beta")

	state := indexer.NewFileState()
	_, err := f.manager.Update(ctx, dir, state)
	require.NoError(t, err)

	require.NoError(t, os.Remove(b))
	c := filepath.Join(dir, "c.txt")
	writeFile(t, c, "gamma")
	f.ingestor.incomplete = true

	res, err := f.manager.Update(ctx, dir, state)
	require.NoError(t, err)
	require.NotNil(t, res.Ingestion)
	assert.False(t, res.Ingestion.Complete())
	assert.Equal(t, 1, res.Advanced, "only the deletion is applied")
	assert.NotContains(t, state.Files, b)
	assert.NotContains(t, state.Files, c)

	// The next run retries c.
	f.ingestor.incomplete = false
	res, err = f.manager.Update(ctx, dir, state)
	require.NoError(t, err)
	assert.Equal(t, []string{c}, res.Changes.Added)
	assert.Contains(t, state.Files, c)
	assert.Equal(t, 2, f.points(t))
}

func TestUpdate_StateForAnotherDirectory(t *testing.T) {
	f := newFixture(t)
	state := indexer.NewFileState()
	state.Root = "/somewhere/else"

	_, err := f.manager.Update(context.Background(), t.TempDir(), state)
	assert.ErrorIs(t, err, indexer.ErrStateMismatch)
}

func TestUpdate_InvalidInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.manager.Update(ctx, t.TempDir(), nil)
	assert.ErrorIs(t, err, indexer.ErrInvalidState)

	_, err = f.manager.Update(ctx, filepath.Join(t.TempDir(), "missing"), indexer.NewFileState())
	assert.ErrorIs(t, err, pipeline.ErrPathNotFound)
}

func TestUpdate_FailedFileStaysPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	writeFile(t, a, "alpha")
	writeFile(t, b, "beta")
	f.ingestor.failing = map[string]bool{b: true}

	state := indexer.NewFileState()
	res, err := f.manager.Update(ctx, dir, state)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Advanced)
	assert.Contains(t, state.Files, a)
	assert.NotContains(t, state.Files, b)

	f.ingestor.failing = nil
	res, err = f.manager.Update(ctx, dir, state)
	require.NoError(t, err)
	assert.Equal(t, []string{b}, res.Changes.Added)
	assert.Equal(t, 1, res.Changes.Unchanged)
	assert.Contains(t, state.Files, b)
}

// failingStore fails DeleteBySource and delegates everything else.
type failingStore struct {
	*vectorstore.ChromemStore
}

func (failingStore) DeleteBySource(context.Context, string, string) error {
	return errors.New("store offline")
}

func TestUpdate_DeleteFailureIsRecorded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	writeFile(t, a, "alpha")

	m, err := indexer.New(f.ingestor, failingStore{f.store}, indexer.Config{Collection: testCollection, VectorSize: testDim}, nil)
	require.NoError(t, err)

	state := indexer.NewFileState()
	res, err := m.Update(ctx, dir, state)
	require.NoError(t, err)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "store offline")
	assert.Equal(t, 0, res.Advanced)
	assert.Nil(t, res.Ingestion)
	assert.Empty(t, state.Files)
	assert.Equal(t, 0, f.points(t))
}

func TestUpdate_DeleteFailureKeepsChangesPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	writeFile(t, a, "alpha")
	writeFile(t, b, "beta")

	state := indexer.NewFileState()
	_, err := f.manager.Update(ctx, dir, state)
	require.NoError(t, err)
	require.Equal(t, 2, f.points(t))
	before := state.Files[a]

	writeFile(t, a, "alpha, longer now")
	require.NoError(t, os.Remove(b))

	failing, err := indexer.New(f.ingestor, failingStore{f.store}, indexer.Config{Collection: testCollection, VectorSize: testDim}, nil)
	require.NoError(t, err)

	res, err := failing.Update(ctx, dir, state)
	require.NoError(t, err)
	assert.Equal(t, []string{a}, res.Changes.Modified)
	assert.Equal(t, []string{b}, res.Changes.Deleted)
	assert.Len(t, res.Errors, 2)
	assert.Equal(t, 0, res.Advanced)
	assert.Nil(t, res.Ingestion)
	assert.Len(t, f.ingestor.batches, 1, "a is not re-ingested over its old points")
	assert.Equal(t, before, state.Files[a])
	assert.Contains(t, state.Files, b)
	assert.Equal(t, 2, f.points(t))

	// A healthy store picks up the same changes.
	res, err = f.manager.Update(ctx, dir, state)
	require.NoError(t, err)
	assert.Equal(t, []string{a}, res.Changes.Modified)
	assert.Equal(t, []string{b}, res.Changes.Deleted)
	assert.Empty(t, res.Errors)
	assert.Equal(t, 2, res.Advanced)
	assert.Equal(t, 1, f.points(t))
	assert.NotContains(t, state.Files, b)
	assert.NotEqual(t, before, state.Files[a])
}
