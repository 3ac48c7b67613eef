package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/docingest/internal/ignore"
)

func touch(t *testing.T, root string, names ...string) {
	t.Helper()
	for _, name := range names {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	}
}

func TestWalkFiles(t *testing.T) {
	root := t.TempDir()
	touch(t, root,
		"b.txt",
		"a.MD",
		"notes/c.pdf",
		"notes/deep/d.txt",
		"image.png",
		".git/config.txt",
		".hidden/e.txt",
		"notes/.obsidian/f.md",
		".visible-file.txt",
	)

	files, err := WalkFiles(context.Background(), root, []string{".md", ".pdf", ".txt"}, nil, nil)
	require.NoError(t, err)

	var rel []string
	for _, f := range files {
		r, err := filepath.Rel(root, f)
		require.NoError(t, err)
		rel = append(rel, filepath.ToSlash(r))
	}
	assert.Equal(t, []string{
		".visible-file.txt",
		"a.MD",
		"b.txt",
		"notes/c.pdf",
		"notes/deep/d.txt",
	}, rel)
}

func TestWalkFiles_MissingRoot(t *testing.T) {
	_, err := WalkFiles(context.Background(), filepath.Join(t.TempDir(), "nope"), []string{".txt"}, nil, nil)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestWalkFiles_Canceled(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "a.txt")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := WalkFiles(ctx, root, []string{".txt"}, nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWalkFiles_Matcher(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "a.txt", "build/b.txt", "docs/build/c.txt", "docs/d.log.txt")

	m, err := ignore.NewMatcher([]string{"**/build/**", "*.log.txt"})
	require.NoError(t, err)

	files, err := WalkFiles(context.Background(), root, []string{".txt"}, m, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "a.txt")}, files)
}

func TestSkipDir(t *testing.T) {
	assert.True(t, skipDir(".git"))
	assert.True(t, skipDir(".venv"))
	assert.False(t, skipDir("docs"))
}
