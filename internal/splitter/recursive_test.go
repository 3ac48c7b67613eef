package splitter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecursiveSplitter_SplitText(t *testing.T) {
	s, err := NewRecursiveSplitter(Config{ChunkSize: 40, ChunkOverlap: 0})
	require.NoError(t, err)
	assert.Equal(t, NameRecursive, s.Name())

	text := "The first paragraph is short.\n\nThe second paragraph is also short.\n\nAnd a third one closes it."
	chunks, err := s.SplitText(text)
	require.NoError(t, err)

	require.Len(t, chunks, 3)
	for _, c := range chunks {
		assert.LessOrEqual(t, runeLen(c), 40)
		assert.Equal(t, strings.TrimSpace(c), c)
	}
	assert.Equal(t, "The first paragraph is short.", chunks[0])
}

func TestRecursiveSplitter_CountsCodePoints(t *testing.T) {
	s, err := NewRecursiveSplitter(Config{ChunkSize: 10, ChunkOverlap: 0})
	require.NoError(t, err)

	chunks, err := s.SplitText(strings.Repeat("文", 25))
	require.NoError(t, err)

	for _, c := range chunks {
		assert.LessOrEqual(t, runeLen(c), 10)
	}
	assert.Equal(t, strings.Repeat("文", 25), strings.Join(chunks, ""))
}

func TestRecursiveSplitter_Errors(t *testing.T) {
	_, err := NewRecursiveSplitter(Config{ChunkSize: 10, ChunkOverlap: 10})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	s, err := NewRecursiveSplitter(Config{ChunkSize: 10})
	require.NoError(t, err)
	_, err = s.SplitText("  ")
	assert.ErrorIs(t, err, ErrInvalidInput)
}
