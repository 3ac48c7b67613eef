package splitter

import (
	"fmt"

	"github.com/tmc/langchaingo/textsplitter"
)

// NameRecursive is the splitter tag of RecursiveSplitter.
const NameRecursive = "recursive"

// defaultSeparators are tried in order, from paragraph breaks down to
// single characters.
var defaultSeparators = []string{"\n\n", "\n", " ", ""}

// RecursiveSplitter is the default strategy, backed by langchaingo's
// recursive character splitter. Lengths are measured in code points.
type RecursiveSplitter struct {
	inner textsplitter.RecursiveCharacter
}

// NewRecursiveSplitter validates cfg and returns a splitter.
func NewRecursiveSplitter(cfg Config) (*RecursiveSplitter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &RecursiveSplitter{
		inner: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(cfg.ChunkSize),
			textsplitter.WithChunkOverlap(cfg.ChunkOverlap),
			textsplitter.WithSeparators(defaultSeparators),
			textsplitter.WithLenFunc(runeLen),
		),
	}, nil
}

// Name implements Splitter.
func (s *RecursiveSplitter) Name() string { return NameRecursive }

// SplitText implements Splitter.
func (s *RecursiveSplitter) SplitText(text string) ([]string, error) {
	if isBlank(text) {
		return nil, fmt.Errorf("%w: text is empty", ErrInvalidInput)
	}

	parts, err := s.inner.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("recursive split: %w", err)
	}

	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = appendTrimmed(out, p)
	}
	return out, nil
}
