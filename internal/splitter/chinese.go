package splitter

import (
	"fmt"
	"slices"
	"strings"
	"unicode"
)

// NameChinese is the splitter tag of ChineseSplitter.
const NameChinese = "chinese"

// backtrackWindow bounds the backward search for a softer cut point when a
// window has to be sliced by length.
const backtrackWindow = 50

// ChineseSplitter splits text on sentence terminators and packs whole
// sentences into chunks of at most ChunkSize code points.
//
// A sentence longer than ChunkSize is split on clause separators, and a
// clause that is still too long is sliced into windows. With
// RespectSentenceBoundary off the whole text is sliced into windows.
type ChineseSplitter struct {
	cfg Config
}

// NewChineseSplitter validates cfg and returns a splitter.
func NewChineseSplitter(cfg Config) (*ChineseSplitter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &ChineseSplitter{cfg: cfg}, nil
}

// Name implements Splitter.
func (s *ChineseSplitter) Name() string { return NameChinese }

// SplitText implements Splitter.
func (s *ChineseSplitter) SplitText(text string) ([]string, error) {
	if isBlank(text) {
		return nil, fmt.Errorf("%w: text is empty", ErrInvalidInput)
	}

	if !s.cfg.RespectSentenceBoundary {
		return s.window([]rune(text)), nil
	}

	acc := &accumulator{size: s.cfg.ChunkSize, overlap: s.cfg.ChunkOverlap}
	for _, sentence := range splitKeep(text, isTerminator) {
		if runeLen(sentence) > s.cfg.ChunkSize {
			acc.flush()
			s.splitOversized(acc, sentence)
			continue
		}
		acc.add(sentence)
	}
	acc.flush()

	return acc.out, nil
}

// splitOversized packs the clauses of one long sentence and slices any
// clause that is still longer than a chunk.
func (s *ChineseSplitter) splitOversized(acc *accumulator, sentence string) {
	for _, clause := range splitKeep(sentence, isClauseSeparator) {
		if runeLen(clause) > s.cfg.ChunkSize {
			acc.flush()
			acc.out = append(acc.out, s.window([]rune(clause))...)
			continue
		}
		acc.add(clause)
	}
	acc.flush()
}

// window slices runes into pieces of at most ChunkSize, preferring to cut
// just after a separator or space found within backtrackWindow of the hard
// cut. Consecutive windows overlap by up to ChunkOverlap, and every window
// starts strictly after the previous one.
func (s *ChineseSplitter) window(runes []rune) []string {
	size, overlap := s.cfg.ChunkSize, s.cfg.ChunkOverlap
	n := len(runes)

	var out []string
	for start := 0; start < n; {
		end := start + size
		if end >= n {
			out = appendTrimmed(out, string(runes[start:]))
			break
		}

		cut := end
		for j := end - 1; j > start && j >= end-backtrackWindow; j-- {
			if isBoundary(runes[j]) {
				cut = j + 1
				break
			}
		}
		out = appendTrimmed(out, string(runes[start:cut]))

		next := cut - overlap
		if next <= start {
			next = cut
		}
		start = next
	}
	return out
}

// accumulator packs pieces greedily into chunks and seeds each new chunk
// with the overlap tail of the previous one.
type accumulator struct {
	size    int
	overlap int
	buf     []rune
	out     []string
}

// add appends piece, which must not be longer than size.
func (a *accumulator) add(piece string) {
	p := []rune(piece)
	if len(a.buf)+len(p) <= a.size {
		a.buf = append(a.buf, p...)
		return
	}

	seed := a.flush()
	if len(seed)+len(p) > a.size {
		seed = nil
	}
	a.buf = append(seed, p...)
}

// flush emits the buffered chunk and returns the overlap seed for the next.
func (a *accumulator) flush() []rune {
	chunk := strings.TrimSpace(string(a.buf))
	a.buf = nil
	if chunk == "" {
		return nil
	}
	a.out = append(a.out, chunk)
	return overlapSeed([]rune(chunk), a.overlap)
}

// overlapSeed returns the last overlap runes of chunk, starting after the
// first boundary in that tail when there is one.
func overlapSeed(chunk []rune, overlap int) []rune {
	if overlap <= 0 || len(chunk) == 0 {
		return nil
	}
	overlap = min(overlap, len(chunk))

	tail := chunk[len(chunk)-overlap:]
	for i, r := range tail {
		if isBoundary(r) {
			return slices.Clone(tail[i+1:])
		}
	}
	return slices.Clone(tail)
}

// splitKeep splits text after every separator, keeping the separator with
// the text before it. Runs of separators stay together, and closing quotes
// or brackets right after a separator stay with it too. Blank pieces are
// dropped.
func splitKeep(text string, isSep func(rune) bool) []string {
	runes := []rune(text)

	var parts []string
	start := 0
	for i := 0; i < len(runes); i++ {
		if !isSep(runes[i]) {
			continue
		}
		if runes[i] != '\n' {
			for i+1 < len(runes) && runes[i+1] != '\n' && (isSep(runes[i+1]) || isCloser(runes[i+1])) {
				i++
			}
		}
		parts = appendRaw(parts, string(runes[start:i+1]))
		start = i + 1
	}
	return appendRaw(parts, string(runes[start:]))
}

func appendRaw(parts []string, s string) []string {
	if isBlank(s) {
		return parts
	}
	return append(parts, s)
}

func appendTrimmed(parts []string, s string) []string {
	if s = strings.TrimSpace(s); s == "" {
		return parts
	}
	return append(parts, s)
}

func isTerminator(r rune) bool {
	switch r {
	case '。', '！', '？', '；', '!', '?', ';', '\n', '…':
		return true
	}
	return false
}

func isClauseSeparator(r rune) bool {
	switch r {
	case '，', ',', '、', '：', ':', '“', '”', '‘', '’', '"', '\'':
		return true
	}
	return false
}

func isCloser(r rune) bool {
	switch r {
	case '”', '’', '」', '』', '）', ')', '》':
		return true
	}
	return false
}

func isBoundary(r rune) bool {
	return isTerminator(r) || isClauseSeparator(r) || unicode.IsSpace(r)
}
