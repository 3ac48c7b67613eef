package splitter

import (
	"fmt"
	"unicode"

	"github.com/fyrsmithlabs/docingest/internal/document"
)

// Profile is the detected language profile of a batch of documents.
type Profile int

const (
	// ProfileDefault selects the recursive splitter.
	ProfileDefault Profile = iota
	// ProfileChinese selects the sentence-boundary Chinese splitter.
	ProfileChinese
)

// DefaultChineseThreshold is the Chinese ratio at or above which a batch is
// treated as Chinese.
const DefaultChineseThreshold = 0.3

// Sampling limits for DetectProfile.
const (
	sampleDocuments = 10
	sampleRunes     = 1000
)

func (p Profile) String() string {
	switch p {
	case ProfileDefault:
		return "default"
	case ProfileChinese:
		return "chinese"
	default:
		return fmt.Sprintf("Profile(%d)", int(p))
	}
}

// ChineseRatio returns the share of non-whitespace code points in text that
// are CJK ideographs. Text with no such code points yields 0.
func ChineseRatio(text string) float64 {
	var han, total int
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if unicode.Is(unicode.Han, r) {
			han++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(han) / float64(total)
}

// SampleText concatenates the leading text of the first documents, the
// sample DetectProfile measures.
func SampleText(docs []document.Document) string {
	var sample []rune
	for i, doc := range docs {
		if i == sampleDocuments {
			break
		}
		r := []rune(doc.Text)
		if len(r) > sampleRunes {
			r = r[:sampleRunes]
		}
		sample = append(sample, r...)
	}
	return string(sample)
}

// DetectProfile returns ProfileChinese when the sampled Chinese ratio of
// docs is at least threshold.
func DetectProfile(docs []document.Document, threshold float64) Profile {
	if ChineseRatio(SampleText(docs)) >= threshold {
		return ProfileChinese
	}
	return ProfileDefault
}

// Table maps profiles to splitter strategies.
type Table struct {
	strategies map[Profile]Splitter
}

// NewTable returns a table over strategies, which must include
// ProfileDefault.
func NewTable(strategies map[Profile]Splitter) (*Table, error) {
	if strategies[ProfileDefault] == nil {
		return nil, fmt.Errorf("%w: no splitter for the default profile", ErrInvalidConfig)
	}
	t := &Table{strategies: make(map[Profile]Splitter, len(strategies))}
	for p, s := range strategies {
		if s != nil {
			t.strategies[p] = s
		}
	}
	return t, nil
}

// BuildTable builds the standard table: the recursive splitter for the
// default profile and the Chinese splitter for ProfileChinese.
func BuildTable(cfg Config) (*Table, error) {
	recursive, err := NewRecursiveSplitter(cfg)
	if err != nil {
		return nil, err
	}
	chinese, err := NewChineseSplitter(cfg)
	if err != nil {
		return nil, err
	}
	return NewTable(map[Profile]Splitter{
		ProfileDefault: recursive,
		ProfileChinese: chinese,
	})
}

// Lookup returns the strategy for p, or the default strategy when p has
// none.
func (t *Table) Lookup(p Profile) Splitter {
	if s, ok := t.strategies[p]; ok {
		return s
	}
	return t.strategies[ProfileDefault]
}
