package splitter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/docingest/internal/document"
)

func TestChineseRatio(t *testing.T) {
	tests := []struct {
		name string
		text string
		want float64
	}{
		{"empty", "", 0},
		{"whitespace only", " \n\t", 0},
		{"all chinese", "中文文本", 1},
		{"mixed", "中文abc", 0.4},
		{"whitespace ignored", "中 文 a b", 0.5},
		{"punctuation counts as non-han", "中文。", 2.0 / 3.0},
		{"english", "plain english", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, ChineseRatio(tt.text), 1e-9)
		})
	}
}

func TestSampleText_Limits(t *testing.T) {
	var docs []document.Document
	for i := 0; i < 12; i++ {
		docs = append(docs, document.Document{Text: strings.Repeat("a", 1500)})
	}

	sample := SampleText(docs)
	assert.Equal(t, sampleDocuments*sampleRunes, runeLen(sample))
}

func TestDetectProfile(t *testing.T) {
	chinese := []document.Document{{Text: "这是一个中文文档，内容全部是中文。"}}
	english := []document.Document{{Text: "This document is written in English."}}
	mostlyEnglish := []document.Document{{Text: "Mostly English text with 中文"}}

	assert.Equal(t, ProfileChinese, DetectProfile(chinese, DefaultChineseThreshold))
	assert.Equal(t, ProfileDefault, DetectProfile(english, DefaultChineseThreshold))
	assert.Equal(t, ProfileDefault, DetectProfile(mostlyEnglish, DefaultChineseThreshold))
	assert.Equal(t, ProfileDefault, DetectProfile(nil, DefaultChineseThreshold))

	// Chinese beyond the sample window does not count.
	late := []document.Document{{Text: strings.Repeat("x", sampleRunes) + strings.Repeat("中", 5000)}}
	assert.Equal(t, ProfileDefault, DetectProfile(late, DefaultChineseThreshold))
}

func TestTable(t *testing.T) {
	table, err := BuildTable(Config{ChunkSize: 100, ChunkOverlap: 10, RespectSentenceBoundary: true})
	require.NoError(t, err)

	assert.Equal(t, NameRecursive, table.Lookup(ProfileDefault).Name())
	assert.Equal(t, NameChinese, table.Lookup(ProfileChinese).Name())
	assert.Equal(t, NameRecursive, table.Lookup(Profile(42)).Name())

	_, err = NewTable(map[Profile]Splitter{ProfileChinese: table.Lookup(ProfileChinese)})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = BuildTable(Config{ChunkSize: 0})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestProfile_String(t *testing.T) {
	assert.Equal(t, "default", ProfileDefault.String())
	assert.Equal(t, "chinese", ProfileChinese.String())
	assert.Equal(t, "Profile(7)", Profile(7).String())
}
