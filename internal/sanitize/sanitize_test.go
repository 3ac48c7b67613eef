package sanitize

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

var collectionPattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

func TestIdentifier(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "simple lowercase", input: "manuals", expected: "manuals"},
		{name: "uppercase conversion", input: "Manuals", expected: "manuals"},
		{name: "spaces", input: "Product Manuals", expected: "product_manuals"},
		{name: "dots and dashes", input: "docs-v2.1", expected: "docs_v2_1"},
		{name: "multiple underscores collapsed", input: "foo___bar", expected: "foo_bar"},
		{name: "leading/trailing underscores trimmed", input: "_foo_bar_", expected: "foo_bar"},
		{name: "mixed scripts", input: "FAQ 常见问题", expected: "faq"},
		{name: "empty string", input: "", expected: "default"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Identifier(tt.input))
		})
	}
}

func TestIdentifier_NoUsableCharacters(t *testing.T) {
	a := Identifier("产品手册")
	b := Identifier("用户指南")

	assert.True(t, strings.HasPrefix(a, "dir_"), a)
	assert.Len(t, a, len("dir_")+8)
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, Identifier("产品手册"))
	assert.Regexp(t, collectionPattern, a)
}

func TestIdentifier_Truncation(t *testing.T) {
	long := strings.Repeat("knowledge_base_", 10)
	other := strings.Repeat("knowledge_base_", 11)

	got := Identifier(long)
	assert.LessOrEqual(t, len(got), MaxIdentifierLength)
	assert.Regexp(t, collectionPattern, got)
	assert.NotEqual(t, got, Identifier(other))
}
