// Package ignore reads gitignore-style exclude files and matches paths
// against them while a directory is walked for ingestion.
package ignore

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultFiles are read from the root of an ingested directory.
var DefaultFiles = []string{".docingestignore", ".gitignore"}

// Parser reads and parses gitignore-style files.
type Parser struct {
	// IgnoreFiles is the list of ignore file names to look for.
	IgnoreFiles []string

	// FallbackPatterns are returned when no ignore files are found.
	FallbackPatterns []string
}

// NewParser creates a new ignore file parser with the given configuration.
func NewParser(ignoreFiles, fallbackPatterns []string) *Parser {
	return &Parser{
		IgnoreFiles:      ignoreFiles,
		FallbackPatterns: fallbackPatterns,
	}
}

// ParseDir reads every ignore file present in root and returns the combined
// patterns. If none is present, it returns the fallback patterns.
func (p *Parser) ParseDir(root string) ([]string, error) {
	var patterns []string
	foundAny := false

	for _, name := range p.IgnoreFiles {
		filePatterns, err := parseFile(filepath.Join(root, name))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, err
		}
		patterns = append(patterns, filePatterns...)
		foundAny = true
	}

	if !foundAny {
		return p.FallbackPatterns, nil
	}
	return deduplicate(patterns), nil
}

func parseFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var patterns []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if pattern := parseLine(scanner.Text()); pattern != "" {
			patterns = append(patterns, pattern)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return patterns, nil
}

// parseLine converts one ignore file line to a glob pattern. Blank lines,
// comments and negations yield "".
func parseLine(line string) string {
	line = strings.TrimRight(line, " \t")
	if line == "" || strings.HasPrefix(line, "#") {
		return ""
	}
	// Negation is not supported.
	if strings.HasPrefix(line, "!") {
		return ""
	}
	return toGlobPattern(line)
}

// toGlobPattern converts a gitignore pattern to the forms Matcher handles:
// a leading "**/" matches at any depth and a trailing "/**" matches a
// directory.
func toGlobPattern(pattern string) string {
	pattern = strings.TrimPrefix(pattern, "/")

	if strings.HasSuffix(pattern, "/") {
		pattern += "**"
	}

	if !strings.Contains(pattern, "/") && !strings.HasPrefix(pattern, "**/") {
		if !strings.HasPrefix(pattern, "*") {
			pattern = "**/" + pattern
		}
	}

	// A name without an extension is taken to be a directory.
	if !strings.HasSuffix(pattern, "/**") && !strings.HasSuffix(pattern, "/*") && !strings.Contains(pattern, ".") {
		pattern += "/**"
	}
	return pattern
}

func deduplicate(patterns []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if !seen[p] {
			seen[p] = true
			result = append(result, p)
		}
	}
	return result
}

// Matcher decides whether a path below the walk root is excluded.
type Matcher struct {
	rules []rule
}

type rule struct {
	pattern  string
	segments int
	anyDepth bool
	dirOnly  bool
}

// NewMatcher compiles glob patterns as produced by Parser. Patterns use
// filepath.Match syntax per path segment.
func NewMatcher(patterns []string) (*Matcher, error) {
	m := &Matcher{}
	for _, p := range patterns {
		r := rule{pattern: p}
		if rest, ok := strings.CutPrefix(r.pattern, "**/"); ok {
			r.pattern, r.anyDepth = rest, true
		}
		if rest, ok := strings.CutSuffix(r.pattern, "/**"); ok {
			r.pattern, r.dirOnly = rest, true
		}
		if r.pattern == "" || r.pattern == "**" {
			return nil, fmt.Errorf("invalid pattern %q: matches everything", p)
		}
		if _, err := filepath.Match(r.pattern, "test"); err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", p, err)
		}
		if !strings.Contains(r.pattern, "/") {
			r.anyDepth = true
		}
		r.segments = strings.Count(r.pattern, "/") + 1
		m.rules = append(m.rules, r)
	}
	return m, nil
}

// Load builds a Matcher from the ignore files present in root plus extra
// patterns. extra uses the ignore file syntax.
func Load(root string, files, extra []string) (*Matcher, error) {
	patterns, err := NewParser(files, nil).ParseDir(root)
	if err != nil {
		return nil, err
	}
	for _, line := range extra {
		if p := parseLine(line); p != "" {
			patterns = append(patterns, p)
		}
	}
	return NewMatcher(deduplicate(patterns))
}

// Excluded reports whether rel, a slash-separated path relative to the
// walk root, is excluded. Directory rules only match when isDir is set; the
// walker skips an excluded directory's contents.
func (m *Matcher) Excluded(rel string, isDir bool) bool {
	if m == nil || len(m.rules) == 0 {
		return false
	}
	segs := strings.Split(filepath.ToSlash(rel), "/")
	for _, r := range m.rules {
		if r.dirOnly && !isDir {
			continue
		}
		if r.matches(segs) {
			return true
		}
	}
	return false
}

// matches compares the rule against the trailing segments of the path, or
// against the whole path when the rule is anchored.
func (r rule) matches(segs []string) bool {
	start := len(segs) - r.segments
	if start < 0 {
		return false
	}
	if start > 0 && !r.anyDepth {
		return false
	}
	ok, _ := filepath.Match(r.pattern, strings.Join(segs[start:], "/"))
	return ok
}
