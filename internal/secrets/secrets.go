// Package secrets redacts credentials from chunk text before it is
// embedded and stored.
package secrets

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/zricethezav/gitleaks/v8/detect"
)

// DefaultReplacement replaces every redacted span.
const DefaultReplacement = "[REDACTED]"

// Config configures a Redactor.
type Config struct {
	Enabled     bool     `koanf:"enabled"`
	Replacement string   `koanf:"replacement"`
	AllowList   []string `koanf:"allow_list"`

	// Gitleaks adds the gitleaks default rule set on top of Rules.
	Gitleaks bool `koanf:"gitleaks"`

	// Rules are added to the default rule set.
	Rules []Rule `koanf:"rules"`
}

// Finding locates one redacted match in the original text.
type Finding struct {
	RuleID string
	Start  int
	End    int
}

// Redactor replaces matches of its rules with a fixed string.
type Redactor struct {
	rules       []compiledRule
	allow       []*regexp.Regexp
	replacement string

	mu       sync.Mutex
	detector *detect.Detector
}

type compiledRule struct {
	id       string
	pattern  *regexp.Regexp
	keywords []*regexp.Regexp
}

// New compiles the default rules plus cfg.Rules. It returns nil when cfg is
// disabled; a nil Redactor leaves text unchanged.
func New(cfg Config) (*Redactor, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	r := &Redactor{replacement: cfg.Replacement}
	if r.replacement == "" {
		r.replacement = DefaultReplacement
	}

	for _, rule := range append(DefaultRules(), cfg.Rules...) {
		c, err := compileRule(rule)
		if err != nil {
			return nil, err
		}
		r.rules = append(r.rules, c)
	}

	for i, p := range cfg.AllowList {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("allow_list %d: %w", i, err)
		}
		r.allow = append(r.allow, re)
	}

	if cfg.Gitleaks {
		d, err := detect.NewDetectorDefaultConfig()
		if err != nil {
			return nil, fmt.Errorf("gitleaks detector: %w", err)
		}
		r.detector = d
	}
	return r, nil
}

func compileRule(rule Rule) (compiledRule, error) {
	if rule.ID == "" || rule.Pattern == "" {
		return compiledRule{}, fmt.Errorf("rule %q: id and pattern are required", rule.ID)
	}
	pattern, err := regexp.Compile(rule.Pattern)
	if err != nil {
		return compiledRule{}, fmt.Errorf("rule %s: %w", rule.ID, err)
	}
	c := compiledRule{id: rule.ID, pattern: pattern}
	for _, kw := range rule.Keywords {
		c.keywords = append(c.keywords, regexp.MustCompile("(?i)"+regexp.QuoteMeta(kw)))
	}
	return c, nil
}

// Redact returns text with every match replaced, and the matches found.
// Overlapping matches are merged into a single replacement.
func (r *Redactor) Redact(text string) (string, []Finding) {
	if r == nil {
		return text, nil
	}

	var findings []Finding
	for _, rule := range r.rules {
		if !rule.applies(text) {
			continue
		}
		for _, m := range rule.pattern.FindAllStringIndex(text, -1) {
			if r.allowed(text[m[0]:m[1]]) {
				continue
			}
			findings = append(findings, Finding{RuleID: rule.id, Start: m[0], End: m[1]})
		}
	}
	findings = append(findings, r.detect(text)...)
	if len(findings) == 0 {
		return text, nil
	}

	sort.Slice(findings, func(i, j int) bool { return findings[i].Start < findings[j].Start })

	var out []byte
	last := 0
	for _, span := range merge(findings) {
		out = append(out, text[last:span.Start]...)
		out = append(out, r.replacement...)
		last = span.End
	}
	out = append(out, text[last:]...)
	return string(out), findings
}

// detect runs the gitleaks detector, when configured, and locates each
// reported secret in text by byte offset.
func (r *Redactor) detect(text string) []Finding {
	if r.detector == nil {
		return nil
	}
	r.mu.Lock()
	reported := r.detector.DetectString(text)
	r.mu.Unlock()

	var findings []Finding
	for _, f := range reported {
		if f.Secret == "" || r.allowed(f.Secret) {
			continue
		}
		for from := 0; ; {
			i := strings.Index(text[from:], f.Secret)
			if i < 0 {
				break
			}
			start := from + i
			findings = append(findings, Finding{RuleID: f.RuleID, Start: start, End: start + len(f.Secret)})
			from = start + len(f.Secret)
		}
	}
	return findings
}

func (c compiledRule) applies(text string) bool {
	if len(c.keywords) == 0 {
		return true
	}
	for _, kw := range c.keywords {
		if kw.MatchString(text) {
			return true
		}
	}
	return false
}

func (r *Redactor) allowed(match string) bool {
	for _, re := range r.allow {
		if re.MatchString(match) {
			return true
		}
	}
	return false
}

// merge joins overlapping findings, which must be sorted by Start.
func merge(sorted []Finding) []Finding {
	merged := []Finding{sorted[0]}
	for _, f := range sorted[1:] {
		last := &merged[len(merged)-1]
		if f.Start <= last.End {
			last.End = max(last.End, f.End)
			continue
		}
		merged = append(merged, f)
	}
	return merged
}
