package loader

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/fyrsmithlabs/docingest/internal/document"
)

// MarkdownLoader loads Markdown files as plain text with the markup
// removed. The first level-one heading becomes the "title" metadata.
type MarkdownLoader struct {
	opts options
	md   goldmark.Markdown
}

// NewMarkdownLoader returns a loader for .md and .markdown files.
func NewMarkdownLoader(opts ...Option) *MarkdownLoader {
	return &MarkdownLoader{opts: applyOptions(opts), md: goldmark.New()}
}

func (l *MarkdownLoader) Name() string { return "markdown" }

func (l *MarkdownLoader) Extensions() []string { return []string{".markdown", ".md"} }

func (l *MarkdownLoader) Supports(path string) bool { return hasExtension(path, l.Extensions()) }

// Load returns the file's text as one document.
func (l *MarkdownLoader) Load(_ context.Context, path string) ([]document.Document, error) {
	if _, err := checkFile(path, l.opts.maxFileSize); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	src, encoding, err := decodeText(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidFormat, path, err)
	}

	body, title := l.extract([]byte(src))
	if isBlank(body) {
		return nil, fmt.Errorf("%w: no text content: %s", ErrInvalidFormat, path)
	}

	md := baseMetadata(path, "markdown")
	md[document.KeyEncoding] = encoding
	if title != "" {
		md[document.KeyTitle] = title
	}
	return []document.Document{{Text: body, Metadata: md}}, nil
}

// extract walks the Markdown AST and returns its text, one line per block,
// along with the first level-one heading.
func (l *MarkdownLoader) extract(src []byte) (string, string) {
	root := l.md.Parser().Parse(text.NewReader(src))

	var b strings.Builder
	var title string
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.HTMLBlock, *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			if entering {
				lines := n.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					b.Write(seg.Value(src))
				}
				endLine(&b)
			}
			return ast.WalkSkipChildren, nil
		case *ast.Heading:
			if entering && node.Level == 1 && title == "" {
				title = strings.TrimSpace(inlineText(node, src))
			}
		case *ast.Text:
			if entering {
				b.Write(node.Segment.Value(src))
				switch {
				case node.HardLineBreak():
					b.WriteByte('\n')
				case node.SoftLineBreak():
					softBreak(&b)
				}
			}
		case *ast.String:
			if entering {
				b.Write(node.Value)
			}
		}

		if !entering && n.Type() == ast.TypeBlock && n.Kind() != ast.KindDocument {
			endLine(&b)
		}
		return ast.WalkContinue, nil
	})

	return strings.TrimSpace(b.String()), title
}

// inlineText concatenates the text segments below n.
func inlineText(n ast.Node, src []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if t, ok := c.(*ast.Text); ok && entering {
			b.Write(t.Segment.Value(src))
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}

func endLine(b *strings.Builder) {
	s := b.String()
	if s != "" && !strings.HasSuffix(s, "\n") {
		b.WriteByte('\n')
	}
}

// softBreak joins wrapped lines. Chinese text is joined directly; other
// text gets a space.
func softBreak(b *strings.Builder) {
	s := b.String()
	last, _ := utf8.DecodeLastRuneInString(s)
	if unicode.Is(unicode.Han, last) || (unicode.IsPunct(last) && last > unicode.MaxASCII) {
		return
	}
	b.WriteByte(' ')
}
