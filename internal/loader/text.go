package loader

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/documentloaders"
	"golang.org/x/text/encoding/simplifiedchinese"

	"github.com/fyrsmithlabs/docingest/internal/document"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Encodings reported in the "encoding" metadata.
const (
	EncodingUTF8    = "utf-8"
	EncodingGB18030 = "gb18030"
)

// TextLoader loads plain text files. Content that is not valid UTF-8 is
// decoded as GB18030.
type TextLoader struct {
	opts options
}

// NewTextLoader returns a loader for .txt and .text files.
func NewTextLoader(opts ...Option) *TextLoader {
	return &TextLoader{opts: applyOptions(opts)}
}

func (l *TextLoader) Name() string { return "text" }

func (l *TextLoader) Extensions() []string { return []string{".text", ".txt"} }

func (l *TextLoader) Supports(path string) bool { return hasExtension(path, l.Extensions()) }

// Load returns the whole file as one document.
func (l *TextLoader) Load(ctx context.Context, path string) ([]document.Document, error) {
	if _, err := checkFile(path, l.opts.maxFileSize); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	text, encoding, err := decodeText(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidFormat, path, err)
	}

	loaded, err := documentloaders.NewText(strings.NewReader(text)).Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}

	docs := make([]document.Document, 0, len(loaded))
	for _, d := range loaded {
		if isBlank(d.PageContent) {
			continue
		}
		md := baseMetadata(path, "text")
		md[document.KeyEncoding] = encoding
		docs = append(docs, document.Document{Text: d.PageContent, Metadata: md})
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: no text content: %s", ErrInvalidFormat, path)
	}
	return docs, nil
}

// decodeText returns raw as a string, trying UTF-8 (with or without a BOM)
// and then GB18030.
func decodeText(raw []byte) (string, string, error) {
	raw = bytes.TrimPrefix(raw, utf8BOM)
	if utf8.Valid(raw) {
		return string(raw), EncodingUTF8, nil
	}

	decoded, err := simplifiedchinese.GB18030.NewDecoder().Bytes(raw)
	if err != nil {
		return "", "", fmt.Errorf("not utf-8 and not gb18030: %w", err)
	}
	if bytes.ContainsRune(decoded, utf8.RuneError) {
		return "", "", fmt.Errorf("not utf-8 and not gb18030")
	}
	return string(decoded), EncodingGB18030, nil
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
