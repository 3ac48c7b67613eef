package loader

import (
	"context"
	"fmt"
	"os"

	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"

	"github.com/fyrsmithlabs/docingest/internal/document"
)

// PDFLoader loads PDF files, one document per page with text.
type PDFLoader struct {
	opts options
}

// NewPDFLoader returns a loader for .pdf files.
func NewPDFLoader(opts ...Option) *PDFLoader {
	return &PDFLoader{opts: applyOptions(opts)}
}

func (l *PDFLoader) Name() string { return "pdf" }

func (l *PDFLoader) Extensions() []string { return []string{".pdf"} }

func (l *PDFLoader) Supports(path string) bool { return hasExtension(path, l.Extensions()) }

// Load extracts the plain text of every page. Pages without text are
// skipped; a file with no text at all is ErrInvalidFormat.
func (l *PDFLoader) Load(ctx context.Context, path string) ([]document.Document, error) {
	info, err := checkFile(path, l.opts.maxFileSize)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	pages, err := loadPDF(ctx, f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidFormat, path, err)
	}

	docs := make([]document.Document, 0, len(pages))
	for _, p := range pages {
		if isBlank(p.PageContent) {
			continue
		}
		md := baseMetadata(path, "pdf")
		for _, key := range []string{document.KeyPage, document.KeyTotalPages} {
			if v, ok := p.Metadata[key]; ok {
				md[key] = v
			}
		}
		docs = append(docs, document.Document{Text: p.PageContent, Metadata: md})
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: no extractable text: %s", ErrInvalidFormat, path)
	}
	return docs, nil
}

// loadPDF runs the langchaingo PDF loader, turning parser panics on
// malformed files into errors.
func loadPDF(ctx context.Context, f *os.File, size int64) (pages []schema.Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()
	return documentloaders.NewPDF(f, size).Load(ctx)
}
