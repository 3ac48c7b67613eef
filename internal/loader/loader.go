// Package loader reads files into documents.
//
// Each Loader handles a set of file extensions. The ingestion pipeline picks
// the first loader in its list whose Supports reports true for a path.
package loader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/fyrsmithlabs/docingest/internal/document"
)

var (
	// ErrNotFound indicates the file does not exist.
	ErrNotFound = errors.New("file not found")

	// ErrInvalidFormat indicates a file that is empty, too large, not
	// decodable or not parseable.
	ErrInvalidFormat = errors.New("invalid file format")
)

// DefaultMaxFileSize is the largest file a loader accepts by default.
const DefaultMaxFileSize int64 = 50 << 20

// Loader reads one kind of file into documents.
type Loader interface {
	// Name identifies the loader in logs.
	Name() string

	// Extensions lists the lower-case extensions, with the leading dot,
	// the loader handles.
	Extensions() []string

	// Supports reports whether the loader handles path.
	Supports(path string) bool

	// Load reads path. Every returned document has "source" metadata.
	Load(ctx context.Context, path string) ([]document.Document, error)
}

// Option configures a loader.
type Option func(*options)

type options struct {
	maxFileSize int64
}

// WithMaxFileSize sets the size limit in bytes. Non-positive values keep the
// default.
func WithMaxFileSize(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.maxFileSize = n
		}
	}
}

func applyOptions(opts []Option) options {
	o := options{maxFileSize: DefaultMaxFileSize}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Defaults returns the standard loader list: text, Markdown and PDF.
func Defaults(opts ...Option) []Loader {
	return []Loader{
		NewTextLoader(opts...),
		NewMarkdownLoader(opts...),
		NewPDFLoader(opts...),
	}
}

// Select returns the first loader that supports path.
func Select(loaders []Loader, path string) (Loader, bool) {
	for _, l := range loaders {
		if l.Supports(path) {
			return l, true
		}
	}
	return nil, false
}

// Extensions returns the union of the loaders' extensions, sorted.
func Extensions(loaders []Loader) []string {
	var exts []string
	for _, l := range loaders {
		for _, ext := range l.Extensions() {
			if !slices.Contains(exts, ext) {
				exts = append(exts, ext)
			}
		}
	}
	slices.Sort(exts)
	return exts
}

func hasExtension(path string, exts []string) bool {
	return slices.Contains(exts, strings.ToLower(filepath.Ext(path)))
}

// checkFile stats path and rejects missing, non-regular, empty and
// oversized files.
func checkFile(path string, maxSize int64) (os.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: not a regular file: %s", ErrInvalidFormat, path)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("%w: file is empty: %s", ErrInvalidFormat, path)
	}
	if info.Size() > maxSize {
		return nil, fmt.Errorf("%w: file is %d bytes, limit is %d: %s",
			ErrInvalidFormat, info.Size(), maxSize, path)
	}
	return info, nil
}

// baseMetadata returns the metadata every loader attaches.
func baseMetadata(path, fileType string) map[string]any {
	return map[string]any{
		document.KeySource:   path,
		document.KeyFileName: filepath.Base(path),
		document.KeyFileType: fileType,
	}
}
