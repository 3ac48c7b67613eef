package pipeline

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docingest/internal/ignore"
)

var vcsDirs = []string{".git", ".hg", ".svn", ".bzr"}

// WalkFiles walks dir in lexical order and returns the regular files whose
// lower-cased extension is in exts. Hidden and VCS directories below dir are
// not entered, nor are paths excluded by m, which may be nil. Unreadable
// subdirectories are logged and skipped.
func WalkFiles(ctx context.Context, dir string, exts []string, m *ignore.Matcher, logger *zap.Logger) ([]string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == dir {
				return err
			}
			logger.Warn("skipping unreadable path", zap.String("path", path), zap.Error(err))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if path == dir {
			return nil
		}
		if d.IsDir() && skipDir(d.Name()) {
			return filepath.SkipDir
		}
		if rel, err := filepath.Rel(dir, path); err == nil && m.Excluded(rel, d.IsDir()) {
			logger.Debug("excluded by ignore rules", zap.String("path", path))
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if d.Type().IsRegular() && slices.Contains(exts, strings.ToLower(filepath.Ext(path))) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// CollectFiles lists the files IngestDirectory would ingest under dir: the
// supported files not excluded by the ignore files in dir or the configured
// exclude patterns.
func (p *Pipeline) CollectFiles(ctx context.Context, dir string) ([]string, error) {
	m, err := ignore.Load(dir, p.ignoreFiles, p.exclude)
	if err != nil {
		return nil, fmt.Errorf("reading ignore rules: %w", err)
	}
	return WalkFiles(ctx, dir, p.Extensions(), m, p.logger.Underlying())
}

func skipDir(name string) bool {
	return strings.HasPrefix(name, ".") || slices.Contains(vcsDirs, name)
}
