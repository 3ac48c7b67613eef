package indexer

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"
)

const stateVersion = 1

// FileInfo is what the state remembers about one file.
type FileInfo struct {
	ModTime time.Time `json:"mod_time"`
	Size    int64     `json:"size"`
}

// Changed reports whether other differs from i in modification time or size.
func (i FileInfo) Changed(other FileInfo) bool {
	return !i.ModTime.Equal(other.ModTime) || i.Size != other.Size
}

// FileState records the files an index was last built from. It is owned by
// a single caller and has no locking.
type FileState struct {
	Version int `json:"version"`
	// Root is the directory the state tracks. It is set by the first Update.
	Root  string              `json:"root,omitempty"`
	Files map[string]FileInfo `json:"files"`
}

// NewFileState returns an empty state.
func NewFileState() *FileState {
	return &FileState{Version: stateVersion, Files: make(map[string]FileInfo)}
}

// LoadState reads a state file. A missing file yields an empty state.
func LoadState(path string) (*FileState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewFileState(), nil
		}
		return nil, fmt.Errorf("reading state %s: %w", path, err)
	}

	s := NewFileState()
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("%w: parsing state %s: %v", ErrInvalidState, path, err)
	}
	if s.Version != stateVersion {
		return nil, fmt.Errorf("%w: unsupported state version %d in %s", ErrInvalidState, s.Version, path)
	}
	if s.Files == nil {
		s.Files = make(map[string]FileInfo)
	}
	return s, nil
}

// Save writes the state to path through a temporary file and rename.
func (s *FileState) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".docingest-state-*")
	if err != nil {
		return fmt.Errorf("creating temp state file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("writing state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing state: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing state %s: %w", path, err)
	}
	return nil
}

// Changes is the difference between a state and a snapshot. Each list is
// sorted.
type Changes struct {
	Added     []string
	Modified  []string
	Deleted   []string
	Unchanged int
}

// Empty reports whether nothing changed.
func (c Changes) Empty() bool {
	return len(c.Added) == 0 && len(c.Modified) == 0 && len(c.Deleted) == 0
}

// Diff compares the state against snapshot. Files only in the snapshot are
// added, files in both with a different mtime or size are modified, and
// files only in the state are deleted.
func (s *FileState) Diff(snapshot map[string]FileInfo) Changes {
	var c Changes
	for path, cur := range snapshot {
		prev, ok := s.Files[path]
		switch {
		case !ok:
			c.Added = append(c.Added, path)
		case prev.Changed(cur):
			c.Modified = append(c.Modified, path)
		default:
			c.Unchanged++
		}
	}
	for path := range s.Files {
		if _, ok := snapshot[path]; !ok {
			c.Deleted = append(c.Deleted, path)
		}
	}
	slices.Sort(c.Added)
	slices.Sort(c.Modified)
	slices.Sort(c.Deleted)
	return c
}

// Record stores info for path.
func (s *FileState) Record(path string, info FileInfo) {
	if s.Files == nil {
		s.Files = make(map[string]FileInfo)
	}
	s.Files[path] = info
}

// Forget removes path.
func (s *FileState) Forget(path string) {
	delete(s.Files, path)
}

// Snapshot captures the modification time and size of files. A file removed
// since it was listed is left out.
func Snapshot(files []string) (map[string]FileInfo, error) {
	snap := make(map[string]FileInfo, len(files))
	for _, path := range files {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}
		snap[path] = FileInfo{ModTime: info.ModTime().UTC(), Size: info.Size()}
	}
	return snap, nil
}
