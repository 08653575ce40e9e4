// Package backup manages the timestamped sibling files of the canonical
// document: pre-write snapshots, their pruning, and restore lookups.
package backup

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// File is one timestamped file of a series.
type File struct {
	Name      string    `json:"name"`
	Path      string    `json:"-"`
	Stamp     int64     `json:"stamp"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}

// Series describes files named <prefix><epoch-ms><suffix> in one directory.
type Series struct {
	Dir    string
	Prefix string
	Suffix string
}

// Name returns the file name for a stamp.
func (s Series) Name(stamp int64) string {
	return s.Prefix + strconv.FormatInt(stamp, 10) + s.Suffix
}

// Parse extracts the stamp from a file name belonging to the series.
func (s Series) Parse(name string) (int64, bool) {
	if !strings.HasPrefix(name, s.Prefix) || !strings.HasSuffix(name, s.Suffix) {
		return 0, false
	}
	digits := strings.TrimSuffix(strings.TrimPrefix(name, s.Prefix), s.Suffix)
	if digits == "" {
		return 0, false
	}
	for _, c := range digits {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	stamp, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, false
	}
	return stamp, true
}

// List returns the series files newest first, ordered by embedded stamp.
func (s Series) List() ([]File, error) {
	entries, err := os.ReadDir(s.Dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", s.Dir, err)
	}
	var files []File
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		stamp, ok := s.Parse(e.Name())
		if !ok {
			continue
		}
		f := File{Name: e.Name(), Path: filepath.Join(s.Dir, e.Name()), Stamp: stamp, CreatedAt: time.UnixMilli(stamp).UTC()}
		if info, err := e.Info(); err == nil {
			f.Size = info.Size()
		}
		files = append(files, f)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Stamp > files[j].Stamp })
	return files, nil
}

// Latest returns the highest stamp present, or zero.
func (s Series) Latest() (int64, error) {
	files, err := s.List()
	if err != nil || len(files) == 0 {
		return 0, err
	}
	return files[0].Stamp, nil
}

// Prune removes every file beyond the keep newest. Removal errors are
// collected; the remaining files are still attempted.
func (s Series) Prune(keep int) ([]string, error) {
	if keep < 0 {
		keep = 0
	}
	files, err := s.List()
	if err != nil {
		return nil, err
	}
	if len(files) <= keep {
		return nil, nil
	}
	var removed []string
	var errs []error
	for _, f := range files[keep:] {
		if err := os.Remove(f.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed = append(removed, f.Name)
	}
	return removed, errors.Join(errs...)
}
