package backup

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"capplan/pkg/capacity"

	"go.uber.org/zap"
)

// DefaultKeep is the number of backups retained after pruning.
const DefaultKeep = 10

// Rotation snapshots the canonical file before each write and bounds the
// number of snapshots kept. Backups are named <base>.backup.<epoch-ms>.json.
type Rotation struct {
	series Series
	keep   int
	log    *zap.SugaredLogger

	mu    sync.Mutex
	last  int64
	nowFn func() time.Time
}

// NewRotation returns the backup series for the canonical file at path.
func NewRotation(path string, keep int, log *zap.SugaredLogger) *Rotation {
	if keep <= 0 {
		keep = DefaultKeep
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Rotation{
		series: SeriesFor(path, "backup", ".json"),
		keep:   keep,
		log:    log.Named("backup"),
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// SeriesFor derives a sibling series of the canonical file:
// <dir>/<base>.<kind>.<epoch-ms><suffix>, base being the file name without extension.
func SeriesFor(path, kind, suffix string) Series {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return Series{Dir: filepath.Dir(path), Prefix: base + "." + kind + ".", Suffix: suffix}
}

// Series exposes the naming scheme of the backups.
func (r *Rotation) Series() Series { return r.series }

// Keep returns the pruning threshold.
func (r *Rotation) Keep() int { return r.keep }

// nextStamp returns a wall-clock millisecond stamp strictly greater than any
// stamp issued before or already present on disk.
func (r *Rotation) nextStamp() (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == 0 {
		latest, err := r.series.Latest()
		if err != nil {
			return 0, err
		}
		r.last = latest
	}
	stamp := r.nowFn().UnixMilli()
	if stamp <= r.last {
		stamp = r.last + 1
	}
	r.last = stamp
	return stamp, nil
}

// Snapshot copies the file at src verbatim into a new backup. A missing src
// is not an error: it returns ok=false (first write).
func (r *Rotation) Snapshot(src string) (File, bool, error) {
	in, err := os.Open(src)
	if errors.Is(err, fs.ErrNotExist) {
		return File{}, false, nil
	}
	if err != nil {
		return File{}, false, fmt.Errorf("open current: %w", err)
	}
	defer func() { _ = in.Close() }()

	stamp, err := r.nextStamp()
	if err != nil {
		return File{}, false, fmt.Errorf("scan backups: %w", err)
	}
	name := r.series.Name(stamp)
	dst := filepath.Join(r.series.Dir, name)

	tmp, err := os.CreateTemp(r.series.Dir, ".backup-*.tmp")
	if err != nil {
		return File{}, false, err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	size, err := io.Copy(tmp, in)
	if err != nil {
		_ = tmp.Close()
		return File{}, false, fmt.Errorf("copy current: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return File{}, false, err
	}
	if err := tmp.Close(); err != nil {
		return File{}, false, err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return File{}, false, err
	}
	f := File{Name: name, Path: dst, Stamp: stamp, Size: size, CreatedAt: time.UnixMilli(stamp).UTC()}
	r.log.Debugw("backup created", "name", name, "size", size)
	return f, true, nil
}

// List returns the backups newest first.
func (r *Rotation) List() ([]File, error) { return r.series.List() }

// Prune keeps the newest Keep() backups.
func (r *Rotation) Prune() ([]string, error) {
	removed, err := r.series.Prune(r.keep)
	if len(removed) > 0 {
		r.log.Debugw("pruned backups", "removed", len(removed), "keep", r.keep)
	}
	return removed, err
}

// Resolve maps a backup file name to its path. Names outside the series or
// not present on disk yield capacity.ErrBackupNotFound.
func (r *Rotation) Resolve(name string) (File, error) {
	if name != filepath.Base(name) {
		return File{}, fmt.Errorf("%w: %q", capacity.ErrBackupNotFound, name)
	}
	stamp, ok := r.series.Parse(name)
	if !ok {
		return File{}, fmt.Errorf("%w: %q", capacity.ErrBackupNotFound, name)
	}
	path := filepath.Join(r.series.Dir, name)
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return File{}, fmt.Errorf("%w: %q", capacity.ErrBackupNotFound, name)
	}
	if err != nil {
		return File{}, err
	}
	return File{Name: name, Path: path, Stamp: stamp, Size: info.Size(), CreatedAt: time.UnixMilli(stamp).UTC()}, nil
}
