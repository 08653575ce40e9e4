package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"capplan/internal/blob"
	"capplan/pkg/capacity"
)

// ArchivePrefix is the key prefix of archived backups.
const ArchivePrefix = "backups/"

// Archive copies local backups to an offsite blob store. Copies are
// best-effort: a failure never invalidates the local backup.
type Archive struct {
	store blob.Store
	keep  int
	log   *zap.SugaredLogger
}

// NewArchive wraps store; a nil store yields a nil Archive, whose methods are no-ops.
func NewArchive(store blob.Store, log *zap.SugaredLogger) *Archive {
	if store == nil {
		return nil
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Archive{store: store, log: log.Named("archive")}
}

// WithRetention bounds the archive to the keep newest backups; zero keeps
// everything.
func (a *Archive) WithRetention(keep int) *Archive {
	if a != nil && keep >= 0 {
		a.keep = keep
	}
	return a
}

// Key returns the object key for a backup file name.
func Key(name string) string { return ArchivePrefix + name }

// Push uploads the backup file. Already archived names count as success.
func (a *Archive) Push(ctx context.Context, f File) error {
	if a == nil {
		return nil
	}
	in, err := os.Open(f.Path)
	if err != nil {
		return fmt.Errorf("open backup: %w", err)
	}
	defer func() { _ = in.Close() }()
	_, err = a.store.Put(ctx, Key(f.Name), in, blob.PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"stamp": strconv.FormatInt(f.Stamp, 10)},
	})
	if errors.Is(err, blob.ErrExists) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("archive %s to %s: %w", f.Name, a.store.Driver(), err)
	}
	a.log.Debugw("backup archived", "name", f.Name, "driver", a.store.Driver())
	if a.keep > 0 {
		if _, err := a.Prune(ctx); err != nil {
			return fmt.Errorf("prune archive: %w", err)
		}
	}
	return nil
}

// Prune deletes archived backups beyond the retention bound, oldest first,
// and returns the deleted names.
func (a *Archive) Prune(ctx context.Context) ([]string, error) {
	if a == nil || a.keep <= 0 {
		return nil, nil
	}
	names, err := a.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(names) <= a.keep {
		return nil, nil
	}
	sort.SliceStable(names, func(i, j int) bool { return archivedStamp(names[i]) > archivedStamp(names[j]) })
	var removed []string
	var errs []error
	for _, name := range names[a.keep:] {
		if _, err := a.store.Delete(ctx, Key(name)); err != nil {
			errs = append(errs, err)
			continue
		}
		removed = append(removed, name)
	}
	if len(removed) > 0 {
		a.log.Debugw("archive pruned", "removed", len(removed))
	}
	return removed, errors.Join(errs...)
}

// archivedStamp reads the epoch-ms segment of <base>.backup.<stamp>.json.
func archivedStamp(name string) int64 {
	parts := strings.Split(strings.TrimSuffix(name, path.Ext(name)), ".")
	stamp, err := strconv.ParseInt(parts[len(parts)-1], 10, 64)
	if err != nil {
		return 0
	}
	return stamp
}

// List returns the archived backup names.
func (a *Archive) List(ctx context.Context) ([]string, error) {
	if a == nil {
		return nil, nil
	}
	infos, err := a.store.List(ctx, ArchivePrefix)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, strings.TrimPrefix(info.Key, ArchivePrefix))
	}
	return names, nil
}

// Fetch downloads an archived backup into dir, returning the local path.
func (a *Archive) Fetch(ctx context.Context, name, dir string) (string, error) {
	if a == nil {
		return "", fmt.Errorf("%w: no archive configured", capacity.ErrBackupNotFound)
	}
	if name != path.Base(name) {
		return "", fmt.Errorf("%w: %q", capacity.ErrBackupNotFound, name)
	}
	_, rc, err := a.store.Get(ctx, Key(name))
	if errors.Is(err, blob.ErrNotFound) {
		return "", fmt.Errorf("%w: %q", capacity.ErrBackupNotFound, name)
	}
	if err != nil {
		return "", err
	}
	defer func() { _ = rc.Close() }()
	dst := filepath.Join(dir, name)
	out, err := os.CreateTemp(dir, ".fetch-*.tmp")
	if err != nil {
		return "", err
	}
	defer func() { _ = os.Remove(out.Name()) }()
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return "", err
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(out.Name(), dst); err != nil {
		return "", err
	}
	return dst, nil
}
