package document

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"capplan/pkg/capacity"

	"go.uber.org/zap"
)

// Store reads the canonical document file. It never writes; all mutations go
// through the write serializer.
type Store struct {
	path          string
	recoverOnLoad bool
	log           *zap.SugaredLogger
}

// Options configures a Store.
type Options struct {
	// RecoverOnLoad salvages the balanced prefix of a corrupt file instead of
	// failing the read.
	RecoverOnLoad bool
}

// NewStore returns a reader for the canonical document at path.
func NewStore(path string, opts Options, log *zap.SugaredLogger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: document path is required", capacity.ErrInvalidArgument)
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve document path: %w", err)
	}
	return &Store{path: abs, recoverOnLoad: opts.RecoverOnLoad, log: log.Named("document")}, nil
}

// Path returns the absolute canonical file path.
func (s *Store) Path() string { return s.path }

// Dir returns the directory holding the canonical file and its siblings.
func (s *Store) Dir() string { return filepath.Dir(s.path) }

// Exists reports whether the canonical file is present.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// ReadRaw returns the canonical file bytes. A missing file yields fs.ErrNotExist.
func (s *Store) ReadRaw() ([]byte, error) {
	return os.ReadFile(s.path)
}

// Load reads and parses the canonical document. A missing file is an empty
// document (first run). Parse failures are CorruptDocument unless recovery on
// load is enabled and a balanced prefix parses.
func (s *Store) Load(ctx context.Context) (capacity.Document, error) {
	if err := ctx.Err(); err != nil {
		return capacity.Document{}, err
	}
	data, err := s.ReadRaw()
	if errors.Is(err, fs.ErrNotExist) {
		s.log.Debugw("canonical document missing, starting empty", "path", s.path)
		return capacity.NewDocument(), nil
	}
	if err != nil {
		return capacity.Document{}, fmt.Errorf("read %s: %w: %w", s.path, capacity.ErrIO, err)
	}
	doc, rep, err := Decode(data)
	if err == nil {
		if rep.Changed() {
			s.log.Infow("normalized legacy fields on load", "renamed", rep.Renamed, "discarded", rep.Discarded, "defaulted", rep.Defaulted)
		}
		return doc, nil
	}
	if !s.recoverOnLoad {
		return capacity.Document{}, withPath(err, s.path)
	}
	recovered, _, prefix, rerr := Recover(data)
	if rerr != nil {
		return capacity.Document{}, withPath(rerr, s.path)
	}
	s.log.Warnw("recovered truncated document", "path", s.path, "kept_bytes", len(prefix), "dropped_bytes", len(data)-len(prefix), "error", err)
	return recovered, nil
}

func withPath(err error, path string) error {
	var ce *capacity.CorruptDocumentError
	if errors.As(err, &ce) && ce.Path == "" {
		cp := *ce
		cp.Path = path
		return &cp
	}
	return err
}
