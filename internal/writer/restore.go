package writer

import (
	"context"
	"fmt"
	"os"

	"capplan/internal/document"
	"capplan/pkg/capacity"
)

// Restore replaces the canonical document with the named backup. It runs as
// a normal write, so the current file (even a corrupt one) is itself backed
// up first. A backup that fails to parse is salvaged by recovery; if that
// fails too the restore is rejected and the canonical file is untouched.
func (s *Serializer) Restore(ctx context.Context, name string) (Result, error) {
	return s.submit(request{produce: func() (capacity.Document, error) {
		f, err := s.rotation.Resolve(name)
		if err != nil {
			return capacity.Document{}, err
		}
		restored, err := ReadBackup(f.Path)
		if err != nil {
			return capacity.Document{}, err
		}
		s.log.Infow("restoring backup", "name", f.Name)
		return restored, nil
	}}).Wait(ctx)
}

// ReplaceFrom writes the document produced by fn without loading the current
// file first. Used by recovery and mirror pulls where the canonical file may
// be unreadable. fn may return ErrSkipWrite alongside the document it would
// have written.
func (s *Serializer) ReplaceFrom(ctx context.Context, fn func() (capacity.Document, error)) (Result, error) {
	return s.submit(request{produce: fn}).Wait(ctx)
}

// ReadBackup parses a backup or archived file, falling back to recovery.
func ReadBackup(path string) (capacity.Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return capacity.Document{}, fmt.Errorf("read backup: %w: %w", capacity.ErrIO, err)
	}
	doc, _, err := document.Decode(raw)
	if err == nil {
		return doc, nil
	}
	doc, _, _, rerr := document.Recover(raw)
	if rerr != nil {
		return capacity.Document{}, err
	}
	return doc, nil
}
