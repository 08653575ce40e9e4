package writer

import (
	"context"

	"capplan/internal/backup"
	"capplan/pkg/capacity"
)

// DocumentPusher is anything that can take a copy of the committed document,
// such as the tabular exporter or the relational mirror.
type DocumentPusher interface {
	Push(ctx context.Context, doc capacity.Document) error
}

type pushSink struct {
	step capacity.WriteStep
	to   DocumentPusher
}

func (p pushSink) Step() capacity.WriteStep { return p.step }

func (p pushSink) Apply(ctx context.Context, c Committed) error { return p.to.Push(ctx, c.Document) }

// PushSink forwards every committed document to to, reporting failures under step.
func PushSink(step capacity.WriteStep, to DocumentPusher) Sink {
	return pushSink{step: step, to: to}
}

type archiveSink struct{ archive *backup.Archive }

func (archiveSink) Step() capacity.WriteStep { return capacity.StepArchive }

func (a archiveSink) Apply(ctx context.Context, c Committed) error {
	if c.Backup == nil {
		return nil
	}
	return a.archive.Push(ctx, *c.Backup)
}

// ArchiveSink copies each pre-write backup offsite.
func ArchiveSink(a *backup.Archive) Sink { return archiveSink{archive: a} }
