// Package service exposes the capacity operations shared by the HTTP server
// and the CLI. Every mutation runs through the write serializer.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"capplan/internal/backup"
	"capplan/internal/document"
	"capplan/internal/export"
	"capplan/internal/hubspot"
	"capplan/internal/infra/persistence"
	"capplan/internal/repair"
	"capplan/internal/schema"
	"capplan/internal/writer"
	"capplan/pkg/capacity"
)

// DefaultActor is recorded on history entries when the caller names nobody.
const DefaultActor = "system"

// ErrNoMirror is returned by mirror operations when no mirror is configured.
var ErrNoMirror = errors.New("no mirror configured")

// Options carries the optional collaborators of a Service.
type Options struct {
	Archive *backup.Archive
	Mirror  persistence.Mirror
	// Now and NewID default to the wall clock and random UUIDs.
	Now   func() time.Time
	NewID func() string
}

// Service orchestrates reads, validated collection replacement, repair passes
// and restores over one canonical document.
type Service struct {
	writer  *writer.Serializer
	archive *backup.Archive
	mirror  persistence.Mirror
	now     func() time.Time
	newID   func() string
	log     *zap.SugaredLogger
}

// New wires a service around the serializer that owns the canonical file.
func New(w *writer.Serializer, opts Options, log *zap.SugaredLogger) *Service {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return uuid.NewString() }
	}
	return &Service{
		writer:  w,
		archive: opts.Archive,
		mirror:  opts.Mirror,
		now:     opts.Now,
		newID:   opts.NewID,
		log:     log.Named("service"),
	}
}

// Writer returns the serializer.
func (s *Service) Writer() *writer.Serializer { return s.writer }

// Document loads the canonical document.
func (s *Service) Document(ctx context.Context) (capacity.Document, error) {
	return s.writer.Store().Load(ctx)
}

// Collection loads one named collection.
func (s *Service) Collection(ctx context.Context, name string) (any, error) {
	coll, err := capacity.ParseCollectionName(name)
	if err != nil {
		return nil, err
	}
	doc, err := s.Document(ctx)
	if err != nil {
		return nil, err
	}
	doc.EnsureCollections()
	return doc.Collection(coll)
}

// Gaps reports allocations whose project or member is missing.
func (s *Service) Gaps(ctx context.Context) ([]capacity.ReferentialGap, error) {
	doc, err := s.Document(ctx)
	if err != nil {
		return nil, err
	}
	return capacity.FindReferentialGaps(doc), nil
}

// Backups lists local backup file names, most recent first.
func (s *Service) Backups(context.Context) ([]string, error) {
	files, err := s.writer.Rotation().List()
	if err != nil {
		return nil, fmt.Errorf("list backups: %w: %w", capacity.ErrIO, err)
	}
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Name)
	}
	return names, nil
}

// ArchivedBackups lists backups held in the offsite archive.
func (s *Service) ArchivedBackups(ctx context.Context) ([]string, error) {
	return s.archive.List(ctx)
}

// ReplaceCollection swaps one top-level collection for payload, a JSON array.
// Records are validated, missing ids and creation stamps are filled, allocation
// changes are logged to history in the same write, and history itself only
// accepts appends.
func (s *Service) ReplaceCollection(ctx context.Context, name string, payload []byte, actor string) (writer.Result, error) {
	coll, err := capacity.ParseCollectionName(name)
	if err != nil {
		return writer.Result{}, err
	}
	value, rep, err := document.DecodeCollection(coll, payload)
	if err != nil {
		return writer.Result{}, err
	}
	if rep.Changed() {
		s.log.Infow("normalized legacy fields in payload", "collection", coll, "renamed", rep.Renamed, "discarded", rep.Discarded)
	}
	now := s.now()
	if err := s.prepare(value, now, actorOrDefault(actor)); err != nil {
		return writer.Result{}, err
	}
	return s.writer.Update(ctx, func(doc *capacity.Document) error {
		doc.EnsureCollections()
		switch v := value.(type) {
		case []capacity.Allocation:
			entries := repair.DiffAllocations(doc.Allocations, v, repair.HistoryStamp{Actor: actorOrDefault(actor), Now: now, NewID: s.newID})
			doc.AllocationHistory = append(doc.AllocationHistory, entries...)
		case []capacity.HistoryEntry:
			if err := repair.CheckAppendOnly(doc.AllocationHistory, v); err != nil {
				return err
			}
			for i := len(doc.AllocationHistory); i < len(v); i++ {
				s.fill(&v[i].ID, &v[i].ChangedAt, now)
			}
		}
		return document.ReplaceCollection(doc, coll, value)
	})
}

func actorOrDefault(actor string) string {
	if actor == "" {
		return DefaultActor
	}
	return actor
}

// prepare validates records and fills ids and creation stamps in place. Ids
// must be unique within one replacement.
func (s *Service) prepare(value any, now time.Time, actor string) error {
	seen := make(map[string]struct{})
	unique := func(id string) error {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: duplicate id %q", capacity.ErrInvalidArgument, id)
		}
		seen[id] = struct{}{}
		return nil
	}
	switch v := value.(type) {
	case []capacity.Allocation:
		for i := range v {
			a := &v[i]
			s.fill(&a.ID, &a.CreatedAt, now)
			if a.CreatedBy == "" {
				a.CreatedBy = actor
			}
			if err := capacity.ValidateAllocation(*a); err != nil {
				return err
			}
			if err := unique(a.ID); err != nil {
				return err
			}
		}
	case []capacity.Project:
		for i := range v {
			p := &v[i]
			s.fill(&p.ID, &p.CreatedAt, now)
			if p.ProjectType == "" {
				p.ProjectType = capacity.ProjectTypeSoftware
			}
			if p.Status == "" {
				p.Status = capacity.ProjectStatusActive
			}
			if err := capacity.ValidateProject(*p); err != nil {
				return err
			}
			if err := unique(p.ID); err != nil {
				return err
			}
		}
	case []capacity.TeamMember:
		for i := range v {
			m := &v[i]
			s.fill(&m.ID, &m.CreatedAt, now)
			m.TeamIDs = capacity.CanonicalTeamIDs(m.TeamIDs)
			if err := unique(m.ID); err != nil {
				return err
			}
		}
	case []capacity.ResourceRole:
		for i := range v {
			s.fill(&v[i].ID, &v[i].CreatedAt, now)
			if err := unique(v[i].ID); err != nil {
				return err
			}
		}
	case []capacity.Team:
		for i := range v {
			s.fill(&v[i].ID, &v[i].CreatedAt, now)
			if err := unique(v[i].ID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Service) fill(id *string, created *time.Time, now time.Time) {
	if *id == "" {
		*id = s.newID()
	}
	if created.IsZero() {
		*created = now
	}
}

// ImportHubSpotEmail extracts a project from a deal notification e-mail and
// appends it.
func (s *Service) ImportHubSpotEmail(ctx context.Context, content string) (capacity.Project, writer.Result, error) {
	deal, err := hubspot.Parse(content)
	if err != nil {
		return capacity.Project{}, writer.Result{}, err
	}
	project := deal.Project(s.newID(), s.now())
	res, err := s.writer.Update(ctx, func(doc *capacity.Document) error {
		doc.Projects = append(doc.Projects, project)
		return nil
	})
	if err != nil {
		return capacity.Project{}, writer.Result{}, err
	}
	s.log.Infow("imported hubspot deal", "project_id", project.ID, "customer", project.CustomerName, "type", project.ProjectType)
	return project, res, nil
}

// Restore replaces the canonical document with a named backup. A name that
// is not present locally is fetched from the offsite archive first.
func (s *Service) Restore(ctx context.Context, name string) (writer.Result, error) {
	if _, err := s.writer.Rotation().Resolve(name); errors.Is(err, capacity.ErrBackupNotFound) && s.archive != nil {
		if _, ferr := s.archive.Fetch(ctx, name, s.writer.Store().Dir()); ferr != nil {
			return writer.Result{}, ferr
		}
		s.log.Infow("fetched backup from archive", "name", name)
	}
	return s.writer.Restore(ctx, name)
}

// Reconcile reinserts allocations recorded as created in history but missing
// from the live set.
func (s *Service) Reconcile(ctx context.Context, dryRun bool) (repair.ReconcileReport, writer.Result, error) {
	var rep repair.ReconcileReport
	res, err := s.writer.Update(ctx, func(doc *capacity.Document) error {
		var next capacity.Document
		next, rep = repair.ReconcileFromHistory(*doc)
		if dryRun || !rep.Changed() {
			return writer.ErrSkipWrite
		}
		*doc = next
		return nil
	})
	return rep, res, err
}

// MigrateIDs replaces non-UUID identifiers with deterministic UUIDv5 values.
func (s *Service) MigrateIDs(ctx context.Context, dryRun bool) (repair.IDMigrationReport, writer.Result, error) {
	var rep repair.IDMigrationReport
	res, err := s.writer.Update(ctx, func(doc *capacity.Document) error {
		var next capacity.Document
		next, rep = repair.MigrateIDs(*doc)
		if dryRun || !rep.Changed() {
			return writer.ErrSkipWrite
		}
		*doc = next
		return nil
	})
	return rep, res, err
}

// Normalize rewrites legacy field names in the canonical file.
func (s *Service) Normalize(ctx context.Context, dryRun bool) (schema.Report, writer.Result, error) {
	var rep schema.Report
	res, err := s.writer.ReplaceFrom(ctx, func() (capacity.Document, error) {
		raw, err := s.writer.Store().ReadRaw()
		if err != nil {
			return capacity.Document{}, fmt.Errorf("read %s: %w: %w", s.writer.Store().Path(), capacity.ErrIO, err)
		}
		var doc capacity.Document
		doc, rep, err = document.Decode(raw)
		if err != nil {
			return capacity.Document{}, err
		}
		if dryRun || !rep.Changed() {
			return doc, writer.ErrSkipWrite
		}
		return doc, nil
	})
	return rep, res, err
}

// RecoveryReport describes a recovery pass.
type RecoveryReport struct {
	Intact       bool `json:"intact"`
	KeptBytes    int  `json:"keptBytes"`
	DroppedBytes int  `json:"droppedBytes"`
}

// Recover salvages the balanced prefix of a corrupt canonical file. When
// write is set the recovered document replaces the file; the corrupt original
// is kept as a backup.
func (s *Service) Recover(ctx context.Context, write bool) (RecoveryReport, writer.Result, error) {
	var rep RecoveryReport
	res, err := s.writer.ReplaceFrom(ctx, func() (capacity.Document, error) {
		raw, err := s.writer.Store().ReadRaw()
		if err != nil {
			return capacity.Document{}, fmt.Errorf("read %s: %w: %w", s.writer.Store().Path(), capacity.ErrIO, err)
		}
		if doc, _, derr := document.Decode(raw); derr == nil {
			rep = RecoveryReport{Intact: true, KeptBytes: len(raw)}
			return doc, writer.ErrSkipWrite
		}
		doc, _, prefix, err := document.Recover(raw)
		if err != nil {
			return capacity.Document{}, err
		}
		rep = RecoveryReport{KeptBytes: len(prefix), DroppedBytes: len(raw) - len(prefix)}
		if !write {
			return doc, writer.ErrSkipWrite
		}
		s.log.Warnw("replacing corrupt document with recovered prefix", "kept_bytes", rep.KeptBytes, "dropped_bytes", rep.DroppedBytes)
		return doc, nil
	})
	return rep, res, err
}

// MirrorPush copies the canonical document to the relational mirror.
func (s *Service) MirrorPush(ctx context.Context) error {
	if s.mirror == nil {
		return ErrNoMirror
	}
	doc, err := s.Document(ctx)
	if err != nil {
		return err
	}
	return s.mirror.Push(ctx, doc)
}

// MirrorPull replaces the canonical document with the mirrored one.
func (s *Service) MirrorPull(ctx context.Context) (writer.Result, error) {
	if s.mirror == nil {
		return writer.Result{}, ErrNoMirror
	}
	doc, err := s.mirror.Pull(ctx)
	if err != nil {
		return writer.Result{}, fmt.Errorf("pull from %s mirror: %w", s.mirror.Driver(), err)
	}
	return s.writer.ReplaceFrom(ctx, func() (capacity.Document, error) { return doc, nil })
}

// Export writes one tabular export of the current document.
func (s *Service) Export(ctx context.Context, e *export.Exporter) error {
	doc, err := s.Document(ctx)
	if err != nil {
		return err
	}
	return e.Push(ctx, doc)
}

// Workbook renders the current document as an XLSX workbook.
func (s *Service) Workbook(ctx context.Context, w io.Writer) error {
	doc, err := s.Document(ctx)
	if err != nil {
		return err
	}
	return export.WriteWorkbook(w, doc)
}
