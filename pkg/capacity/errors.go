package capacity

import (
	"errors"
	"fmt"
)

var (
	// ErrCorruptDocument indicates the persisted document cannot be parsed or recovered.
	ErrCorruptDocument = errors.New("corrupt document")
	// ErrSerializationInvariant indicates a candidate write failed its round-trip check.
	ErrSerializationInvariant = errors.New("serialization invariant violation")
	// ErrReferentialGap marks an allocation that references a missing project or member.
	ErrReferentialGap = errors.New("referential gap")
	// ErrIO indicates a filesystem failure during a write step.
	ErrIO = errors.New("io failure")
	// ErrUnknownCollection signals a collection name outside the document schema.
	ErrUnknownCollection = errors.New("unknown collection")
	// ErrInvalidArgument signals failed input validation.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrBackupNotFound signals a missing or malformed backup name.
	ErrBackupNotFound = errors.New("backup not found")
	// ErrSerializerClosed is returned for writes submitted after shutdown.
	ErrSerializerClosed = errors.New("write serializer closed")
	// ErrHistoryRewrite signals an attempt to mutate or drop existing history entries.
	ErrHistoryRewrite = errors.New("allocation history is append-only")
)

// CorruptDocumentError describes where parsing of a document failed.
type CorruptDocumentError struct {
	Path   string
	Offset int64
	Err    error
}

func (e *CorruptDocumentError) Error() string {
	switch {
	case e.Path != "" && e.Offset > 0:
		return fmt.Sprintf("corrupt document %s at offset %d: %v", e.Path, e.Offset, e.Err)
	case e.Path != "":
		return fmt.Sprintf("corrupt document %s: %v", e.Path, e.Err)
	default:
		return fmt.Sprintf("corrupt document: %v", e.Err)
	}
}

// Unwrap exposes both the sentinel and the underlying cause.
func (e *CorruptDocumentError) Unwrap() []error { return []error{ErrCorruptDocument, e.Err} }

// WriteStep names one step of the write protocol.
type WriteStep string

// Write protocol steps, in execution order.
const (
	StepSerialize WriteStep = "serialize"
	StepBackup    WriteStep = "backup"
	StepReplace   WriteStep = "replace"
	StepExport    WriteStep = "export"
	StepMirror    WriteStep = "mirror"
	StepArchive   WriteStep = "archive"
	StepPrune     WriteStep = "prune"
)

// StepError reports the write step that failed.
type StepError struct {
	Step WriteStep
	Err  error
}

func (e *StepError) Error() string { return fmt.Sprintf("write step %s: %v", e.Step, e.Err) }

func (e *StepError) Unwrap() error { return e.Err }

// IOError wraps a filesystem failure so that it matches ErrIO.
func IOError(step WriteStep, err error) error {
	return &StepError{Step: step, Err: fmt.Errorf("%w: %w", ErrIO, err)}
}

// ReferentialGap describes one allocation whose references do not resolve.
type ReferentialGap struct {
	AllocationID     string `json:"allocationId"`
	ProjectID        string `json:"projectId,omitempty"`
	ProductManagerID string `json:"productManagerId,omitempty"`
	MissingProject   bool   `json:"missingProject"`
	MissingMember    bool   `json:"missingMember"`
}

func (g ReferentialGap) Error() string {
	switch {
	case g.MissingProject && g.MissingMember:
		return fmt.Sprintf("%v: allocation %s references missing project %s and member %s", ErrReferentialGap, g.AllocationID, g.ProjectID, g.ProductManagerID)
	case g.MissingProject:
		return fmt.Sprintf("%v: allocation %s references missing project %s", ErrReferentialGap, g.AllocationID, g.ProjectID)
	default:
		return fmt.Sprintf("%v: allocation %s references missing member %s", ErrReferentialGap, g.AllocationID, g.ProductManagerID)
	}
}

// Is lets errors.Is match gaps against ErrReferentialGap.
func (g ReferentialGap) Is(target error) bool { return target == ErrReferentialGap }

// FindReferentialGaps lists allocations whose project or member is absent.
func FindReferentialGaps(d Document) []ReferentialGap {
	projects := d.ProjectIndex()
	members := d.MemberIndex()
	var gaps []ReferentialGap
	for _, a := range d.Allocations {
		_, hasProject := projects[a.ProjectID]
		_, hasMember := members[a.ProductManagerID]
		if hasProject && hasMember {
			continue
		}
		gaps = append(gaps, ReferentialGap{
			AllocationID:     a.ID,
			ProjectID:        a.ProjectID,
			ProductManagerID: a.ProductManagerID,
			MissingProject:   !hasProject,
			MissingMember:    !hasMember,
		})
	}
	return gaps
}
