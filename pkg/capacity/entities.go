// Package capacity defines the capacity-planning records persisted in the
// canonical document: team members, customer projects, sprint allocations,
// the allocation change log and the small reference tables.
package capacity

import (
	"encoding/json"
	"fmt"
	"time"
)

// ProjectType classifies the kind of work delivered for a customer.
type ProjectType string

// Supported project types.
const (
	ProjectTypeSoftware ProjectType = "Software"
	ProjectTypeAI       ProjectType = "AI"
	ProjectTypeHybrid   ProjectType = "Hybrid"
)

// Valid reports whether the project type is one of the supported values.
func (t ProjectType) Valid() bool {
	switch t {
	case ProjectTypeSoftware, ProjectTypeAI, ProjectTypeHybrid:
		return true
	default:
		return false
	}
}

// Project statuses used by the planning board.
const (
	ProjectStatusActive   = "Active"
	ProjectStatusArchived = "Archived"
)

// ChangeType identifies the kind of allocation change recorded in history.
type ChangeType string

// Allocation change types. History is append-only.
const (
	ChangeCreated ChangeType = "created"
	ChangeUpdated ChangeType = "updated"
	ChangeDeleted ChangeType = "deleted"
)

// DefaultCapacityPercentage applies to team members without an explicit capacity.
const DefaultCapacityPercentage float64 = 100

// TeamMember is a person whose time is allocated to projects. Email is the
// business key.
type TeamMember struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Email              string    `json:"email"`
	Role               string    `json:"role"`
	IsActive           bool      `json:"isActive"`
	CreatedAt          time.Time `json:"createdAt"`
	ManagerID          *string   `json:"managerId"`
	CapacityPercentage float64   `json:"capacityPercentage"`
	TeamIDs            []string  `json:"teamIds"`
}

// ProjectMetadata carries provenance for imported projects. Keys other than
// the known ones are kept in Extra and written back unchanged.
type ProjectMetadata struct {
	DealAmount   *float64       `json:"dealAmount,omitempty"`
	SourceSystem string         `json:"sourceSystem,omitempty"`
	ImportedAt   *time.Time     `json:"importedAt,omitempty"`
	Extra        map[string]any `json:"-"`
}

type knownMetadata struct {
	DealAmount   *float64   `json:"dealAmount,omitempty"`
	SourceSystem string     `json:"sourceSystem,omitempty"`
	ImportedAt   *time.Time `json:"importedAt,omitempty"`
}

var knownMetadataKeys = []string{"dealAmount", "sourceSystem", "importedAt"}

// MarshalJSON writes the known keys and Extra as one object. Known keys win
// over Extra entries of the same name.
func (m ProjectMetadata) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(knownMetadata{DealAmount: m.DealAmount, SourceSystem: m.SourceSystem, ImportedAt: m.ImportedAt})
	if err != nil {
		return nil, err
	}
	if len(m.Extra) == 0 {
		return known, nil
	}
	out := make(map[string]json.RawMessage, len(m.Extra)+len(knownMetadataKeys))
	for k, v := range m.Extra {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("metadata %q: %w", k, err)
		}
		out[k] = b
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(known, &fields); err != nil {
		return nil, err
	}
	for _, k := range knownMetadataKeys {
		delete(out, k)
	}
	for k, v := range fields {
		out[k] = v
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads the known keys and collects the rest into Extra.
func (m *ProjectMetadata) UnmarshalJSON(data []byte) error {
	var known knownMetadata
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}
	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, k := range knownMetadataKeys {
		delete(all, k)
	}
	*m = ProjectMetadata{DealAmount: known.DealAmount, SourceSystem: known.SourceSystem, ImportedAt: known.ImportedAt}
	if len(all) > 0 {
		m.Extra = all
	}
	return nil
}

// Project is a customer engagement that receives allocations.
type Project struct {
	ID                    string           `json:"id"`
	CustomerName          string           `json:"customerName"`
	ProjectName           string           `json:"projectName"`
	ProjectType           ProjectType      `json:"projectType"`
	Status                string           `json:"status"`
	MaxCapacityPercentage *float64         `json:"maxCapacityPercentage"`
	PMOContact            *string          `json:"pmoContact"`
	IsArchived            bool             `json:"isArchived"`
	Comment               string           `json:"comment"`
	CreatedAt             time.Time        `json:"createdAt"`
	Metadata              *ProjectMetadata `json:"metadata,omitempty"`
}

// Allocation assigns a share of one team member's sprint to a project.
type Allocation struct {
	ID                   string    `json:"id"`
	ProjectID            string    `json:"projectId"`
	ProductManagerID     string    `json:"productManagerId"`
	Year                 int       `json:"year"`
	Month                int       `json:"month"`
	Sprint               int       `json:"sprint"`
	AllocationPercentage float64   `json:"allocationPercentage"`
	AllocationDays       *float64  `json:"allocationDays"`
	CreatedBy            string    `json:"createdBy"`
	CreatedAt            time.Time `json:"createdAt"`
}

// Period returns the sprint the allocation belongs to.
func (a Allocation) Period() Sprint {
	return Sprint{Year: a.Year, Month: time.Month(a.Month), Index: a.Sprint}
}

// HistoryEntry records one allocation change. Old and new values are full
// snapshots; OldValue is nil for creations and NewValue is nil for deletions.
type HistoryEntry struct {
	ID           string      `json:"id"`
	AllocationID string      `json:"allocationId"`
	ChangeType   ChangeType  `json:"changeType"`
	OldValue     *Allocation `json:"oldValue"`
	NewValue     *Allocation `json:"newValue"`
	ChangedBy    string      `json:"changedBy"`
	ChangedAt    time.Time   `json:"changedAt"`
}

// ResourceRole is a reference row for team member roles.
type ResourceRole struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	IsArchived bool      `json:"isArchived"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Team is a reference row grouping team members.
type Team struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	IsArchived bool      `json:"isArchived"`
	CreatedAt  time.Time `json:"createdAt"`
}

// CloneAllocation returns a deep copy of the allocation.
func CloneAllocation(a Allocation) Allocation {
	cp := a
	if a.AllocationDays != nil {
		v := *a.AllocationDays
		cp.AllocationDays = &v
	}
	return cp
}

func cloneProject(p Project) Project {
	cp := p
	if p.MaxCapacityPercentage != nil {
		v := *p.MaxCapacityPercentage
		cp.MaxCapacityPercentage = &v
	}
	if p.PMOContact != nil {
		v := *p.PMOContact
		cp.PMOContact = &v
	}
	if p.Metadata != nil {
		md := *p.Metadata
		if md.DealAmount != nil {
			v := *md.DealAmount
			md.DealAmount = &v
		}
		if md.ImportedAt != nil {
			v := *md.ImportedAt
			md.ImportedAt = &v
		}
		if md.Extra != nil {
			md.Extra = cloneAny(md.Extra).(map[string]any)
		}
		cp.Metadata = &md
	}
	return cp
}

func cloneTeamMember(m TeamMember) TeamMember {
	cp := m
	if m.ManagerID != nil {
		v := *m.ManagerID
		cp.ManagerID = &v
	}
	cp.TeamIDs = append([]string(nil), m.TeamIDs...)
	return cp
}

func cloneHistoryEntry(h HistoryEntry) HistoryEntry {
	cp := h
	if h.OldValue != nil {
		v := CloneAllocation(*h.OldValue)
		cp.OldValue = &v
	}
	if h.NewValue != nil {
		v := CloneAllocation(*h.NewValue)
		cp.NewValue = &v
	}
	return cp
}

// cloneAny deep-copies a decoded JSON value.
func cloneAny(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = cloneAny(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneAny(e)
		}
		return out
	default:
		return v
	}
}
