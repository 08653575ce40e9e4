package capacity

import (
	"fmt"
	"sort"
)

// CollectionName identifies a top-level collection of the document.
type CollectionName string

// Top-level collections, in the order they are persisted.
const (
	CollectionTeamMembers       CollectionName = "teamMembers"
	CollectionProjects          CollectionName = "projects"
	CollectionAllocations       CollectionName = "allocations"
	CollectionAllocationHistory CollectionName = "allocationHistory"
	CollectionResourceRoles     CollectionName = "resourceRoles"
	CollectionTeams             CollectionName = "teams"
)

// Collections lists every known collection name in persisted order.
var Collections = []CollectionName{
	CollectionTeamMembers,
	CollectionProjects,
	CollectionAllocations,
	CollectionAllocationHistory,
	CollectionResourceRoles,
	CollectionTeams,
}

// ParseCollectionName validates a collection name received from a caller.
func ParseCollectionName(name string) (CollectionName, error) {
	for _, c := range Collections {
		if string(c) == name {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCollection, name)
}

// Document is the whole dataset; it is always read and written as a unit.
type Document struct {
	TeamMembers       []TeamMember   `json:"teamMembers"`
	Projects          []Project      `json:"projects"`
	Allocations       []Allocation   `json:"allocations"`
	AllocationHistory []HistoryEntry `json:"allocationHistory"`
	ResourceRoles     []ResourceRole `json:"resourceRoles"`
	Teams             []Team         `json:"teams"`
}

// NewDocument returns an empty document with every collection present.
func NewDocument() Document {
	var d Document
	d.EnsureCollections()
	return d
}

// EnsureCollections replaces nil collections with empty ones so the document
// always serializes every collection as an array.
func (d *Document) EnsureCollections() {
	if d.TeamMembers == nil {
		d.TeamMembers = []TeamMember{}
	}
	if d.Projects == nil {
		d.Projects = []Project{}
	}
	if d.Allocations == nil {
		d.Allocations = []Allocation{}
	}
	if d.AllocationHistory == nil {
		d.AllocationHistory = []HistoryEntry{}
	}
	if d.ResourceRoles == nil {
		d.ResourceRoles = []ResourceRole{}
	}
	if d.Teams == nil {
		d.Teams = []Team{}
	}
	for i := range d.TeamMembers {
		if d.TeamMembers[i].TeamIDs == nil {
			d.TeamMembers[i].TeamIDs = []string{}
		}
	}
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	out := Document{
		TeamMembers:       make([]TeamMember, len(d.TeamMembers)),
		Projects:          make([]Project, len(d.Projects)),
		Allocations:       make([]Allocation, len(d.Allocations)),
		AllocationHistory: make([]HistoryEntry, len(d.AllocationHistory)),
		ResourceRoles:     append([]ResourceRole{}, d.ResourceRoles...),
		Teams:             append([]Team{}, d.Teams...),
	}
	for i, m := range d.TeamMembers {
		out.TeamMembers[i] = cloneTeamMember(m)
	}
	for i, p := range d.Projects {
		out.Projects[i] = cloneProject(p)
	}
	for i, a := range d.Allocations {
		out.Allocations[i] = CloneAllocation(a)
	}
	for i, h := range d.AllocationHistory {
		out.AllocationHistory[i] = cloneHistoryEntry(h)
	}
	return out
}

// Collection returns the named collection as its typed slice.
func (d Document) Collection(name CollectionName) (any, error) {
	switch name {
	case CollectionTeamMembers:
		return d.TeamMembers, nil
	case CollectionProjects:
		return d.Projects, nil
	case CollectionAllocations:
		return d.Allocations, nil
	case CollectionAllocationHistory:
		return d.AllocationHistory, nil
	case CollectionResourceRoles:
		return d.ResourceRoles, nil
	case CollectionTeams:
		return d.Teams, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCollection, name)
	}
}

// Len reports the number of records in the named collection.
func (d Document) Len(name CollectionName) int {
	switch name {
	case CollectionTeamMembers:
		return len(d.TeamMembers)
	case CollectionProjects:
		return len(d.Projects)
	case CollectionAllocations:
		return len(d.Allocations)
	case CollectionAllocationHistory:
		return len(d.AllocationHistory)
	case CollectionResourceRoles:
		return len(d.ResourceRoles)
	case CollectionTeams:
		return len(d.Teams)
	default:
		return 0
	}
}

// ProjectIndex maps project ids to projects.
func (d Document) ProjectIndex() map[string]Project {
	out := make(map[string]Project, len(d.Projects))
	for _, p := range d.Projects {
		out[p.ID] = p
	}
	return out
}

// MemberIndex maps team member ids to team members.
func (d Document) MemberIndex() map[string]TeamMember {
	out := make(map[string]TeamMember, len(d.TeamMembers))
	for _, m := range d.TeamMembers {
		out[m.ID] = m
	}
	return out
}

// AllocationIDs returns the set of allocation ids currently present.
func (d Document) AllocationIDs() map[string]struct{} {
	out := make(map[string]struct{}, len(d.Allocations))
	for _, a := range d.Allocations {
		out[a.ID] = struct{}{}
	}
	return out
}

// CanonicalTeamIDs dedupes and sorts a team id set.
func CanonicalTeamIDs(ids []string) []string {
	if len(ids) == 0 {
		return []string{}
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
