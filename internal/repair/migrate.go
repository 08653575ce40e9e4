package repair

import (
	"github.com/google/uuid"

	"capplan/pkg/capacity"
)

// idNamespace seeds the deterministic ids derived from legacy keys.
var idNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("capplan:legacy-ids"))

// Kinds used to derive ids, so equal legacy keys of different entities never collide.
const (
	KindTeamMember   = "teamMember"
	KindProject      = "project"
	KindAllocation   = "allocation"
	KindHistoryEntry = "historyEntry"
	KindResourceRole = "resourceRole"
	KindTeam         = "team"
)

// DeterministicID maps a legacy identifier to a UUIDv5. Valid UUIDs are kept
// as is; an empty id stays empty.
func DeterministicID(kind, legacy string) string {
	if legacy == "" {
		return ""
	}
	if _, err := uuid.Parse(legacy); err == nil {
		return legacy
	}
	return uuid.NewSHA1(idNamespace, []byte(kind+":"+legacy)).String()
}

// IDMigrationReport lists the rewritten identifiers, old to new, per collection.
type IDMigrationReport struct {
	Remapped map[capacity.CollectionName]map[string]string `json:"remapped"`
}

// Changed reports whether any identifier was rewritten.
func (r IDMigrationReport) Changed() bool {
	for _, m := range r.Remapped {
		if len(m) > 0 {
			return true
		}
	}
	return false
}

// MigrateIDs replaces every non-UUID identifier with its deterministic UUIDv5
// and rewrites all references. Because the mapping depends only on the legacy
// key, references to records that no longer exist are rewritten consistently
// and the pass is idempotent.
func MigrateIDs(doc capacity.Document) (capacity.Document, IDMigrationReport) {
	out := doc.Clone()
	out.EnsureCollections()
	rep := IDMigrationReport{Remapped: make(map[capacity.CollectionName]map[string]string)}
	remap := func(coll capacity.CollectionName, kind, id string) string {
		next := DeterministicID(kind, id)
		if next != id {
			if rep.Remapped[coll] == nil {
				rep.Remapped[coll] = make(map[string]string)
			}
			rep.Remapped[coll][id] = next
		}
		return next
	}
	ref := func(kind, id string) string { return DeterministicID(kind, id) }

	for i := range out.TeamMembers {
		m := &out.TeamMembers[i]
		m.ID = remap(capacity.CollectionTeamMembers, KindTeamMember, m.ID)
		if m.ManagerID != nil {
			v := ref(KindTeamMember, *m.ManagerID)
			m.ManagerID = &v
		}
		for j, t := range m.TeamIDs {
			m.TeamIDs[j] = ref(KindTeam, t)
		}
		m.TeamIDs = capacity.CanonicalTeamIDs(m.TeamIDs)
	}
	for i := range out.Projects {
		out.Projects[i].ID = remap(capacity.CollectionProjects, KindProject, out.Projects[i].ID)
	}
	migrateAllocation := func(a *capacity.Allocation, coll capacity.CollectionName) {
		if coll != "" {
			a.ID = remap(coll, KindAllocation, a.ID)
		} else {
			a.ID = ref(KindAllocation, a.ID)
		}
		a.ProjectID = ref(KindProject, a.ProjectID)
		a.ProductManagerID = ref(KindTeamMember, a.ProductManagerID)
	}
	for i := range out.Allocations {
		migrateAllocation(&out.Allocations[i], capacity.CollectionAllocations)
	}
	for i := range out.AllocationHistory {
		h := &out.AllocationHistory[i]
		h.ID = remap(capacity.CollectionAllocationHistory, KindHistoryEntry, h.ID)
		h.AllocationID = ref(KindAllocation, h.AllocationID)
		if h.OldValue != nil {
			migrateAllocation(h.OldValue, "")
		}
		if h.NewValue != nil {
			migrateAllocation(h.NewValue, "")
		}
	}
	for i := range out.ResourceRoles {
		out.ResourceRoles[i].ID = remap(capacity.CollectionResourceRoles, KindResourceRole, out.ResourceRoles[i].ID)
	}
	for i := range out.Teams {
		out.Teams[i].ID = remap(capacity.CollectionTeams, KindTeam, out.Teams[i].ID)
	}
	return out, rep
}
