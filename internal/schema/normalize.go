// Package schema rewrites documents written by older versions of the planner
// into the current field layout. It works on the generic decoded JSON tree so
// legacy names survive until they are renamed.
package schema

import (
	"capplan/pkg/capacity"
)

// Rename maps one legacy field name onto its canonical name.
type Rename struct {
	Legacy    string
	Canonical string
}

// Raw is a decoded JSON object.
type Raw = map[string]any

// topLevelRenames apply to the document object itself.
var topLevelRenames = []Rename{
	{Legacy: "productManagers", Canonical: string(capacity.CollectionTeamMembers)},
	{Legacy: "allocationsHistory", Canonical: string(capacity.CollectionAllocationHistory)},
	{Legacy: "history", Canonical: string(capacity.CollectionAllocationHistory)},
	{Legacy: "roles", Canonical: string(capacity.CollectionResourceRoles)},
}

var allocationRenames = []Rename{
	{Legacy: "pmId", Canonical: "productManagerId"},
	{Legacy: "teamMemberId", Canonical: "productManagerId"},
	{Legacy: "percentage", Canonical: "allocationPercentage"},
	{Legacy: "days", Canonical: "allocationDays"},
	{Legacy: "created_by", Canonical: "createdBy"},
	{Legacy: "created_at", Canonical: "createdAt"},
}

// recordRenames holds the legacy → canonical table per collection. Order
// matters when two legacy names map to the same canonical field: the first
// present one wins, later ones are discarded.
var recordRenames = map[capacity.CollectionName][]Rename{
	capacity.CollectionTeamMembers: {
		{Legacy: "fullName", Canonical: "name"},
		{Legacy: "active", Canonical: "isActive"},
		{Legacy: "created_at", Canonical: "createdAt"},
		{Legacy: "managerID", Canonical: "managerId"},
		{Legacy: "manager_id", Canonical: "managerId"},
		{Legacy: "capacity", Canonical: "capacityPercentage"},
		{Legacy: "teams", Canonical: "teamIds"},
	},
	capacity.CollectionProjects: {
		{Legacy: "customer", Canonical: "customerName"},
		{Legacy: "name", Canonical: "projectName"},
		{Legacy: "type", Canonical: "projectType"},
		{Legacy: "maxCapacity", Canonical: "maxCapacityPercentage"},
		{Legacy: "pmo", Canonical: "pmoContact"},
		{Legacy: "archived", Canonical: "isArchived"},
		{Legacy: "comments", Canonical: "comment"},
		{Legacy: "created_at", Canonical: "createdAt"},
	},
	capacity.CollectionAllocations: allocationRenames,
	capacity.CollectionAllocationHistory: {
		{Legacy: "action", Canonical: "changeType"},
		{Legacy: "old_value", Canonical: "oldValue"},
		{Legacy: "new_value", Canonical: "newValue"},
		{Legacy: "user", Canonical: "changedBy"},
		{Legacy: "timestamp", Canonical: "changedAt"},
	},
	capacity.CollectionResourceRoles: {
		{Legacy: "archived", Canonical: "isArchived"},
		{Legacy: "created_at", Canonical: "createdAt"},
	},
	capacity.CollectionTeams: {
		{Legacy: "archived", Canonical: "isArchived"},
		{Legacy: "created_at", Canonical: "createdAt"},
	},
}

// Renames returns the rename table for a collection.
func Renames(name capacity.CollectionName) []Rename {
	return append([]Rename(nil), recordRenames[name]...)
}

// Report counts what a normalization pass changed.
type Report struct {
	Renamed   int `json:"renamed"`
	Discarded int `json:"discarded"`
	Defaulted int `json:"defaulted"`
}

// Changed reports whether the pass modified anything.
func (r Report) Changed() bool { return r.Renamed+r.Discarded+r.Defaulted > 0 }

func (r *Report) add(o Report) {
	r.Renamed += o.Renamed
	r.Discarded += o.Discarded
	r.Defaulted += o.Defaulted
}

// Normalize rewrites a whole document in place. Running it on an already
// normalized document changes nothing.
func Normalize(doc Raw) Report {
	var rep Report
	rep.add(applyRenames(doc, topLevelRenames))
	for _, name := range capacity.Collections {
		items, ok := doc[string(name)].([]any)
		if !ok {
			continue
		}
		rep.add(NormalizeCollection(name, items))
	}
	return rep
}

// NormalizeCollection rewrites every record of one collection in place.
// Non-object entries are left for the typed decoder to reject.
func NormalizeCollection(name capacity.CollectionName, items []any) Report {
	var rep Report
	table := recordRenames[name]
	for _, item := range items {
		rec, ok := item.(Raw)
		if !ok {
			continue
		}
		rep.add(applyRenames(rec, table))
		switch name {
		case capacity.CollectionAllocationHistory:
			for _, key := range []string{"oldValue", "newValue"} {
				if nested, ok := rec[key].(Raw); ok {
					rep.add(applyRenames(nested, allocationRenames))
				}
			}
		case capacity.CollectionTeamMembers:
			if v, ok := rec["capacityPercentage"]; !ok || v == nil {
				rec["capacityPercentage"] = capacity.DefaultCapacityPercentage
				rep.Defaulted++
			}
		}
	}
	return rep
}

func applyRenames(rec Raw, table []Rename) Report {
	var rep Report
	for _, r := range table {
		v, ok := rec[r.Legacy]
		if !ok {
			continue
		}
		delete(rec, r.Legacy)
		if _, exists := rec[r.Canonical]; exists {
			rep.Discarded++
			continue
		}
		rec[r.Canonical] = v
		rep.Renamed++
	}
	return rep
}
