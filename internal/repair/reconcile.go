// Package repair holds offline passes over the document: rebuilding
// allocations from history, deterministic id migration, and the history
// bookkeeping applied on every allocation write.
package repair

import (
	"capplan/pkg/capacity"
)

// ReconcileReport describes one reconciliation pass.
type ReconcileReport struct {
	// Reinserted lists allocation ids restored from created history entries.
	Reinserted []string `json:"reinserted"`
	// Suppressed lists ids absent from state whose creation was followed by a
	// deletion; they are left out.
	Suppressed []string `json:"suppressed"`
	// Gaps lists allocations whose references do not resolve after the pass.
	Gaps []capacity.ReferentialGap `json:"gaps"`
}

// Changed reports whether the pass modified the document.
func (r ReconcileReport) Changed() bool { return len(r.Reinserted) > 0 }

// ReconcileFromHistory appends the recorded snapshot of every created history
// entry whose allocation is missing from the live set, unless a later deleted
// entry exists for the same allocation. Entries are scanned in log order, so
// the first created snapshot of an id wins. The input is not modified.
func ReconcileFromHistory(doc capacity.Document) (capacity.Document, ReconcileReport) {
	out := doc.Clone()
	out.EnsureCollections()
	present := out.AllocationIDs()

	lastDeleted := make(map[string]int)
	for i, h := range out.AllocationHistory {
		if h.ChangeType == capacity.ChangeDeleted {
			lastDeleted[entryAllocationID(h)] = i
		}
	}

	rep := ReconcileReport{Reinserted: []string{}, Suppressed: []string{}}
	suppressed := make(map[string]bool)
	for i, h := range out.AllocationHistory {
		if h.ChangeType != capacity.ChangeCreated || h.NewValue == nil {
			continue
		}
		id := entryAllocationID(h)
		if id == "" {
			continue
		}
		if _, ok := present[id]; ok {
			continue
		}
		if del, ok := lastDeleted[id]; ok && del > i {
			if !suppressed[id] {
				suppressed[id] = true
				rep.Suppressed = append(rep.Suppressed, id)
			}
			continue
		}
		a := capacity.CloneAllocation(*h.NewValue)
		a.ID = id
		out.Allocations = append(out.Allocations, a)
		present[id] = struct{}{}
		rep.Reinserted = append(rep.Reinserted, id)
	}
	rep.Gaps = capacity.FindReferentialGaps(out)
	if rep.Gaps == nil {
		rep.Gaps = []capacity.ReferentialGap{}
	}
	return out, rep
}

func entryAllocationID(h capacity.HistoryEntry) string {
	if h.AllocationID != "" {
		return h.AllocationID
	}
	switch {
	case h.NewValue != nil:
		return h.NewValue.ID
	case h.OldValue != nil:
		return h.OldValue.ID
	}
	return ""
}
