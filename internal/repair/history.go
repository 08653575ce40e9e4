package repair

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"capplan/pkg/capacity"
)

// HistoryStamp supplies the actor, clock and id source for new history entries.
type HistoryStamp struct {
	Actor string
	Now   time.Time
	NewID func() string
}

// DiffAllocations returns the history entries describing the change from
// before to after: created and updated entries in the order of after, then
// deleted entries in the order of before.
func DiffAllocations(before, after []capacity.Allocation, st HistoryStamp) []capacity.HistoryEntry {
	old := make(map[string]capacity.Allocation, len(before))
	for _, a := range before {
		old[a.ID] = a
	}
	seen := make(map[string]bool, len(after))
	var entries []capacity.HistoryEntry
	entry := func(id string, ct capacity.ChangeType, o, n *capacity.Allocation) {
		entries = append(entries, capacity.HistoryEntry{
			ID:           st.NewID(),
			AllocationID: id,
			ChangeType:   ct,
			OldValue:     o,
			NewValue:     n,
			ChangedBy:    st.Actor,
			ChangedAt:    st.Now,
		})
	}
	for _, a := range after {
		seen[a.ID] = true
		n := capacity.CloneAllocation(a)
		prev, ok := old[a.ID]
		if !ok {
			entry(a.ID, capacity.ChangeCreated, nil, &n)
			continue
		}
		if !sameAllocation(prev, a) {
			o := capacity.CloneAllocation(prev)
			entry(a.ID, capacity.ChangeUpdated, &o, &n)
		}
	}
	for _, a := range before {
		if seen[a.ID] {
			continue
		}
		o := capacity.CloneAllocation(a)
		entry(a.ID, capacity.ChangeDeleted, &o, nil)
	}
	return entries
}

func sameAllocation(a, b capacity.Allocation) bool {
	return a.ID == b.ID &&
		a.ProjectID == b.ProjectID &&
		a.ProductManagerID == b.ProductManagerID &&
		a.Year == b.Year && a.Month == b.Month && a.Sprint == b.Sprint &&
		a.AllocationPercentage == b.AllocationPercentage &&
		sameFloat(a.AllocationDays, b.AllocationDays) &&
		a.CreatedBy == b.CreatedBy &&
		a.CreatedAt.Equal(b.CreatedAt)
}

func sameFloat(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// CheckAppendOnly verifies that next keeps every entry of prev unchanged and
// in order, adding entries only at the end.
func CheckAppendOnly(prev, next []capacity.HistoryEntry) error {
	if len(next) < len(prev) {
		return fmt.Errorf("%w: %d existing entries, replacement has %d", capacity.ErrHistoryRewrite, len(prev), len(next))
	}
	for i := range prev {
		a, errA := json.Marshal(prev[i])
		b, errB := json.Marshal(next[i])
		if errA != nil || errB != nil || !bytes.Equal(a, b) {
			return fmt.Errorf("%w: entry %d (%s) was modified", capacity.ErrHistoryRewrite, i, prev[i].ID)
		}
	}
	return nil
}
