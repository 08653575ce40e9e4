package repair

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"capplan/pkg/capacity"
)

func alloc(id, project, member string, pct float64) capacity.Allocation {
	return capacity.Allocation{ID: id, ProjectID: project, ProductManagerID: member, Year: 2025, Month: 11, Sprint: 1, AllocationPercentage: pct}
}

func created(id string, a capacity.Allocation) capacity.HistoryEntry {
	return capacity.HistoryEntry{ID: "h-" + id + "-c", AllocationID: a.ID, ChangeType: capacity.ChangeCreated, NewValue: &a}
}

func deleted(id string, a capacity.Allocation) capacity.HistoryEntry {
	return capacity.HistoryEntry{ID: "h-" + id + "-d", AllocationID: a.ID, ChangeType: capacity.ChangeDeleted, OldValue: &a}
}

func baseDoc() capacity.Document {
	d := capacity.NewDocument()
	d.Projects = []capacity.Project{{ID: "P1", CustomerName: "Acme", ProjectName: "Rollout"}}
	d.TeamMembers = []capacity.TeamMember{{ID: "M1", Name: "Mia"}}
	return d
}

func jsonOf(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func TestReconcileReinsertsMissing(t *testing.T) {
	d := baseDoc()
	a1, a2 := alloc("A1", "P1", "M1", 50), alloc("A2", "P1", "M1", 30)
	d.Allocations = []capacity.Allocation{a1}
	d.AllocationHistory = []capacity.HistoryEntry{created("1", a1), created("2", a2)}

	out, rep := ReconcileFromHistory(d)
	require.Equal(t, []string{"A2"}, rep.Reinserted)
	require.Empty(t, rep.Suppressed)
	require.Len(t, out.Allocations, 2)
	require.Equal(t, jsonOf(t, a2), jsonOf(t, out.Allocations[1]))
	require.Len(t, d.Allocations, 1, "input untouched")
}

func TestReconcileIsIdempotent(t *testing.T) {
	d := baseDoc()
	a1, a2, a3 := alloc("A1", "P1", "M1", 50), alloc("A2", "P1", "M1", 30), alloc("A3", "PX", "M9", 10)
	d.AllocationHistory = []capacity.HistoryEntry{created("1", a1), created("2", a2), deleted("2", a2), created("3", a3)}

	once, rep := ReconcileFromHistory(d)
	require.True(t, rep.Changed())
	twice, rep2 := ReconcileFromHistory(once)
	require.False(t, rep2.Changed())
	require.Equal(t, jsonOf(t, once), jsonOf(t, twice))
}

func TestReconcileSuppressesLaterDeletion(t *testing.T) {
	d := baseDoc()
	a := alloc("A1", "P1", "M1", 50)
	d.AllocationHistory = []capacity.HistoryEntry{created("1", a), deleted("1", a)}
	out, rep := ReconcileFromHistory(d)
	require.Empty(t, out.Allocations)
	require.Equal(t, []string{"A1"}, rep.Suppressed)

	// A re-creation after the deletion is live again.
	d.AllocationHistory = append(d.AllocationHistory, created("1b", a))
	out, rep = ReconcileFromHistory(d)
	require.Len(t, out.Allocations, 1)
	require.Equal(t, []string{"A1"}, rep.Reinserted)
}

func TestReconcileReportsGaps(t *testing.T) {
	d := baseDoc()
	a := alloc("A9", "P404", "M1", 20)
	d.AllocationHistory = []capacity.HistoryEntry{created("9", a)}
	_, rep := ReconcileFromHistory(d)
	require.Len(t, rep.Gaps, 1)
	require.Equal(t, "A9", rep.Gaps[0].AllocationID)
	require.True(t, rep.Gaps[0].MissingProject)
	require.ErrorIs(t, rep.Gaps[0], capacity.ErrReferentialGap)
}

func stamp() HistoryStamp {
	n := 0
	return HistoryStamp{
		Actor: "alice",
		Now:   time.Date(2025, 11, 4, 10, 0, 0, 0, time.UTC),
		NewID: func() string { n++; return fmt.Sprintf("h%d", n) },
	}
}

func TestDiffAllocations(t *testing.T) {
	a1, a2, a3 := alloc("A1", "P1", "M1", 50), alloc("A2", "P1", "M1", 30), alloc("A3", "P1", "M1", 10)
	a2b := a2
	a2b.AllocationPercentage = 40

	entries := DiffAllocations([]capacity.Allocation{a1, a2, a3}, []capacity.Allocation{a2b, a1, alloc("A4", "P1", "M1", 5)}, stamp())
	require.Len(t, entries, 3)

	require.Equal(t, capacity.ChangeUpdated, entries[0].ChangeType)
	require.Equal(t, "A2", entries[0].AllocationID)
	require.Equal(t, 30.0, entries[0].OldValue.AllocationPercentage)
	require.Equal(t, 40.0, entries[0].NewValue.AllocationPercentage)

	require.Equal(t, capacity.ChangeCreated, entries[1].ChangeType)
	require.Equal(t, "A4", entries[1].AllocationID)
	require.Nil(t, entries[1].OldValue)

	require.Equal(t, capacity.ChangeDeleted, entries[2].ChangeType)
	require.Equal(t, "A3", entries[2].AllocationID)
	require.Nil(t, entries[2].NewValue)
	require.Equal(t, "alice", entries[2].ChangedBy)
	require.Equal(t, "h3", entries[2].ID)

	require.Empty(t, DiffAllocations([]capacity.Allocation{a1}, []capacity.Allocation{a1}, stamp()))
}

func TestCheckAppendOnly(t *testing.T) {
	a := alloc("A1", "P1", "M1", 50)
	prev := []capacity.HistoryEntry{created("1", a)}
	require.NoError(t, CheckAppendOnly(prev, append(append([]capacity.HistoryEntry{}, prev...), deleted("1", a))))
	require.NoError(t, CheckAppendOnly(nil, prev))
	require.ErrorIs(t, CheckAppendOnly(prev, nil), capacity.ErrHistoryRewrite)

	changed := created("1", a)
	changed.ChangedBy = "mallory"
	require.ErrorIs(t, CheckAppendOnly(prev, []capacity.HistoryEntry{changed}), capacity.ErrHistoryRewrite)
}

func TestDeterministicID(t *testing.T) {
	id := DeterministicID(KindProject, "42")
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	require.Equal(t, id, DeterministicID(KindProject, "42"))
	require.NotEqual(t, id, DeterministicID(KindTeamMember, "42"))

	existing := uuid.NewString()
	require.Equal(t, existing, DeterministicID(KindProject, existing))
	require.Empty(t, DeterministicID(KindProject, ""))
}

func TestMigrateIDsRewritesReferences(t *testing.T) {
	d := capacity.NewDocument()
	mgr := "m-1"
	d.TeamMembers = []capacity.TeamMember{{ID: "m-1", Name: "Boss"}, {ID: "m-2", Name: "Mia", ManagerID: &mgr, TeamIDs: []string{"t-1"}}}
	d.Teams = []capacity.Team{{ID: "t-1", Name: "Core"}}
	d.Projects = []capacity.Project{{ID: "p-1", CustomerName: "Acme", ProjectName: "X"}}
	a := alloc("a-1", "p-1", "m-2", 50)
	gone := alloc("a-0", "p-1", "m-2", 10)
	d.Allocations = []capacity.Allocation{a}
	d.AllocationHistory = []capacity.HistoryEntry{created("1", a), created("0", gone), deleted("0", gone)}

	out, rep := MigrateIDs(d)
	require.True(t, rep.Changed())
	require.Equal(t, DeterministicID(KindProject, "p-1"), rep.Remapped[capacity.CollectionProjects]["p-1"])

	require.Equal(t, out.TeamMembers[0].ID, *out.TeamMembers[1].ManagerID)
	require.Equal(t, []string{out.Teams[0].ID}, out.TeamMembers[1].TeamIDs)
	require.Equal(t, out.Projects[0].ID, out.Allocations[0].ProjectID)
	require.Equal(t, out.TeamMembers[1].ID, out.Allocations[0].ProductManagerID)
	require.Equal(t, out.Allocations[0].ID, out.AllocationHistory[0].AllocationID)
	require.Equal(t, out.Allocations[0].ID, out.AllocationHistory[0].NewValue.ID)
	require.Equal(t, out.AllocationHistory[1].AllocationID, out.AllocationHistory[2].AllocationID)
	require.Empty(t, capacity.FindReferentialGaps(out))

	again, rep2 := MigrateIDs(out)
	require.False(t, rep2.Changed())
	require.Equal(t, jsonOf(t, out), jsonOf(t, again))
	require.Equal(t, "p-1", d.Projects[0].ID, "input untouched")
}
