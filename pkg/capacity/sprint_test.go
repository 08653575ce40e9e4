package capacity

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSprintOf(t *testing.T) {
	require.Equal(t, Sprint{Year: 2025, Month: time.November, Index: 1}, SprintOf(time.Date(2025, 11, 15, 23, 0, 0, 0, time.UTC)))
	require.Equal(t, Sprint{Year: 2025, Month: time.November, Index: 2}, SprintOf(time.Date(2025, 11, 16, 0, 0, 0, 0, time.UTC)))
}

func TestSprintRangeAndWorkingDays(t *testing.T) {
	s := Sprint{Year: 2024, Month: time.February, Index: 2}
	start, end := s.Range()
	require.Equal(t, 16, start.Day())
	require.Equal(t, 29, end.Day())

	// November 2025: 1st is a Saturday.
	first := Sprint{Year: 2025, Month: time.November, Index: 1}
	require.Equal(t, 10, first.WorkingDays())
	second := first.Next()
	require.Equal(t, 2, second.Index)
	require.Equal(t, 10, second.WorkingDays())
	require.Equal(t, Sprint{Year: 2026, Month: time.January, Index: 1}, Sprint{Year: 2025, Month: time.December, Index: 2}.Next())
}

func TestAllocationDays(t *testing.T) {
	a := Allocation{Year: 2025, Month: 11, Sprint: 1, AllocationPercentage: 50}
	require.InDelta(t, 5.0, AllocationDays(a), 1e-9)
	days := 3.5
	a.AllocationDays = &days
	require.InDelta(t, 3.5, AllocationDays(a), 1e-9)
	require.Zero(t, AllocationDays(Allocation{Month: 13, Sprint: 1, Year: 2025, AllocationPercentage: 50}))
}

func TestValidateAllocation(t *testing.T) {
	ok := Allocation{ID: "A1", ProjectID: "P1", ProductManagerID: "M1", Year: 2025, Month: 11, Sprint: 1, AllocationPercentage: 50}
	require.NoError(t, ValidateAllocation(ok))

	bad := []Allocation{
		{ID: "x", ProductManagerID: "M1", Month: 1, Sprint: 1},
		{ID: "x", ProjectID: "P1", ProductManagerID: "M1", Month: 0, Sprint: 1},
		{ID: "x", ProjectID: "P1", ProductManagerID: "M1", Month: 1, Sprint: 3},
		{ID: "x", ProjectID: "P1", ProductManagerID: "M1", Month: 1, Sprint: 1, AllocationPercentage: 120},
	}
	for _, a := range bad {
		err := ValidateAllocation(a)
		require.True(t, errors.Is(err, ErrInvalidArgument), "expected invalid argument for %+v", a)
	}
}

func TestValidateProject(t *testing.T) {
	require.NoError(t, ValidateProject(Project{ID: "P1", CustomerName: "Acme", ProjectName: "Rollout", ProjectType: ProjectTypeAI}))
	require.ErrorIs(t, ValidateProject(Project{ID: "P1", CustomerName: "Acme"}), ErrInvalidArgument)
	require.ErrorIs(t, ValidateProject(Project{ID: "P1", CustomerName: "Acme", ProjectName: "x", ProjectType: "Hardware"}), ErrInvalidArgument)
}

func TestFindReferentialGaps(t *testing.T) {
	d := NewDocument()
	d.Projects = []Project{{ID: "P1"}}
	d.TeamMembers = []TeamMember{{ID: "M1"}}
	d.Allocations = []Allocation{
		{ID: "A1", ProjectID: "P1", ProductManagerID: "M1"},
		{ID: "A2", ProjectID: "P9", ProductManagerID: "M1"},
		{ID: "A3", ProjectID: "P9", ProductManagerID: "M9"},
	}
	gaps := FindReferentialGaps(d)
	require.Len(t, gaps, 2)
	require.True(t, gaps[0].MissingProject)
	require.False(t, gaps[0].MissingMember)
	require.True(t, gaps[1].MissingProject && gaps[1].MissingMember)
	require.ErrorIs(t, gaps[0], ErrReferentialGap)
}

func TestCorruptDocumentErrorUnwrap(t *testing.T) {
	cause := errors.New("unexpected end of JSON input")
	err := error(&CorruptDocumentError{Path: "data.json", Err: cause})
	require.ErrorIs(t, err, ErrCorruptDocument)
	require.ErrorIs(t, err, cause)

	io := IOError(StepReplace, errors.New("disk full"))
	require.ErrorIs(t, io, ErrIO)
	var step *StepError
	require.ErrorAs(t, io, &step)
	require.Equal(t, StepReplace, step.Step)
}

func TestDocumentCloneIsDeep(t *testing.T) {
	days := 2.0
	mgr := "M0"
	d := NewDocument()
	d.TeamMembers = []TeamMember{{ID: "M1", ManagerID: &mgr, TeamIDs: []string{"T1"}}}
	d.Allocations = []Allocation{{ID: "A1", AllocationDays: &days}}
	cp := d.Clone()
	*cp.Allocations[0].AllocationDays = 9
	*cp.TeamMembers[0].ManagerID = "M7"
	cp.TeamMembers[0].TeamIDs[0] = "T9"
	require.Equal(t, 2.0, *d.Allocations[0].AllocationDays)
	require.Equal(t, "M0", *d.TeamMembers[0].ManagerID)
	require.Equal(t, "T1", d.TeamMembers[0].TeamIDs[0])
}

func TestParseCollectionName(t *testing.T) {
	name, err := ParseCollectionName("allocations")
	require.NoError(t, err)
	require.Equal(t, CollectionAllocations, name)
	_, err = ParseCollectionName("widgets")
	require.ErrorIs(t, err, ErrUnknownCollection)
}
