package capacity

import (
	"fmt"
	"time"
)

// SplitDay is the last day of the first sprint of every month.
const SplitDay = 15

// Sprint identifies a half-month scheduling period. Index 1 covers days 1-15,
// index 2 the remainder of the month.
type Sprint struct {
	Year  int
	Month time.Month
	Index int
}

// SprintOf returns the sprint containing t.
func SprintOf(t time.Time) Sprint {
	idx := 1
	if t.Day() > SplitDay {
		idx = 2
	}
	return Sprint{Year: t.Year(), Month: t.Month(), Index: idx}
}

// Valid reports whether the sprint refers to a real half-month.
func (s Sprint) Valid() bool {
	return s.Year > 0 && s.Month >= time.January && s.Month <= time.December && (s.Index == 1 || s.Index == 2)
}

// Range returns the first and last calendar day of the sprint (UTC, inclusive).
func (s Sprint) Range() (time.Time, time.Time) {
	if s.Index == 1 {
		return time.Date(s.Year, s.Month, 1, 0, 0, 0, 0, time.UTC),
			time.Date(s.Year, s.Month, SplitDay, 0, 0, 0, 0, time.UTC)
	}
	lastDay := time.Date(s.Year, s.Month+1, 0, 0, 0, 0, 0, time.UTC)
	return time.Date(s.Year, s.Month, SplitDay+1, 0, 0, 0, 0, time.UTC), lastDay
}

// WorkingDays counts Monday-Friday days in the sprint.
func (s Sprint) WorkingDays() int {
	start, end := s.Range()
	n := 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			n++
		}
	}
	return n
}

// Next returns the following sprint.
func (s Sprint) Next() Sprint {
	if s.Index == 1 {
		return Sprint{Year: s.Year, Month: s.Month, Index: 2}
	}
	t := time.Date(s.Year, s.Month+1, 1, 0, 0, 0, 0, time.UTC)
	return Sprint{Year: t.Year(), Month: t.Month(), Index: 1}
}

func (s Sprint) String() string {
	return fmt.Sprintf("%04d-%02d/S%d", s.Year, int(s.Month), s.Index)
}

// AllocationDays returns the explicit day count or derives it from the
// percentage and the sprint's working days.
func AllocationDays(a Allocation) float64 {
	if a.AllocationDays != nil {
		return *a.AllocationDays
	}
	p := a.Period()
	if !p.Valid() {
		return 0
	}
	return float64(p.WorkingDays()) * a.AllocationPercentage / 100
}

// ValidateAllocation checks the fields a replacement payload must satisfy.
func ValidateAllocation(a Allocation) error {
	if a.ProjectID == "" || a.ProductManagerID == "" {
		return fmt.Errorf("%w: allocation %s requires projectId and productManagerId", ErrInvalidArgument, a.ID)
	}
	if a.Month < 1 || a.Month > 12 {
		return fmt.Errorf("%w: allocation %s month %d out of range", ErrInvalidArgument, a.ID, a.Month)
	}
	if a.Sprint != 1 && a.Sprint != 2 {
		return fmt.Errorf("%w: allocation %s sprint must be 1 or 2, got %d", ErrInvalidArgument, a.ID, a.Sprint)
	}
	if a.AllocationPercentage < 0 || a.AllocationPercentage > 100 {
		return fmt.Errorf("%w: allocation %s percentage %.2f out of range", ErrInvalidArgument, a.ID, a.AllocationPercentage)
	}
	return nil
}

// ValidateProject checks the fields a replacement payload must satisfy.
func ValidateProject(p Project) error {
	if p.CustomerName == "" || p.ProjectName == "" {
		return fmt.Errorf("%w: project %s requires customerName and projectName", ErrInvalidArgument, p.ID)
	}
	if p.ProjectType != "" && !p.ProjectType.Valid() {
		return fmt.Errorf("%w: project %s has unknown type %q", ErrInvalidArgument, p.ID, p.ProjectType)
	}
	return nil
}
