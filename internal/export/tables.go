// Package export renders the document as human-readable tables: one CSV
// file per collection plus a workbook with one sheet per collection.
package export

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"capplan/pkg/capacity"
)

// Table is one rendered collection.
type Table struct {
	Name   string
	Header []string
	Rows   [][]string
}

// Tables renders every collection. Allocations are denormalized with the
// project and team member they reference; unresolved references render empty.
func Tables(doc capacity.Document) []Table {
	return []Table{
		teamMembers(doc),
		projects(doc),
		allocations(doc),
		history(doc),
		roles(doc),
		teams(doc),
	}
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func num(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

func optNum(f *float64) string {
	if f == nil {
		return ""
	}
	return num(*f)
}

func optStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func teamMembers(doc capacity.Document) Table {
	members := doc.MemberIndex()
	t := Table{Name: string(capacity.CollectionTeamMembers), Header: []string{"id", "name", "email", "role", "active", "capacityPercentage", "manager", "teams", "createdAt"}}
	for _, m := range doc.TeamMembers {
		manager := ""
		if m.ManagerID != nil {
			manager = members[*m.ManagerID].Name
		}
		t.Rows = append(t.Rows, []string{
			m.ID, m.Name, m.Email, m.Role, strconv.FormatBool(m.IsActive),
			num(m.CapacityPercentage), manager, strings.Join(m.TeamIDs, ";"), stamp(m.CreatedAt),
		})
	}
	return t
}

func projects(doc capacity.Document) Table {
	t := Table{Name: string(capacity.CollectionProjects), Header: []string{"id", "customerName", "projectName", "projectType", "status", "maxCapacityPercentage", "pmoContact", "archived", "dealAmount", "sourceSystem", "comment", "createdAt"}}
	for _, p := range doc.Projects {
		var deal *float64
		source := ""
		if p.Metadata != nil {
			deal, source = p.Metadata.DealAmount, p.Metadata.SourceSystem
		}
		t.Rows = append(t.Rows, []string{
			p.ID, p.CustomerName, p.ProjectName, string(p.ProjectType), p.Status, optNum(p.MaxCapacityPercentage),
			optStr(p.PMOContact), strconv.FormatBool(p.IsArchived), optNum(deal), source, p.Comment, stamp(p.CreatedAt),
		})
	}
	return t
}

func allocations(doc capacity.Document) Table {
	projectsByID := doc.ProjectIndex()
	members := doc.MemberIndex()
	rows := append([]capacity.Allocation(nil), doc.Allocations...)
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		if a.Month != b.Month {
			return a.Month < b.Month
		}
		return a.Sprint < b.Sprint
	})
	t := Table{Name: string(capacity.CollectionAllocations), Header: []string{
		"id", "period", "sprintStart", "sprintEnd", "customerName", "projectName", "projectType",
		"teamMember", "email", "allocationPercentage", "allocationDays", "createdBy", "createdAt",
	}}
	for _, a := range rows {
		p := projectsByID[a.ProjectID]
		m := members[a.ProductManagerID]
		period, start, end := "", "", ""
		if s := a.Period(); s.Valid() {
			from, to := s.Range()
			period, start, end = s.String(), from.Format(time.DateOnly), to.Format(time.DateOnly)
		}
		t.Rows = append(t.Rows, []string{
			a.ID, period, start, end, p.CustomerName, p.ProjectName, string(p.ProjectType),
			m.Name, m.Email, num(a.AllocationPercentage), num(capacity.AllocationDays(a)), a.CreatedBy, stamp(a.CreatedAt),
		})
	}
	return t
}

func history(doc capacity.Document) Table {
	t := Table{Name: string(capacity.CollectionAllocationHistory), Header: []string{"id", "allocationId", "changeType", "oldPercentage", "newPercentage", "changedBy", "changedAt"}}
	for _, h := range doc.AllocationHistory {
		oldPct, newPct := "", ""
		if h.OldValue != nil {
			oldPct = num(h.OldValue.AllocationPercentage)
		}
		if h.NewValue != nil {
			newPct = num(h.NewValue.AllocationPercentage)
		}
		t.Rows = append(t.Rows, []string{h.ID, h.AllocationID, string(h.ChangeType), oldPct, newPct, h.ChangedBy, stamp(h.ChangedAt)})
	}
	return t
}

func roles(doc capacity.Document) Table {
	t := Table{Name: string(capacity.CollectionResourceRoles), Header: []string{"id", "name", "archived", "createdAt"}}
	for _, r := range doc.ResourceRoles {
		t.Rows = append(t.Rows, []string{r.ID, r.Name, strconv.FormatBool(r.IsArchived), stamp(r.CreatedAt)})
	}
	return t
}

func teams(doc capacity.Document) Table {
	t := Table{Name: string(capacity.CollectionTeams), Header: []string{"id", "name", "archived", "createdAt"}}
	for _, r := range doc.Teams {
		t.Rows = append(t.Rows, []string{r.ID, r.Name, strconv.FormatBool(r.IsArchived), stamp(r.CreatedAt)})
	}
	return t
}
