// Package hubspot extracts a project from the text of a HubSpot deal
// notification e-mail.
package hubspot

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"capplan/pkg/capacity"
)

// SourceSystem tags projects created from an imported e-mail.
const SourceSystem = "hubspot"

// Deal is the information recovered from one e-mail.
type Deal struct {
	CustomerName string
	ProjectName  string
	DealName     string
	Amount       *float64
	PMOContact   string
	ProjectType  capacity.ProjectType
	Comment      string
}

func field(labels ...string) *regexp.Regexp {
	return regexp.MustCompile(`(?im)^[ \t>*]*(?:` + strings.Join(labels, "|") + `)[ \t]*[:：][ \t]*(.+?)[ \t*]*$`)
}

var (
	reCustomer = field(`company name`, `company`, `associated company`, `customer name`, `customer`, `client`)
	reProject  = field(`project name`, `project`)
	reDeal     = field(`deal name`, `deal`)
	reAmount   = field(`deal amount`, `amount`, `value`)
	rePMO      = field(`pmo contact`, `pmo`, `deal owner`, `owner`)
	reType     = field(`project type`, `type`)
	reComment  = field(`description`, `notes?`)

	reAI       = regexp.MustCompile(`(?i)\b(ai|a\.i\.|artificial intelligence|machine learning|ml|llm|genai|gpt)\b`)
	reSoftware = regexp.MustCompile(`(?i)\b(software|platform|integration|web ?app|mobile app|implementation)\b`)
	reHybrid   = regexp.MustCompile(`(?i)\bhybrid\b`)
	reNumber   = regexp.MustCompile(`([0-9][0-9.,]*)\s*([kKmM])?`)
	reDealSep  = regexp.MustCompile(`\s+[-–|:]\s+`)
)

func first(re *regexp.Regexp, text string) string {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// Parse extracts a deal. Customer and project names are mandatory: a deal
// name of the form "Customer - Project" supplies whichever is missing.
// Missing mandatory fields yield capacity.ErrInvalidArgument.
func Parse(content string) (Deal, error) {
	if strings.TrimSpace(content) == "" {
		return Deal{}, fmt.Errorf("%w: empty e-mail content", capacity.ErrInvalidArgument)
	}
	content = strings.ReplaceAll(content, "\r\n", "\n")
	d := Deal{
		CustomerName: first(reCustomer, content),
		ProjectName:  first(reProject, content),
		DealName:     first(reDeal, content),
		PMOContact:   first(rePMO, content),
		Comment:      first(reComment, content),
	}
	if d.DealName != "" {
		parts := reDealSep.Split(d.DealName, 2)
		if len(parts) == 2 {
			if d.CustomerName == "" {
				d.CustomerName = strings.TrimSpace(parts[0])
			}
			if d.ProjectName == "" {
				d.ProjectName = strings.TrimSpace(parts[1])
			}
		} else if d.ProjectName == "" {
			d.ProjectName = d.DealName
		}
	}
	if raw := first(reAmount, content); raw != "" {
		if v, ok := ParseAmount(raw); ok {
			d.Amount = &v
		}
	}
	d.ProjectType = classify(first(reType, content), content)

	var missing []string
	if d.CustomerName == "" {
		missing = append(missing, "customer name")
	}
	if d.ProjectName == "" {
		missing = append(missing, "project name")
	}
	if len(missing) > 0 {
		return Deal{}, fmt.Errorf("%w: could not extract %s", capacity.ErrInvalidArgument, strings.Join(missing, " and "))
	}
	return d, nil
}

// classify prefers an explicit type field, then keywords in the whole text.
func classify(explicit, content string) capacity.ProjectType {
	for _, t := range []capacity.ProjectType{capacity.ProjectTypeSoftware, capacity.ProjectTypeAI, capacity.ProjectTypeHybrid} {
		if strings.EqualFold(explicit, string(t)) {
			return t
		}
	}
	if reHybrid.MatchString(content) {
		return capacity.ProjectTypeHybrid
	}
	ai, sw := reAI.MatchString(content), reSoftware.MatchString(content)
	switch {
	case ai && sw:
		return capacity.ProjectTypeHybrid
	case ai:
		return capacity.ProjectTypeAI
	default:
		return capacity.ProjectTypeSoftware
	}
}

// ParseAmount reads "$120,000", "120.000,50 EUR", "85k" or "1.2M".
func ParseAmount(raw string) (float64, bool) {
	m := reNumber.FindStringSubmatch(raw)
	if m == nil {
		return 0, false
	}
	num := m[1]
	lastDot, lastComma := strings.LastIndex(num, "."), strings.LastIndex(num, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0 && lastComma > lastDot:
		// 120.000,50
		num = strings.ReplaceAll(num, ".", "")
		num = strings.Replace(num, ",", ".", 1)
	case lastComma >= 0 && lastDot < 0 && len(num)-lastComma == 3:
		// 99,50
		num = strings.Replace(num, ",", ".", 1)
	default:
		num = strings.ReplaceAll(num, ",", "")
	}
	num = strings.TrimRight(num, ".")
	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, false
	}
	switch strings.ToLower(m[2]) {
	case "k":
		v *= 1_000
	case "m":
		v *= 1_000_000
	}
	return v, true
}

// Project builds the project record for a parsed deal.
func (d Deal) Project(id string, now time.Time) capacity.Project {
	p := capacity.Project{
		ID:           id,
		CustomerName: d.CustomerName,
		ProjectName:  d.ProjectName,
		ProjectType:  d.ProjectType,
		Status:       capacity.ProjectStatusActive,
		Comment:      d.Comment,
		CreatedAt:    now,
		Metadata: &capacity.ProjectMetadata{
			DealAmount:   d.Amount,
			SourceSystem: SourceSystem,
			ImportedAt:   &now,
		},
	}
	if d.PMOContact != "" {
		pmo := d.PMOContact
		p.PMOContact = &pmo
	}
	return p
}
