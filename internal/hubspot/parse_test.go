package hubspot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"capplan/pkg/capacity"
)

const dealEmail = `Hi team,

A deal was moved to Closed Won.

Deal Name: Northwind Traders - Demand Forecasting
Company: Northwind Traders
Amount: $120,000
Deal Owner: Jane Doe
Pipeline: Sales Pipeline
Description: Machine learning model for weekly demand forecasting.

Thanks,
HubSpot`

func TestParseDealEmail(t *testing.T) {
	d, err := Parse(dealEmail)
	require.NoError(t, err)
	require.Equal(t, "Northwind Traders", d.CustomerName)
	require.Equal(t, "Demand Forecasting", d.ProjectName)
	require.Equal(t, "Jane Doe", d.PMOContact)
	require.NotNil(t, d.Amount)
	require.Equal(t, 120000.0, *d.Amount)
	require.Equal(t, capacity.ProjectTypeAI, d.ProjectType)
	require.Equal(t, "Machine learning model for weekly demand forecasting.", d.Comment)
}

func TestParseExplicitFieldsWin(t *testing.T) {
	d, err := Parse("Deal: Contoso | Portal\r\nCustomer Name: Contoso Ltd\r\nProject Name: Partner Portal\r\nProject Type: hybrid\r\nPMO Contact: Sam\r\n")
	require.NoError(t, err)
	require.Equal(t, "Contoso Ltd", d.CustomerName)
	require.Equal(t, "Partner Portal", d.ProjectName)
	require.Equal(t, capacity.ProjectTypeHybrid, d.ProjectType)
	require.Equal(t, "Sam", d.PMOContact)
	require.Nil(t, d.Amount)
}

func TestParseDealNameWithoutSeparator(t *testing.T) {
	d, err := Parse("Company: Fabrikam\nDeal Name: Website relaunch\n")
	require.NoError(t, err)
	require.Equal(t, "Website relaunch", d.ProjectName)
	require.Equal(t, capacity.ProjectTypeSoftware, d.ProjectType)
}

func TestParseMissingMandatoryFields(t *testing.T) {
	for _, content := range []string{
		"",
		"   ",
		"Amount: 5000\nDeal Owner: Jane",
		"Company: Fabrikam\nAmount: 5000",
		"Project: Orphan project",
	} {
		_, err := Parse(content)
		require.ErrorIs(t, err, capacity.ErrInvalidArgument, content)
	}
}

func TestClassify(t *testing.T) {
	cases := map[string]capacity.ProjectType{
		"Generic consulting engagement":              capacity.ProjectTypeSoftware,
		"An LLM assistant":                           capacity.ProjectTypeAI,
		"AI features on top of the booking platform": capacity.ProjectTypeHybrid,
		"Hybrid delivery":                            capacity.ProjectTypeHybrid,
	}
	for text, want := range cases {
		require.Equal(t, want, classify("", text), text)
	}
	require.Equal(t, capacity.ProjectTypeAI, classify("AI", "software platform"))
}

func TestParseAmount(t *testing.T) {
	cases := map[string]float64{
		"$120,000":       120000,
		"120.000,50 EUR": 120000.5,
		"99,50":          99.5,
		"85k":            85000,
		"USD 1.2M":       1200000,
		"4500":           4500,
	}
	for raw, want := range cases {
		got, ok := ParseAmount(raw)
		require.True(t, ok, raw)
		require.InDelta(t, want, got, 1e-6, raw)
	}
	_, ok := ParseAmount("n/a")
	require.False(t, ok)
}

func TestDealProject(t *testing.T) {
	d, err := Parse(dealEmail)
	require.NoError(t, err)
	now := time.Date(2025, 11, 4, 8, 0, 0, 0, time.UTC)
	p := d.Project("P-new", now)
	require.Equal(t, "P-new", p.ID)
	require.Equal(t, capacity.ProjectStatusActive, p.Status)
	require.Equal(t, "Jane Doe", *p.PMOContact)
	require.Equal(t, SourceSystem, p.Metadata.SourceSystem)
	require.Equal(t, now, *p.Metadata.ImportedAt)
	require.NoError(t, capacity.ValidateProject(p))
}
