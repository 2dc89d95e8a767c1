package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIncomeRows(t *testing.T) {
	now := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	rows := [][]string{
		{"tract_id", "median_income", "area_median_income"},
		{"06037207400", "75000", "100000"},
		{" 06037701100 ", "250000", ""},
		{"", "1"},
		{"06037206300"},
	}

	recs, err := parseIncomeRows(rows, now)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, "06037207400", recs[0].TractID)
	assert.Equal(t, 75000, recs[0].MedianHouseholdIncome)
	assert.Equal(t, 100000, recs[0].AreaMedianIncome)
	assert.Equal(t, "import", recs[0].Source)
	assert.Equal(t, now, recs[0].RetrievedAt)

	assert.Equal(t, "06037701100", recs[1].TractID)
	assert.Zero(t, recs[1].AreaMedianIncome)
}

func TestParseIncomeRows_NoHeader(t *testing.T) {
	recs, err := parseIncomeRows([][]string{{"06037207400", "75000"}}, time.Now())
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestParseIncomeRows_Errors(t *testing.T) {
	tests := []struct {
		name string
		rows [][]string
	}{
		{"bad income after header", [][]string{{"tract_id", "median_income"}, {"06037207400", "n/a"}}},
		{"bad tract", [][]string{{"0603720", "75000"}}},
		{"non-positive income", [][]string{{"06037207400", "0"}}},
		{"bad ami", [][]string{{"06037207400", "75000", "lots"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseIncomeRows(tt.rows, time.Now())
			assert.Error(t, err)
		})
	}
}
