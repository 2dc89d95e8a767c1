// Package model holds the domain types shared across the LMI eligibility pipeline.
package model

import "time"

// DataSource identifies which provider produced the data behind a result.
type DataSource string

const (
	// SourceCensus is the Census Bureau geocoder / ACS data.
	SourceCensus DataSource = "census"
	// SourceEsri is the Esri World Geocoding service.
	SourceEsri DataSource = "esri"
	// SourceMock is synthetic fallback data.
	SourceMock DataSource = "mock"
)

// IncomeCategory is the HUD-style income band of a tract relative to AMI.
type IncomeCategory string

const (
	CategoryExtremelyLow  IncomeCategory = "Extremely Low Income"
	CategoryVeryLow       IncomeCategory = "Very Low Income"
	CategoryLow           IncomeCategory = "Low Income"
	CategoryModerate      IncomeCategory = "Moderate Income"
	CategoryAboveModerate IncomeCategory = "Above Moderate Income"
)

// EligibilityLabel is the user-facing eligibility verdict.
type EligibilityLabel string

const (
	LabelEligible   EligibilityLabel = "Eligible"
	LabelIneligible EligibilityLabel = "Ineligible"
)

// LabelFor maps an approval flag to its label.
func LabelFor(approved bool) EligibilityLabel {
	if approved {
		return LabelEligible
	}
	return LabelIneligible
}

// SearchType selects how a query string is interpreted.
type SearchType string

const (
	SearchAddress SearchType = "address"
	SearchPlace   SearchType = "place"
)

// Level is the geography level requested by the caller.
type Level string

const (
	LevelTract      Level = "tract"
	LevelBlockGroup Level = "blockGroup"
)

// LmiEligibilityResult is the unified answer for one resolution request.
type LmiEligibilityResult struct {
	Address          string           `json:"address,omitempty" yaml:"address,omitempty"`
	PlaceName        string           `json:"place_name,omitempty" yaml:"place_name,omitempty"`
	FormattedAddress string           `json:"formatted_address,omitempty" yaml:"formatted_address,omitempty"`
	TractID          string           `json:"tract_id" yaml:"tract_id"`
	BlockGroupID     string           `json:"block_group_id,omitempty" yaml:"block_group_id,omitempty"`
	Latitude         float64          `json:"latitude" yaml:"latitude"`
	Longitude        float64          `json:"longitude" yaml:"longitude"`
	MedianIncome     *int             `json:"median_income,omitempty" yaml:"median_income,omitempty"`
	AMIPercentage    *float64         `json:"ami_percentage,omitempty" yaml:"ami_percentage,omitempty"`
	IncomeCategory   *IncomeCategory  `json:"income_category,omitempty" yaml:"income_category,omitempty"`
	IsApproved       bool             `json:"is_approved" yaml:"is_approved"`
	EligibilityLabel EligibilityLabel `json:"eligibility" yaml:"eligibility"`
	DataSource       DataSource       `json:"data_source" yaml:"data_source"`
	Timestamp        time.Time        `json:"timestamp" yaml:"timestamp"`
}

// Query returns whichever of Address or PlaceName was set.
func (r *LmiEligibilityResult) Query() string {
	if r.Address != "" {
		return r.Address
	}
	return r.PlaceName
}
