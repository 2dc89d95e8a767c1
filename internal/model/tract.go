package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// TractIncomeRecord is a cached median household income figure for one tract.
// Records are never mutated; a refresh upserts a new record over the old one.
type TractIncomeRecord struct {
	TractID               string    `json:"tract_id"`
	MedianHouseholdIncome int       `json:"median_household_income"`
	AreaMedianIncome      int       `json:"area_median_income,omitempty"`
	Source                string    `json:"source,omitempty"`
	RetrievedAt           time.Time `json:"retrieved_at"`
}

// Validate checks the record invariants before it is persisted.
func (r *TractIncomeRecord) Validate() error {
	if r.TractID == "" {
		return eris.New("model: tract record missing tract id")
	}
	if r.MedianHouseholdIncome <= 0 {
		return eris.Errorf("model: tract %s median income must be positive, got %d", r.TractID, r.MedianHouseholdIncome)
	}
	return nil
}

// CheckRecord is a persisted LMI check, written by the HTTP API for audit.
type CheckRecord struct {
	ID        string               `json:"id"`
	Query     string               `json:"query"`
	Result    LmiEligibilityResult `json:"result"`
	CreatedAt time.Time            `json:"created_at"`
}
