package income

import (
	"math"

	"github.com/sells-group/lmi-check/internal/model"
)

// Categorize maps a tract's median income as a percentage of AMI to its
// HUD income band. Bounds are inclusive.
func Categorize(pct float64) model.IncomeCategory {
	switch {
	case pct <= 30:
		return model.CategoryExtremelyLow
	case pct <= 50:
		return model.CategoryVeryLow
	case pct <= 80:
		return model.CategoryLow
	case pct <= 120:
		return model.CategoryModerate
	default:
		return model.CategoryAboveModerate
	}
}

// IsEligible reports whether a category qualifies as LMI.
func IsEligible(c model.IncomeCategory) bool {
	return c != model.CategoryAboveModerate
}

// AMIPercentage returns median as a percentage of ami, rounded to two
// decimals. A non-positive ami yields 0.
func AMIPercentage(median, ami int) float64 {
	if ami <= 0 {
		return 0
	}
	pct := float64(median) / float64(ami) * 100
	return math.Round(pct*100) / 100
}
