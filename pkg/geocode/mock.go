package geocode

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/lmi-check/internal/model"
)

// Fixture tracts returned when every remote provider misses.
const (
	AffluentTractID = "06037701100"
	LowTractID      = "06037206300"
	ModerateTractID = "06037207400"
)

var (
	affluentFixture = Result{
		Latitude:         34.0736,
		Longitude:        -118.4004,
		TractID:          AffluentTractID,
		BlockGroupID:     AffluentTractID + "1",
		FormattedAddress: "Beverly Hills, CA 90210",
		Source:           model.SourceMock,
	}
	lowFixture = Result{
		Latitude:         34.0407,
		Longitude:        -118.2468,
		TractID:          LowTractID,
		BlockGroupID:     LowTractID + "1",
		FormattedAddress: "Los Angeles, CA 90013",
		Source:           model.SourceMock,
	}
	moderateFixture = Result{
		Latitude:         34.0522,
		Longitude:        -118.2437,
		TractID:          ModerateTractID,
		BlockGroupID:     ModerateTractID + "1",
		FormattedAddress: "Los Angeles, CA 90012",
		Source:           model.SourceMock,
	}
)

// normalizeQuery folds width variants and case so "ＲＩＣＨ" matches "rich".
// A Caser is stateful, so one is built per call.
func normalizeQuery(query string) string {
	return cases.Fold().String(norm.NFKC.String(query))
}

// MockResult returns a fixture chosen by keywords in query. The choice is a
// pure function of the input.
func MockResult(query string) *Result {
	q := normalizeQuery(query)

	var r Result
	switch {
	case containsAny(q, "rich", "wealth", "90210"):
		r = affluentFixture
	case containsAny(q, "low", "poor"):
		r = lowFixture
	default:
		r = moderateFixture
	}
	return &r
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
