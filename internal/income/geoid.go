package income

import (
	"github.com/rotisserie/eris"
)

// ErrInvalidTract is returned for a tract id that is not an 11-digit GEOID.
var ErrInvalidTract = eris.New("income: tract id must be 11 digits")

// GEOID is a census tract identifier split into its FIPS parts.
type GEOID struct {
	State  string `json:"state"`
	County string `json:"county"`
	Tract  string `json:"tract"`
}

// String joins the parts back into the 11-digit form.
func (g GEOID) String() string {
	return g.State + g.County + g.Tract
}

// CountyFIPS returns the 5-digit state+county code.
func (g GEOID) CountyFIPS() string {
	return g.State + g.County
}

// ParseGEOID splits an 11-digit tract GEOID into state (2), county (3) and
// tract (6).
func ParseGEOID(id string) (GEOID, error) {
	if len(id) != 11 {
		return GEOID{}, eris.Wrapf(ErrInvalidTract, "income: parse %q", id)
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return GEOID{}, eris.Wrapf(ErrInvalidTract, "income: parse %q", id)
		}
	}
	return GEOID{State: id[:2], County: id[2:5], Tract: id[5:]}, nil
}
