package income

import (
	"context"
)

// ActionMedianIncome is the only action the income backend understands.
const ActionMedianIncome = "getMedianIncome"

// Params identifies the tract being looked up.
type Params struct {
	GEOID  string `json:"geoid"`
	State  string `json:"state"`
	County string `json:"county"`
	Tract  string `json:"tract"`
}

// Request is the payload sent to an income Source.
type Request struct {
	Action string `json:"action"`
	Params Params `json:"params"`
}

// NewRequest builds a median income request for g.
func NewRequest(g GEOID) Request {
	return Request{
		Action: ActionMedianIncome,
		Params: Params{GEOID: g.String(), State: g.State, County: g.County, Tract: g.Tract},
	}
}

// Response is an income Source answer. AreaMedianIncome is optional; zero
// means the caller's default applies.
type Response struct {
	Success          bool   `json:"success"`
	MedianIncome     int    `json:"medianIncome"`
	AreaMedianIncome int    `json:"areaMedianIncome,omitempty"`
	Error            string `json:"error,omitempty"`
}

// Source fetches median household income for one tract.
type Source interface {
	Name() string
	MedianIncome(ctx context.Context, req Request) (*Response, error)
}
