package income

import "context"

// Fixture figures used when no source can answer.
const (
	MockAffluentTract    = "06037701100"
	MockAffluentIncome   = 250000
	MockDefaultIncome    = 75000
	MockAreaMedianIncome = 100000
)

// MockIncome returns the deterministic fallback income for a tract.
func MockIncome(tractID string) int {
	if tractID == MockAffluentTract {
		return MockAffluentIncome
	}
	return MockDefaultIncome
}

// MockSource answers every request from fixtures. It backs income.source=mock.
type MockSource struct{}

// Name implements Source.
func (MockSource) Name() string { return "mock" }

// MedianIncome implements Source.
func (MockSource) MedianIncome(_ context.Context, req Request) (*Response, error) {
	return &Response{
		Success:          true,
		MedianIncome:     MockIncome(req.Params.GEOID),
		AreaMedianIncome: MockAreaMedianIncome,
	}, nil
}
