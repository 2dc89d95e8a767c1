package income

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lmi-check/internal/resilience"
)

// DefaultACSBaseURL is the Census Data API root.
const DefaultACSBaseURL = "https://api.census.gov/data"

// DefaultACSYear is the latest ACS 5-year release the service targets.
const DefaultACSYear = 2022

// medianIncomeVar is the ACS table cell for median household income.
const medianIncomeVar = "B19013_001E"

// ACSSource reads median household income from the ACS 5-year estimates. The
// containing county's median serves as the area median income.
type ACSSource struct {
	baseURL string
	year    int
	apiKey  string
	http    *http.Client
}

// NewACSSource creates an ACSSource. Empty or zero arguments keep the
// defaults.
func NewACSSource(baseURL string, year int, apiKey string, hc *http.Client) *ACSSource {
	if baseURL == "" {
		baseURL = DefaultACSBaseURL
	}
	if year == 0 {
		year = DefaultACSYear
	}
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	return &ACSSource{baseURL: strings.TrimRight(baseURL, "/"), year: year, apiKey: apiKey, http: hc}
}

// Name implements Source.
func (s *ACSSource) Name() string { return "acs" }

// MedianIncome implements Source. A tract without an estimate is reported
// as an unsuccessful response, not an error.
func (s *ACSSource) MedianIncome(ctx context.Context, req Request) (*Response, error) {
	p := req.Params

	tract, err := s.query(ctx, "tract:"+p.Tract, "state:"+p.State+" county:"+p.County)
	if err != nil {
		return nil, err
	}
	if tract <= 0 {
		return &Response{Success: false, Error: "no ACS estimate for tract " + p.GEOID}, nil
	}

	// The county figure is optional; the classifier falls back to its default AMI.
	county, err := s.query(ctx, "county:"+p.County, "state:"+p.State)
	if err != nil || county <= 0 {
		county = 0
	}
	return &Response{Success: true, MedianIncome: tract, AreaMedianIncome: county}, nil
}

func (s *ACSSource) query(ctx context.Context, forClause, inClause string) (int, error) {
	params := url.Values{
		"get": {medianIncomeVar},
		"for": {forClause},
		"in":  {inClause},
	}
	if s.apiKey != "" {
		params.Set("key", s.apiKey)
	}
	rawURL := s.baseURL + "/" + strconv.Itoa(s.year) + "/acs/acs5?" + params.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, eris.Wrap(err, "income: build acs request")
	}
	resp, err := s.http.Do(httpReq)
	if err != nil {
		return 0, eris.Wrap(err, "income: acs request")
	}
	defer resp.Body.Close() //nolint:errcheck

	// The Data API answers 204 when the geography has no rows.
	if resp.StatusCode == http.StatusNoContent {
		return 0, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, resilience.StatusError("income: acs", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, eris.Wrap(err, "income: read acs response")
	}
	return parseACSValue(raw)
}

// parseACSValue reads the first data cell of a Data API table:
// [["B19013_001E","state","county","tract"],["42000","06","037","206300"]].
// Jam values such as -666666666 come back as negatives.
func parseACSValue(raw []byte) (int, error) {
	var table [][]*string
	if err := json.Unmarshal(raw, &table); err != nil {
		return 0, eris.Wrap(err, "income: parse acs response")
	}
	if len(table) < 2 || len(table[1]) == 0 || table[1][0] == nil {
		return 0, nil
	}
	v, err := strconv.Atoi(*table[1][0])
	if err != nil {
		return 0, eris.Wrapf(err, "income: acs value %q", *table[1][0])
	}
	return v, nil
}
