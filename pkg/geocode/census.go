package geocode

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lmi-check/internal/model"
)

// Census geocoder defaults. Geographies are pinned to the 2020 tract vintage.
const (
	DefaultCensusBaseURL = "https://geocoding.geo.census.gov"
	DefaultBenchmark     = "Public_AR_Census2020"
	DefaultVintage       = "Census2020_Census2020"

	layerTracts      = "Census Tracts"
	layerBlockGroups = "Census Block Groups"
)

type censusGeography struct {
	GEOID string `json:"GEOID"`
}

type censusGeographies map[string][]censusGeography

// first returns the GEOID of the first feature in layer.
func (g censusGeographies) first(layer string) string {
	if feats := g[layer]; len(feats) > 0 {
		return feats[0].GEOID
	}
	return ""
}

type censusAddressMatch struct {
	MatchedAddress string `json:"matchedAddress"`
	Coordinates    struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	} `json:"coordinates"`
	Geographies censusGeographies `json:"geographies"`
}

type censusForwardResponse struct {
	Result struct {
		AddressMatches []censusAddressMatch `json:"addressMatches"`
	} `json:"result"`
}

type censusReverseResponse struct {
	Result struct {
		Geographies censusGeographies `json:"geographies"`
	} `json:"result"`
}

// CensusProvider geocodes one-line addresses against the Census geographies
// endpoint, which returns the containing tract with the match.
type CensusProvider struct {
	fetch     *fetcher
	baseURL   string
	benchmark string
	vintage   string
}

// Name implements Provider.
func (p *CensusProvider) Name() string { return string(model.SourceCensus) }

// Available implements Provider.
func (p *CensusProvider) Available() bool { return p.baseURL != "" }

func (p *CensusProvider) layers(level model.Level) string {
	if level == model.LevelBlockGroup {
		return layerTracts + "," + layerBlockGroups
	}
	return layerTracts
}

func (p *CensusProvider) forwardURL(query string, opts Options) string {
	params := url.Values{
		"address":   {query},
		"benchmark": {p.benchmark},
		"vintage":   {p.vintage},
		"layers":    {p.layers(opts.Level)},
		"format":    {"json"},
	}
	return p.baseURL + "/geocoder/geographies/onelineaddress?" + params.Encode()
}

// Geocode implements Provider. The first address match wins.
func (p *CensusProvider) Geocode(ctx context.Context, query string, opts Options) (*Result, error) {
	var resp censusForwardResponse
	err := p.fetch.get(ctx, "geocode: census", p.forwardURL(query, opts), nil, func(body []byte) error {
		return eris.Wrap(json.Unmarshal(body, &resp), "geocode: census parse response")
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Result.AddressMatches) == 0 {
		return nil, nil
	}

	m := resp.Result.AddressMatches[0]
	return &Result{
		Latitude:         m.Coordinates.Y,
		Longitude:        m.Coordinates.X,
		TractID:          m.Geographies.first(layerTracts),
		BlockGroupID:     m.Geographies.first(layerBlockGroups),
		FormattedAddress: m.MatchedAddress,
		MatchScore:       100,
		Source:           model.SourceCensus,
	}, nil
}

func (p *CensusProvider) reverseURL(lat, lon float64) string {
	params := url.Values{
		"x":         {strconv.FormatFloat(lon, 'f', -1, 64)},
		"y":         {strconv.FormatFloat(lat, 'f', -1, 64)},
		"benchmark": {p.benchmark},
		"vintage":   {p.vintage},
		"layers":    {layerTracts},
		"format":    {"json"},
	}
	return p.baseURL + "/geocoder/geographies/coordinates?" + params.Encode()
}

// tractAt returns the GEOID of the tract containing the point, or "" when
// the point falls outside every tract.
func (p *CensusProvider) tractAt(ctx context.Context, lat, lon float64) (string, error) {
	var resp censusReverseResponse
	err := p.fetch.get(ctx, "geocode: census reverse", p.reverseURL(lat, lon), nil, func(body []byte) error {
		return eris.Wrap(json.Unmarshal(body, &resp), "geocode: census reverse parse response")
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Result.Geographies.first(layerTracts)), nil
}
