package geocode

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lmi-check/internal/model"
)

// DefaultEsriBaseURL is the ArcGIS World Geocoding service root.
const DefaultEsriBaseURL = "https://geocode-api.arcgis.com/arcgis/rest/services/World/GeocodeServer"

const esriMaxLocations = 5

type esriCandidate struct {
	Address  string `json:"address"`
	Location struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	} `json:"location"`
	Score float64 `json:"score"`
}

type esriResponse struct {
	Candidates []esriCandidate `json:"candidates"`
	Error      *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// esriStrategy is one way of phrasing the findAddressCandidates request.
// Accounts differ in which parameter names and auth styles they accept.
type esriStrategy struct {
	name   string
	params func(query, token string) url.Values
	header func(token string) map[string]string
}

var esriStrategies = []esriStrategy{
	{
		name: "singleLine",
		params: func(q, tok string) url.Values {
			return url.Values{"singleLine": {q}, "token": {tok}}
		},
	},
	{
		name: "SingleLine+outFields",
		params: func(q, tok string) url.Values {
			return url.Values{
				"SingleLine":   {q},
				"token":        {tok},
				"outFields":    {"*"},
				"maxLocations": {strconv.Itoa(esriMaxLocations)},
			}
		},
	},
	{
		name: "address",
		params: func(q, tok string) url.Values {
			return url.Values{"address": {q}, "token": {tok}}
		},
	},
	{
		name: "X-Esri-Authorization",
		params: func(q, _ string) url.Values {
			return url.Values{"SingleLine": {q}}
		},
		header: func(tok string) map[string]string {
			return map[string]string{"X-Esri-Authorization": "Bearer " + tok}
		},
	},
	{
		name: "Authorization",
		params: func(q, _ string) url.Values {
			return url.Values{"SingleLine": {q}}
		},
		header: func(tok string) map[string]string {
			return map[string]string{"Authorization": "Bearer " + tok}
		},
	},
}

// EsriProvider geocodes through Esri findAddressCandidates. It reports
// coordinates only; the tract is resolved afterwards from the point.
type EsriProvider struct {
	fetch   *fetcher
	baseURL string
	token   string
}

// Name implements Provider.
func (p *EsriProvider) Name() string { return string(model.SourceEsri) }

// Available implements Provider. Esri requires a token.
func (p *EsriProvider) Available() bool { return p.token != "" && p.baseURL != "" }

// Geocode implements Provider. Strategies are tried in order; the first
// that returns candidates wins and its highest-scoring candidate is used.
// The last error is returned only when no strategy answered at all.
func (p *EsriProvider) Geocode(ctx context.Context, query string, _ Options) (*Result, error) {
	var lastErr error
	answered := false

	for _, s := range esriStrategies {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "geocode: esri")
		}

		cands, err := p.try(ctx, s, query)
		if err != nil {
			zap.L().Debug("geocode: esri strategy failed",
				zap.String("strategy", s.name),
				zap.Error(err),
			)
			lastErr = err
			continue
		}
		answered = true
		if best := bestCandidate(cands); best != nil {
			return &Result{
				Latitude:         best.Location.Y,
				Longitude:        best.Location.X,
				FormattedAddress: best.Address,
				MatchScore:       best.Score,
				Source:           model.SourceEsri,
			}, nil
		}
	}

	if !answered && lastErr != nil {
		return nil, lastErr
	}
	return nil, nil
}

func (p *EsriProvider) try(ctx context.Context, s esriStrategy, query string) ([]esriCandidate, error) {
	params := s.params(query, p.token)
	params.Set("f", "json")
	rawURL := p.baseURL + "/findAddressCandidates?" + params.Encode()

	var header map[string]string
	if s.header != nil {
		header = s.header(p.token)
	}

	var resp esriResponse
	err := p.fetch.get(ctx, "geocode: esri", rawURL, header, func(body []byte) error {
		resp = esriResponse{}
		if err := json.Unmarshal(body, &resp); err != nil {
			return eris.Wrap(err, "geocode: esri parse response")
		}
		// Esri reports auth and parameter problems as 200 with an error body.
		if resp.Error != nil {
			return eris.Errorf("geocode: esri error %d: %s", resp.Error.Code, resp.Error.Message)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp.Candidates, nil
}

func bestCandidate(cands []esriCandidate) *esriCandidate {
	var best *esriCandidate
	for i := range cands {
		if best == nil || cands[i].Score > best.Score {
			best = &cands[i]
		}
	}
	return best
}
