package geocode

import (
	"net/http"
	"strings"

	"golang.org/x/time/rate"
)

// newTestLimiter creates a rate limiter that effectively does not limit for tests.
func newTestLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Inf, 1)
}

// newRewriteClient creates an HTTP client that rewrites requests to a test server URL.
// All requests matching the target prefix are redirected to the test server.
func newRewriteClient(testServerURL, targetPrefix string) *http.Client {
	return &http.Client{
		Transport: &rewriteTransport{
			base:         http.DefaultTransport,
			testServer:   testServerURL,
			targetPrefix: targetPrefix,
		},
	}
}

type rewriteTransport struct {
	base         http.RoundTripper
	testServer   string
	targetPrefix string
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	origURL := req.URL.String()
	if strings.HasPrefix(origURL, t.targetPrefix) {
		suffix := origURL[len(t.targetPrefix):]
		newReq := req.Clone(req.Context())
		parsed, err := req.URL.Parse(t.testServer + suffix)
		if err != nil {
			return nil, err
		}
		newReq.URL = parsed
		newReq.Host = parsed.Host
		return t.base.RoundTrip(newReq)
	}
	return t.base.RoundTrip(req)
}

// newTestClient points both providers at srvURL. An empty token leaves Esri
// disabled.
func newTestClient(srvURL, esriToken string, opts ...Option) *Client {
	base := []Option{
		WithCensus(srvURL, "", ""),
		WithEsri(srvURL+"/esri", esriToken),
	}
	c := NewClient(append(base, opts...)...)
	c.fetch.limiter = newTestLimiter()
	return c
}

const censusMatchJSON = `{
	"result": {
		"addressMatches": [{
			"matchedAddress": "100 N MAIN ST, LOS ANGELES, CA, 90012",
			"coordinates": {"x": -118.2437, "y": 34.0522},
			"geographies": {
				"Census Tracts": [{"GEOID": "06037207400"}],
				"Census Block Groups": [{"GEOID": "060372074001"}]
			}
		}]
	}
}`

const censusNoMatchJSON = `{"result": {"addressMatches": []}}`

const esriMatchJSON = `{
	"candidates": [
		{"address": "Low Score Rd", "location": {"x": -100.0, "y": 30.0}, "score": 71.5},
		{"address": "Griffith Observatory", "location": {"x": -118.3004, "y": 34.1184}, "score": 98.2}
	]
}`
