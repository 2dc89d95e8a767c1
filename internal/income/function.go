package income

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lmi-check/internal/resilience"
)

// FunctionSource posts {action, params} to a backend function that owns
// the income data.
type FunctionSource struct {
	url  string
	key  string
	http *http.Client
}

// NewFunctionSource creates a FunctionSource. key is sent as a bearer token
// when non-empty. A nil client gets a 15s timeout.
func NewFunctionSource(url, key string, hc *http.Client) *FunctionSource {
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	return &FunctionSource{url: url, key: key, http: hc}
}

// Name implements Source.
func (s *FunctionSource) Name() string { return "function" }

// MedianIncome implements Source.
func (s *FunctionSource) MedianIncome(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "income: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "income: build request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if s.key != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.key)
	}

	resp, err := s.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "income: function request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resilience.StatusError("income: function", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, eris.Wrap(err, "income: read function response")
	}
	var out Response
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, eris.Wrap(err, "income: parse function response")
	}
	return &out, nil
}
