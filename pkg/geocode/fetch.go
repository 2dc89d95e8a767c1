package geocode

import (
	"context"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/lmi-check/internal/cache"
	"github.com/sells-group/lmi-check/internal/resilience"
)

const maxResponseBytes = 4 << 20

// fetcher issues GET requests through the response cache and rate limiter.
// Only 2xx bodies that decode cleanly are cached.
type fetcher struct {
	http    *http.Client
	cache   *cache.ResultCache[[]byte]
	limiter *rate.Limiter
}

// requestKey identifies a request by URL and headers. Two requests share a
// cache entry only when both match exactly.
func requestKey(rawURL string, header map[string]string) string {
	if len(header) == 0 {
		return rawURL + "|"
	}
	names := make([]string, 0, len(header))
	for k := range header {
		names = append(names, k)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(rawURL)
	b.WriteByte('|')
	for i, k := range names {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(header[k])
	}
	return b.String()
}

// get fetches rawURL and hands the body to decode. A body is cached only
// when decode accepts it, so error payloads served with 200 are refetched.
func (f *fetcher) get(ctx context.Context, service, rawURL string, header map[string]string, decode func([]byte) error) error {
	key := requestKey(rawURL, header)
	if body, ok := f.cache.Get(key); ok {
		return decode(body)
	}

	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return eris.Wrapf(err, "%s: rate limit", service)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return eris.Wrapf(err, "%s: build request", service)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}

	resp, err := f.http.Do(req)
	if err != nil {
		return eris.Wrapf(err, "%s: request", service)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resilience.StatusError(service, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return eris.Wrapf(err, "%s: read body", service)
	}

	if err := decode(body); err != nil {
		return err
	}
	f.cache.Set(key, body)
	return nil
}
