package geocode

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromCoordinates_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/geocoder/geographies/coordinates", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "-118.2437", q.Get("x"))
		assert.Equal(t, "34.0522", q.Get("y"))
		assert.Equal(t, "Census Tracts", q.Get("layers"))
		assert.Equal(t, DefaultBenchmark, q.Get("benchmark"))
		_, _ = io.WriteString(w, `{"result": {"geographies": {"Census Tracts": [{"GEOID": "06037207400"}]}}}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, "")
	geoid, ok := c.FromCoordinates(context.Background(), 34.0522, -118.2437)
	assert.True(t, ok)
	assert.Equal(t, "06037207400", geoid)
}

func TestFromCoordinates_NoGeographies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"result": {"geographies": {"Census Tracts": []}}}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, "")
	geoid, ok := c.FromCoordinates(context.Background(), 0, 0)
	assert.False(t, ok)
	assert.Empty(t, geoid)
}

func TestFromCoordinates_ErrorIsMiss(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, "")
	_, ok := c.FromCoordinates(context.Background(), 34.0522, -118.2437)
	assert.False(t, ok)
}

func TestFromCoordinates_MalformedIsMiss(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `not json`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, "")
	_, ok := c.FromCoordinates(context.Background(), 34.0522, -118.2437)
	assert.False(t, ok)
}

type staticLocator struct {
	geoid string
	calls int
}

func (s *staticLocator) FromCoordinates(context.Context, float64, float64) (string, bool) {
	s.calls++
	return s.geoid, s.geoid != ""
}

func TestLocatorChain(t *testing.T) {
	miss := &staticLocator{}
	hit := &staticLocator{geoid: "06037206300"}
	never := &staticLocator{geoid: "99999999999"}

	chain := LocatorChain{nil, miss, hit, never}
	geoid, ok := chain.FromCoordinates(context.Background(), 1, 2)
	assert.True(t, ok)
	assert.Equal(t, "06037206300", geoid)
	assert.Equal(t, 1, miss.calls)
	assert.Equal(t, 0, never.calls)

	_, ok = LocatorChain{miss}.FromCoordinates(context.Background(), 1, 2)
	assert.False(t, ok)
}
