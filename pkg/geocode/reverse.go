package geocode

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/lmi-check/internal/resilience"
)

// TractLocator resolves a point to the GEOID of its containing census tract.
// ok is false when the point is outside every known tract or the lookup
// failed.
type TractLocator interface {
	FromCoordinates(ctx context.Context, lat, lon float64) (geoid string, ok bool)
}

// FromCoordinates implements TractLocator using the Census coordinates
// endpoint. Failures are logged and reported as a miss.
func (c *Client) FromCoordinates(ctx context.Context, lat, lon float64) (string, bool) {
	geoid, err := resilience.ExecuteVal(ctx, c.breakers.Get(c.census.Name()), func(ctx context.Context) (string, error) {
		return c.census.tractAt(ctx, lat, lon)
	})
	if err != nil {
		zap.L().Warn("geocode: reverse lookup failed",
			zap.Float64("lat", lat),
			zap.Float64("lon", lon),
			zap.Error(err),
		)
		return "", false
	}
	if geoid == "" {
		return "", false
	}
	return geoid, true
}

// LocatorChain consults each locator in order and returns the first hit.
// Nil entries are skipped.
type LocatorChain []TractLocator

// FromCoordinates implements TractLocator.
func (lc LocatorChain) FromCoordinates(ctx context.Context, lat, lon float64) (string, bool) {
	for _, l := range lc {
		if l == nil {
			continue
		}
		if geoid, ok := l.FromCoordinates(ctx, lat, lon); ok {
			return geoid, true
		}
	}
	return "", false
}
