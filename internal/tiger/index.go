// Package tiger builds an offline census tract index from TIGER/Line tract
// shapefiles.
package tiger

import (
	"context"
	"sort"
	"sync"

	"github.com/twpayne/go-geom"
)

type tractShape struct {
	geoid  string
	shape  *geom.MultiPolygon
	bounds *geom.Bounds
}

// TractIndex answers point-in-tract queries from loaded tract polygons. It is
// safe for concurrent use.
type TractIndex struct {
	mu     sync.RWMutex
	tracts []tractShape
	byID   map[string]int
}

// NewTractIndex returns an empty index.
func NewTractIndex() *TractIndex {
	return &TractIndex{byID: make(map[string]int)}
}

// Add inserts or replaces the polygon for geoid.
func (ix *TractIndex) Add(geoid string, mp *geom.MultiPolygon) {
	if mp == nil {
		return
	}
	ts := tractShape{geoid: geoid, shape: mp, bounds: mp.Bounds()}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if i, ok := ix.byID[geoid]; ok {
		ix.tracts[i] = ts
		return
	}
	ix.byID[geoid] = len(ix.tracts)
	ix.tracts = append(ix.tracts, ts)
}

// Len returns the number of indexed tracts.
func (ix *TractIndex) Len() int {
	if ix == nil {
		return 0
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.tracts)
}

// FromCoordinates returns the GEOID of the tract containing (lat, lon).
func (ix *TractIndex) FromCoordinates(_ context.Context, lat, lon float64) (string, bool) {
	if ix == nil {
		return "", false
	}
	pt := geom.Coord{lon, lat}

	ix.mu.RLock()
	defer ix.mu.RUnlock()
	for _, t := range ix.tracts {
		if lon < t.bounds.Min(0) || lon > t.bounds.Max(0) || lat < t.bounds.Min(1) || lat > t.bounds.Max(1) {
			continue
		}
		if containsPoint(t.shape, pt) {
			return t.geoid, true
		}
	}
	return "", false
}

// Polygon returns the tract boundary for geoid.
func (ix *TractIndex) Polygon(geoid string) (*geom.MultiPolygon, bool) {
	if ix == nil {
		return nil, false
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	i, ok := ix.byID[geoid]
	if !ok {
		return nil, false
	}
	return ix.tracts[i].shape, true
}

// GEOIDs returns every indexed tract id in sorted order.
func (ix *TractIndex) GEOIDs() []string {
	if ix == nil {
		return nil
	}
	ix.mu.RLock()
	ids := make([]string, 0, len(ix.tracts))
	for _, t := range ix.tracts {
		ids = append(ids, t.geoid)
	}
	ix.mu.RUnlock()
	sort.Strings(ids)
	return ids
}
