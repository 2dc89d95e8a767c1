package tiger

import (
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// geoidFields are the attribute names TIGER/Line vintages use for the
// 11-digit tract GEOID.
var geoidFields = []string{"geoid", "geoid20", "geoid10"}

// LoadTracts reads a TIGER/Line tract shapefile into a TractIndex. Records
// without a GEOID or a usable polygon are skipped.
func LoadTracts(shpPath string) (*TractIndex, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "tiger: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	fieldIdx := make(map[string]int)
	for i, f := range reader.Fields() {
		name := strings.TrimRight(f.String(), "\x00")
		fieldIdx[strings.ToLower(name)] = i
	}

	geoidIdx := -1
	for _, name := range geoidFields {
		if idx, ok := fieldIdx[name]; ok {
			geoidIdx = idx
			break
		}
	}
	if geoidIdx < 0 {
		return nil, eris.Errorf("tiger: %s has no GEOID attribute", shpPath)
	}

	ix := NewTractIndex()
	var skipped int

	for reader.Next() {
		_, shape := reader.Shape()
		geoid := strings.TrimSpace(strings.TrimRight(reader.Attribute(geoidIdx), "\x00"))

		poly, ok := shape.(*shp.Polygon)
		if !ok || geoid == "" {
			skipped++
			continue
		}
		mp := polygonToMultiPolygon(poly)
		if mp == nil {
			skipped++
			continue
		}
		ix.Add(geoid, mp)
	}

	if skipped > 0 {
		zap.L().Debug("tiger: skipped shapefile records",
			zap.String("path", shpPath),
			zap.Int("skipped", skipped),
		)
	}
	zap.L().Info("tiger: tract index loaded",
		zap.String("path", shpPath),
		zap.Int("tracts", ix.Len()),
	)
	return ix, nil
}
