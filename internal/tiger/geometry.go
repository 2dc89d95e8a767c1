package tiger

import (
	"github.com/jonas-p/go-shp"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"
)

// polygonToMultiPolygon converts a shapefile Polygon to a geom.MultiPolygon
// in SRID 4326. Shapefile outer rings wind clockwise and holes counter-
// clockwise; each hole is attached to the outer ring that contains it.
func polygonToMultiPolygon(p *shp.Polygon) *geom.MultiPolygon {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	var outers, holes [][]float64
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}
		if end-start < 4 {
			zap.L().Debug("tiger: skipping degenerate ring", zap.Int32("part", i))
			continue
		}

		flat := make([]float64, 0, (end-start)*2)
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}
		if signedArea(flat) > 0 {
			holes = append(holes, flat)
		} else {
			outers = append(outers, flat)
		}
	}
	if len(outers) == 0 {
		// Some producers ignore winding order; treat every ring as an outer.
		outers, holes = holes, nil
	}

	polys := make([][][]float64, len(outers))
	for i, o := range outers {
		polys[i] = [][]float64{o}
	}
	for _, h := range holes {
		pt := geom.Coord{h[0], h[1]}
		for i, o := range outers {
			if xy.IsPointInRing(geom.XY, pt, o) {
				polys[i] = append(polys[i], h)
				break
			}
		}
	}

	mp := geom.NewMultiPolygon(geom.XY).SetSRID(4326)
	for i, rings := range polys {
		poly := geom.NewPolygon(geom.XY)
		for _, r := range rings {
			if err := poly.Push(geom.NewLinearRingFlat(geom.XY, r)); err != nil {
				zap.L().Debug("tiger: skipping malformed ring", zap.Int("polygon", i), zap.Error(err))
			}
		}
		if poly.NumLinearRings() == 0 {
			continue
		}
		if err := mp.Push(poly); err != nil {
			zap.L().Debug("tiger: skipping malformed polygon", zap.Int("polygon", i), zap.Error(err))
		}
	}
	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

// signedArea is the shoelace sum over a flat XY ring. Positive means
// counter-clockwise.
func signedArea(flat []float64) float64 {
	var sum float64
	n := len(flat) / 2
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += flat[2*i]*flat[2*j+1] - flat[2*j]*flat[2*i+1]
	}
	return sum / 2
}

// containsPoint reports whether pt lies inside any polygon of mp and outside
// that polygon's holes.
func containsPoint(mp *geom.MultiPolygon, pt geom.Coord) bool {
	for i := 0; i < mp.NumPolygons(); i++ {
		poly := mp.Polygon(i)
		if !xy.IsPointInRing(geom.XY, pt, poly.LinearRing(0).FlatCoords()) {
			continue
		}
		inHole := false
		for r := 1; r < poly.NumLinearRings(); r++ {
			if xy.IsPointInRing(geom.XY, pt, poly.LinearRing(r).FlatCoords()) {
				inHole = true
				break
			}
		}
		if !inHole {
			return true
		}
	}
	return false
}
