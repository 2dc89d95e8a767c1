package lmi

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/lmi-check/internal/income"
	"github.com/sells-group/lmi-check/internal/model"
)

// ErrTractNotFound is returned when no boundary is loaded for a tract.
var ErrTractNotFound = eris.New("lmi: tract boundary not found")

// PolygonSource supplies tract boundaries.
type PolygonSource interface {
	Polygon(geoid string) (*geom.MultiPolygon, bool)
}

// Feature renders res as a GeoJSON point feature for map display.
func Feature(res *model.LmiEligibilityResult) *geojson.Feature {
	props := map[string]any{
		"query":       res.Query(),
		"tract_id":    res.TractID,
		"is_approved": res.IsApproved,
		"eligibility": res.EligibilityLabel,
		"data_source": res.DataSource,
		"timestamp":   res.Timestamp,
	}
	if res.FormattedAddress != "" {
		props["formatted_address"] = res.FormattedAddress
	}
	if res.BlockGroupID != "" {
		props["block_group_id"] = res.BlockGroupID
	}
	if res.MedianIncome != nil {
		props["median_income"] = *res.MedianIncome
	}
	if res.AMIPercentage != nil {
		props["ami_percentage"] = *res.AMIPercentage
	}
	if res.IncomeCategory != nil {
		props["income_category"] = *res.IncomeCategory
	}

	return &geojson.Feature{
		ID:         res.TractID,
		Geometry:   geom.NewPointFlat(geom.XY, []float64{res.Longitude, res.Latitude}).SetSRID(4326),
		Properties: props,
	}
}

// TractFeature renders a tract boundary with its income classification.
func TractFeature(src PolygonSource, cl *income.Classification) (*geojson.Feature, error) {
	if src == nil {
		return nil, ErrTractNotFound
	}
	mp, ok := src.Polygon(cl.TractID)
	if !ok {
		return nil, eris.Wrapf(ErrTractNotFound, "lmi: tract %s", cl.TractID)
	}
	return &geojson.Feature{
		ID:       cl.TractID,
		BBox:     mp.Bounds(),
		Geometry: mp,
		Properties: map[string]any{
			"tract_id":           cl.TractID,
			"median_income":      cl.MedianIncome,
			"area_median_income": cl.AreaMedianIncome,
			"ami_percentage":     cl.AMIPercentage,
			"income_category":    cl.Category,
			"is_eligible":        cl.Eligible,
			"source":             cl.Source,
		},
	}, nil
}
