package domain

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Provider property names on the WBD HUC8 layer.
const (
	PropCode      = "huc8"
	PropName      = "name"
	PropStates    = "states"
	PropAreaAcres = "areaacres"
	PropAreaSqKm  = "areasqkm"
)

// GeocodingResult is the location a free-text query resolved to.
type GeocodingResult struct {
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	DisplayName string  `json:"display_name"`
}

// BoundaryFeature is a single HUC8 watershed polygon.
type BoundaryFeature struct {
	Code      string   `json:"huc8"`
	Name      string   `json:"name"`
	States    string   `json:"states"`
	AreaAcres *float64 `json:"area_acres,omitempty"`
	AreaSqKm  *float64 `json:"area_sq_km,omitempty"`

	// Geometry is an orb.Polygon or orb.MultiPolygon.
	Geometry orb.Geometry `json:"-"`
}

// Selection is the primary feature currently on display together with its
// neighbors. It is replaced wholesale on every successful lookup.
type Selection struct {
	// Location is nil when the selection came from clicking a neighbor.
	Location  *GeocodingResult  `json:"location,omitempty"`
	Primary   BoundaryFeature   `json:"primary"`
	Neighbors []BoundaryFeature `json:"neighbors"`
}

// FeatureFromGeoJSON maps a provider GeoJSON feature to a BoundaryFeature.
func FeatureFromGeoJSON(f *geojson.Feature) (BoundaryFeature, error) {
	if f == nil {
		return BoundaryFeature{}, fmt.Errorf("nil feature")
	}
	switch f.Geometry.(type) {
	case orb.Polygon, orb.MultiPolygon:
	case nil:
		return BoundaryFeature{}, fmt.Errorf("feature %v has no geometry", f.ID)
	default:
		return BoundaryFeature{}, fmt.Errorf("unsupported geometry type %s", f.Geometry.GeoJSONType())
	}

	return BoundaryFeature{
		Code:      stringProp(f.Properties, PropCode),
		Name:      stringProp(f.Properties, PropName),
		States:    stringProp(f.Properties, PropStates),
		AreaAcres: floatProp(f.Properties, PropAreaAcres),
		AreaSqKm:  floatProp(f.Properties, PropAreaSqKm),
		Geometry:  f.Geometry,
	}, nil
}

// GeoJSON converts the feature back to GeoJSON for rendering.
func (b BoundaryFeature) GeoJSON() *geojson.Feature {
	f := geojson.NewFeature(b.Geometry)
	f.ID = b.Code
	f.Properties[PropCode] = b.Code
	f.Properties[PropName] = b.Name
	f.Properties[PropStates] = b.States
	if b.AreaAcres != nil {
		f.Properties[PropAreaAcres] = *b.AreaAcres
	}
	if b.AreaSqKm != nil {
		f.Properties[PropAreaSqKm] = *b.AreaSqKm
	}
	return f
}

// ExcludeCode returns the features whose code differs from code, preserving order.
func ExcludeCode(features []BoundaryFeature, code string) []BoundaryFeature {
	out := make([]BoundaryFeature, 0, len(features))
	for _, f := range features {
		if f.Code != code {
			out = append(out, f)
		}
	}
	return out
}

func stringProp(p geojson.Properties, key string) string {
	switch v := p[key].(type) {
	case string:
		return v
	case float64:
		// Some WBD mirrors serve huc8 as a number, which drops leading zeros.
		return fmt.Sprintf("%08.0f", v)
	default:
		return ""
	}
}

func floatProp(p geojson.Properties, key string) *float64 {
	v, ok := p[key].(float64)
	if !ok {
		return nil
	}
	return &v
}
