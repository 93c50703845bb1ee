package arcgis

import (
	"fmt"

	"github.com/paulmach/orb"
)

// WGS84 well-known ID.
const wkidWGS84 = 4326

type spatialReference struct {
	WKID int `json:"wkid"`
}

// esriPoint is the ESRI JSON point encoding. x is longitude.
type esriPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// esriPolygon is the ESRI JSON polygon encoding: a flat list of rings.
type esriPolygon struct {
	Rings            [][][2]float64   `json:"rings"`
	SpatialReference spatialReference `json:"spatialReference"`
}

// toEsriPolygon converts a Polygon or MultiPolygon to ESRI rings. A
// MultiPolygon's rings are flattened into one list; the grouping of holes
// under their outer ring is lost, which the intersects query does not need.
func toEsriPolygon(g orb.Geometry) (esriPolygon, error) {
	out := esriPolygon{SpatialReference: spatialReference{WKID: wkidWGS84}}
	switch geom := g.(type) {
	case orb.Polygon:
		out.Rings = appendRings(nil, geom)
	case orb.MultiPolygon:
		for _, p := range geom {
			out.Rings = appendRings(out.Rings, p)
		}
	case nil:
		return esriPolygon{}, fmt.Errorf("missing geometry")
	default:
		return esriPolygon{}, fmt.Errorf("unsupported geometry type %s", g.GeoJSONType())
	}
	if out.Rings == nil {
		out.Rings = [][][2]float64{}
	}
	return out, nil
}

func appendRings(dst [][][2]float64, p orb.Polygon) [][][2]float64 {
	for _, ring := range p {
		coords := make([][2]float64, len(ring))
		for i, pt := range ring {
			coords[i] = [2]float64{pt[0], pt[1]}
		}
		dst = append(dst, coords)
	}
	return dst
}
