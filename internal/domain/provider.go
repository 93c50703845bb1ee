package domain

import (
	"context"

	"github.com/paulmach/orb"
)

// Geocoder resolves free text to a location.
type Geocoder interface {
	// Geocode returns the first match for query. Fails with KindGeocodeNotFound
	// or KindGeocodeProvider.
	Geocode(ctx context.Context, query string) (GeocodingResult, error)
}

// BoundaryLocator finds the HUC8 containing a point.
type BoundaryLocator interface {
	// FindContaining fails with KindNoBoundaryFound or KindBoundaryLookup.
	FindContaining(ctx context.Context, lat, lng float64) (BoundaryFeature, error)
}

// AdjacencyResolver finds the HUC8s touching a geometry.
type AdjacencyResolver interface {
	// FindAdjacent returns intersecting features other than code. An empty
	// result is not an error. Fails with KindAdjacencyLookup.
	FindAdjacent(ctx context.Context, geometry orb.Geometry, code string) ([]BoundaryFeature, error)
}
