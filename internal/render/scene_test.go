package render

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/watershed-finder/internal/domain"
)

func square(x, y float64) orb.Polygon {
	return orb.Polygon{{{x, y}, {x + 1, y}, {x + 1, y + 1}, {x, y + 1}, {x, y}}}
}

var (
	primary  = domain.BoundaryFeature{Code: "02070010", Name: "Middle Potomac-Anacostia-Occoquan", States: "DC,MD,VA", Geometry: square(0, 0)}
	neighbor = domain.BoundaryFeature{Code: "02070008", Name: "Upper Potomac", States: "MD,VA,WV", Geometry: square(1, 0)}
)

func TestScene_FeatureCollectionLayers(t *testing.T) {
	s := NewScene()
	s.AddSearchMarker(38.8977, -77.0365)
	s.DisplayPrimaryFeature(primary, nil)
	s.DisplayNeighborFeatures([]domain.BoundaryFeature{neighbor}, nil)

	fc := s.FeatureCollection()
	require.Len(t, fc.Features, 3)

	assert.Equal(t, LayerMarker, fc.Features[0].Properties["layer"])
	assert.Equal(t, orb.Point{-77.0365, 38.8977}, fc.Features[0].Geometry)
	assert.Equal(t, LayerPrimary, fc.Features[1].Properties["layer"])
	assert.Equal(t, "02070010", fc.Features[1].ID)
	assert.Equal(t, LayerNeighbor, fc.Features[2].Properties["layer"])
	assert.Equal(t, "Upper Potomac", fc.Features[2].Properties[domain.PropName])
}

func TestScene_ClearAll(t *testing.T) {
	s := NewScene()
	s.AddSearchMarker(1, 2)
	s.DisplayPrimaryFeature(primary, nil)
	s.DisplayNeighborFeatures([]domain.BoundaryFeature{neighbor}, func(domain.BoundaryFeature) {})

	s.ClearAll()

	assert.Empty(t, s.FeatureCollection().Features)
	assert.Empty(t, s.Neighbors())
	assert.False(t, s.Click(neighbor.Code))
	_, ok := s.Primary()
	assert.False(t, ok)
}

func TestScene_ClickDeliversDisplayedFeature(t *testing.T) {
	s := NewScene()
	var got []domain.BoundaryFeature
	s.DisplayPrimaryFeature(primary, nil)
	s.DisplayNeighborFeatures([]domain.BoundaryFeature{neighbor}, func(f domain.BoundaryFeature) {
		got = append(got, f)
	})

	// Map layer click and list click both address the feature by code.
	require.True(t, s.Click(neighbor.Code))
	require.True(t, s.Click(s.Neighbors()[0].Code))

	require.Len(t, got, 2)
	assert.Equal(t, neighbor, got[0])
	assert.Equal(t, got[0], got[1])

	assert.False(t, s.Click(primary.Code), "primary has no click handler")
	assert.False(t, s.Click("99999999"))
}

func TestScene_ClickMayRedraw(t *testing.T) {
	s := NewScene()
	s.DisplayNeighborFeatures([]domain.BoundaryFeature{neighbor}, func(f domain.BoundaryFeature) {
		// Redrawing from inside the callback must not deadlock.
		s.ClearAll()
		s.DisplayPrimaryFeature(f, nil)
	})

	require.True(t, s.Click(neighbor.Code))

	p, ok := s.Primary()
	require.True(t, ok)
	assert.Equal(t, neighbor.Code, p.Code)
}

func TestScene_Resizes(t *testing.T) {
	s := NewScene()
	s.InvalidateSize()
	s.InvalidateSize()
	assert.Equal(t, 2, s.Resizes())
}
