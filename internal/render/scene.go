// Package render keeps an in-memory picture of what the map shows.
package render

import (
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/couchcryptid/watershed-finder/internal/domain"
	"github.com/couchcryptid/watershed-finder/internal/pipeline"
)

// Layer names, set as the "layer" property on exported features.
const (
	LayerMarker   = "marker"
	LayerPrimary  = "primary"
	LayerNeighbor = "neighbor"
)

// Scene implements pipeline.Renderer by recording the drawing. It can export
// the drawing as GeoJSON and replay clicks by HUC8 code.
type Scene struct {
	mu         sync.Mutex
	marker     *orb.Point
	primary    *domain.BoundaryFeature
	neighbors  []domain.BoundaryFeature
	onPrimary  pipeline.ClickFunc
	onNeighbor pipeline.ClickFunc
	resizes    int
}

// NewScene creates an empty scene.
func NewScene() *Scene {
	return &Scene{}
}

func (s *Scene) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marker = nil
	s.primary = nil
	s.neighbors = nil
	s.onPrimary = nil
	s.onNeighbor = nil
}

func (s *Scene) AddSearchMarker(lat, lng float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marker = &orb.Point{lng, lat}
}

func (s *Scene) DisplayPrimaryFeature(f domain.BoundaryFeature, onClick pipeline.ClickFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.primary = &f
	s.onPrimary = onClick
}

func (s *Scene) DisplayNeighborFeatures(fs []domain.BoundaryFeature, onClick pipeline.ClickFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.neighbors = append([]domain.BoundaryFeature(nil), fs...)
	s.onNeighbor = onClick
}

func (s *Scene) InvalidateSize() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resizes++
}

// Click simulates a click on the displayed feature with the given code, from
// either the map layer or the neighbor list. It reports whether a clickable
// feature with that code was on screen. The callback runs on the caller's
// goroutine after the scene lock is released.
func (s *Scene) Click(code string) bool {
	s.mu.Lock()
	var (
		target  domain.BoundaryFeature
		onClick pipeline.ClickFunc
	)
	for _, f := range s.neighbors {
		if f.Code == code {
			target, onClick = f, s.onNeighbor
			break
		}
	}
	if onClick == nil && s.primary != nil && s.primary.Code == code {
		target, onClick = *s.primary, s.onPrimary
	}
	s.mu.Unlock()

	if onClick == nil {
		return false
	}
	onClick(target)
	return true
}

// Neighbors returns the neighbor list as displayed.
func (s *Scene) Neighbors() []domain.BoundaryFeature {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.BoundaryFeature(nil), s.neighbors...)
}

// Primary returns the displayed primary feature, if any.
func (s *Scene) Primary() (domain.BoundaryFeature, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.primary == nil {
		return domain.BoundaryFeature{}, false
	}
	return *s.primary, true
}

// Resizes returns how many times InvalidateSize was called.
func (s *Scene) Resizes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resizes
}

// FeatureCollection exports the drawing: marker first, then the primary,
// then neighbors in display order.
func (s *Scene) FeatureCollection() *geojson.FeatureCollection {
	s.mu.Lock()
	defer s.mu.Unlock()

	fc := geojson.NewFeatureCollection()
	if s.marker != nil {
		m := geojson.NewFeature(*s.marker)
		m.Properties["layer"] = LayerMarker
		fc.Append(m)
	}
	if s.primary != nil {
		p := s.primary.GeoJSON()
		p.Properties["layer"] = LayerPrimary
		fc.Append(p)
	}
	for _, n := range s.neighbors {
		f := n.GeoJSON()
		f.Properties["layer"] = LayerNeighbor
		fc.Append(f)
	}
	return fc
}
