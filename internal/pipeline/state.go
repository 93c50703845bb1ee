package pipeline

import (
	"fmt"

	"github.com/couchcryptid/watershed-finder/internal/domain"
)

// State is the lookup state shown to the user.
type State int

const (
	StateIdle State = iota
	StateSearching
	StateResultsShown
	StateSearchFailed
	StateReSelecting
	StateSelectionFailed
)

var stateNames = map[State]string{
	StateIdle:            "idle",
	StateSearching:       "searching",
	StateResultsShown:    "results_shown",
	StateSearchFailed:    "search_failed",
	StateReSelecting:     "reselecting",
	StateSelectionFailed: "selection_failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status is what the user sees outside the map: the state, whether the
// input is disabled behind a busy indicator, and the current error message.
type Status struct {
	State   State  `json:"state"`
	Busy    bool   `json:"busy"`
	Message string `json:"message,omitempty"`
}

// ClickFunc is invoked by the presentation layer when a feature is clicked.
type ClickFunc func(domain.BoundaryFeature)

// Renderer is the presentation contract. Implementations must not invoke a
// ClickFunc synchronously from inside one of these calls.
type Renderer interface {
	ClearAll()
	AddSearchMarker(lat, lng float64)
	// DisplayPrimaryFeature draws the selected HUC8. onClick may be nil.
	DisplayPrimaryFeature(f domain.BoundaryFeature, onClick ClickFunc)
	// DisplayNeighborFeatures draws the neighbor set and the textual list.
	// Both must call onClick with the same feature value.
	DisplayNeighborFeatures(fs []domain.BoundaryFeature, onClick ClickFunc)
	InvalidateSize()
}

// StatusListener receives every status change.
type StatusListener interface {
	StatusChanged(Status)
}

// StatusFunc adapts a function to StatusListener.
type StatusFunc func(Status)

func (f StatusFunc) StatusChanged(s Status) { f(s) }
