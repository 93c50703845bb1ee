package httpadapter

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/paulmach/orb/geojson"

	"github.com/couchcryptid/watershed-finder/internal/domain"
	"github.com/couchcryptid/watershed-finder/internal/pipeline"
	"github.com/couchcryptid/watershed-finder/internal/render"
)

const maxLookupBody = 4096

type lookupRequest struct {
	Query string `json:"query"`
	// Select optionally reselects one of the returned neighbors by code.
	Select string `json:"select,omitempty"`
}

type lookupResponse struct {
	State     pipeline.State             `json:"state"`
	Selection selectionBody              `json:"selection"`
	Scene     *geojson.FeatureCollection `json:"scene"`
}

type selectionBody struct {
	Location  *domain.GeocodingResult    `json:"location,omitempty"`
	Primary   *geojson.Feature           `json:"primary"`
	Neighbors *geojson.FeatureCollection `json:"neighbors"`
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// lookupHandler runs one search against a throwaway orchestrator and
// returns what the map would show.
type lookupHandler struct {
	svc    LookupService
	logger *slog.Logger
}

func (h *lookupHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req lookupRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxLookupBody)).Decode(&req); err != nil {
		sharedobs.WriteJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body", Kind: "bad_request"})
		return
	}

	scene := render.NewScene()
	orch, err := h.svc.NewOrchestrator(scene, nil)
	if err != nil {
		sharedobs.WriteJSON(w, http.StatusServiceUnavailable, errorBody{Error: err.Error(), Kind: "unavailable"})
		return
	}
	defer orch.Close()

	if err := orch.Search(r.Context(), req.Query); err != nil {
		h.writeLookupError(w, r, orch, err)
		return
	}

	if req.Select != "" {
		f, ok := neighborByCode(orch.Selection(), req.Select)
		if !ok {
			sharedobs.WriteJSON(w, http.StatusUnprocessableEntity, errorBody{
				Error: "HUC8 " + req.Select + " is not adjacent to the search result",
				Kind:  "not_adjacent",
			})
			return
		}
		if err := orch.SelectNeighbor(r.Context(), f); err != nil {
			h.writeLookupError(w, r, orch, err)
			return
		}
	}

	sel := orch.Selection()
	resp := lookupResponse{State: orch.State(), Scene: scene.FeatureCollection()}
	if sel != nil {
		resp.Selection = selectionBody{
			Location:  sel.Location,
			Primary:   sel.Primary.GeoJSON(),
			Neighbors: featureCollection(sel.Neighbors),
		}
	}
	sharedobs.WriteJSON(w, http.StatusOK, resp)
}

func (h *lookupHandler) writeLookupError(w http.ResponseWriter, r *http.Request, orch *pipeline.Orchestrator, err error) {
	kind := domain.KindOf(err)
	status := statusForError(err)
	msg := orch.Status().Message
	if msg == "" {
		msg = domain.UserMessage(err, domain.MsgSearchFailed)
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("lookup failed", "kind", kind.String(), "error", err, "request_id", middleware.GetReqID(r.Context()))
	}
	body := errorBody{Error: msg, Kind: kind.String()}
	if errors.Is(err, domain.ErrBusy) {
		body.Kind = "busy"
	}
	sharedobs.WriteJSON(w, status, body)
}

func statusForError(err error) int {
	if errors.Is(err, domain.ErrBusy) {
		return http.StatusConflict
	}
	switch domain.KindOf(err) {
	case domain.KindEmptyQuery:
		return http.StatusBadRequest
	case domain.KindGeocodeNotFound, domain.KindNoBoundaryFound:
		return http.StatusNotFound
	case domain.KindGeocodeProvider, domain.KindBoundaryLookup, domain.KindAdjacencyLookup:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func neighborByCode(sel *domain.Selection, code string) (domain.BoundaryFeature, bool) {
	if sel == nil {
		return domain.BoundaryFeature{}, false
	}
	for _, f := range sel.Neighbors {
		if f.Code == code {
			return f, true
		}
	}
	return domain.BoundaryFeature{}, false
}

func featureCollection(fs []domain.BoundaryFeature) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, f := range fs {
		fc.Append(f.GeoJSON())
	}
	return fc
}
