package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/couchcryptid/watershed-finder/internal/domain"
	"github.com/couchcryptid/watershed-finder/internal/observability"
)

const (
	opSearch = "search"
	opSelect = "select"
)

var (
	// ErrNoSelection is returned by SelectNeighbor before any result is shown.
	ErrNoSelection = errors.New("no watershed is selected")
	// ErrSuperseded is returned when a lookup finished after the orchestrator
	// moved on; its result was discarded.
	ErrSuperseded = errors.New("lookup superseded")
	// ErrClosed is returned once the orchestrator is closed.
	ErrClosed = errors.New("orchestrator closed")
)

// Providers are the three external lookups the pipeline chains.
type Providers struct {
	Geocoder  domain.Geocoder
	Boundary  domain.BoundaryLocator
	Adjacency domain.AdjacencyResolver
}

// Orchestrator runs the geocode → boundary → adjacency pipeline for one user
// and owns the resulting selection. At most one lookup is in flight at a time.
type Orchestrator struct {
	providers Providers
	renderer  Renderer
	listener  StatusListener
	logger    *slog.Logger
	metrics   *observability.Metrics

	// clickCtx scopes lookups started from map clicks; cancelled by Close.
	clickCtx context.Context
	cancel   context.CancelFunc

	mu         sync.Mutex
	state      State
	busy       bool
	closed     bool
	generation uint64
	selection  *domain.Selection
	message    string
}

// New creates an Orchestrator drawing to r. l may be nil.
func New(p Providers, r Renderer, l StatusListener, logger *slog.Logger, metrics *observability.Metrics) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		providers: p,
		renderer:  r,
		listener:  l,
		logger:    logger,
		metrics:   metrics,
		clickCtx:  ctx,
		cancel:    cancel,
	}
}

// Search resolves query to a watershed and its neighbors and draws them.
// Whitespace-only queries are rejected without any network call. Failures are
// reported to the status listener and also returned.
func (o *Orchestrator) Search(ctx context.Context, query string) error {
	query = strings.TrimSpace(query)
	if query == "" {
		err := domain.NewError(domain.KindEmptyQuery, domain.MsgEmptyQuery, nil)
		o.rejectInput(err)
		o.metrics.LookupsTotal.WithLabelValues(opSearch, domain.KindEmptyQuery.String()).Inc()
		return err
	}

	gen, err := o.begin(StateSearching, false)
	if err != nil {
		o.metrics.LookupsTotal.WithLabelValues(opSearch, "rejected").Inc()
		return err
	}
	defer o.release(gen)

	o.logger.Info("search started", "query", query)
	start := time.Now()
	sel, err := o.runSearch(ctx, query)
	o.metrics.LookupDuration.WithLabelValues(opSearch).Observe(time.Since(start).Seconds())

	return o.settle(gen, opSearch, sel, err, StateSearchFailed, domain.MsgSearchFailed)
}

func (o *Orchestrator) runSearch(ctx context.Context, query string) (domain.Selection, error) {
	loc, err := o.providers.Geocoder.Geocode(ctx, query)
	if err != nil {
		return domain.Selection{}, err
	}
	primary, err := o.providers.Boundary.FindContaining(ctx, loc.Lat, loc.Lng)
	if err != nil {
		return domain.Selection{}, err
	}
	neighbors, err := o.providers.Adjacency.FindAdjacent(ctx, primary.Geometry, primary.Code)
	if err != nil {
		return domain.Selection{}, err
	}
	return domain.Selection{Location: &loc, Primary: primary, Neighbors: neighbors}, nil
}

// SelectNeighbor makes f the primary feature, resolving only its neighbors.
// On failure the previous selection stays on screen.
func (o *Orchestrator) SelectNeighbor(ctx context.Context, f domain.BoundaryFeature) error {
	gen, err := o.begin(StateReSelecting, true)
	if err != nil {
		o.metrics.LookupsTotal.WithLabelValues(opSelect, "rejected").Inc()
		return err
	}
	defer o.release(gen)

	o.logger.Info("neighbor selected", "huc8", f.Code, "name", f.Name)
	start := time.Now()
	var sel domain.Selection
	neighbors, err := o.providers.Adjacency.FindAdjacent(ctx, f.Geometry, f.Code)
	if err == nil {
		sel = domain.Selection{Primary: f, Neighbors: neighbors}
	}
	o.metrics.LookupDuration.WithLabelValues(opSelect).Observe(time.Since(start).Seconds())

	return o.settle(gen, opSelect, sel, err, StateSelectionFailed, domain.MsgSelectFailed)
}

// Resize tells the renderer its container changed size.
func (o *Orchestrator) Resize() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.renderer.InvalidateSize()
}

// Close discards any in-flight lookup and stops accepting new ones.
func (o *Orchestrator) Close() {
	o.cancel()
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	o.busy = false
	o.generation++
}

// Status returns the current status.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.statusLocked()
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Selection returns the displayed selection, or nil before the first result.
func (o *Orchestrator) Selection() *domain.Selection {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.selection
}

// begin claims the single in-flight slot and takes a new generation.
func (o *Orchestrator) begin(state State, needSelection bool) (uint64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch {
	case o.closed:
		return 0, ErrClosed
	case o.busy:
		return 0, domain.ErrBusy
	case needSelection && o.selection == nil:
		return 0, ErrNoSelection
	}

	o.busy = true
	o.generation++
	o.state = state
	o.message = ""
	o.notifyLocked()
	return o.generation, nil
}

// settle clears the busy flag and then applies the outcome, unless a newer
// generation has taken over.
func (o *Orchestrator) settle(gen uint64, op string, sel domain.Selection, err error, failState State, fallback string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if gen != o.generation {
		o.metrics.LookupsTotal.WithLabelValues(op, "stale").Inc()
		o.logger.Info("discarding stale lookup result", "operation", op, "generation", gen)
		return ErrSuperseded
	}

	o.busy = false

	if err != nil {
		kind := domain.KindOf(err)
		o.metrics.LookupsTotal.WithLabelValues(op, kind.String()).Inc()
		o.logger.Warn("lookup failed", "operation", op, "kind", kind.String(), "error", err)
		o.state = failState
		o.message = domain.UserMessage(err, fallback)
		o.notifyLocked()
		return err
	}

	o.metrics.LookupsTotal.WithLabelValues(op, "success").Inc()
	o.logger.Info("lookup complete", "operation", op, "huc8", sel.Primary.Code, "neighbors", len(sel.Neighbors))
	o.selection = &sel
	o.state = StateResultsShown
	o.message = ""
	o.drawLocked(sel)
	o.notifyLocked()
	return nil
}

// release guarantees the busy flag is cleared even if the lookup panicked.
func (o *Orchestrator) release(gen uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.generation || !o.busy {
		return
	}
	o.busy = false
	o.state = o.restingLocked()
	o.notifyLocked()
}

// rejectInput reports a validation failure without starting a lookup.
func (o *Orchestrator) rejectInput(err *domain.LookupError) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	if !o.busy {
		o.state = o.restingLocked()
	}
	o.message = err.Message
	o.notifyLocked()
}

func (o *Orchestrator) drawLocked(sel domain.Selection) {
	o.renderer.ClearAll()
	if sel.Location != nil {
		o.renderer.AddSearchMarker(sel.Location.Lat, sel.Location.Lng)
	}
	o.renderer.DisplayPrimaryFeature(sel.Primary, nil)
	o.renderer.DisplayNeighborFeatures(sel.Neighbors, o.onNeighborClick)
}

func (o *Orchestrator) onNeighborClick(f domain.BoundaryFeature) {
	// Already reported to the listener.
	_ = o.SelectNeighbor(o.clickCtx, f)
}

// restingLocked is the state a transient failure settles back to.
func (o *Orchestrator) restingLocked() State {
	if o.selection != nil {
		return StateResultsShown
	}
	return StateIdle
}

func (o *Orchestrator) statusLocked() Status {
	return Status{State: o.state, Busy: o.busy, Message: o.message}
}

func (o *Orchestrator) notifyLocked() {
	if o.listener != nil {
		o.listener.StatusChanged(o.statusLocked())
	}
}
