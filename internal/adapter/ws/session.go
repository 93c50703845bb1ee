// Package ws drives a browser map over a websocket. The orchestrator's
// render calls go out as JSON commands; the browser's search, select, and
// resize actions come back in.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/paulmach/orb/geojson"

	"github.com/couchcryptid/watershed-finder/internal/domain"
	"github.com/couchcryptid/watershed-finder/internal/observability"
	"github.com/couchcryptid/watershed-finder/internal/pipeline"
	"github.com/couchcryptid/watershed-finder/internal/render"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

// Outgoing command ops.
const (
	OpHello          = "hello"
	OpClearAll       = "clearAll"
	OpSearchMarker   = "addSearchMarker"
	OpDisplayPrimary = "displayPrimaryFeature"
	OpDisplayNeigh   = "displayNeighborFeatures"
	OpInvalidateSize = "invalidateSize"
	OpStatus         = "status"
	OpError          = "error"
)

// Incoming action types.
const (
	ActionSearch = "search"
	ActionSelect = "select"
	ActionResize = "resize"
)

// Command is one message to the browser.
type Command struct {
	Op        string                     `json:"op"`
	Session   string                     `json:"session,omitempty"`
	Position  *[2]float64                `json:"position,omitempty"` // [lng, lat]
	Feature   *geojson.Feature           `json:"feature,omitempty"`
	Features  *geojson.FeatureCollection `json:"features,omitempty"`
	Clickable bool                       `json:"clickable,omitempty"`
	Status    *pipeline.Status           `json:"status,omitempty"`
	Message   string                     `json:"message,omitempty"`
}

// Action is one message from the browser. Map clicks and neighbor list
// clicks both arrive as ActionSelect with the feature's HUC8 code.
type Action struct {
	Type  string `json:"type"`
	Query string `json:"query,omitempty"`
	Code  string `json:"code,omitempty"`
}

// OrchestratorFactory creates the orchestrator bound to a session.
type OrchestratorFactory interface {
	NewOrchestrator(r pipeline.Renderer, l pipeline.StatusListener) (*pipeline.Orchestrator, error)
}

// Handler upgrades requests to websocket map sessions.
type Handler struct {
	factory  OrchestratorFactory
	upgrader websocket.Upgrader
	metrics  *observability.Metrics
	logger   *slog.Logger

	mu       sync.Mutex
	sessions map[*Session]struct{}
	closing  bool
	active   sync.WaitGroup
}

// NewHandler creates a Handler. An allowedOrigins entry of "*" accepts any origin.
func NewHandler(factory OrchestratorFactory, allowedOrigins []string, metrics *observability.Metrics, logger *slog.Logger) *Handler {
	return &Handler{
		factory: factory,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		metrics:  metrics,
		logger:   logger,
		sessions: make(map[*Session]struct{}),
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	s := newSession(conn, h.logger)
	orch, err := h.factory.NewOrchestrator(s, pipeline.StatusFunc(s.statusChanged))
	if err != nil {
		h.refuse(s, err.Error())
		return
	}
	s.orch = orch

	if !h.track(s) {
		orch.Close()
		h.refuse(s, "server shutting down")
		return
	}
	defer h.untrack(s)

	h.metrics.ActiveSessions.Inc()
	defer h.metrics.ActiveSessions.Dec()
	s.logger.Info("map session opened", "remote", r.RemoteAddr)

	go s.writePump()
	s.enqueue(Command{Op: OpHello, Session: s.id.String(), Status: ptr(orch.Status())})
	s.readPump()

	s.shutdown()
	s.wg.Wait()
	s.logger.Info("map session closed")
}

// Shutdown closes every open session with a going-away frame and waits for
// their handlers to return or ctx to end. New sessions are refused from the
// first call on. http.Server.Shutdown does not reach hijacked connections,
// so the service calls this alongside it.
func (h *Handler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closing = true
	open := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		open = append(open, s)
	}
	h.mu.Unlock()

	for _, s := range open {
		s.closeWith(websocket.CloseGoingAway, "server shutting down")
	}

	done := make(chan struct{})
	go func() {
		h.active.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handler) track(s *Session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return false
	}
	h.sessions[s] = struct{}{}
	h.active.Add(1)
	return true
}

func (h *Handler) untrack(s *Session) {
	h.mu.Lock()
	delete(h.sessions, s)
	h.mu.Unlock()
	h.active.Done()
}

func (h *Handler) refuse(s *Session, reason string) {
	h.logger.Warn("session refused", "reason", reason)
	s.cancel()
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseTryAgainLater, reason),
		time.Now().Add(writeWait))
	_ = s.conn.Close()
}

// Session is one browser map. It implements pipeline.Renderer.
type Session struct {
	id     uuid.UUID
	conn   *websocket.Conn
	scene  *render.Scene
	orch   *pipeline.Orchestrator
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

func newSession(conn *websocket.Conn, logger *slog.Logger) *Session {
	id := uuid.New()
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:     id,
		conn:   conn,
		scene:  render.NewScene(),
		logger: logger.With("session", id.String()),
		ctx:    ctx,
		cancel: cancel,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}
}

// ID returns the session identifier sent in the hello command.
func (s *Session) ID() uuid.UUID { return s.id }

func (s *Session) ClearAll() {
	s.scene.ClearAll()
	s.enqueue(Command{Op: OpClearAll})
}

func (s *Session) AddSearchMarker(lat, lng float64) {
	s.scene.AddSearchMarker(lat, lng)
	s.enqueue(Command{Op: OpSearchMarker, Position: &[2]float64{lng, lat}})
}

func (s *Session) DisplayPrimaryFeature(f domain.BoundaryFeature, onClick pipeline.ClickFunc) {
	s.scene.DisplayPrimaryFeature(f, onClick)
	s.enqueue(Command{Op: OpDisplayPrimary, Feature: f.GeoJSON(), Clickable: onClick != nil})
}

func (s *Session) DisplayNeighborFeatures(fs []domain.BoundaryFeature, onClick pipeline.ClickFunc) {
	s.scene.DisplayNeighborFeatures(fs, onClick)
	fc := geojson.NewFeatureCollection()
	for _, f := range fs {
		fc.Append(f.GeoJSON())
	}
	s.enqueue(Command{Op: OpDisplayNeigh, Features: fc, Clickable: onClick != nil})
}

func (s *Session) InvalidateSize() {
	s.scene.InvalidateSize()
	s.enqueue(Command{Op: OpInvalidateSize})
}

func (s *Session) statusChanged(st pipeline.Status) {
	s.enqueue(Command{Op: OpStatus, Status: &st})
}

func (s *Session) enqueue(cmd Command) {
	data, err := json.Marshal(cmd)
	if err != nil {
		s.logger.Error("encode command", "op", cmd.Op, "error", err)
		return
	}
	select {
	case s.send <- data:
	case <-s.done:
	}
}

func (s *Session) readPump() {
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read failed", "error", err)
			}
			return
		}

		var a Action
		if err := json.Unmarshal(data, &a); err != nil {
			s.enqueue(Command{Op: OpError, Message: "malformed action"})
			continue
		}
		s.dispatch(a)
	}
}

// dispatch runs lookups off the read loop so pings and further actions
// (which the orchestrator rejects while busy) keep flowing.
func (s *Session) dispatch(a Action) {
	switch a.Type {
	case ActionSearch:
		s.goAction(func() error { return s.orch.Search(s.ctx, a.Query) })
	case ActionSelect:
		s.goAction(func() error {
			if !s.scene.Click(a.Code) {
				return errors.New("HUC8 " + a.Code + " is not displayed")
			}
			return nil
		})
	case ActionResize:
		s.orch.Resize()
	default:
		s.enqueue(Command{Op: OpError, Message: "unknown action " + a.Type})
	}
}

func (s *Session) goAction(fn func() error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := fn()
		// Pipeline failures already reached the browser as a status.
		var le *domain.LookupError
		if err != nil && !errors.As(err, &le) && !errors.Is(err, pipeline.ErrSuperseded) && !errors.Is(err, pipeline.ErrClosed) {
			s.enqueue(Command{Op: OpError, Message: err.Error()})
		}
	}()
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case msg := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.logger.Warn("websocket write failed", "error", err)
				s.shutdown()
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.shutdown()
				return
			}
		case <-s.done:
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

// closeWith sends a close frame with code and then shuts the session down.
func (s *Session) closeWith(code int, reason string) {
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(writeWait))
	s.shutdown()
}

// shutdown discards in-flight lookups and stops both pumps. done closes
// before the orchestrator so a render call blocked in enqueue lets go of
// the orchestrator lock. Safe to call more than once.
func (s *Session) shutdown() {
	s.once.Do(func() {
		s.cancel()
		close(s.done)
		if s.orch != nil {
			s.orch.Close()
		}
		_ = s.conn.Close()
	})
}

func ptr[T any](v T) *T { return &v }
