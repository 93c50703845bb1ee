package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/couchcryptid/watershed-finder/internal/observability"
)

// Service hands out orchestrators that share one set of providers, and
// therefore one geocoding rate limiter.
type Service struct {
	providers Providers
	logger    *slog.Logger
	metrics   *observability.Metrics
	draining  atomic.Bool
}

// NewService creates a Service.
func NewService(p Providers, logger *slog.Logger, metrics *observability.Metrics) *Service {
	return &Service{providers: p, logger: logger, metrics: metrics}
}

// NewOrchestrator creates an orchestrator for one map. l may be nil.
func (s *Service) NewOrchestrator(r Renderer, l StatusListener) (*Orchestrator, error) {
	if s.draining.Load() {
		return nil, errors.New("service is shutting down")
	}
	return New(s.providers, r, l, s.logger, s.metrics), nil
}

// Drain stops handing out orchestrators and flips readiness.
func (s *Service) Drain() {
	s.draining.Store(true)
}

// CheckReadiness returns nil until Drain is called.
func (s *Service) CheckReadiness(_ context.Context) error {
	if s.draining.Load() {
		return errors.New("service is draining")
	}
	return nil
}
