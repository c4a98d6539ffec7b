package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"stream-file-server/internal/store"
)

// HealthStatus represents the overall health of the system
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// ComponentStatus represents the health of an individual component
type ComponentStatus string

const (
	ComponentStatusUp       ComponentStatus = "up"
	ComponentStatusDown     ComponentStatus = "down"
	ComponentStatusDegraded ComponentStatus = "degraded"
)

// Health is the /health response body.
type Health struct {
	Status     HealthStatus               `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents the health of a single system component
type ComponentHealth struct {
	Status    ComponentStatus `json:"status"`
	Message   string          `json:"message,omitempty"`
	LatencyMs float64         `json:"latency_ms,omitempty"`
	Details   any             `json:"details,omitempty"`
}

// Checks slower than this report degraded.
const slowCheck = time.Second

// HandleHealth reports storage and, when configured, ledger health.
// Unhealthy answers 503; degraded still answers 200.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.checkHealth(r.Context())

	statusCode := http.StatusOK
	if health.Status == HealthStatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(health)
}

func (s *Server) checkHealth(ctx context.Context) Health {
	health := Health{
		Timestamp:  time.Now().UTC(),
		Version:    s.cfg.Version,
		Components: make(map[string]ComponentHealth),
	}

	storage := pingComponent(ctx, s.cfg.Store.Kind(), s.cfg.Store.Ping)
	if g, ok := s.cfg.Store.(interface{ Breaker() *store.CircuitBreaker }); ok {
		state := g.Breaker().State()
		storage.Details = map[string]string{"circuit": state.String()}
		if state != store.StateClosed && storage.Status == ComponentStatusUp {
			storage.Status = ComponentStatusDegraded
			storage.Message = "storage circuit " + state.String()
		}
	}
	health.Components["storage"] = storage
	if s.cfg.Ledger != nil {
		health.Components["database"] = pingComponent(ctx, "database", s.cfg.Ledger.Ping)
	}

	health.Status = determineOverallHealth(health.Components)
	return health
}

func pingComponent(ctx context.Context, name string, ping func(context.Context) error) ComponentHealth {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := ping(ctx); err != nil {
		return ComponentHealth{
			Status:  ComponentStatusDown,
			Message: name + " check failed: " + err.Error(),
		}
	}

	latency := time.Since(start)
	ch := ComponentHealth{
		Status:    ComponentStatusUp,
		Message:   name + " healthy",
		LatencyMs: float64(latency.Microseconds()) / 1000,
	}
	if latency > slowCheck {
		ch.Status = ComponentStatusDegraded
		ch.Message = name + " latency high"
	}
	return ch
}

// determineOverallHealth calculates overall health from component statuses
func determineOverallHealth(components map[string]ComponentHealth) HealthStatus {
	var downCount, degradedCount int
	for _, component := range components {
		switch component.Status {
		case ComponentStatusDown:
			downCount++
		case ComponentStatusDegraded:
			degradedCount++
		}
	}

	if downCount > 0 {
		return HealthStatusUnhealthy
	}
	if degradedCount > 0 {
		return HealthStatusDegraded
	}
	return HealthStatusHealthy
}
