package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"
)

// Pinger reports whether the storage backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

const pingTimeout = 2 * time.Second

func (s *Server) registerHealthRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "healthCheck",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns server health status with component checks",
		Tags:        []string{"Health"},
	}, s.handleHealthCheck)
}

// ComponentHealth describes the health of a single component.
type ComponentHealth struct {
	Status  string `json:"status" doc:"Component status: healthy, degraded, or unhealthy"`
	Latency string `json:"latency,omitempty" doc:"Response time for this component"`
	Message string `json:"message,omitempty" doc:"Additional status information"`
}

// HealthResponse contains health check data in API responses.
type HealthResponse struct {
	Status     string                     `json:"status" doc:"Overall status: healthy, degraded, or unhealthy"`
	Components map[string]ComponentHealth `json:"components" doc:"Individual component statuses"`
}

// HealthOutput wraps the health response for Huma.
type HealthOutput struct {
	Status int
	Body   HealthResponse
}

func (s *Server) handleHealthCheck(ctx context.Context, _ *struct{}) (*HealthOutput, error) {
	store := s.checkStore(ctx)
	events := s.checkEvents()

	overall := "healthy"
	switch {
	case store.Status == "unhealthy":
		overall = "unhealthy"
	case store.Status == "degraded" || events.Status == "degraded":
		overall = "degraded"
	}

	status := http.StatusOK
	if overall == "unhealthy" {
		status = http.StatusServiceUnavailable
	}

	return &HealthOutput{
		Status: status,
		Body: HealthResponse{
			Status: overall,
			Components: map[string]ComponentHealth{
				"store":  store,
				"events": events,
			},
		},
	}, nil
}

func (s *Server) checkStore(ctx context.Context) ComponentHealth {
	if s.services.Store == nil {
		return ComponentHealth{Status: "degraded", Message: "store not configured"}
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	start := time.Now()
	err := s.services.Store.Ping(ctx)
	latency := time.Since(start)

	if err != nil {
		return ComponentHealth{
			Status:  "unhealthy",
			Latency: latency.String(),
			Message: "store ping failed",
		}
	}
	return ComponentHealth{Status: "healthy", Latency: latency.String()}
}

func (s *Server) checkEvents() ComponentHealth {
	if s.services.Events == nil {
		return ComponentHealth{Status: "degraded", Message: "change notifications disabled"}
	}
	return ComponentHealth{
		Status:  "healthy",
		Message: strconv.Itoa(s.services.Events.ClientCount()) + " connected clients",
	}
}
