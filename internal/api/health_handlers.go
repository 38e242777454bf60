package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/lutrinapp/lutrin/internal/monitor"
)

func (s *Server) registerHealthRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "healthCheck",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns server health status with component checks",
		Tags:        []string{"Health"},
	}, s.handleHealthCheck)

	huma.Register(s.api, huma.Operation{
		OperationID: "getStatus",
		Method:      http.MethodGet,
		Path:        "/api/v1/status",
		Summary:     "Connectivity status",
		Description: "Returns whether the processing gateway is reachable and whether a pipeline run is in flight",
		Tags:        []string{"Health"},
	}, s.handleGetStatus)
}

// Component health values.
const (
	healthHealthy   = "healthy"
	healthDegraded  = "degraded"
	healthUnhealthy = "unhealthy"
)

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
	Body HealthResponse
}

func (s *Server) handleHealthCheck(ctx context.Context, _ *struct{}) (*HealthOutput, error) {
	components := map[string]ComponentHealth{
		"library": s.checkLibrary(ctx),
		"search":  s.checkSearchIndex(),
		"sse":     s.checkSSEManager(),
		"gateway": s.checkGateway(),
	}

	// Only the library store can take the daemon down; the other
	// components degrade it.
	overall := healthHealthy
	for name, c := range components {
		switch {
		case c.Status == healthUnhealthy && name == "library":
			overall = healthUnhealthy
		case c.Status != healthHealthy && overall == healthHealthy:
			overall = healthDegraded
		}
	}

	return &HealthOutput{
		Body: HealthResponse{
			Status:     overall,
			Components: components,
		},
	}, nil
}

// checkLibrary verifies the document store answers reads.
func (s *Server) checkLibrary(ctx context.Context) ComponentHealth {
	if s.services.Library == nil {
		return ComponentHealth{Status: healthDegraded, Message: "library not configured"}
	}

	start := time.Now()
	// A missing owner is a valid, empty read.
	_, err := s.services.Library.List(ctx, "health-probe", "")
	latency := time.Since(start)

	if err != nil {
		return ComponentHealth{
			Status:  healthUnhealthy,
			Latency: latency.String(),
			Message: "library read failed",
		}
	}
	return ComponentHealth{Status: healthHealthy, Latency: latency.String()}
}

// checkSearchIndex verifies the Bleve index is accessible.
func (s *Server) checkSearchIndex() ComponentHealth {
	if s.services.Index == nil {
		return ComponentHealth{Status: healthDegraded, Message: "search index not configured"}
	}

	start := time.Now()
	count, err := s.services.Index.DocumentCount()
	latency := time.Since(start)

	if err != nil {
		return ComponentHealth{
			Status:  healthUnhealthy,
			Latency: latency.String(),
			Message: "search index unreachable",
		}
	}
	return ComponentHealth{
		Status:  healthHealthy,
		Latency: latency.String(),
		Message: strconv.FormatUint(count, 10) + " documents indexed",
	}
}

// checkSSEManager reports connected event stream clients.
func (s *Server) checkSSEManager() ComponentHealth {
	if s.services.Events == nil {
		return ComponentHealth{Status: healthDegraded, Message: "SSE manager not configured"}
	}
	return ComponentHealth{
		Status:  healthHealthy,
		Message: formatSSEStatus(s.services.Events.ClientCount()),
	}
}

// checkGateway reflects the connectivity monitor. It never probes itself.
func (s *Server) checkGateway() ComponentHealth {
	if s.services.Status == nil {
		return ComponentHealth{Status: healthDegraded, Message: "connectivity monitor not configured"}
	}
	report := s.services.Status.Report()
	switch report.State {
	case monitor.StateOnline:
		return ComponentHealth{Status: healthHealthy, Message: report.Message}
	case monitor.StateOffline:
		return ComponentHealth{Status: healthUnhealthy, Message: report.LastError}
	default:
		return ComponentHealth{Status: healthDegraded, Message: "not probed yet"}
	}
}

func formatSSEStatus(count int) string {
	switch count {
	case 0:
		return "no connected clients"
	case 1:
		return "1 connected client"
	default:
		return strconv.Itoa(count) + " connected clients"
	}
}

// StatusResponse is the connectivity view exposed to clients.
type StatusResponse struct {
	Online         bool `json:"online" doc:"Whether the processing gateway is reachable"`
	PipelineActive bool `json:"pipeline_active" doc:"Whether a pipeline run is in flight"`
	Sessions       int  `json:"sessions" doc:"Open playback sessions"`
	monitor.Report
}

// StatusOutput wraps the status response for Huma.
type StatusOutput struct {
	Body StatusResponse
}

func (s *Server) handleGetStatus(_ context.Context, _ *struct{}) (*StatusOutput, error) {
	var body StatusResponse
	if s.services.Status != nil {
		body.Report = s.services.Status.Report()
		body.Online = body.State == monitor.StateOnline
	}
	if s.services.Pipeline != nil {
		body.PipelineActive = s.services.Pipeline.Running()
	}
	if s.services.Sessions != nil {
		body.Sessions = s.services.Sessions.Count()
	}
	return &StatusOutput{Body: body}, nil
}
