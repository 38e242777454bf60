package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lutrinapp/lutrin/internal/monitor"
)

func TestHealthCheck_Success(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Get("/health")
	require.Equal(t, http.StatusOK, resp.Code)

	health := decode[HealthResponse](t, resp)
	assert.Equal(t, "healthy", health.Status)
	for _, name := range []string{"library", "search", "sse", "gateway"} {
		assert.Equal(t, "healthy", health.Components[name].Status, name)
	}
	assert.Equal(t, "0 documents indexed", health.Components["search"].Message)
}

func TestHealthCheck_GatewayOfflineDegrades(t *testing.T) {
	ts := setupTestServer(t)
	ts.online.online.Store(false)

	resp := ts.api.Get("/health")
	require.Equal(t, http.StatusOK, resp.Code)

	health := decode[HealthResponse](t, resp)
	assert.Equal(t, "degraded", health.Status)
	assert.Equal(t, "unhealthy", health.Components["gateway"].Status)
	assert.Equal(t, "connection refused", health.Components["gateway"].Message)
}

func TestHealthCheck_MissingComponents(t *testing.T) {
	s := NewServer(&Services{}, Options{}, testLogger)

	health := s.checkSearchIndex()
	assert.Equal(t, "degraded", health.Status)
	assert.Equal(t, "degraded", s.checkSSEManager().Status)
	assert.Equal(t, "degraded", s.checkGateway().Status)
}

func TestGetStatus(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Get("/api/v1/status")
	require.Equal(t, http.StatusOK, resp.Code)

	status := decode[StatusResponse](t, resp)
	assert.True(t, status.Online)
	assert.Equal(t, monitor.StateOnline, status.State)
	assert.False(t, status.PipelineActive)
	assert.Zero(t, status.Sessions)

	ts.online.online.Store(false)
	status = decode[StatusResponse](t, ts.api.Get("/api/v1/status"))
	assert.False(t, status.Online)
	assert.Equal(t, monitor.StateOffline, status.State)
}

func TestFormatSSEStatus(t *testing.T) {
	assert.Equal(t, "no connected clients", formatSSEStatus(0))
	assert.Equal(t, "1 connected client", formatSSEStatus(1))
	assert.Equal(t, "12 connected clients", formatSSEStatus(12))
}
