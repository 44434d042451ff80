// Package server provides the HTTP API over a basketmesh Mesh: agent and
// basket listing, single-agent and basket runs, runtime basket management,
// telemetry reads and the retention cleanup endpoint.
package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hupe1980/basketmesh"
	"github.com/hupe1980/basketmesh/core"
	"github.com/hupe1980/basketmesh/logging"
)

// Handler handles HTTP requests against a Mesh.
type Handler struct {
	mesh   *basketmesh.Mesh
	logger logging.Logger
}

// NewHandler creates a new handler.
func NewHandler(mesh *basketmesh.Mesh, logger logging.Logger) *Handler {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Handler{mesh: mesh, logger: logger}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)

	e.GET("/agents", h.ListAgents)
	e.POST("/run-agent", h.RunAgent)

	e.GET("/baskets", h.ListBaskets)
	e.POST("/create-basket", h.CreateBasket)
	e.DELETE("/baskets/:name", h.DeleteBasket)
	e.POST("/run-basket", h.RunBasket)

	e.GET("/execution-logs/:execution_id", h.ExecutionLogs)
	e.GET("/agent-logs/:agent_name", h.AgentLogs)
	e.POST("/telemetry/cleanup", h.TelemetryCleanup)
}

// Health reports the aggregate service status with per-store telemetry
// reachability: healthy when both stores answer, degraded when exactly one
// does, unhealthy when neither does. The API itself stays available either
// way; the body tells the caller which side is gone.
func (h *Handler) Health(c echo.Context) error {
	ephemeral, durable := h.mesh.Health(c.Request().Context())
	status := "healthy"
	switch {
	case !ephemeral && !durable:
		status = "unhealthy"
	case !ephemeral || !durable:
		status = "degraded"
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status":    status,
		"ephemeral": ephemeral,
		"durable":   durable,
	})
}

// errorResponse maps the error taxonomy onto HTTP status codes.
func errorResponse(c echo.Context, err error) error {
	var (
		compErr *core.CompatibilityError
		cfgErr  *core.ConfigError
	)
	switch {
	case errors.Is(err, core.ErrAgentNotFound), errors.Is(err, core.ErrBasketNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.As(err, &compErr), errors.As(err, &cfgErr):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, core.ErrTelemetryUnavailable):
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}
