package server

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// limitParam parses the limit query parameter. Zero means use the telemetry
// default; the sink clamps out-of-range values.
func limitParam(c echo.Context) int {
	n, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil {
		return 0
	}
	return n
}

// ExecutionLogs returns telemetry records for one execution, newest first.
// GET /execution-logs/:execution_id?limit=
func (h *Handler) ExecutionLogs(c echo.Context) error {
	executionID := c.Param("execution_id")
	recs, err := h.mesh.ExecutionLogs(c.Request().Context(), executionID, limitParam(c))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"execution_id": executionID,
		"count":        len(recs),
		"logs":         recs,
	})
}

// AgentLogs returns telemetry records for one agent across executions.
// GET /agent-logs/:agent_name?limit=
func (h *Handler) AgentLogs(c echo.Context) error {
	agent := c.Param("agent_name")
	recs, err := h.mesh.AgentLogs(c.Request().Context(), agent, limitParam(c))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"agent_name": agent,
		"count":      len(recs),
		"logs":       recs,
	})
}

// TelemetryCleanupRequest is the request to purge aged ephemeral telemetry.
type TelemetryCleanupRequest struct {
	Days int `json:"days"`
}

// TelemetryCleanup removes ephemeral telemetry past the retention window.
// Days are clamped server-side; durable audit records are untouched.
// POST /telemetry/cleanup
func (h *Handler) TelemetryCleanup(c echo.Context) error {
	var req TelemetryCleanupRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	removed, err := h.mesh.PurgeTelemetry(c.Request().Context(), req.Days)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"ok":      true,
		"removed": removed,
	})
}
