package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hupe1980/basketmesh"
	"github.com/hupe1980/basketmesh/core"
)

// agentView is the wire shape of an agent definition. The resolved function
// never leaves the process.
type agentView struct {
	Name         string            `json:"name"`
	Domain       string            `json:"domain"`
	Ref          string            `json:"ref"`
	Inputs       []core.InputField `json:"inputs,omitempty"`
	ExampleInput core.Payload      `json:"example_input,omitempty"`
	Resolved     bool              `json:"resolved"`
}

// ListAgents lists registered agents, optionally filtered by domain.
// GET /agents?domain=
func (h *Handler) ListAgents(c echo.Context) error {
	defs := h.mesh.Agents(c.QueryParam("domain"))

	views := make([]agentView, 0, len(defs))
	for _, d := range defs {
		views = append(views, agentView{
			Name:         d.Name,
			Domain:       d.Domain,
			Ref:          d.Ref,
			Inputs:       d.Inputs,
			ExampleInput: d.ExampleInput,
			Resolved:     d.Func != nil,
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"agents": views})
}

// RunAgentRequest is the request to run a single agent.
type RunAgentRequest struct {
	AgentName string       `json:"agent_name"`
	Input     core.Payload `json:"input"`
	Stateful  bool         `json:"stateful"`
	SessionID string       `json:"session_id"`
}

// RunAgent runs one agent outside any basket.
// POST /run-agent
func (h *Handler) RunAgent(c echo.Context) error {
	var req RunAgentRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.AgentName == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "agent_name is required"})
	}

	run, err := h.mesh.RunAgent(c.Request().Context(), req.AgentName, req.Input, func(o *basketmesh.RunAgentOptions) {
		o.Stateful = req.Stateful
		o.SessionID = req.SessionID
	})
	if err != nil {
		h.logger.Error("agent run failed", "agent", req.AgentName, "error", err.Error())
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, run)
}
