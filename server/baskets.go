package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hupe1980/basketmesh/core"
)

// ListBaskets lists registered basket definitions.
// GET /baskets
func (h *Handler) ListBaskets(c echo.Context) error {
	baskets := h.mesh.Baskets()
	return c.JSON(http.StatusOK, map[string]any{
		"baskets": baskets,
		"count":   len(baskets),
	})
}

// CreateBasketRequest is the request to register a basket at runtime.
type CreateBasketRequest struct {
	Name        string   `json:"name"`
	Agents      []string `json:"agents"`
	Strategy    string   `json:"strategy"`
	Conditions  []string `json:"conditions,omitempty"`
	Description string   `json:"description,omitempty"`
}

// CreateBasket validates and registers a new basket.
// POST /create-basket
func (h *Handler) CreateBasket(c echo.Context) error {
	var req CreateBasketRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Name == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "name is required"})
	}
	if len(req.Agents) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "agents is required"})
	}

	strategy, err := core.ParseStrategy(req.Strategy)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	def := core.BasketDefinition{
		Name:        req.Name,
		Agents:      req.Agents,
		Strategy:    strategy,
		Conditions:  req.Conditions,
		Description: req.Description,
	}
	if err := h.mesh.CreateBasket(c.Request().Context(), def); err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]any{
		"ok":     true,
		"basket": def,
	})
}

// DeleteBasket removes a basket and its accumulated telemetry, log files and
// session state. The summary reports what was cleaned and any sub-step
// failures.
// DELETE /baskets/:name
func (h *Handler) DeleteBasket(c echo.Context) error {
	name := c.Param("name")
	sum, err := h.mesh.DeleteBasket(c.Request().Context(), name)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, sum)
}

// RunBasketRequest is the request to execute a basket. Either a registered
// basket name or an inline definition must be given.
type RunBasketRequest struct {
	BasketName string               `json:"basket_name"`
	Basket     *CreateBasketRequest `json:"basket,omitempty"`
	Input      core.Payload         `json:"input"`
}

// RunBasket executes a registered or inline basket and returns the aggregate
// result with per-step outcomes.
// POST /run-basket
func (h *Handler) RunBasket(c echo.Context) error {
	var req RunBasketRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	ctx := c.Request().Context()
	switch {
	case req.BasketName != "":
		res, err := h.mesh.RunBasket(ctx, req.BasketName, req.Input)
		if err != nil {
			return errorResponse(c, err)
		}
		return c.JSON(http.StatusOK, res)

	case req.Basket != nil:
		strategy, err := core.ParseStrategy(req.Basket.Strategy)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		def := core.BasketDefinition{
			Name:        req.Basket.Name,
			Agents:      req.Basket.Agents,
			Strategy:    strategy,
			Conditions:  req.Basket.Conditions,
			Description: req.Basket.Description,
		}
		res, err := h.mesh.RunBasketDefinition(ctx, def, req.Input)
		if err != nil {
			return errorResponse(c, err)
		}
		return c.JSON(http.StatusOK, res)

	default:
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "basket_name or basket is required"})
	}
}
