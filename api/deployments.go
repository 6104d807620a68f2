package api

import (
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/agentnet/discovery/domain"
)

// RegisterDeployment stores an agent's deployment metadata for load- and
// geo-aware tailoring.
// POST /deployments
func (h *Handler) RegisterDeployment(c echo.Context) error {
	ctx := c.Request().Context()

	var rec domain.DeploymentRecord
	if err := c.Bind(&rec); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if rec.AgentID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "agent_id is required"})
	}

	if err := h.deployments.Put(ctx, &rec); err != nil {
		log.Printf("ERROR: failed to store deployment: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to store deployment"})
	}

	log.Printf("Deployment registered: %s (%d resources, mode=%s)",
		rec.AgentID, len(rec.Resources), rec.DeploymentMode)
	return c.JSON(http.StatusOK, map[string]string{
		"status":   "registered",
		"agent_id": rec.AgentID,
	})
}

// GetDeployment returns an agent's deployment record.
// GET /deployments/:agent_id
func (h *Handler) GetDeployment(c echo.Context) error {
	rec, err := h.deployments.Get(c.Param("agent_id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "no deployment record"})
	}
	return c.JSON(http.StatusOK, rec)
}

// UpdateLoadRequest reports an agent's current load.
type UpdateLoadRequest struct {
	Load float64 `json:"load"`
}

// UpdateLoad records the agent's current load for adaptive routing.
// PATCH /deployments/:agent_id/load
func (h *Handler) UpdateLoad(c echo.Context) error {
	ctx := c.Request().Context()
	agentID := c.Param("agent_id")

	var req UpdateLoadRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	h.deployments.UpdateLoad(ctx, agentID, req.Load)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"agent_id":     agentID,
		"current_load": req.Load,
	})
}

// ZoneReferralRequest delegates a name-space zone to its authoritative NS.
type ZoneReferralRequest struct {
	Zone               string `json:"zone"`
	AuthoritativeNSURL string `json:"authoritative_ns_url"`
}

// RegisterZone registers a zone referral.
// POST /zones/referral
func (h *Handler) RegisterZone(c echo.Context) error {
	var req ZoneReferralRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Zone == "" || req.AuthoritativeNSURL == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "zone and authoritative_ns_url are required"})
	}

	h.zones.Register(req.Zone, req.AuthoritativeNSURL)
	return c.JSON(http.StatusOK, map[string]string{
		"zone":             req.Zone,
		"authoritative_ns": req.AuthoritativeNSURL,
	})
}

// ListZones returns all zone referrals.
// GET /zones
func (h *Handler) ListZones(c echo.Context) error {
	return c.JSON(http.StatusOK, h.zones.List())
}
