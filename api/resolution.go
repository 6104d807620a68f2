package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/agentnet/discovery/domain"
	"github.com/agentnet/discovery/match"
	"github.com/agentnet/discovery/resolve"
)

// ResolveFacts performs two-step resolution: resolve the pointer record,
// then fetch the agent's self-hosted capability document.
// GET /resolve/:agent_id/facts?prefer_private=true
func (h *Handler) ResolveFacts(c echo.Context) error {
	ctx := c.Request().Context()

	rec, err := h.registry.ResolveByID(c.Param("agent_id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "agent not found or TTL expired"})
	}

	path := "primary"
	factsURL := rec.FactsURL
	if c.QueryParam("prefer_private") == "true" && rec.PrivateFactsURL != "" {
		path = "private"
		factsURL = rec.PrivateFactsURL
	}

	_, raw, err := h.facts.Fetch(ctx, factsURL)
	if err != nil {
		log.Printf("WARN: facts fetch failed for %s: %v", rec.AgentID, err)
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "failed to fetch capability document from " + factsURL,
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"resolution_path": path,
		"agent_addr":      rec,
		"agent_facts":     raw,
	})
}

// AdaptiveResolveRequest is a resolution query with requester context.
type AdaptiveResolveRequest struct {
	AgentName string                  `json:"agent_name"`
	Context   domain.RequesterContext `json:"context"`
}

// ResolveAdaptive runs the context-aware resolution pipeline. Different
// requesters may receive different endpoints for the same agent.
// POST /resolve
func (h *Handler) ResolveAdaptive(c echo.Context) error {
	ctx := c.Request().Context()

	var req AdaptiveResolveRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.AgentName == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "agent_name is required"})
	}

	outcome, err := h.resolver.Resolve(ctx, req.AgentName, req.Context)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "agent '" + req.AgentName + "' not found in index"})
		}
		log.Printf("ERROR: adaptive resolution failed for %s: %v", req.AgentName, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "resolution failed"})
	}

	return c.JSON(http.StatusOK, outcome)
}

// Match ranks candidate agents for a capability query.
// POST /match
func (h *Handler) Match(c echo.Context) error {
	ctx := c.Request().Context()

	var q match.Query
	if err := c.Bind(&q); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if q.Query == "" && q.SkillHint == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "query or skill_hint is required"})
	}
	if q.MinScore == 0 {
		q.MinScore = h.config.DefaultMinScore
	}

	candidates := h.matcher.Match(ctx, q)
	if candidates == nil {
		candidates = []domain.ResolvedCandidate{}
	}
	return c.JSON(http.StatusOK, candidates)
}

// Negotiate runs a single stateless negotiation round.
// POST /negotiate
func (h *Handler) Negotiate(c echo.Context) error {
	var req resolve.NegotiateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.AgentID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "agent_id is required"})
	}

	return c.JSON(http.StatusOK, resolve.Negotiate(h.deployments, req))
}
