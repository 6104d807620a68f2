package api

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/agentnet/discovery/domain"
	"github.com/agentnet/discovery/store"
)

// Register registers or re-registers an agent pointer record (heartbeat).
// POST /register
func (h *Handler) Register(c echo.Context) error {
	ctx := c.Request().Context()

	var rec domain.PointerRecord
	if err := c.Bind(&rec); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	stored, err := h.registry.Register(ctx, &rec)
	if err != nil {
		if errors.Is(err, domain.ErrMalformedRecord) {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "agent_id, agent_name and facts_url are required"})
		}
		log.Printf("ERROR: failed to register agent: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to register agent"})
	}

	// Cache skill embeddings for the semantic matching tier. Failures
	// degrade matching quality, never the registration.
	h.matcher.IndexAgent(ctx, stored)
	// Re-registration supersedes any cached pointer for this agent.
	h.resolver.Forget(stored.AgentID)

	log.Printf("Registered: %s (name=%s, ttl=%ds)", stored.AgentID, stored.AgentName, stored.TTL)
	return c.JSON(http.StatusOK, stored)
}

// ResolveByID returns the live pointer record for an agent id.
// GET /resolve/:agent_id
func (h *Handler) ResolveByID(c echo.Context) error {
	rec, err := h.registry.ResolveByID(c.Param("agent_id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "agent not found or TTL expired"})
	}
	return c.JSON(http.StatusOK, rec)
}

// ResolveByName returns the live pointer record for an agent name (URN).
// GET /resolve/name/:agent_name
func (h *Handler) ResolveByName(c echo.Context) error {
	rec, err := h.registry.ResolveByName(c.Param("agent_name"))
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "agent name not found or TTL expired"})
	}
	return c.JSON(http.StatusOK, rec)
}

// Lookup returns the pointer record for a single agent.
// GET /lookup/:agent_id
func (h *Handler) Lookup(c echo.Context) error {
	agentID := c.Param("agent_id")
	rec, err := h.registry.ResolveByID(agentID)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "agent '" + agentID + "' not found"})
	}
	return c.JSON(http.StatusOK, rec)
}

// List returns all live pointer records.
// GET /list
func (h *Handler) List(c echo.Context) error {
	return c.JSON(http.StatusOK, h.registry.List())
}

// Deregister removes an agent from the index.
// DELETE /agents/:agent_id
func (h *Handler) Deregister(c echo.Context) error {
	ctx := c.Request().Context()
	agentID := c.Param("agent_id")

	if !h.registry.Remove(ctx, agentID) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "agent '" + agentID + "' not found"})
	}
	h.matcher.RemoveAgent(agentID)
	h.resolver.Forget(agentID)

	log.Printf("Agent %s deleted", agentID)
	return c.JSON(http.StatusOK, map[string]string{
		"status":   "removed",
		"agent_id": agentID,
	})
}

// VerifyRequest is the request to verify a pointer record signature.
type VerifyRequest struct {
	AgentAddr map[string]interface{} `json:"agent_addr"`
}

// Verify checks the registry signature on a pointer record.
// POST /verify
func (h *Handler) Verify(c echo.Context) error {
	var req VerifyRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if len(req.AgentAddr) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "agent_addr is required"})
	}

	signature, _ := req.AgentAddr["signature"].(string)
	valid := signature != "" && h.signer.Verify(req.AgentAddr, signature)

	return c.JSON(http.StatusOK, map[string]interface{}{
		"valid":    valid,
		"agent_id": req.AgentAddr["agent_id"],
	})
}

// DiscoverRequest is the AND-combined discovery filter.
type DiscoverRequest struct {
	Role         string `json:"role,omitempty"`
	Capability   string `json:"capability,omitempty"`
	Jurisdiction string `json:"jurisdiction,omitempty"`
	Query        string `json:"query,omitempty"`
}

// Discover searches the lean index by role, capability and jurisdiction.
// POST /discover
func (h *Handler) Discover(c echo.Context) error {
	var req DiscoverRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	results := h.registry.Discover(store.DiscoverFilter{
		Role:         req.Role,
		Capability:   req.Capability,
		Jurisdiction: req.Jurisdiction,
		Query:        req.Query,
	})
	log.Printf("Discovery: role=%s cap=%s jur=%s -> %d results",
		req.Role, req.Capability, req.Jurisdiction, len(results))
	return c.JSON(http.StatusOK, results)
}

// Search filters the index by skill keywords, region, and free-text query.
// GET /search?skills=a,b&region=EU&q=text
func (h *Handler) Search(c echo.Context) error {
	var keywords []string
	if skills := c.QueryParam("skills"); skills != "" {
		for _, kw := range strings.Split(skills, ",") {
			if kw = strings.TrimSpace(kw); kw != "" {
				keywords = append(keywords, kw)
			}
		}
	}

	results := h.registry.Search(store.SearchFilter{
		SkillKeywords: keywords,
		Region:        c.QueryParam("region"),
		Query:         c.QueryParam("q"),
	})
	return c.JSON(http.StatusOK, results)
}
