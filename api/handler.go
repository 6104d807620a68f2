// Package api provides HTTP handlers for the discovery service.
package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/agentnet/discovery/config"
	"github.com/agentnet/discovery/crypto"
	"github.com/agentnet/discovery/match"
	"github.com/agentnet/discovery/resolve"
	"github.com/agentnet/discovery/store"
)

// Handler handles HTTP requests.
type Handler struct {
	registry    *store.Registry
	deployments *store.Deployments
	zones       *resolve.Zones
	matcher     *match.Matcher
	resolver    *resolve.Resolver
	facts       resolve.FactsFetcher
	signer      *crypto.Signer
	config      *config.Config
	instanceID  string
}

// NewHandler creates a new handler.
func NewHandler(registry *store.Registry, deployments *store.Deployments, zones *resolve.Zones,
	matcher *match.Matcher, resolver *resolve.Resolver, facts resolve.FactsFetcher,
	signer *crypto.Signer, config *config.Config) *Handler {
	return &Handler{
		registry:    registry,
		deployments: deployments,
		zones:       zones,
		matcher:     matcher,
		resolver:    resolver,
		facts:       facts,
		signer:      signer,
		config:      config,
		instanceID:  "idx_" + uuid.New().String()[:8],
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Registration and lean-index resolution
	e.POST("/register", h.Register)
	e.GET("/resolve/:agent_id", h.ResolveByID)
	e.GET("/resolve/name/:agent_name", h.ResolveByName)
	e.GET("/resolve/:agent_id/facts", h.ResolveFacts)
	e.GET("/lookup/:agent_id", h.Lookup)
	e.GET("/list", h.List)
	e.DELETE("/agents/:agent_id", h.Deregister)
	e.POST("/verify", h.Verify)

	// Discovery and relevance matching
	e.POST("/discover", h.Discover)
	e.GET("/search", h.Search)
	e.POST("/match", h.Match)

	// Adaptive resolution
	e.POST("/resolve", h.ResolveAdaptive)
	e.POST("/negotiate", h.Negotiate)

	// Deployment metadata and zone delegation
	e.POST("/deployments", h.RegisterDeployment)
	e.GET("/deployments/:agent_id", h.GetDeployment)
	e.PATCH("/deployments/:agent_id/load", h.UpdateLoad)
	e.POST("/zones/referral", h.RegisterZone)
	e.GET("/zones", h.ListZones)

	e.GET("/health", h.Health)
	e.GET("/stats", h.Stats)
}

// Health returns health status.
// GET /health
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":          "ok",
		"service":         "agent-discovery",
		"instance_id":     h.instanceID,
		"agents_count":    h.registry.Count(),
		"deployments":     h.deployments.Count(),
		"zones":           h.zones.Count(),
		"cached_pointers": h.resolver.CachedPointers(),
	})
}

// Stats returns registry statistics.
// GET /stats
func (h *Handler) Stats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.registry.Stats())
}
