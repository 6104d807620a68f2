package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/agentnet/discovery/api"
	"github.com/agentnet/discovery/config"
	"github.com/agentnet/discovery/crypto"
	"github.com/agentnet/discovery/embed"
	"github.com/agentnet/discovery/facts"
	"github.com/agentnet/discovery/match"
	"github.com/agentnet/discovery/policy"
	"github.com/agentnet/discovery/resolve"
	"github.com/agentnet/discovery/store"
)

func main() {
	// Load configuration
	cfg := config.Load()

	log.Printf("Starting discovery service...")
	log.Printf("HTTP Port: %d", cfg.HTTPPort)
	if cfg.DatabaseURL != "" {
		log.Printf("Database: %s", cfg.DatabaseURL)
	} else {
		log.Printf("Database: none (memory-only)")
	}
	if cfg.EmbedderURL != "" {
		log.Printf("Embedder: %s", cfg.EmbedderURL)
	} else {
		log.Printf("Embedder: none (semantic matching disabled)")
	}

	signer := crypto.NewSigner(cfg.SigningKey)

	// Optional durable mirror. Resolution behavior is identical without it;
	// only restart durability changes.
	var durable store.Durable
	if cfg.DatabaseURL != "" {
		db, err := store.NewSQLiteStore(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to initialize store: %v", err)
		}
		defer db.Close()
		durable = db
	}

	ctx := context.Background()

	registry := store.NewRegistry(signer, durable)
	deployments := store.NewDeployments(durable)
	if durable != nil {
		if err := registry.Restore(ctx); err != nil {
			log.Printf("WARN: failed to restore pointers: %v", err)
		}
		if err := deployments.Restore(ctx); err != nil {
			log.Printf("WARN: failed to restore deployments: %v", err)
		}
	}

	// The embedding collaborator is optional; without it the matcher falls
	// back to substring matching.
	var embedder match.Embedder
	if cfg.EmbedderURL != "" {
		embedder = embed.NewClient(cfg.EmbedderURL, cfg.EmbedTimeout)
	}
	matcher := match.NewMatcher(registry, embedder, cfg.EmbedTimeout)

	factsClient := facts.NewClient(cfg.FactsTimeout)

	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		log.Printf("WARN: policy engine init failed, using built-in triggers: %v", err)
		policyEngine = nil
	}

	zones := resolve.NewZones()
	resolver := resolve.NewResolver(registry, deployments, zones, factsClient, signer, policyEngine)

	h := api.NewHandler(registry, deployments, zones, matcher, resolver, factsClient, signer, cfg)

	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	h.RegisterRoutes(e)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	log.Printf("Discovery service started on port %d (%d agents restored)", cfg.HTTPPort, registry.Count())

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down discovery service...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown server gracefully: %v", err)
	}

	log.Println("Discovery service stopped")
}
