// Package resolve implements context-aware adaptive resolution: tailored
// endpoints per requester, hierarchical zone referral, and the negotiation
// invitation protocol.
package resolve

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/agentnet/discovery/crypto"
	"github.com/agentnet/discovery/domain"
	"github.com/agentnet/discovery/policy"
	"github.com/agentnet/discovery/store"
)

const (
	// tailoredTTLCap bounds the TTL of tailored responses.
	tailoredTTLCap = 300
	// invitationTTL is the short validity window of a negotiation invitation.
	invitationTTL = 60
	// referralTTL is how long a zone referral may be cached by the caller.
	referralTTL = 3600

	// pointerCacheSize and pointerCacheTTL bound the recursive-resolver
	// cache. Entries additionally honor their record's own TTL on read.
	pointerCacheSize = 256
	pointerCacheTTL  = 30 * time.Second
)

// FactsFetcher retrieves an agent's self-hosted capability document.
type FactsFetcher interface {
	Fetch(ctx context.Context, url string) (*domain.CapabilityDoc, json.RawMessage, error)
}

// Resolver executes the adaptive resolution pipeline as a plain ordered
// sequence of steps over a request-scoped state; every terminal produces
// one of {TailoredResponse, NegotiationInvitation, Referral, NotFound}.
type Resolver struct {
	registry    *store.Registry
	deployments *store.Deployments
	zones       *Zones
	factsClient FactsFetcher
	signer      *crypto.Signer
	engine      *policy.Engine

	cache *expirable.LRU[string, *domain.PointerRecord]
}

// NewResolver wires the resolver against its collaborators. engine may be
// nil, in which case the built-in trigger checks apply directly.
func NewResolver(registry *store.Registry, deployments *store.Deployments, zones *Zones,
	factsClient FactsFetcher, signer *crypto.Signer, engine *policy.Engine) *Resolver {
	return &Resolver{
		registry:    registry,
		deployments: deployments,
		zones:       zones,
		factsClient: factsClient,
		signer:      signer,
		engine:      engine,
		cache:       expirable.NewLRU[string, *domain.PointerRecord](pointerCacheSize, nil, pointerCacheTTL),
	}
}

// CachedPointers reports the current size of the pointer cache.
func (r *Resolver) CachedPointers() int {
	return r.cache.Len()
}

// Forget drops every cached pointer for an agent so deregistration and
// re-registration take effect immediately instead of after cache expiry.
func (r *Resolver) Forget(agentID string) {
	for _, key := range r.cache.Keys() {
		if rec, ok := r.cache.Peek(key); ok && rec.AgentID == agentID {
			r.cache.Remove(key)
		}
	}
}

// Resolve runs the full adaptive pipeline for agentName under the given
// requester context.
func (r *Resolver) Resolve(ctx context.Context, agentName string, reqCtx domain.RequesterContext) (*domain.Outcome, error) {
	rec, err := r.lookupPointer(agentName)
	if err != nil {
		return nil, err
	}

	// Hierarchical delegation: a delegated zone short-circuits everything.
	if rec.Zone != "" {
		if nsURL, ok := r.zones.Lookup(rec.Zone); ok {
			return &domain.Outcome{
				Type: domain.OutcomeReferral,
				Referral: &domain.Referral{
					AgentName:  agentName,
					ReferralTo: nsURL,
					Zone:       rec.Zone,
					Message:    fmt.Sprintf("Delegated to authoritative NS for zone '%s'", rec.Zone),
					TTL:        referralTTL,
				},
			}, nil
		}
	}

	deployment, derr := r.deployments.Get(rec.AgentID)
	if derr != nil {
		deployment = nil
	}

	// Fetch failure means "no requirements known", never a negotiation
	// trigger and never a request failure.
	doc, _, ferr := r.factsClient.Fetch(ctx, rec.FactsURL)
	if ferr != nil {
		log.Printf("WARN: capability document fetch failed for %s: %v", rec.AgentID, ferr)
		doc = nil
	}

	var missing []string
	if doc != nil {
		for _, field := range doc.ContextRequirements {
			if reqCtx.Field(field) == nil {
				missing = append(missing, field)
			}
		}
	}

	load := 0.0
	if deployment != nil {
		load = deployment.CurrentLoad
	}

	if reason, negotiate := r.negotiationReason(ctx, missing, reqCtx.SecurityLevel, load); negotiate {
		return &domain.Outcome{
			Type:        domain.OutcomeNegotiation,
			Negotiation: r.buildInvitation(rec, reason, missing, reqCtx),
		}, nil
	}

	tailored, err := r.buildTailored(rec, deployment, doc, reqCtx)
	if err != nil {
		return nil, err
	}
	return &domain.Outcome{Type: domain.OutcomeTailored, Tailored: tailored}, nil
}

// lookupPointer resolves agent_name through the short-lived cache, the
// name index, and finally a fuzzy discovery pass on the last URN segment.
func (r *Resolver) lookupPointer(agentName string) (*domain.PointerRecord, error) {
	if rec, ok := r.cache.Get(agentName); ok && rec.Live(time.Now()) {
		return rec, nil
	}

	rec, err := r.registry.ResolveByName(agentName)
	if err != nil {
		segment := agentName
		if idx := strings.LastIndex(agentName, ":"); idx >= 0 {
			segment = agentName[idx+1:]
		}
		results := r.registry.Discover(store.DiscoverFilter{Query: segment})
		if len(results) == 0 {
			return nil, domain.ErrNotFound
		}
		rec = &results[0]
		for i := range results {
			if strings.Contains(results[i].AgentName, agentName) {
				rec = &results[i]
				break
			}
		}
	}

	r.cache.Add(agentName, rec)
	return rec, nil
}

// negotiationReason evaluates the policy engine (or the built-in checks on
// engine failure) and renders the human-readable reason naming the trigger.
// A negotiate decision always stands, even when a custom policy names no
// trigger the resolver knows how to describe.
func (r *Resolver) negotiationReason(ctx context.Context, missing []string, level domain.SecurityLevel, load float64) (string, bool) {
	if r.engine != nil {
		decision, trigger, err := r.engine.Evaluate(ctx, policy.Input{
			MissingContext: missing,
			SecurityLevel:  string(level),
			CurrentLoad:    load,
		})
		if err == nil {
			if decision != policy.DecisionNegotiate {
				return "", false
			}
			if reason := triggerReason(trigger, missing, load); reason != "" {
				return reason, true
			}
			return "Policy requires negotiation before an endpoint can be issued", true
		}
		log.Printf("WARN: resolution policy evaluation failed, using built-in triggers: %v", err)
	}

	switch {
	case len(missing) > 0:
		return triggerReason(policy.TriggerMissingContext, missing, load), true
	case level == domain.SecurityZeroTrust:
		return triggerReason(policy.TriggerZeroTrust, missing, load), true
	case load > 0.9:
		return triggerReason(policy.TriggerHighLoad, missing, load), true
	}
	return "", false
}

func triggerReason(trigger string, missing []string, load float64) string {
	switch trigger {
	case policy.TriggerMissingContext:
		return fmt.Sprintf("Target requires context: %v", missing)
	case policy.TriggerZeroTrust:
		return "Zero-trust security requires mutual attestation"
	case policy.TriggerHighLoad:
		return fmt.Sprintf("Agent at high load (%.0f%%), QoS negotiation required", load*100)
	}
	return ""
}

func (r *Resolver) buildInvitation(rec *domain.PointerRecord, reason string, missing []string, reqCtx domain.RequesterContext) *domain.NegotiationInvitation {
	base := rec.AdaptiveResolverURL
	if base == "" {
		base = rec.FactsURL
	}
	level := reqCtx.SecurityLevel
	if level == "" {
		level = domain.SecurityAuthenticated
	}
	return &domain.NegotiationInvitation{
		AgentID:         rec.AgentID,
		NegotiationURL:  strings.TrimSuffix(base, "/") + "/negotiate",
		Reason:          reason,
		RequiredContext: missing,
		TrustRequirements: map[string]interface{}{
			"security_level": string(level),
		},
		TTL: invitationTTL,
	}
}

func (r *Resolver) buildTailored(rec *domain.PointerRecord, deployment *domain.DeploymentRecord,
	doc *domain.CapabilityDoc, reqCtx domain.RequesterContext) (*domain.TailoredResponse, error) {

	contextUsed := make(map[string]interface{})

	// Requester location: explicit coordinates, else the name table.
	var reqLat, reqLon *float64
	if reqCtx.GeoLat != nil && reqCtx.GeoLon != nil {
		reqLat, reqLon = reqCtx.GeoLat, reqCtx.GeoLon
	} else if lat, lon, ok := locateByName(reqCtx.GeoLocation); ok {
		reqLat, reqLon = &lat, &lon
		contextUsed["geo_resolved"] = reqCtx.GeoLocation
	}

	if deployment != nil && len(deployment.Resources) > 0 {
		best, dist := pickNearestResource(deployment.Resources, reqLat, reqLon)
		contextUsed["geo_nearest_resource"] = best.ResourceID
		if best.GeoLocation != "" {
			contextUsed["resource_location"] = best.GeoLocation
		}
		if reqLat != nil && best.GeoLat != nil {
			contextUsed["distance_km"] = roundKm(dist)
		}
	}

	endpoint := ""
	switch {
	case doc != nil && len(doc.Endpoints.Rotating) > 0:
		endpoint = doc.Endpoints.Rotating[rand.Intn(len(doc.Endpoints.Rotating))]
		contextUsed["selection"] = "rotating_pool"
	case doc != nil && len(doc.Endpoints.Static) > 0:
		endpoint = doc.Endpoints.Static[0]
		contextUsed["selection"] = "static_primary"
	default:
		endpoint = strings.Replace(rec.FactsURL, "/.well-known/agent-facts", "", 1)
		contextUsed["selection"] = "derived_from_facts_url"
	}

	if deployment != nil {
		contextUsed["agent_load"] = fmt.Sprintf("%.0f%%", deployment.CurrentLoad*100)
		if deployment.DeploymentMode != "" {
			contextUsed["deployment_mode"] = deployment.DeploymentMode
		}
	}
	if len(reqCtx.QoSRequirements) > 0 {
		contextUsed["qos_applied"] = reqCtx.QoSRequirements
	}

	transport := "https"
	if reqCtx.SessionType == domain.SessionStreaming {
		transport = "wss"
	}
	contextUsed["transport"] = transport

	ttl := rec.TTL
	if ttl > tailoredTTLCap {
		ttl = tailoredTTLCap
	}

	tailored := &domain.TailoredResponse{
		AgentID:             rec.AgentID,
		AgentName:           rec.AgentName,
		Endpoint:            endpoint,
		Transport:           transport,
		TTL:                 ttl,
		ContextUsed:         contextUsed,
		NegotiationRequired: false,
	}
	sig, err := r.signer.Sign(tailored)
	if err != nil {
		return nil, err
	}
	tailored.Signature = sig
	return tailored, nil
}

// pickNearestResource returns the resource closest to the requester by
// great-circle distance. Resources without coordinates carry a large
// constant penalty; with no requester location the first resource wins.
func pickNearestResource(resources []domain.DeploymentResource, reqLat, reqLon *float64) (*domain.DeploymentResource, float64) {
	if reqLat == nil || reqLon == nil {
		return &resources[0], unknownDistanceKm
	}

	best := &resources[0]
	bestDist := resourceDistance(&resources[0], *reqLat, *reqLon)
	for i := 1; i < len(resources); i++ {
		if d := resourceDistance(&resources[i], *reqLat, *reqLon); d < bestDist {
			best = &resources[i]
			bestDist = d
		}
	}
	return best, bestDist
}

func resourceDistance(res *domain.DeploymentResource, lat, lon float64) float64 {
	if res.GeoLat == nil || res.GeoLon == nil {
		return unknownDistanceKm
	}
	return HaversineKm(lat, lon, *res.GeoLat, *res.GeoLon)
}

func roundKm(km float64) float64 {
	return float64(int(km*10+0.5)) / 10
}
