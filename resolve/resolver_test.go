package resolve

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentnet/discovery/crypto"
	"github.com/agentnet/discovery/domain"
	"github.com/agentnet/discovery/policy"
	"github.com/agentnet/discovery/store"
)

type fakeFetcher struct {
	doc *domain.CapabilityDoc
	err error
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (*domain.CapabilityDoc, json.RawMessage, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	raw, _ := json.Marshal(f.doc)
	return f.doc, raw, nil
}

type fixture struct {
	registry    *store.Registry
	deployments *store.Deployments
	zones       *Zones
	fetcher     *fakeFetcher
	signer      *crypto.Signer
	resolver    *Resolver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	signer := crypto.NewSigner("test-key")
	f := &fixture{
		registry:    store.NewRegistry(signer, nil),
		deployments: store.NewDeployments(nil),
		zones:       NewZones(),
		fetcher:     &fakeFetcher{doc: &domain.CapabilityDoc{}},
		signer:      signer,
	}
	f.resolver = NewResolver(f.registry, f.deployments, f.zones, f.fetcher, signer, nil)
	return f
}

func (f *fixture) register(t *testing.T, rec *domain.PointerRecord) {
	t.Helper()
	_, err := f.registry.Register(context.Background(), rec)
	require.NoError(t, err)
}

func supplierRecord() *domain.PointerRecord {
	return &domain.PointerRecord{
		AgentID:   "agt:supply:supplier-emea",
		AgentName: "urn:agent:supply:supplier-emea",
		FactsURL:  "http://supplier-emea:8013/.well-known/agent-facts",
		Skills:    []string{"supply:brake_discs"},
		Region:    "EU",
		TTL:       3600,
	}
}

func TestResolveTailoredDefault(t *testing.T) {
	f := newFixture(t)
	f.register(t, supplierRecord())

	out, err := f.resolver.Resolve(context.Background(), "urn:agent:supply:supplier-emea", domain.RequesterContext{})
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeTailored, out.Type)
	require.NotNil(t, out.Tailored)

	assert.Equal(t, "http://supplier-emea:8013", out.Tailored.Endpoint)
	assert.Equal(t, "https", out.Tailored.Transport)
	assert.False(t, out.Tailored.NegotiationRequired)
	assert.Equal(t, "derived_from_facts_url", out.Tailored.ContextUsed["selection"])
}

func TestResolveTailoredIsSigned(t *testing.T) {
	f := newFixture(t)
	f.register(t, supplierRecord())

	out, err := f.resolver.Resolve(context.Background(), "urn:agent:supply:supplier-emea", domain.RequesterContext{})
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeTailored, out.Type)

	require.NotEmpty(t, out.Tailored.Signature)
	assert.True(t, f.signer.Verify(out.Tailored, out.Tailored.Signature))
}

func TestResolveNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.resolver.Resolve(context.Background(), "urn:agent:supply:nobody", domain.RequesterContext{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestResolveFuzzyNameFallback(t *testing.T) {
	f := newFixture(t)
	f.register(t, supplierRecord())

	// Caller only knows the last URN segment under a different prefix.
	out, err := f.resolver.Resolve(context.Background(), "agent:supplier-emea", domain.RequesterContext{})
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeTailored, out.Type)
	assert.Equal(t, "agt:supply:supplier-emea", out.Tailored.AgentID)
}

func TestResolvePointerCache(t *testing.T) {
	f := newFixture(t)
	f.register(t, supplierRecord())

	assert.Equal(t, 0, f.resolver.CachedPointers())
	_, err := f.resolver.Resolve(context.Background(), "urn:agent:supply:supplier-emea", domain.RequesterContext{})
	require.NoError(t, err)
	assert.Equal(t, 1, f.resolver.CachedPointers())

	// Second resolve for the same name reuses the cached pointer.
	_, err = f.resolver.Resolve(context.Background(), "urn:agent:supply:supplier-emea", domain.RequesterContext{})
	require.NoError(t, err)
	assert.Equal(t, 1, f.resolver.CachedPointers())
}

func TestForgetDropsCachedPointer(t *testing.T) {
	f := newFixture(t)
	f.register(t, supplierRecord())

	_, err := f.resolver.Resolve(context.Background(), "urn:agent:supply:supplier-emea", domain.RequesterContext{})
	require.NoError(t, err)
	require.Equal(t, 1, f.resolver.CachedPointers())

	require.True(t, f.registry.Remove(context.Background(), "agt:supply:supplier-emea"))
	f.resolver.Forget("agt:supply:supplier-emea")
	assert.Equal(t, 0, f.resolver.CachedPointers())

	_, err = f.resolver.Resolve(context.Background(), "urn:agent:supply:supplier-emea", domain.RequesterContext{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestForgetMakesReregistrationVisible(t *testing.T) {
	f := newFixture(t)
	f.register(t, supplierRecord())

	out, err := f.resolver.Resolve(context.Background(), "urn:agent:supply:supplier-emea", domain.RequesterContext{})
	require.NoError(t, err)
	require.Equal(t, "http://supplier-emea:8013", out.Tailored.Endpoint)

	rec := supplierRecord()
	rec.FactsURL = "http://supplier-emea-v2:8013/.well-known/agent-facts"
	f.register(t, rec)
	f.resolver.Forget(rec.AgentID)

	out, err = f.resolver.Resolve(context.Background(), "urn:agent:supply:supplier-emea", domain.RequesterContext{})
	require.NoError(t, err)
	assert.Equal(t, "http://supplier-emea-v2:8013", out.Tailored.Endpoint)
}

func TestForgetLeavesOtherAgentsCached(t *testing.T) {
	f := newFixture(t)
	f.register(t, supplierRecord())
	other := supplierRecord()
	other.AgentID = "agt:supply:carrier-emea"
	other.AgentName = "urn:agent:supply:carrier-emea"
	f.register(t, other)

	_, err := f.resolver.Resolve(context.Background(), "urn:agent:supply:supplier-emea", domain.RequesterContext{})
	require.NoError(t, err)
	_, err = f.resolver.Resolve(context.Background(), "urn:agent:supply:carrier-emea", domain.RequesterContext{})
	require.NoError(t, err)
	require.Equal(t, 2, f.resolver.CachedPointers())

	f.resolver.Forget("agt:supply:supplier-emea")
	assert.Equal(t, 1, f.resolver.CachedPointers())
}

func TestResolveZoneReferral(t *testing.T) {
	f := newFixture(t)
	rec := supplierRecord()
	rec.Zone = "supply.emea"
	f.register(t, rec)
	f.zones.Register("supply.emea", "http://ns-emea:8016")

	out, err := f.resolver.Resolve(context.Background(), "urn:agent:supply:supplier-emea", domain.RequesterContext{})
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeReferral, out.Type)
	require.NotNil(t, out.Referral)

	assert.Equal(t, "http://ns-emea:8016", out.Referral.ReferralTo)
	assert.Equal(t, "supply.emea", out.Referral.Zone)
	assert.Equal(t, referralTTL, out.Referral.TTL)
}

func TestResolveUndelegatedZoneFallsThrough(t *testing.T) {
	f := newFixture(t)
	rec := supplierRecord()
	rec.Zone = "supply.apac"
	f.register(t, rec)

	out, err := f.resolver.Resolve(context.Background(), "urn:agent:supply:supplier-emea", domain.RequesterContext{})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeTailored, out.Type)
}

func TestResolveMissingContextInvitation(t *testing.T) {
	f := newFixture(t)
	f.register(t, supplierRecord())
	f.fetcher.doc = &domain.CapabilityDoc{
		ContextRequirements: []string{"geo_location", "security_level"},
	}

	out, err := f.resolver.Resolve(context.Background(), "urn:agent:supply:supplier-emea", domain.RequesterContext{
		RequesterID: "agt:supply:procurement",
	})
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeNegotiation, out.Type)
	require.NotNil(t, out.Negotiation)

	assert.Contains(t, out.Negotiation.Reason, "requires context")
	assert.ElementsMatch(t, []string{"geo_location", "security_level"}, out.Negotiation.RequiredContext)
	assert.Equal(t, "http://supplier-emea:8013/.well-known/agent-facts/negotiate", out.Negotiation.NegotiationURL)
	assert.Equal(t, invitationTTL, out.Negotiation.TTL)
}

func TestResolveContextRequirementsSatisfied(t *testing.T) {
	f := newFixture(t)
	f.register(t, supplierRecord())
	f.fetcher.doc = &domain.CapabilityDoc{
		ContextRequirements: []string{"geo_location", "security_level"},
	}

	out, err := f.resolver.Resolve(context.Background(), "urn:agent:supply:supplier-emea", domain.RequesterContext{
		GeoLocation:   "Maranello, Italy",
		SecurityLevel: domain.SecurityAuthenticated,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeTailored, out.Type)
}

func TestResolveZeroTrustInvitation(t *testing.T) {
	f := newFixture(t)
	rec := supplierRecord()
	rec.AdaptiveResolverURL = "http://supplier-emea:8016"
	f.register(t, rec)

	out, err := f.resolver.Resolve(context.Background(), "urn:agent:supply:supplier-emea", domain.RequesterContext{
		SecurityLevel: domain.SecurityZeroTrust,
	})
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeNegotiation, out.Type)

	assert.Contains(t, out.Negotiation.Reason, "mutual attestation")
	assert.Equal(t, "http://supplier-emea:8016/negotiate", out.Negotiation.NegotiationURL)
	assert.Equal(t, "zero-trust", out.Negotiation.TrustRequirements["security_level"])
}

func TestResolveHighLoadInvitation(t *testing.T) {
	f := newFixture(t)
	f.register(t, supplierRecord())
	require.NoError(t, f.deployments.Put(context.Background(), &domain.DeploymentRecord{
		AgentID:     "agt:supply:supplier-emea",
		CurrentLoad: 0.95,
	}))

	out, err := f.resolver.Resolve(context.Background(), "urn:agent:supply:supplier-emea", domain.RequesterContext{})
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeNegotiation, out.Type)
	assert.Contains(t, out.Negotiation.Reason, "high load")
}

func TestResolveLoadBoundaryIsExclusive(t *testing.T) {
	f := newFixture(t)
	f.register(t, supplierRecord())
	require.NoError(t, f.deployments.Put(context.Background(), &domain.DeploymentRecord{
		AgentID:     "agt:supply:supplier-emea",
		CurrentLoad: 0.9,
	}))

	out, err := f.resolver.Resolve(context.Background(), "urn:agent:supply:supplier-emea", domain.RequesterContext{})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeTailored, out.Type)
}

func TestResolveMissingContextWinsOverZeroTrust(t *testing.T) {
	f := newFixture(t)
	f.register(t, supplierRecord())
	f.fetcher.doc = &domain.CapabilityDoc{ContextRequirements: []string{"geo_location"}}

	out, err := f.resolver.Resolve(context.Background(), "urn:agent:supply:supplier-emea", domain.RequesterContext{
		SecurityLevel: domain.SecurityZeroTrust,
	})
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeNegotiation, out.Type)
	assert.Contains(t, out.Negotiation.Reason, "requires context")
}

func TestResolveFetchFailureMeansNoRequirements(t *testing.T) {
	f := newFixture(t)
	f.register(t, supplierRecord())
	f.fetcher.err = domain.ErrUpstreamUnavailable

	out, err := f.resolver.Resolve(context.Background(), "urn:agent:supply:supplier-emea", domain.RequesterContext{})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeTailored, out.Type)
}

func TestResolveWithPolicyEngine(t *testing.T) {
	f := newFixture(t)
	f.register(t, supplierRecord())
	f.fetcher.doc = &domain.CapabilityDoc{ContextRequirements: []string{"geo_location"}}

	engine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	require.NoError(t, err)
	f.resolver = NewResolver(f.registry, f.deployments, f.zones, f.fetcher, f.signer, engine)

	out, err := f.resolver.Resolve(context.Background(), "urn:agent:supply:supplier-emea", domain.RequesterContext{})
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeNegotiation, out.Type)
	assert.Contains(t, out.Negotiation.Reason, "requires context")
}

func TestResolvePolicyNegotiateWithoutTrigger(t *testing.T) {
	f := newFixture(t)
	f.register(t, supplierRecord())

	// A policy that mandates negotiation but names no trigger the resolver
	// recognizes. The decision must hold rather than degrade to a tailored
	// response.
	const alwaysNegotiate = `
package resolution_policy

import rego.v1

decision := {"decision": "negotiate", "trigger": ""}
`
	engine, err := policy.NewEngine(context.Background(), alwaysNegotiate)
	require.NoError(t, err)
	f.resolver = NewResolver(f.registry, f.deployments, f.zones, f.fetcher, f.signer, engine)

	out, err := f.resolver.Resolve(context.Background(), "urn:agent:supply:supplier-emea", domain.RequesterContext{})
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeNegotiation, out.Type)
	assert.Contains(t, out.Negotiation.Reason, "requires negotiation")
}

func TestResolveNearestResource(t *testing.T) {
	f := newFixture(t)
	f.register(t, supplierRecord())

	lat1, lon1 := 44.53, 10.86 // Maranello
	lat2, lon2 := 48.78, 9.18  // Stuttgart
	require.NoError(t, f.deployments.Put(context.Background(), &domain.DeploymentRecord{
		AgentID:        "agt:supply:supplier-emea",
		DeploymentMode: "multi-region",
		CurrentLoad:    0.2,
		Resources: []domain.DeploymentResource{
			{ResourceID: "edge-stuttgart", ResourceType: "edge", GeoLat: &lat2, GeoLon: &lon2},
			{ResourceID: "edge-maranello", ResourceType: "edge", GeoLat: &lat1, GeoLon: &lon1},
		},
	}))

	out, err := f.resolver.Resolve(context.Background(), "urn:agent:supply:supplier-emea", domain.RequesterContext{
		GeoLocation: "Maranello, Italy",
	})
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeTailored, out.Type)

	used := out.Tailored.ContextUsed
	assert.Equal(t, "edge-maranello", used["geo_nearest_resource"])
	assert.Equal(t, "Maranello, Italy", used["geo_resolved"])
	assert.InDelta(t, 0.0, used["distance_km"].(float64), 1.0)
	assert.Equal(t, "multi-region", used["deployment_mode"])
	assert.Equal(t, "20%", used["agent_load"])
}

func TestResolveResourceWithoutCoordsIsPenalized(t *testing.T) {
	f := newFixture(t)
	f.register(t, supplierRecord())

	lat, lon := 48.78, 9.18
	require.NoError(t, f.deployments.Put(context.Background(), &domain.DeploymentRecord{
		AgentID: "agt:supply:supplier-emea",
		Resources: []domain.DeploymentResource{
			{ResourceID: "mobile-unknown", ResourceType: "mobile"},
			{ResourceID: "dc-stuttgart", ResourceType: "datacenter", GeoLat: &lat, GeoLon: &lon},
		},
	}))

	lat0, lon0 := 44.53, 10.86
	out, err := f.resolver.Resolve(context.Background(), "urn:agent:supply:supplier-emea", domain.RequesterContext{
		GeoLat: &lat0, GeoLon: &lon0,
	})
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeTailored, out.Type)
	assert.Equal(t, "dc-stuttgart", out.Tailored.ContextUsed["geo_nearest_resource"])
}

func TestResolveFirstResourceWinsWithoutRequesterLocation(t *testing.T) {
	f := newFixture(t)
	f.register(t, supplierRecord())

	lat, lon := 48.78, 9.18
	require.NoError(t, f.deployments.Put(context.Background(), &domain.DeploymentRecord{
		AgentID: "agt:supply:supplier-emea",
		Resources: []domain.DeploymentResource{
			{ResourceID: "r-first", ResourceType: "edge"},
			{ResourceID: "r-second", ResourceType: "datacenter", GeoLat: &lat, GeoLon: &lon},
		},
	}))

	out, err := f.resolver.Resolve(context.Background(), "urn:agent:supply:supplier-emea", domain.RequesterContext{})
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeTailored, out.Type)
	assert.Equal(t, "r-first", out.Tailored.ContextUsed["geo_nearest_resource"])
}

func TestResolveEndpointSelection(t *testing.T) {
	t.Run("rotating pool", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, supplierRecord())
		pool := []string{"http://edge-1:9000", "http://edge-2:9000", "http://edge-3:9000"}
		f.fetcher.doc = &domain.CapabilityDoc{Endpoints: domain.EndpointConfig{Rotating: pool}}

		out, err := f.resolver.Resolve(context.Background(), "urn:agent:supply:supplier-emea", domain.RequesterContext{})
		require.NoError(t, err)
		require.Equal(t, domain.OutcomeTailored, out.Type)
		assert.Contains(t, pool, out.Tailored.Endpoint)
		assert.Equal(t, "rotating_pool", out.Tailored.ContextUsed["selection"])
	})

	t.Run("static primary", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, supplierRecord())
		f.fetcher.doc = &domain.CapabilityDoc{
			Endpoints: domain.EndpointConfig{Static: []string{"http://main:9000", "http://backup:9000"}},
		}

		out, err := f.resolver.Resolve(context.Background(), "urn:agent:supply:supplier-emea", domain.RequesterContext{})
		require.NoError(t, err)
		require.Equal(t, domain.OutcomeTailored, out.Type)
		assert.Equal(t, "http://main:9000", out.Tailored.Endpoint)
		assert.Equal(t, "static_primary", out.Tailored.ContextUsed["selection"])
	})

	t.Run("rotating preferred over static", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, supplierRecord())
		f.fetcher.doc = &domain.CapabilityDoc{
			Endpoints: domain.EndpointConfig{
				Static:   []string{"http://main:9000"},
				Rotating: []string{"http://edge-1:9000"},
			},
		}

		out, err := f.resolver.Resolve(context.Background(), "urn:agent:supply:supplier-emea", domain.RequesterContext{})
		require.NoError(t, err)
		require.Equal(t, domain.OutcomeTailored, out.Type)
		assert.Equal(t, "http://edge-1:9000", out.Tailored.Endpoint)
	})
}

func TestResolveStreamingUsesWss(t *testing.T) {
	f := newFixture(t)
	f.register(t, supplierRecord())

	out, err := f.resolver.Resolve(context.Background(), "urn:agent:supply:supplier-emea", domain.RequesterContext{
		SessionType: domain.SessionStreaming,
	})
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeTailored, out.Type)
	assert.Equal(t, "wss", out.Tailored.Transport)
	assert.Equal(t, "wss", out.Tailored.ContextUsed["transport"])
}

func TestResolveTTLCapped(t *testing.T) {
	f := newFixture(t)
	rec := supplierRecord()
	rec.TTL = 3600
	f.register(t, rec)

	out, err := f.resolver.Resolve(context.Background(), "urn:agent:supply:supplier-emea", domain.RequesterContext{})
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeTailored, out.Type)
	assert.Equal(t, tailoredTTLCap, out.Tailored.TTL)

	rec.TTL = 120
	rec.AgentID = "agt:supply:short-ttl"
	rec.AgentName = "urn:agent:supply:short-ttl"
	f.register(t, rec)

	out, err = f.resolver.Resolve(context.Background(), "urn:agent:supply:short-ttl", domain.RequesterContext{})
	require.NoError(t, err)
	assert.Equal(t, 120, out.Tailored.TTL)
}

func TestResolveQoSRecorded(t *testing.T) {
	f := newFixture(t)
	f.register(t, supplierRecord())

	qos := map[string]interface{}{"max_latency_ms": 500.0}
	out, err := f.resolver.Resolve(context.Background(), "urn:agent:supply:supplier-emea", domain.RequesterContext{
		QoSRequirements: qos,
	})
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeTailored, out.Type)
	assert.Equal(t, qos, out.Tailored.ContextUsed["qos_applied"])
}
