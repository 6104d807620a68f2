// Package domain defines the core domain models for the discovery service.
package domain

import (
	"time"
)

// SecurityLevel is the trust posture a requester asks for.
type SecurityLevel string

const (
	SecurityPublic        SecurityLevel = "public"
	SecurityAuthenticated SecurityLevel = "authenticated"
	SecurityEncrypted     SecurityLevel = "encrypted"
	SecurityZeroTrust     SecurityLevel = "zero-trust"
)

// SessionType describes the interaction pattern a requester expects.
type SessionType string

const (
	SessionRequestResponse SessionType = "request-response"
	SessionStreaming       SessionType = "streaming"
	SessionLongSession     SessionType = "long-session"
	SessionBatch           SessionType = "batch"
)

// MatchReason records which matching tier produced a candidate.
type MatchReason string

const (
	MatchExact     MatchReason = "exact"
	MatchSemantic  MatchReason = "semantic"
	MatchSubstring MatchReason = "substring"
)

// OutcomeType tags the three possible adaptive-resolution results.
type OutcomeType string

const (
	OutcomeTailored    OutcomeType = "tailored_response"
	OutcomeNegotiation OutcomeType = "negotiation_invitation"
	OutcomeReferral    OutcomeType = "referral"
)

// PointerRecord is the lean, signed registry entry pointing to an agent's
// self-hosted capability document. This is the only object the registry
// stores per agent; it is analogous to a DNS record.
type PointerRecord struct {
	AgentID             string            `json:"agent_id"`
	AgentName           string            `json:"agent_name"`
	FactsURL            string            `json:"facts_url"`
	PrivateFactsURL     string            `json:"private_facts_url,omitempty"`
	AdaptiveResolverURL string            `json:"adaptive_resolver_url,omitempty"`
	Skills              []string          `json:"skills,omitempty"`
	SkillDescriptions   map[string]string `json:"skill_descriptions,omitempty"`
	Region              string            `json:"region,omitempty"`
	TTL                 int               `json:"ttl"`
	RegisteredAt        time.Time         `json:"registered_at"`
	Signature           string            `json:"signature,omitempty"`
	Zone                string            `json:"zone,omitempty"`
	AuthoritativeNS     string            `json:"authoritative_ns,omitempty"`
}

// Live reports whether the record is still within its TTL at the given time.
func (r *PointerRecord) Live(now time.Time) bool {
	if r.RegisteredAt.IsZero() {
		return false
	}
	return now.Before(r.RegisteredAt.Add(time.Duration(r.TTL) * time.Second))
}

// DeploymentResource is a physical resource where agent components run.
type DeploymentResource struct {
	ResourceID    string   `json:"resource_id"`
	ResourceType  string   `json:"resource_type"` // datacenter, edge, mobile, embedded
	GeoLocation   string   `json:"geo_location,omitempty"`
	GeoLat        *float64 `json:"geo_lat,omitempty"`
	GeoLon        *float64 `json:"geo_lon,omitempty"`
	Hardware      []string `json:"hardware,omitempty"`
	BandwidthMbps float64  `json:"bandwidth_mbps,omitempty"`
	Region        string   `json:"region,omitempty"`
}

// DeploymentRecord describes how an agent instance is physically deployed.
// Created and refreshed by the agent itself; resolution logic treats it as
// read-only except for the load field.
type DeploymentRecord struct {
	AgentID               string               `json:"agent_id"`
	Resources             []DeploymentResource `json:"resources,omitempty"`
	DeploymentMode        string               `json:"deployment_mode,omitempty"` // single-origin, multi-region, edge-distributed, serverless
	Mobility              bool                 `json:"mobility,omitempty"`
	MaxConcurrentSessions int                  `json:"max_concurrent_sessions,omitempty"`
	CurrentLoad           float64              `json:"current_load"` // 0.0 - 1.0
}

// RequesterContext is the caller-supplied context sent with adaptive
// resolution queries. It is never persisted.
type RequesterContext struct {
	RequesterID     string                 `json:"requester_id,omitempty"`
	GeoLocation     string                 `json:"geo_location,omitempty"`
	GeoLat          *float64               `json:"geo_lat,omitempty"`
	GeoLon          *float64               `json:"geo_lon,omitempty"`
	NetworkCIDR     string                 `json:"network_cidr,omitempty"`
	QoSRequirements map[string]interface{} `json:"qos_requirements,omitempty"`
	SecurityLevel   SecurityLevel          `json:"security_level,omitempty"`
	CostBudget      *float64               `json:"cost_budget,omitempty"`
	SessionType     SessionType            `json:"session_type,omitempty"`
}

// Field returns the named context field, or nil if the requester did not
// supply it. Field names follow the wire (json) names, which is also what
// capability documents use in context_requirements.
func (c *RequesterContext) Field(name string) interface{} {
	switch name {
	case "requester_id":
		if c.RequesterID != "" {
			return c.RequesterID
		}
	case "geo_location":
		if c.GeoLocation != "" {
			return c.GeoLocation
		}
	case "geo_lat":
		if c.GeoLat != nil {
			return *c.GeoLat
		}
	case "geo_lon":
		if c.GeoLon != nil {
			return *c.GeoLon
		}
	case "network_cidr":
		if c.NetworkCIDR != "" {
			return c.NetworkCIDR
		}
	case "qos_requirements":
		if len(c.QoSRequirements) > 0 {
			return c.QoSRequirements
		}
	case "security_level":
		if c.SecurityLevel != "" {
			return string(c.SecurityLevel)
		}
	case "cost_budget":
		if c.CostBudget != nil {
			return *c.CostBudget
		}
	case "session_type":
		if c.SessionType != "" {
			return string(c.SessionType)
		}
	}
	return nil
}

// ResolvedCandidate is an ephemeral per-query ranking entry produced by the
// relevance matcher.
type ResolvedCandidate struct {
	AgentID        string      `json:"agent_id"`
	AgentName      string      `json:"agent_name"`
	FactsURL       string      `json:"facts_url"`
	Skills         []string    `json:"skills,omitempty"`
	Region         string      `json:"region,omitempty"`
	RelevanceScore float64     `json:"relevance_score"`
	ContextScore   float64     `json:"context_score"`
	CombinedScore  float64     `json:"combined_score"`
	MatchedSkill   string      `json:"matched_skill,omitempty"`
	MatchReason    MatchReason `json:"match_reason"`
}

// QueryContext carries the requester-side hints the matcher blends into the
// context score.
type QueryContext struct {
	Region                 string   `json:"region,omitempty"`
	ComplianceRequirements []string `json:"compliance_requirements,omitempty"`
	Urgency                string   `json:"urgency,omitempty"`
}

// TailoredResponse is a per-requester resolution result. The endpoint may
// differ between requesters for the same agent.
type TailoredResponse struct {
	AgentID             string                 `json:"agent_id"`
	AgentName           string                 `json:"agent_name"`
	Endpoint            string                 `json:"endpoint"`
	Transport           string                 `json:"transport"` // https, wss
	TTL                 int                    `json:"ttl"`
	ContextUsed         map[string]interface{} `json:"context_used,omitempty"`
	NegotiationRequired bool                   `json:"negotiation_required"`
	NegotiationURL      string                 `json:"negotiation_url,omitempty"`
	CommsSpec           map[string]interface{} `json:"comms_spec,omitempty"`
	Signature           string                 `json:"signature,omitempty"`
}

// NegotiationInvitation tells the caller to supply more context or attributes
// before a usable endpoint can be issued.
type NegotiationInvitation struct {
	AgentID           string                 `json:"agent_id"`
	NegotiationURL    string                 `json:"negotiation_url"`
	Reason            string                 `json:"reason,omitempty"`
	RequiredContext   []string               `json:"required_context,omitempty"`
	TrustRequirements map[string]interface{} `json:"trust_requirements,omitempty"`
	TTL               int                    `json:"ttl"`
}

// Referral delegates resolution to the authoritative name server of a zone,
// mirroring a DNS NS referral.
type Referral struct {
	AgentName  string `json:"agent_name"`
	ReferralTo string `json:"referral_to"`
	Zone       string `json:"zone"`
	Message    string `json:"message,omitempty"`
	TTL        int    `json:"ttl"`
}

// Outcome is the discriminated union of the three adaptive-resolution
// results. Exactly one of the payload fields is non-nil and matches Type.
type Outcome struct {
	Type        OutcomeType            `json:"type"`
	Tailored    *TailoredResponse      `json:"tailored_response,omitempty"`
	Negotiation *NegotiationInvitation `json:"negotiation_invitation,omitempty"`
	Referral    *Referral              `json:"referral,omitempty"`
}

// EndpointConfig is the endpoints block of a capability document.
type EndpointConfig struct {
	Static   []string `json:"static,omitempty"`
	Rotating []string `json:"rotating,omitempty"`
}

// CapabilityDoc is the subset of an agent's self-hosted capability document
// the resolver consumes. The full document is fetched by clients directly
// and never stored by the registry.
type CapabilityDoc struct {
	ID                  string         `json:"id,omitempty"`
	AgentName           string         `json:"agent_name,omitempty"`
	ContextRequirements []string       `json:"context_requirements,omitempty"`
	Endpoints           EndpointConfig `json:"endpoints"`
	FactsTTL            int            `json:"facts_ttl,omitempty"`
}

// CommsSpec is the agreed communication specification produced by a
// negotiation round.
type CommsSpec struct {
	Protocol         string `json:"protocol"`
	Encryption       string `json:"encryption"`
	AuthMethod       string `json:"auth_method"`
	MaxLatencyMs     int    `json:"max_latency_ms"`
	SessionDurationS int    `json:"session_duration_s"`
}

// NegotiationResult is the single-round negotiation answer.
type NegotiationResult struct {
	Status    string    `json:"status"` // accepted, counter
	CommsSpec CommsSpec `json:"comms_spec"`
	AgentID   string    `json:"agent_id"`
	Message   string    `json:"message,omitempty"`
}
