package resolve

import (
	"github.com/agentnet/discovery/domain"
	"github.com/agentnet/discovery/store"
)

// Load threshold below which a proposed QoS is accepted as-is.
const acceptLoadThreshold = 0.8

// relaxedLatencyMs is the floor applied to the latency bound when the
// target is under load and counters the proposal.
const relaxedLatencyMs = 2000

const defaultLatencyMs = 1000

// NegotiateRequest is a single negotiation round from a requester.
type NegotiateRequest struct {
	AgentID           string                  `json:"agent_id"`
	RequesterContext  domain.RequesterContext `json:"requester_context"`
	ProposedQoS       map[string]interface{}  `json:"proposed_qos,omitempty"`
	ProposedCostLimit *float64                `json:"proposed_cost_limit,omitempty"`
}

// Negotiate runs one stateless quality-of-service round: the proposal is
// accepted when the target has spare capacity, otherwise countered with a
// relaxed latency bound. No session state persists between rounds.
func Negotiate(deployments *store.Deployments, req NegotiateRequest) domain.NegotiationResult {
	latency := defaultLatencyMs
	if v, ok := req.ProposedQoS["max_latency_ms"]; ok {
		if f, ok := v.(float64); ok && f > 0 {
			latency = int(f)
		}
	}

	spec := domain.CommsSpec{
		Protocol:         "https",
		Encryption:       "TLS-1.3",
		AuthMethod:       "jwt",
		MaxLatencyMs:     latency,
		SessionDurationS: 3600,
	}

	deployment, err := deployments.Get(req.AgentID)
	if err == nil && deployment.CurrentLoad < acceptLoadThreshold {
		return domain.NegotiationResult{
			Status:    "accepted",
			CommsSpec: spec,
			AgentID:   req.AgentID,
			Message:   "Negotiation accepted, comms channel ready",
		}
	}

	if spec.MaxLatencyMs < relaxedLatencyMs {
		spec.MaxLatencyMs = relaxedLatencyMs
	}
	return domain.NegotiationResult{
		Status:    "counter",
		CommsSpec: spec,
		AgentID:   req.AgentID,
		Message:   "Agent under load, adjusted QoS constraints",
	}
}
