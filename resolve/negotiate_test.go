package resolve

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentnet/discovery/domain"
	"github.com/agentnet/discovery/store"
)

func TestNegotiateAccepted(t *testing.T) {
	deployments := store.NewDeployments(nil)
	require.NoError(t, deployments.Put(context.Background(), &domain.DeploymentRecord{
		AgentID:     "agt:supply:supplier-emea",
		CurrentLoad: 0.3,
	}))

	result := Negotiate(deployments, NegotiateRequest{
		AgentID:     "agt:supply:supplier-emea",
		ProposedQoS: map[string]interface{}{"max_latency_ms": 500.0},
	})

	assert.Equal(t, "accepted", result.Status)
	assert.Equal(t, "agt:supply:supplier-emea", result.AgentID)
	assert.Equal(t, 500, result.CommsSpec.MaxLatencyMs)
	assert.Equal(t, "https", result.CommsSpec.Protocol)
	assert.Equal(t, "TLS-1.3", result.CommsSpec.Encryption)
	assert.Equal(t, "jwt", result.CommsSpec.AuthMethod)
	assert.Equal(t, 3600, result.CommsSpec.SessionDurationS)
}

func TestNegotiateCounterUnderLoad(t *testing.T) {
	deployments := store.NewDeployments(nil)
	require.NoError(t, deployments.Put(context.Background(), &domain.DeploymentRecord{
		AgentID:     "agt:supply:supplier-emea",
		CurrentLoad: 0.85,
	}))

	result := Negotiate(deployments, NegotiateRequest{
		AgentID:     "agt:supply:supplier-emea",
		ProposedQoS: map[string]interface{}{"max_latency_ms": 500.0},
	})

	assert.Equal(t, "counter", result.Status)
	assert.Equal(t, relaxedLatencyMs, result.CommsSpec.MaxLatencyMs)
}

func TestNegotiateCounterKeepsLooserProposal(t *testing.T) {
	deployments := store.NewDeployments(nil)
	require.NoError(t, deployments.Put(context.Background(), &domain.DeploymentRecord{
		AgentID:     "agt:supply:supplier-emea",
		CurrentLoad: 0.95,
	}))

	result := Negotiate(deployments, NegotiateRequest{
		AgentID:     "agt:supply:supplier-emea",
		ProposedQoS: map[string]interface{}{"max_latency_ms": 5000.0},
	})

	assert.Equal(t, "counter", result.Status)
	assert.Equal(t, 5000, result.CommsSpec.MaxLatencyMs)
}

func TestNegotiateUnknownDeploymentCounters(t *testing.T) {
	result := Negotiate(store.NewDeployments(nil), NegotiateRequest{
		AgentID: "agt:supply:unknown",
	})

	assert.Equal(t, "counter", result.Status)
	assert.Equal(t, relaxedLatencyMs, result.CommsSpec.MaxLatencyMs)
}

func TestNegotiateDefaultLatency(t *testing.T) {
	deployments := store.NewDeployments(nil)
	require.NoError(t, deployments.Put(context.Background(), &domain.DeploymentRecord{
		AgentID:     "agt:supply:supplier-emea",
		CurrentLoad: 0.1,
	}))

	result := Negotiate(deployments, NegotiateRequest{AgentID: "agt:supply:supplier-emea"})

	assert.Equal(t, "accepted", result.Status)
	assert.Equal(t, defaultLatencyMs, result.CommsSpec.MaxLatencyMs)
}
