// Package policy decides whether an adaptive resolution can issue a
// tailored endpoint or must invite the requester to negotiate first.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

// Decision values returned by the resolution policy.
const (
	DecisionTailor    = "tailor"
	DecisionNegotiate = "negotiate"
)

// Trigger names for the negotiate decision.
const (
	TriggerMissingContext = "missing_context"
	TriggerZeroTrust      = "zero_trust"
	TriggerHighLoad       = "high_load"
)

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a policy engine with the given rego policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.resolution_policy.decision"),
		rego.Module("resolution_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Input is the evaluation input for a single resolution request.
type Input struct {
	MissingContext []string `json:"missing_context"`
	SecurityLevel  string   `json:"security_level"`
	CurrentLoad    float64  `json:"current_load"`
}

// Evaluate runs the policy and returns (decision, trigger). The trigger is
// empty for the tailor decision.
func (e *Engine) Evaluate(ctx context.Context, in Input) (string, string, error) {
	if in.MissingContext == nil {
		in.MissingContext = []string{}
	}
	results, err := e.query.Eval(ctx, rego.EvalInput(in))
	if err != nil {
		return "", "", fmt.Errorf("failed to evaluate policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return DecisionTailor, "", nil
	}

	obj, ok := results[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return "", "", fmt.Errorf("unexpected policy result type %T", results[0].Expressions[0].Value)
	}
	decision, _ := obj["decision"].(string)
	trigger, _ := obj["trigger"].(string)
	if decision == "" {
		decision = DecisionTailor
	}
	return decision, trigger, nil
}

// DefaultPolicy encodes the negotiation triggers: required context fields
// the caller did not supply, a zero-trust posture, or an overloaded target.
// Triggers are checked in that order; the first match names the reason.
const DefaultPolicy = `
package resolution_policy

import rego.v1

default decision := {"decision": "tailor", "trigger": ""}

decision := {"decision": "negotiate", "trigger": "missing_context"} if {
	count(input.missing_context) > 0
}

decision := {"decision": "negotiate", "trigger": "zero_trust"} if {
	count(input.missing_context) == 0
	input.security_level == "zero-trust"
}

decision := {"decision": "negotiate", "trigger": "high_load"} if {
	count(input.missing_context) == 0
	input.security_level != "zero-trust"
	input.current_load > 0.9
}
`
