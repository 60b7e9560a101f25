// Package policy decides how the runtime reacts to collaborator failures.
package policy

import (
	"context"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/rego"

	"github.com/huythanhnguyen/mm-chatbot-v-oct/internal/domain"
)

// Stage is where a failure happened.
type Stage string

const (
	StageArtifact Stage = "artifact"
	StageIndex    Stage = "index"
	StageEnqueue  Stage = "enqueue"
	StageTrim     Stage = "trim"
	StageInput    Stage = "input"
)

// Action is what the caller should do after a failure.
type Action string

const (
	// ActionContinue logs the failure and carries on with the rest of the work.
	ActionContinue Action = "continue"
	// ActionDrop logs the failure and discards the remaining work.
	ActionDrop Action = "drop"
)

// Failure describes a failed step.
type Failure struct {
	Stage   Stage            `json:"stage"`
	Kind    domain.ErrorKind `json:"kind"`
	JobKind domain.JobKind   `json:"job_kind,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// Decision is the outcome of evaluating a Failure.
type Decision struct {
	Action Action `json:"action"`
	Level  string `json:"level"`
	Reason string `json:"reason"`
}

// Engine is the OPA failure policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a policy engine from rego source defining
// data.failure_policy.decision.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.failure_policy.decision"),
		rego.Module("failure_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// NewEngineFromFile loads the policy from path, or DefaultPolicy when path
// is empty.
func NewEngineFromFile(ctx context.Context, path string) (*Engine, error) {
	if path == "" {
		return NewEngine(ctx, DefaultPolicy)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return NewEngine(ctx, string(content))
}

// Evaluate decides what to do about f. The runtime fails open, so an
// evaluation error still yields a usable decision alongside the error.
func (e *Engine) Evaluate(ctx context.Context, f Failure) (Decision, error) {
	fallback := Decision{Action: ActionDrop, Level: "warn", Reason: "policy unavailable"}

	results, err := e.query.Eval(ctx, rego.EvalInput(f))
	if err != nil {
		return fallback, fmt.Errorf("failed to evaluate policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return fallback, nil
	}

	obj, ok := results[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return fallback, fmt.Errorf("unexpected policy result type %T", results[0].Expressions[0].Value)
	}

	d := Decision{Level: "warn"}
	if s, ok := obj["action"].(string); ok {
		d.Action = Action(s)
	}
	if s, ok := obj["level"].(string); ok && s != "" {
		d.Level = s
	}
	if s, ok := obj["reason"].(string); ok {
		d.Reason = s
	}
	if d.Action != ActionContinue && d.Action != ActionDrop {
		d.Action = ActionDrop
	}
	return d, nil
}

// DefaultPolicy is the default failure policy. A failed artifact or index
// write discards the job; malformed input and an exhausted budget are only
// logged. A custom policy can let the index row through after an artifact
// failure by returning continue for stage "artifact".
const DefaultPolicy = `
package failure_policy

default decision = {"action": "drop", "level": "warn", "reason": "best-effort persistence"}

decision = {"action": "continue", "level": "info", "reason": "malformed input treated as absent"} {
	input.kind == "malformed_input"
}

decision = {"action": "continue", "level": "warn", "reason": "over-budget history sent as is"} {
	input.kind == "exhausted_budget"
}
`
