package expiry

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/v1/rego"
)

const decisionQuery = "data.signflow.expiry.decision"

//go:embed policy/expiry.rego
var defaultPolicy string

type Input struct {
	ContractID   string
	State        string
	PendingRole  string
	WaitingHours int64
	MaxWaitHours int64
}

type Decision struct {
	Reject bool
	Reason string
}

// Policy evaluates data.signflow.expiry.decision for one open workflow.
type Policy struct {
	query rego.PreparedEvalQuery
}

// LoadPolicy compiles the rego file at path, or the built-in policy when path
// is empty.
func LoadPolicy(ctx context.Context, path string) (*Policy, error) {
	if path == "" {
		return NewPolicy(ctx, "expiry.rego", defaultPolicy)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return NewPolicy(ctx, path, string(b))
}

func NewPolicy(ctx context.Context, name string, source string) (*Policy, error) {
	q, err := rego.New(
		rego.Query(decisionQuery),
		rego.Module(name, source),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile expiry policy: %w", err)
	}
	return &Policy{query: q}, nil
}

func (p *Policy) Decide(ctx context.Context, in Input) (Decision, error) {
	rs, err := p.query.Eval(ctx, rego.EvalInput(map[string]any{
		"contract_id":    in.ContractID,
		"state":          in.State,
		"pending_role":   in.PendingRole,
		"waiting_hours":  in.WaitingHours,
		"max_wait_hours": in.MaxWaitHours,
	}))
	if err != nil {
		return Decision{}, fmt.Errorf("evaluate expiry policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return Decision{}, errors.New("expiry policy: decision undefined")
	}
	obj, ok := rs[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return Decision{}, fmt.Errorf("expiry policy: decision is %T, want object", rs[0].Expressions[0].Value)
	}
	var d Decision
	if v, ok := obj["reject"].(bool); ok {
		d.Reject = v
	}
	if v, ok := obj["reason"].(string); ok {
		d.Reason = v
	}
	if d.Reject && d.Reason == "" {
		d.Reason = "signature window expired"
	}
	return d, nil
}
