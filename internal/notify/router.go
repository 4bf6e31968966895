package notify

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/cel-go/cel"
	"gopkg.in/yaml.v3"
)

// Rule selects Channel for every notice on which When evaluates to true. When
// sees `recipient` (name, contact, role), `kind` and `event`.
type Rule struct {
	Name    string `yaml:"name"`
	Channel string `yaml:"channel"`
	When    string `yaml:"when"`
}

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

func DefaultRules() []Rule {
	return []Rule{
		{Name: "email-contact", Channel: "email", When: `recipient.contact.contains("@")`},
		{Name: "phone-contact", Channel: "sms", When: `recipient.contact.startsWith("+")`},
		{Name: "phone-invite", Channel: "whatsapp", When: `recipient.contact.startsWith("+") && kind == "invite"`},
	}
}

// LoadRules reads a YAML rule file, or returns DefaultRules when path is empty.
func LoadRules(path string) ([]Rule, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultRules(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f ruleFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(f.Rules) == 0 {
		return nil, fmt.Errorf("parse %s: no rules", path)
	}
	return f.Rules, nil
}

var newRouterCELEnv = func() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("recipient", cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable("kind", cel.StringType),
		cel.Variable("event", cel.StringType),
	)
}

type compiledRule struct {
	Rule
	program cel.Program
}

// Router maps notices to delivery channels.
type Router struct {
	rules []compiledRule
}

func NewRouter(rules []Rule) (*Router, error) {
	if len(rules) == 0 {
		return nil, errors.New("notify: no routing rules")
	}
	env, err := newRouterCELEnv()
	if err != nil {
		return nil, err
	}
	out := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		r.Name = strings.TrimSpace(r.Name)
		r.Channel = strings.TrimSpace(strings.ToLower(r.Channel))
		r.When = strings.TrimSpace(r.When)
		if r.Name == "" || r.Channel == "" || r.When == "" {
			return nil, fmt.Errorf("notify: rule %q needs name, channel and when", r.Name)
		}
		ast, issues := env.Compile(r.When)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("notify: rule %s: %w", r.Name, issues.Err())
		}
		if !ast.OutputType().IsExactType(cel.BoolType) {
			return nil, fmt.Errorf("notify: rule %s: expression must be bool", r.Name)
		}
		program, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("notify: rule %s: %w", r.Name, err)
		}
		out = append(out, compiledRule{Rule: r, program: program})
	}
	return &Router{rules: out}, nil
}

// Channels returns the distinct channels of every matching rule, in rule order.
func (r *Router) Channels(n Notice) ([]string, error) {
	vars := map[string]any{
		"recipient": map[string]string{
			"name":    n.Recipient.Name,
			"contact": n.Recipient.Contact,
			"role":    n.Recipient.Role,
		},
		"kind":  string(n.Kind),
		"event": n.EventType,
	}
	var out []string
	seen := map[string]bool{}
	for _, rule := range r.rules {
		val, _, err := rule.program.Eval(vars)
		if err != nil {
			return nil, fmt.Errorf("notify: rule %s: %w", rule.Name, err)
		}
		matched, ok := val.Value().(bool)
		if !ok {
			return nil, fmt.Errorf("notify: rule %s: non-bool result", rule.Name)
		}
		if matched && !seen[rule.Channel] {
			seen[rule.Channel] = true
			out = append(out, rule.Channel)
		}
	}
	return out, nil
}
