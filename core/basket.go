package core

import "fmt"

// Strategy selects how a basket's steps are driven by the execution engine.
type Strategy string

const (
	// StrategySequential feeds each step's output into the next step and
	// stops at the first failure.
	StrategySequential Strategy = "sequential"
	// StrategyParallel runs every step concurrently against the original
	// input and waits for all of them.
	StrategyParallel Strategy = "parallel"
	// StrategyConditional behaves like sequential but consults each step's
	// declared condition against the prior output before executing it.
	StrategyConditional Strategy = "conditional"
)

// ParseStrategy validates a strategy name. The empty string defaults to
// sequential, matching the behavior of basket records created without an
// explicit strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategySequential, StrategyParallel, StrategyConditional:
		return Strategy(s), nil
	case "":
		return StrategySequential, nil
	default:
		return "", fmt.Errorf("unknown execution strategy %q", s)
	}
}

// BasketDefinition is a named, ordered collection of agents plus an execution
// strategy. Conditions is only consulted by the conditional strategy; when
// present it must be either empty or the same length as Agents, with each
// entry holding the condition grammar documented on Condition.
type BasketDefinition struct {
	Name        string   `yaml:"name" json:"name"`
	Agents      []string `yaml:"agents" json:"agents"`
	Strategy    Strategy `yaml:"strategy" json:"strategy"`
	Conditions  []string `yaml:"conditions,omitempty" json:"conditions,omitempty"`
	Description string   `yaml:"description" json:"description"`
}

// Validate checks structural invariants of the definition independent of the
// catalog: a non-empty name, at least one agent, a known strategy and a
// condition list length matching the agent list when provided.
func (b *BasketDefinition) Validate() error {
	if b.Name == "" {
		return fmt.Errorf("basket name is required")
	}
	if len(b.Agents) == 0 {
		return fmt.Errorf("basket %q must contain at least one agent", b.Name)
	}
	s, err := ParseStrategy(string(b.Strategy))
	if err != nil {
		return fmt.Errorf("basket %q: %w", b.Name, err)
	}
	b.Strategy = s
	if len(b.Conditions) != 0 && len(b.Conditions) != len(b.Agents) {
		return fmt.Errorf("basket %q declares %d conditions for %d agents", b.Name, len(b.Conditions), len(b.Agents))
	}
	return nil
}

// ConditionFor returns the condition expression for step idx, or the empty
// expression (always run) when none is declared.
func (b *BasketDefinition) ConditionFor(idx int) Condition {
	if idx < 0 || idx >= len(b.Conditions) {
		return Condition("")
	}
	return Condition(b.Conditions[idx])
}

// Clone returns an independent copy of the definition.
func (b BasketDefinition) Clone() BasketDefinition {
	cp := b
	cp.Agents = append([]string(nil), b.Agents...)
	if b.Conditions != nil {
		cp.Conditions = append([]string(nil), b.Conditions...)
	}
	return cp
}
