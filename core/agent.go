package core

import (
	"context"
	"sync"
	"time"
)

// Payload is the unit of data exchanged with agents: a free-form mapping of
// field name to value. Inputs, outputs and event messages all use this shape.
type Payload map[string]any

// Clone returns a shallow copy of the payload. Values are shared; the map
// itself is independent so callers can add or remove keys safely.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	cp := make(Payload, len(p))
	for k, v := range p {
		cp[k] = v
	}
	return cp
}

// InputField declares one field of an agent's input contract. Required fields
// are checked by the catalog's compatibility validation before invocation;
// extra fields not declared here are always permitted.
type InputField struct {
	Name     string `yaml:"name" json:"name"`
	Type     string `yaml:"type" json:"type"`
	Required bool   `yaml:"required" json:"required"`
}

// AgentFunc is the executable form of an agent. The state argument is nil for
// stateless invocations; for stateful ones it is the session-scoped container
// shared by all invocations of the same agent within one session.
//
// Implementations must treat the input payload as read-only and return a new
// payload. Returning an error (or panicking) marks the invocation failed; the
// invoker converts both into an AgentRuntimeError.
type AgentFunc func(ctx context.Context, input Payload, state *AgentState) (Payload, error)

// AgentDefinition describes a named, independently invocable unit of
// computation. Definitions are immutable once loaded into the catalog and are
// replaced wholesale on reload.
//
// Ref is the executable reference resolved against the function registry at
// catalog-load time; the resolved AgentFunc is cached in Func so the hot path
// never performs a string lookup.
type AgentDefinition struct {
	Name         string       `yaml:"name" json:"name"`
	Domain       string       `yaml:"domain" json:"domain"`
	Ref          string       `yaml:"ref" json:"ref"`
	Inputs       []InputField `yaml:"inputs" json:"inputs"`
	ExampleInput Payload      `yaml:"example_input" json:"example_input,omitempty"`

	// Func is the resolved executable reference. Populated by the catalog;
	// nil when Ref could not be resolved, which the invoker reports as a
	// ModuleResolutionError before touching any input.
	Func AgentFunc `yaml:"-" json:"-"`
}

// MissingFields returns the required fields declared by the definition that
// are absent from the given input, in declaration order.
func (d *AgentDefinition) MissingFields(input Payload) []string {
	var missing []string
	for _, f := range d.Inputs {
		if !f.Required {
			continue
		}
		if _, ok := input[f.Name]; !ok {
			missing = append(missing, f.Name)
		}
	}
	return missing
}

// AgentState is the session-scoped mutable container attached to stateful
// invocations. It is safe for concurrent access; within one basket run only
// the run that created it touches it, but state containers may be shared by
// concurrent single-agent calls against the same session.
type AgentState struct {
	mu      sync.RWMutex
	values  map[string]any
	updated time.Time
}

// NewAgentState returns an empty state container.
func NewAgentState() *AgentState {
	return &AgentState{values: map[string]any{}, updated: time.Now()}
}

// Get returns the value and existence flag for a state key.
func (s *AgentState) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Set stores a key/value pair, updating the modification timestamp.
func (s *AgentState) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	s.updated = time.Now()
}

// Snapshot returns a copy of the state values for inspection or telemetry.
func (s *AgentState) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := make(map[string]any, len(s.values))
	for k, v := range s.values {
		cp[k] = v
	}
	return cp
}

// Len returns the number of stored keys.
func (s *AgentState) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}
