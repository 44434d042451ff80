package testutil

import (
	"context"
	"errors"

	"github.com/hupe1980/basketmesh/core"
)

// EchoFunc returns the input unchanged.
func EchoFunc(_ context.Context, input core.Payload, _ *core.AgentState) (core.Payload, error) {
	return input, nil
}

// FailFunc returns an agent function that always fails with the given message.
func FailFunc(msg string) core.AgentFunc {
	return func(context.Context, core.Payload, *core.AgentState) (core.Payload, error) {
		return nil, errors.New(msg)
	}
}

// AgentBuilder provides a fluent helper for constructing agent definitions in
// tests. Example:
//
//	def := NewAgentBuilder("cleaner").Domain("text").Func(EchoFunc).Build()
//
// Chain only the parts you need; sensible defaults are applied.
type AgentBuilder struct {
	def core.AgentDefinition
}

// NewAgentBuilder creates a builder for the named agent with a default
// builtin reference and the echo function.
func NewAgentBuilder(name string) *AgentBuilder {
	return &AgentBuilder{def: core.AgentDefinition{
		Name: name,
		Ref:  "builtin/" + name,
		Func: EchoFunc,
	}}
}

// Domain sets the domain tag (chainable).
func (b *AgentBuilder) Domain(d string) *AgentBuilder { b.def.Domain = d; return b }

// Require declares a required input field (chainable).
func (b *AgentBuilder) Require(field string) *AgentBuilder {
	b.def.Inputs = append(b.def.Inputs, core.InputField{Name: field, Required: true})
	return b
}

// Example sets the example input payload (chainable).
func (b *AgentBuilder) Example(p core.Payload) *AgentBuilder { b.def.ExampleInput = p; return b }

// Func sets the executable function (chainable).
func (b *AgentBuilder) Func(fn core.AgentFunc) *AgentBuilder { b.def.Func = fn; return b }

// Build returns the assembled definition.
func (b *AgentBuilder) Build() core.AgentDefinition { return b.def }

// Basket assembles a basket definition from a name, strategy and agent names.
func Basket(name string, strategy core.Strategy, agents ...string) core.BasketDefinition {
	return core.BasketDefinition{Name: name, Agents: agents, Strategy: strategy}
}
