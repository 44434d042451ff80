package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAgentNotFound is returned when a named agent is absent from the
	// catalog snapshot. Absence on lookup itself is a normal result; this
	// sentinel is used by callers that require the agent to exist.
	ErrAgentNotFound = errors.New("agent not found")

	// ErrBasketNotFound is returned when a named basket is absent from both
	// the catalog and the durable basket records.
	ErrBasketNotFound = errors.New("basket not found")

	// ErrTelemetryUnavailable marks a best-effort telemetry store as
	// unreachable. Telemetry callers degrade on it; they never abort a run.
	ErrTelemetryUnavailable = errors.New("telemetry store unavailable")
)

// ConfigError reports a malformed catalog configuration source. The previous
// catalog snapshot remains active when it is returned.
type ConfigError struct {
	Source string
	Err    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config load failed for %s: %v", e.Source, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// CompatibilityError reports input data missing fields an agent declares as
// required. Runs are refused with it before any invocation happens.
type CompatibilityError struct {
	Agent   string
	Missing []string
}

func (e *CompatibilityError) Error() string {
	return fmt.Sprintf("input incompatible with agent %s: missing required fields [%s]",
		e.Agent, strings.Join(e.Missing, ", "))
}

// ModuleResolutionError reports that an agent's executable reference could
// not be located. It is returned before the agent is invoked.
type ModuleResolutionError struct {
	Agent string
	Ref   string
}

func (e *ModuleResolutionError) Error() string {
	return fmt.Sprintf("agent %s: executable reference %q could not be resolved", e.Agent, e.Ref)
}

// AgentRuntimeError wraps a fault raised during agent execution, including
// recovered panics. The invoker returns it as a structured result; it is
// never re-raised to callers as an unhandled fault.
type AgentRuntimeError struct {
	Agent string
	Err   error
}

func (e *AgentRuntimeError) Error() string {
	return fmt.Sprintf("agent %s failed: %v", e.Agent, e.Err)
}

func (e *AgentRuntimeError) Unwrap() error { return e.Err }
