package invoker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/hupe1980/basketmesh/core"
	"github.com/hupe1980/basketmesh/logging"
)

// Result is the structured outcome of a single agent invocation. Callers
// always receive a Result, never an unhandled fault: resolution failures,
// returned errors and recovered panics all land in Err.
type Result struct {
	Agent    string        `json:"agent"`
	Output   core.Payload  `json:"output,omitempty"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`
}

// OK reports whether the invocation produced an output.
func (r *Result) OK() bool { return r.Err == nil }

// ErrorMessage returns the error text or the empty string on success.
func (r *Result) ErrorMessage() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Options configures an Invoker.
type Options struct {
	// StateCapacity bounds the number of live session-state containers.
	// The least recently used container is evicted beyond this.
	StateCapacity int

	// StateTTL expires idle state containers. Zero disables expiry.
	StateTTL time.Duration

	// Logger defaults to NoOpLogger.
	Logger logging.Logger
}

// Invoker executes agents. Stateful invocations attach to a session-scoped
// state container keyed by agent name and session identifier, held in an
// expirable LRU so abandoned sessions do not accumulate forever.
type Invoker struct {
	states *expirable.LRU[string, *core.AgentState]
	logger logging.Logger
}

// New creates an Invoker with optional overrides.
func New(optFns ...func(o *Options)) *Invoker {
	opts := Options{
		StateCapacity: 1024,
		StateTTL:      30 * time.Minute,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Invoker{
		states: expirable.NewLRU[string, *core.AgentState](opts.StateCapacity, nil, opts.StateTTL),
		logger: opts.Logger,
	}
}

// StateKey returns the container key for an agent within a session. The
// layout mirrors the ephemeral telemetry namespace so state and telemetry
// for one execution line up.
func StateKey(agent, sessionID string) string {
	return fmt.Sprintf("agent:%s:state:%s", agent, sessionID)
}

// execScope holds the resources acquired for one invocation. Release runs
// exactly once regardless of how the invocation exits.
type execScope struct {
	state   *core.AgentState
	once    sync.Once
	onClose func()
}

func (s *execScope) release() {
	s.once.Do(func() {
		if s.onClose != nil {
			s.onClose()
		}
	})
}

// Run invokes the agent with the given input. When stateful is true the
// invocation attaches to (or creates) the state container for (agent,
// sessionID); when false no state container is touched.
//
// Failure taxonomy: an unresolved executable reference yields a
// ModuleResolutionError without invoking anything; any fault raised during
// execution, including panics, is wrapped into an AgentRuntimeError.
func (iv *Invoker) Run(ctx context.Context, def *core.AgentDefinition, input core.Payload, stateful bool, sessionID string) *Result {
	res := &Result{Agent: def.Name}

	if def.Func == nil {
		res.Err = &core.ModuleResolutionError{Agent: def.Name, Ref: def.Ref}
		iv.logger.Error("agent reference unresolved", "agent", def.Name, "ref", def.Ref)
		return res
	}

	scope := &execScope{}
	if stateful {
		scope.state = iv.attachState(def.Name, sessionID)
		scope.onClose = func() {
			iv.logger.Debug("released execution scope", "agent", def.Name, "session", sessionID)
		}
	}
	defer scope.release()

	start := time.Now()
	res.Output, res.Err = iv.invoke(ctx, def, input, scope.state)
	res.Duration = time.Since(start)

	if res.Err != nil {
		iv.logger.Error("agent invocation failed", "agent", def.Name, "error", res.Err.Error())
	} else {
		iv.logger.Debug("agent invocation completed", "agent", def.Name, "duration", res.Duration)
	}
	return res
}

// invoke calls the agent function, converting returned errors and recovered
// panics into AgentRuntimeError values.
func (iv *Invoker) invoke(ctx context.Context, def *core.AgentDefinition, input core.Payload, state *core.AgentState) (out core.Payload, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = &core.AgentRuntimeError{Agent: def.Name, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	out, callErr := def.Func(ctx, input, state)
	if callErr != nil {
		return nil, &core.AgentRuntimeError{Agent: def.Name, Err: callErr}
	}
	return out, nil
}

// attachState returns the existing container for (agent, session) or creates
// and registers a fresh one.
func (iv *Invoker) attachState(agent, sessionID string) *core.AgentState {
	key := StateKey(agent, sessionID)
	if st, ok := iv.states.Get(key); ok {
		return st
	}
	st := core.NewAgentState()
	iv.states.Add(key, st)
	return st
}

// State exposes the container for (agent, session) if one exists. Intended
// for telemetry and tests.
func (iv *Invoker) State(agent, sessionID string) (*core.AgentState, bool) {
	return iv.states.Get(StateKey(agent, sessionID))
}

// PurgeSession drops the state containers of the given agents for one
// session. Used by the cleanup coordinator when a basket's executions are
// being erased.
func (iv *Invoker) PurgeSession(agents []string, sessionID string) int {
	removed := 0
	for _, agent := range agents {
		if iv.states.Remove(StateKey(agent, sessionID)) {
			removed++
		}
	}
	return removed
}
