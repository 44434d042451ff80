// Package basketmesh provides a high-level façade over the catalog, invoker,
// engine and telemetry services for running registered agents individually or
// as baskets. Most applications interact with this package by:
//  1. Creating a Mesh via New() (optionally overriding default in-memory services)
//  2. Registering agent functions and loading definitions
//  3. Running single agents (RunAgent) or baskets (RunBasket)
//
// The façade delegates per-run orchestration to engine.Engine while keeping
// setup and usage ergonomics concise. All defaults are safe for local
// development and testing; production deployments typically supply a durable
// audit store, a persistent log directory and a structured logger.
package basketmesh

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/basketmesh/catalog"
	"github.com/hupe1980/basketmesh/cleanup"
	"github.com/hupe1980/basketmesh/core"
	"github.com/hupe1980/basketmesh/engine"
	"github.com/hupe1980/basketmesh/eventbus"
	"github.com/hupe1980/basketmesh/invoker"
	"github.com/hupe1980/basketmesh/logging"
	"github.com/hupe1980/basketmesh/telemetry"
)

// Options configures the Mesh instance.
type Options struct {
	// Funcs resolves agent executable references when definitions load.
	// Defaults to an empty registry.
	Funcs *catalog.FuncRegistry

	// KV is the ephemeral telemetry store. Defaults to MemoryKV.
	KV telemetry.KV

	// Audit is the durable telemetry and basket record store. Nil disables
	// durable writes; the sink degrades accordingly.
	Audit telemetry.AuditStore

	// LogDir is the root for per-run log artifacts. Empty disables them.
	LogDir string

	// EventBufferSize bounds the lifecycle event queue.
	EventBufferSize int

	// StateTTL bounds how long idle per-session agent state is retained.
	StateTTL time.Duration

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger

	// RunLogger emits structured per-step and per-run records for basket
	// executions through the rich logger. Nil disables the records.
	RunLogger *logging.CoreLogger
}

// Mesh is the high-level façade aggregating the catalog, invoker, event bus
// and telemetry sink.
type Mesh struct {
	opts    Options
	catalog *catalog.Catalog
	invoker *invoker.Invoker
	bus     *eventbus.Bus
	sink    *telemetry.Sink
	cleaner *cleanup.Coordinator
}

// New creates a new Mesh instance with optional overrides. Any unset service
// is initialized with an in-memory implementation.
func New(optFns ...func(o *Options)) *Mesh {
	opts := Options{
		Funcs:           catalog.NewFuncRegistry(),
		KV:              telemetry.NewMemoryKV(),
		EventBufferSize: 128,
		StateTTL:        30 * time.Minute,
		Logger:          logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	cat := catalog.New(func(o *catalog.Options) {
		o.Funcs = opts.Funcs
		o.Logger = opts.Logger
	})
	iv := invoker.New(func(o *invoker.Options) {
		o.StateTTL = opts.StateTTL
		o.Logger = opts.Logger
	})
	bus := eventbus.New(func(o *eventbus.Options) {
		o.QueueSize = opts.EventBufferSize
		o.Logger = opts.Logger
	})
	sink := telemetry.NewSink(opts.KV, opts.Audit, func(o *telemetry.Options) {
		o.Logger = opts.Logger
	})
	cleaner := cleanup.New(cat, sink, func(o *cleanup.Options) {
		o.LogDir = opts.LogDir
		o.Invoker = iv
		o.Logger = opts.Logger
	})

	return &Mesh{
		opts:    opts,
		catalog: cat,
		invoker: iv,
		bus:     bus,
		sink:    sink,
		cleaner: cleaner,
	}
}

// Catalog exposes the definition index.
func (m *Mesh) Catalog() *catalog.Catalog { return m.catalog }

// Bus exposes the lifecycle event bus for subscribers and forwarders.
func (m *Mesh) Bus() *eventbus.Bus { return m.bus }

// Sink exposes the telemetry sink.
func (m *Mesh) Sink() *telemetry.Sink { return m.sink }

// RegisterFunc adds an executable reference to the function registry. It must
// be called before definitions referencing it are loaded.
func (m *Mesh) RegisterFunc(ref string, fn core.AgentFunc) {
	m.catalog.Funcs().Register(ref, fn)
}

// LoadDefinitions loads agent and basket definitions from a YAML file.
func (m *Mesh) LoadDefinitions(path string) error {
	return m.catalog.LoadFile(path)
}

// AgentRun is the outcome of a single-agent run outside any basket.
type AgentRun struct {
	ExecutionID string        `json:"execution_id"`
	Agent       string        `json:"agent"`
	Output      core.Payload  `json:"output"`
	Duration    time.Duration `json:"duration"`
}

// RunAgentOptions configures a single-agent run.
type RunAgentOptions struct {
	// Stateful attaches the run to a session-scoped state container.
	Stateful bool

	// SessionID keys the state container for stateful runs. Defaults to the
	// run's execution identifier, giving every run a fresh container.
	SessionID string
}

// RunAgent runs one agent by name against the given input. The input must
// satisfy the agent's declared required fields; incompatible input is refused
// with a CompatibilityError before anything executes.
func (m *Mesh) RunAgent(ctx context.Context, name string, input core.Payload, optFns ...func(o *RunAgentOptions)) (*AgentRun, error) {
	var runOpts RunAgentOptions
	for _, fn := range optFns {
		fn(&runOpts)
	}

	def, ok := m.catalog.GetAgent(name)
	if !ok {
		return nil, fmt.Errorf("agent %q: %w", name, core.ErrAgentNotFound)
	}
	if missing := def.MissingFields(input); len(missing) > 0 {
		return nil, &core.CompatibilityError{Agent: name, Missing: missing}
	}

	executionID := core.NewExecutionID()
	sessionID := runOpts.SessionID
	if sessionID == "" {
		sessionID = executionID
	}

	res := m.invoker.Run(ctx, def, input, runOpts.Stateful, sessionID)
	if res.OK() {
		m.sink.Append(ctx, executionID, name, 0, "info",
			core.Payload{"output": res.Output, "duration_ms": res.Duration.Milliseconds()})
		m.sink.StoreOutput(ctx, executionID, name, res.Output)
		m.bus.Publish(core.NewRecommendationEvent(executionID, "", name, res.Output))
	} else {
		m.sink.Append(ctx, executionID, name, 0, "error",
			core.Payload{"error": res.ErrorMessage(), "duration_ms": res.Duration.Milliseconds()})
		m.bus.Publish(core.NewEscalationEvent(executionID, "", name, res.ErrorMessage()))
		return nil, res.Err
	}

	return &AgentRun{
		ExecutionID: executionID,
		Agent:       name,
		Output:      res.Output,
		Duration:    res.Duration,
	}, nil
}

// RunBasket executes a registered basket by name. A nil or empty input falls
// back to the first agent's example input, or a minimal seed when no example
// is declared.
func (m *Mesh) RunBasket(ctx context.Context, name string, input core.Payload) (*core.Result, error) {
	def, ok := m.catalog.GetBasket(name)
	if !ok {
		return nil, fmt.Errorf("basket %q: %w", name, core.ErrBasketNotFound)
	}
	return m.RunBasketDefinition(ctx, def, input)
}

// RunBasketDefinition executes an inline basket definition without
// registering it. The definition is validated first.
func (m *Mesh) RunBasketDefinition(ctx context.Context, def core.BasketDefinition, input core.Payload) (*core.Result, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	for _, agent := range def.Agents {
		if _, ok := m.catalog.GetAgent(agent); !ok {
			return nil, fmt.Errorf("basket %q: %w: %s", def.Name, core.ErrAgentNotFound, agent)
		}
	}

	seed := m.seedInput(def, input)
	if first, ok := m.catalog.GetAgent(def.Agents[0]); ok {
		if missing := first.MissingFields(seed); len(missing) > 0 {
			return nil, &core.CompatibilityError{Agent: first.Name, Missing: missing}
		}
	}

	eng := engine.New(def, func(o *engine.Options) {
		o.Catalog = m.catalog
		o.Invoker = m.invoker
		o.Bus = m.bus
		o.Sink = m.sink
		o.LogDir = m.opts.LogDir
		o.Logger = m.opts.Logger
		o.Run = m.opts.RunLogger
	})
	return eng.Execute(ctx, seed), nil
}

// seedInput resolves the initial payload for a basket run: the caller's
// payload when present, otherwise the first agent's example input, otherwise
// a minimal start marker.
func (m *Mesh) seedInput(def core.BasketDefinition, input core.Payload) core.Payload {
	if len(input) > 0 {
		return input
	}
	if len(def.Agents) > 0 {
		if first, ok := m.catalog.GetAgent(def.Agents[0]); ok && len(first.ExampleInput) > 0 {
			return first.ExampleInput.Clone()
		}
	}
	return core.Payload{"input": "start"}
}

// CreateBasket validates and registers a basket definition at runtime,
// persisting it to the durable store when one is configured.
func (m *Mesh) CreateBasket(ctx context.Context, def core.BasketDefinition) error {
	if err := m.catalog.RegisterBasket(def); err != nil {
		return err
	}
	if audit := m.sink.Audit(); audit != nil {
		if err := audit.SaveBasket(ctx, def); err != nil {
			m.opts.Logger.Warn("failed to persist basket definition", "basket", def.Name, "error", err.Error())
		}
	}
	return nil
}

// DeleteBasket removes a basket and cascades over its telemetry, log files
// and session state. See cleanup.Coordinator for the exact semantics.
func (m *Mesh) DeleteBasket(ctx context.Context, name string) (*cleanup.Summary, error) {
	return m.cleaner.DeleteBasket(ctx, name)
}

// ExecutionLogs returns up to limit telemetry records for one execution,
// most recent first.
func (m *Mesh) ExecutionLogs(ctx context.Context, executionID string, limit int) ([]telemetry.Record, error) {
	return m.sink.ExecutionLogs(ctx, executionID, limit)
}

// AgentLogs returns up to limit telemetry records for one agent across
// executions, most recent first.
func (m *Mesh) AgentLogs(ctx context.Context, agent string, limit int) ([]telemetry.Record, error) {
	return m.sink.AgentLogs(ctx, agent, limit)
}

// PurgeTelemetry removes ephemeral telemetry older than the given number of
// days, clamped to the supported retention window.
func (m *Mesh) PurgeTelemetry(ctx context.Context, days int) (int, error) {
	return m.sink.PurgeOlderThan(ctx, days)
}

// Agents lists all registered agent definitions. A non-empty domain filters
// by domain tag.
func (m *Mesh) Agents(domain string) []*core.AgentDefinition {
	if domain == "" {
		return m.catalog.Agents()
	}
	return m.catalog.AgentsByDomain(domain)
}

// Baskets lists all registered basket definitions.
func (m *Mesh) Baskets() []core.BasketDefinition {
	return m.catalog.Baskets()
}

// Health reports per-store telemetry reachability.
func (m *Mesh) Health(ctx context.Context) (ephemeral, durable bool) {
	return m.sink.Healthy(ctx)
}

// Close flushes queued telemetry and stops the event bus. The audit store is
// owned by the caller and is not closed here.
func (m *Mesh) Close() {
	m.sink.Close()
	m.bus.Close()
}
