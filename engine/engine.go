package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hupe1980/basketmesh/catalog"
	"github.com/hupe1980/basketmesh/core"
	"github.com/hupe1980/basketmesh/eventbus"
	"github.com/hupe1980/basketmesh/invoker"
	"github.com/hupe1980/basketmesh/logging"
	"github.com/hupe1980/basketmesh/telemetry"
)

// RunLogDirName is the subdirectory of the log root holding per-run log
// artifacts, named "<basket>_<execution id>.log". The cleanup coordinator
// globs this layout when deleting a basket.
const RunLogDirName = "basket_runs"

// Options configures an Engine run.
type Options struct {
	// Catalog resolves agent definitions for each step. Required.
	Catalog *catalog.Catalog

	// Invoker executes individual agents. Required.
	Invoker *invoker.Invoker

	// Bus receives step-lifecycle events. Optional; nil disables emission.
	Bus *eventbus.Bus

	// Sink receives step telemetry. Optional; nil disables telemetry.
	Sink *telemetry.Sink

	// LogDir is the root for per-run log artifacts. Empty disables the
	// on-disk run log.
	LogDir string

	// Logger defaults to NoOpLogger.
	Logger logging.Logger

	// Run emits structured per-step and per-run execution records through
	// the rich logger, scoped to this run's basket and execution identifier.
	// Optional; nil disables the records.
	Run *logging.CoreLogger
}

// Engine drives one basket execution. Construction is the only point where
// the execution identifier is generated; it exists before any telemetry or
// event touches the outside world.
type Engine struct {
	basket    core.BasketDefinition
	execution *core.Execution

	catalog *catalog.Catalog
	invoker *invoker.Invoker
	bus     *eventbus.Bus
	sink    *telemetry.Sink
	logDir  string
	logger  logging.Logger
	run     *logging.CoreLogger

	runLogMu sync.Mutex
	runLog   *os.File
}

// New creates an engine for one run of the given basket, minting a fresh
// unique execution identifier.
func New(basket core.BasketDefinition, optFns ...func(o *Options)) *Engine {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	execution := core.NewExecution(basket.Name, basket.Strategy)
	var run *logging.CoreLogger
	if opts.Run != nil {
		run = opts.Run.WithComponent("engine").WithExecution(basket.Name, execution.ID)
	}

	return &Engine{
		basket:    basket.Clone(),
		execution: execution,
		catalog:   opts.Catalog,
		invoker:   opts.Invoker,
		bus:       opts.Bus,
		sink:      opts.Sink,
		logDir:    opts.LogDir,
		logger:    opts.Logger,
		run:       run,
	}
}

// ExecutionID returns the run's unique identifier.
func (e *Engine) ExecutionID() string { return e.execution.ID }

// Execute runs the basket to completion under its strategy and returns the
// aggregate result. The caller always receives a structured result; step
// failures surface as step results and the terminal status, never as an
// error return. The context is handed to each agent invocation; dispatch
// itself always drives the run to a terminal status.
func (e *Engine) Execute(ctx context.Context, input core.Payload) *core.Result {
	start := time.Now()
	e.execution.Status = core.StatusRunning

	if e.sink != nil {
		e.sink.RecordExecution(ctx, e.basket.Name, e.execution.ID)
	}
	e.openRunLog()
	defer e.closeRunLog()

	e.logLine("execution %s started: basket=%s strategy=%s agents=%v",
		e.execution.ID, e.basket.Name, e.basket.Strategy, e.basket.Agents)

	switch e.basket.Strategy {
	case core.StrategyParallel:
		e.runParallel(ctx, input)
	case core.StrategyConditional:
		e.runConditional(ctx, input)
	default:
		e.runSequential(ctx, input)
	}

	e.logLine("execution %s finished: status=%s duration=%s",
		e.execution.ID, e.execution.Status, time.Since(start))
	if e.run != nil {
		e.run.LogBasketExecution(e.basket.Name, string(e.basket.Strategy),
			len(e.execution.Steps), time.Since(start), string(e.execution.Status))
	}
	e.logger.Info("basket execution finished",
		"basket", e.basket.Name,
		"execution_id", e.execution.ID,
		"status", string(e.execution.Status),
		"steps", len(e.execution.Steps),
		"duration", time.Since(start))

	return e.result()
}

func (e *Engine) result() *core.Result {
	return &core.Result{
		Status: e.execution.Status,
		Steps:  e.execution.Steps,
		Metadata: core.Metadata{
			ExecutionID:    e.execution.ID,
			BasketName:     e.basket.Name,
			AgentsExecuted: append([]string(nil), e.basket.Agents...),
			Strategy:       e.basket.Strategy,
		},
	}
}

// runSequential feeds each step's output into the next. The first failure
// stops dispatch and marks the run failed; completed outputs are retained.
func (e *Engine) runSequential(ctx context.Context, input core.Payload) {
	current := input
	for i, agent := range e.basket.Agents {
		step := e.runStep(ctx, i, agent, current)
		e.execution.AppendStep(step)

		if step.Status != core.StepOK {
			e.execution.Status = core.StatusFailed
			return
		}
		if i < len(e.basket.Agents)-1 {
			e.publish(core.NewDependencyUpdateEvent(e.execution.ID, e.basket.Name, agent, step.Output))
			current = step.Output
		}
	}
	e.execution.Status = core.StatusCompleted
}

// runParallel dispatches every step concurrently against the original input
// and waits for all of them. Per-step identity is preserved by collecting
// into index-addressed slots before appending in definition order.
func (e *Engine) runParallel(ctx context.Context, input core.Payload) {
	slots := make([]core.StepResult, len(e.basket.Agents))

	var wg sync.WaitGroup
	for i, agent := range e.basket.Agents {
		wg.Add(1)
		go func(idx int, name string) {
			defer wg.Done()
			slots[idx] = e.runStep(ctx, idx, name, input.Clone())
		}(i, agent)
	}
	wg.Wait()

	failed := 0
	for _, step := range slots {
		e.execution.AppendStep(step)
		if step.Status == core.StepError {
			failed++
		}
	}

	switch {
	case failed == 0:
		e.execution.Status = core.StatusCompleted
	case failed == len(slots):
		e.execution.Status = core.StatusFailed
	default:
		e.execution.Status = core.StatusPartial
	}
}

// runConditional behaves like sequential but consults each step's declared
// condition against the prior step's output. Skipped steps are recorded with
// a skipped marker and pass the prior output through unchanged.
func (e *Engine) runConditional(ctx context.Context, input core.Payload) {
	current := input
	for i, agent := range e.basket.Agents {
		cond := e.basket.ConditionFor(i)
		if !cond.Evaluate(current) {
			step := core.StepResult{Agent: agent, Index: i, Status: core.StepSkipped}
			e.execution.AppendStep(step)
			e.appendTelemetry(ctx, step, core.Payload{"skipped": true, "condition": string(cond)})
			e.logLine("step %d (%s) skipped: condition %q", i, agent, string(cond))
			continue
		}

		step := e.runStep(ctx, i, agent, current)
		e.execution.AppendStep(step)

		if step.Status != core.StepOK {
			e.execution.Status = core.StatusFailed
			return
		}
		if i < len(e.basket.Agents)-1 {
			e.publish(core.NewDependencyUpdateEvent(e.execution.ID, e.basket.Name, agent, step.Output))
		}
		current = step.Output
	}
	e.execution.Status = core.StatusCompleted
}

// runStep invokes one agent and handles the per-step side effects: event
// emission, telemetry and the run log line. It never mutates the execution
// record; strategies own appending so step order follows the definition.
func (e *Engine) runStep(ctx context.Context, idx int, agent string, input core.Payload) core.StepResult {
	def, ok := e.catalog.GetAgent(agent)
	if !ok {
		err := &core.ModuleResolutionError{Agent: agent, Ref: ""}
		step := core.StepResult{Agent: agent, Index: idx, Status: core.StepError, Error: err.Error()}
		e.publish(core.NewEscalationEvent(e.execution.ID, e.basket.Name, agent, step.Error))
		e.appendTelemetry(ctx, step, core.Payload{"error": step.Error})
		e.logStep(agent, 0, false, err)
		e.logLine("step %d (%s) failed: %s", idx, agent, step.Error)
		return step
	}

	res := e.invoker.Run(ctx, def, input, false, e.execution.ID)

	step := core.StepResult{Agent: agent, Index: idx, Duration: res.Duration}
	if res.OK() {
		step.Status = core.StepOK
		step.Output = res.Output

		e.publish(core.NewRecommendationEvent(e.execution.ID, e.basket.Name, agent, res.Output))
		e.appendTelemetry(ctx, step, core.Payload{"output": res.Output, "duration_ms": res.Duration.Milliseconds()})
		if e.sink != nil {
			e.sink.StoreOutput(ctx, e.execution.ID, agent, res.Output)
		}
		e.logStep(agent, res.Duration, true, nil)
		e.logLine("step %d (%s) completed in %s", idx, agent, res.Duration)
	} else {
		step.Status = core.StepError
		step.Error = res.ErrorMessage()

		e.publish(core.NewEscalationEvent(e.execution.ID, e.basket.Name, agent, step.Error))
		e.appendTelemetry(ctx, step, core.Payload{"error": step.Error, "duration_ms": res.Duration.Milliseconds()})
		e.logStep(agent, res.Duration, false, res.Err)
		e.logLine("step %d (%s) failed: %s", idx, agent, step.Error)
	}
	return step
}

func (e *Engine) logStep(agent string, dur time.Duration, success bool, err error) {
	if e.run != nil {
		e.run.LogStepExecution(agent, dur, success, err)
	}
}

func (e *Engine) publish(ev core.BusEvent) {
	if e.bus != nil {
		e.bus.Publish(ev)
	}
}

func (e *Engine) appendTelemetry(ctx context.Context, step core.StepResult, payload core.Payload) {
	if e.sink == nil {
		return
	}
	level := "info"
	if step.Status == core.StepError {
		level = "error"
	}
	e.sink.Append(ctx, e.execution.ID, step.Agent, step.Index, level, payload)
}

// openRunLog creates the per-run log artifact. Failure to create it degrades
// to a warning; the run is never blocked on the filesystem.
func (e *Engine) openRunLog() {
	if e.logDir == "" {
		return
	}
	dir := filepath.Join(e.logDir, RunLogDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		e.logger.Warn("failed to create run log directory", "dir", dir, "error", err.Error())
		return
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.log", e.basket.Name, e.execution.ID))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		e.logger.Warn("failed to create run log", "path", path, "error", err.Error())
		return
	}
	e.runLog = f
}

func (e *Engine) closeRunLog() {
	e.runLogMu.Lock()
	defer e.runLogMu.Unlock()
	if e.runLog != nil {
		e.runLog.Close()
		e.runLog = nil
	}
}

func (e *Engine) logLine(format string, args ...any) {
	e.runLogMu.Lock()
	defer e.runLogMu.Unlock()
	if e.runLog == nil {
		return
	}
	fmt.Fprintf(e.runLog, "%s %s\n", time.Now().UTC().Format(time.RFC3339Nano), fmt.Sprintf(format, args...))
}
