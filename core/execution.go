package core

import (
	"time"

	"github.com/google/uuid"
)

// Status is the terminal (or in-flight) state of an execution.
type Status string

const (
	// StatusCreated means the execution identifier has been minted but no
	// step has been dispatched yet.
	StatusCreated Status = "created"
	// StatusRunning means step processing has begun.
	StatusRunning Status = "running"
	// StatusCompleted means every dispatched step succeeded.
	StatusCompleted Status = "completed"
	// StatusPartial means at least one step failed while others succeeded
	// (parallel strategy only).
	StatusPartial Status = "partial"
	// StatusFailed means the strategy's abort condition fired, or every
	// parallel step failed.
	StatusFailed Status = "failed"
)

// Terminal reports whether the status is one of the three end states.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusPartial || s == StatusFailed
}

// StepStatus classifies one step result within an execution.
type StepStatus string

const (
	// StepOK marks a step that ran and returned an output.
	StepOK StepStatus = "ok"
	// StepError marks a step whose invocation failed.
	StepError StepStatus = "error"
	// StepSkipped marks a conditional step whose condition evaluated false.
	StepSkipped StepStatus = "skipped"
)

// StepResult records the outcome of a single step: the agent that ran, its
// output or error, and how long the invocation took. Skipped steps carry
// neither output nor error.
type StepResult struct {
	Agent    string        `json:"agent"`
	Index    int           `json:"index"`
	Status   StepStatus    `json:"status"`
	Output   Payload       `json:"output,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// NewExecutionID mints a globally unique execution identifier.
func NewExecutionID() string { return uuid.NewString() }

// Execution is the ephemeral run record owned exclusively by the engine run
// that created it. It is never mutated by two goroutines: the parallel
// strategy collects step results into per-step slots and appends them in
// definition order before the record is read by anyone else.
type Execution struct {
	ID        string       `json:"execution_id"`
	Basket    string       `json:"basket_name"`
	Strategy  Strategy     `json:"strategy"`
	StartedAt time.Time    `json:"started_at"`
	Steps     []StepResult `json:"steps"`
	Status    Status       `json:"status"`
}

// NewExecution creates an execution record in the created state with a fresh
// unique identifier.
func NewExecution(basket string, strategy Strategy) *Execution {
	return &Execution{
		ID:        NewExecutionID(),
		Basket:    basket,
		Strategy:  strategy,
		StartedAt: time.Now().UTC(),
		Status:    StatusCreated,
	}
}

// AppendStep records a step result, preserving basket-definition order.
func (e *Execution) AppendStep(r StepResult) { e.Steps = append(e.Steps, r) }

// CompletedOutputs returns the outputs of all steps that ran successfully,
// in step order.
func (e *Execution) CompletedOutputs() []Payload {
	var outs []Payload
	for _, s := range e.Steps {
		if s.Status == StepOK {
			outs = append(outs, s.Output)
		}
	}
	return outs
}

// Metadata describes a finished (or refused) basket execution for callers
// correlating results against telemetry.
type Metadata struct {
	ExecutionID    string   `json:"execution_id"`
	BasketName     string   `json:"basket_name"`
	AgentsExecuted []string `json:"agents_executed"`
	Strategy       Strategy `json:"strategy"`
}

// Result is the aggregate returned to the caller of a basket run: every step
// result in definition order, the terminal status, and execution metadata.
type Result struct {
	Status   Status       `json:"status"`
	Steps    []StepResult `json:"steps"`
	Metadata Metadata     `json:"execution_metadata"`
}
