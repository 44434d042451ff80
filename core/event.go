package core

import (
	"time"

	"github.com/google/uuid"
)

// EventKind names the three bus event categories consumed by external
// forwarders. Absence of a subscriber for a kind is not an error.
type EventKind string

const (
	// EventAgentRecommendation announces a step's normal completion along
	// with its output.
	EventAgentRecommendation EventKind = "agent-recommendation"
	// EventEscalation announces a user-visible step failure.
	EventEscalation EventKind = "escalation"
	// EventDependencyUpdate announces a state change relevant to downstream
	// consumers, such as an output feeding the next step.
	EventDependencyUpdate EventKind = "dependency-update"
)

// BusEvent is one basket- or step-lifecycle notification published on the
// event channel. After publication it must be treated as immutable.
type BusEvent struct {
	ID          string    `json:"id"`
	Kind        EventKind `json:"kind"`
	ExecutionID string    `json:"execution_id"`
	Basket      string    `json:"basket_name,omitempty"`
	Agent       string    `json:"agent_name,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Message     Payload   `json:"message,omitempty"`
}

// NewBusEvent creates an event of the given kind bound to an execution.
func NewBusEvent(kind EventKind, executionID string) BusEvent {
	return BusEvent{
		ID:          uuid.NewString(),
		Kind:        kind,
		ExecutionID: executionID,
		Timestamp:   time.Now().UTC(),
	}
}

// NewRecommendationEvent announces a successful step with its output.
func NewRecommendationEvent(executionID, basket, agent string, output Payload) BusEvent {
	e := NewBusEvent(EventAgentRecommendation, executionID)
	e.Basket = basket
	e.Agent = agent
	e.Message = Payload{"agent": agent, "output": output}
	return e
}

// NewEscalationEvent announces a failed step with the failure detail.
func NewEscalationEvent(executionID, basket, agent, detail string) BusEvent {
	e := NewBusEvent(EventEscalation, executionID)
	e.Basket = basket
	e.Agent = agent
	e.Message = Payload{"agent": agent, "error": detail}
	return e
}

// NewDependencyUpdateEvent announces that an agent's output is being fed to
// a downstream consumer.
func NewDependencyUpdateEvent(executionID, basket, agent string, delta Payload) BusEvent {
	e := NewBusEvent(EventDependencyUpdate, executionID)
	e.Basket = basket
	e.Agent = agent
	e.Message = Payload{"agent": agent, "delta": delta}
	return e
}
