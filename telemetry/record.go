package telemetry

import (
	"fmt"
	"time"

	"github.com/hupe1980/basketmesh/core"
)

// Record is one logged observation of a step's execution. Records are
// append-only; read paths filter by execution id or agent name.
type Record struct {
	ExecutionID string       `json:"execution_id"`
	Agent       string       `json:"agent_name"`
	Step        int          `json:"step_index"`
	Level       string       `json:"level"`
	Timestamp   time.Time    `json:"timestamp"`
	Payload     core.Payload `json:"payload,omitempty"`
}

// Key helpers producing the ephemeral store namespaces. Concurrent runs
// never collide: every per-run key embeds the execution identifier.

// ExecutionLogsKey is the list of log records for one execution.
func ExecutionLogsKey(executionID string) string {
	return fmt.Sprintf("execution:%s:logs", executionID)
}

// OutputKey holds an agent's output within one execution.
func OutputKey(executionID, agent string) string {
	return fmt.Sprintf("execution:%s:outputs:%s", executionID, agent)
}

// AgentLogsKey is the cross-execution log list for one agent.
func AgentLogsKey(agent string) string {
	return fmt.Sprintf("agent:%s:logs", agent)
}

// AgentStateKey holds an agent's session state for one execution.
func AgentStateKey(agent, executionID string) string {
	return fmt.Sprintf("agent:%s:state:%s", agent, executionID)
}

// BasketExecutionsKey lists the execution identifiers historically tied to a
// basket name.
func BasketExecutionsKey(basket string) string {
	return fmt.Sprintf("basket:%s:executions", basket)
}

// BasketKeyPrefix is the prefix of all per-basket ephemeral keys.
func BasketKeyPrefix(basket string) string {
	return fmt.Sprintf("basket:%s:", basket)
}

// DeletionsKey records structured basket deletion events.
const DeletionsKey = "system:basket_deletions"
