// Package engine implements the basket execution engine: given a basket
// definition and initial input it drives the agent invoker through each step
// according to the basket's execution strategy, emits step-lifecycle events
// on the event channel and writes telemetry for every step.
//
// Each run follows the state machine
//
//	created -> running -> {completed, partial, failed}
//
// The unique execution identifier is minted when the engine is constructed,
// before any telemetry or event emission occurs. An Engine instance drives
// exactly one run and is owned exclusively by that run; concurrent basket
// executions use separate Engine instances and share no locks.
package engine
