// Package telemetry implements the dual-write telemetry sink: a fast
// ephemeral key-value store for per-execution step logs and outputs, and a
// durable SQLite-backed audit store for long-term records.
//
// Ephemeral writes are synchronous; durable writes are queued and drained by
// a dedicated goroutine so the execution path never blocks on durable-store
// latency. When the ephemeral store is unavailable, reads and writes degrade
// to the durable store (or to a logged warning) rather than failing a run;
// telemetry is auxiliary data, never a correctness dependency of execution.
//
// Key layout mirrors the execution namespaces:
//
//	execution:{id}:logs
//	execution:{id}:outputs:{agent}
//	agent:{name}:logs
//	agent:{name}:state:{id}
//	basket:{name}:executions
//	system:basket_deletions
package telemetry
