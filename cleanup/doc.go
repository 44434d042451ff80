// Package cleanup implements the cascading basket deletion coordinator. A
// deletion removes the basket definition, every ephemeral key of the basket's
// historical executions, the durable audit rows tied to those executions, the
// per-run log files on disk and any retained session state.
//
// Deletion is best effort: removing the definition is the primary operation
// and each cleanup sub-step runs independently. Failures are collected into
// the summary's error list instead of aborting the cascade, so a partially
// unavailable store never blocks the basket from disappearing.
package cleanup
