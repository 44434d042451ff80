// Package invoker executes a single agent against input data. It resolves the
// cached executable reference, optionally attaches a session-scoped state
// container, recovers panics into structured runtime errors and guarantees
// that every acquired execution scope is released exactly once on every exit
// path.
package invoker
