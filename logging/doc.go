// Package logging provides a minimal logging interface and adapters for basketmesh.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the catalog, engine and telemetry stores use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - NoOpLogger for silent operation (testing, minimal setups)
//   - CoreLogger with basket/execution context and domain helpers
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	mesh := basketmesh.New(func(o *basketmesh.Options) {
//		o.Logger = logger
//		o.RunLogger = logger
//	})
//
// The design intentionally keeps the interface minimal to avoid vendor lock-in
// while supporting structured logging where available.
package logging
