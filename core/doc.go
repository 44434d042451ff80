// Package core defines the shared domain model of basketmesh: agent and
// basket definitions, execution records, bus events and the error taxonomy
// used across the catalog, invoker, engine and telemetry packages.
//
// The package is intentionally dependency-light so that every other package
// can import it without cycles. Behavior lives in the packages that operate
// on these types; core only carries data, small invariant-preserving methods
// and constructors.
package core
