// Package catalog maintains the in-memory index of agent and basket
// definitions. The index is an immutable snapshot swapped atomically on
// load and on basket mutations, so concurrent readers always observe a
// complete, consistent view and never a half-loaded one.
//
// Agent executable references are resolved against a FuncRegistry at load
// time and cached on the definition, keeping string lookups out of the
// execution hot path.
package catalog
