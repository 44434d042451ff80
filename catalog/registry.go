package catalog

import (
	"sync"

	"github.com/hupe1980/basketmesh/core"
)

// FuncRegistry maps executable references to agent functions. Agent
// implementations register themselves here (typically at program start);
// the catalog resolves definitions against it during Load.
//
// The registry is safe for concurrent use, though registration is expected
// to happen before catalog loading in practice.
type FuncRegistry struct {
	mu    sync.RWMutex
	funcs map[string]core.AgentFunc
}

// NewFuncRegistry returns an empty registry.
func NewFuncRegistry() *FuncRegistry {
	return &FuncRegistry{funcs: make(map[string]core.AgentFunc)}
}

// Register binds an executable reference to a function. Registering the same
// reference twice overwrites the previous binding.
func (r *FuncRegistry) Register(ref string, fn core.AgentFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[ref] = fn
}

// Resolve returns the function bound to ref, if any.
func (r *FuncRegistry) Resolve(ref string) (core.AgentFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[ref]
	return fn, ok
}

// Refs returns the registered references. The slice is a snapshot safe for
// caller mutation.
func (r *FuncRegistry) Refs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	refs := make([]string, 0, len(r.funcs))
	for ref := range r.funcs {
		refs = append(refs, ref)
	}
	return refs
}
