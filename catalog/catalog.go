package catalog

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/basketmesh/core"
	"github.com/hupe1980/basketmesh/logging"
)

// definitionsFile is the YAML shape of a catalog configuration source.
type definitionsFile struct {
	Agents  []core.AgentDefinition  `yaml:"agents"`
	Baskets []core.BasketDefinition `yaml:"baskets"`
}

// snapshot is one immutable generation of the catalog index. Lookups read a
// snapshot without locking; mutations build a new snapshot and swap the
// pointer.
type snapshot struct {
	agents      map[string]*core.AgentDefinition
	agentOrder  []string
	baskets     map[string]core.BasketDefinition
	basketOrder []string
}

func emptySnapshot() *snapshot {
	return &snapshot{
		agents:  map[string]*core.AgentDefinition{},
		baskets: map[string]core.BasketDefinition{},
	}
}

// clone copies the snapshot maps so a mutation can diverge safely. Agent
// definitions themselves are immutable and shared between generations.
func (s *snapshot) clone() *snapshot {
	cp := &snapshot{
		agents:      make(map[string]*core.AgentDefinition, len(s.agents)),
		agentOrder:  append([]string(nil), s.agentOrder...),
		baskets:     make(map[string]core.BasketDefinition, len(s.baskets)),
		basketOrder: append([]string(nil), s.basketOrder...),
	}
	for k, v := range s.agents {
		cp.agents[k] = v
	}
	for k, v := range s.baskets {
		cp.baskets[k] = v
	}
	return cp
}

// Catalog is the read-mostly index of agent and basket definitions. Reads go
// through an atomic snapshot pointer and are safe during concurrent loads;
// writers serialize on a mutex and publish complete snapshots only.
type Catalog struct {
	snap   atomic.Pointer[snapshot]
	writeM sync.Mutex
	funcs  *FuncRegistry
	logger logging.Logger
}

// Options configures a Catalog instance.
type Options struct {
	// Funcs is the registry used to resolve agent executable references.
	// Defaults to an empty registry.
	Funcs *FuncRegistry

	// Logger defaults to NoOpLogger.
	Logger logging.Logger
}

// New creates an empty catalog with optional overrides.
func New(optFns ...func(o *Options)) *Catalog {
	opts := Options{
		Funcs:  NewFuncRegistry(),
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	c := &Catalog{funcs: opts.Funcs, logger: opts.Logger}
	c.snap.Store(emptySnapshot())
	return c
}

// Funcs returns the function registry used for reference resolution.
func (c *Catalog) Funcs() *FuncRegistry { return c.funcs }

// Load parses agent and basket definitions from the reader and replaces the
// index atomically. On any parse or validation failure the previous snapshot
// remains active and a ConfigError is returned.
func (c *Catalog) Load(source string, r io.Reader) error {
	var file definitionsFile
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&file); err != nil {
		return &core.ConfigError{Source: source, Err: err}
	}

	next := emptySnapshot()
	for i := range file.Agents {
		def := file.Agents[i]
		if def.Name == "" {
			return &core.ConfigError{Source: source, Err: fmt.Errorf("agent at index %d has no name", i)}
		}
		if _, dup := next.agents[def.Name]; dup {
			return &core.ConfigError{Source: source, Err: fmt.Errorf("duplicate agent name %q", def.Name)}
		}
		if fn, ok := c.funcs.Resolve(def.Ref); ok {
			def.Func = fn
		} else {
			c.logger.Warn("agent reference unresolved at load time", "agent", def.Name, "ref", def.Ref)
		}
		next.agents[def.Name] = &def
		next.agentOrder = append(next.agentOrder, def.Name)
	}

	for i := range file.Baskets {
		def := file.Baskets[i].Clone()
		if err := def.Validate(); err != nil {
			return &core.ConfigError{Source: source, Err: err}
		}
		for _, agent := range def.Agents {
			if _, ok := next.agents[agent]; !ok {
				return &core.ConfigError{Source: source, Err: fmt.Errorf("basket %q references unknown agent %q", def.Name, agent)}
			}
		}
		if _, dup := next.baskets[def.Name]; dup {
			return &core.ConfigError{Source: source, Err: fmt.Errorf("duplicate basket name %q", def.Name)}
		}
		next.baskets[def.Name] = def
		next.basketOrder = append(next.basketOrder, def.Name)
	}

	c.writeM.Lock()
	c.snap.Store(next)
	c.writeM.Unlock()

	c.logger.Info("catalog loaded", "source", source, "agents", len(next.agents), "baskets", len(next.baskets))
	return nil
}

// LoadFile loads definitions from a YAML file on disk.
func (c *Catalog) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return &core.ConfigError{Source: path, Err: err}
	}
	defer f.Close()
	return c.Load(path, f)
}

// GetAgent looks up an agent definition by unique name. Absence is a normal,
// non-exceptional result signalled by the boolean.
func (c *Catalog) GetAgent(name string) (*core.AgentDefinition, bool) {
	def, ok := c.snap.Load().agents[name]
	return def, ok
}

// Agents returns all agent definitions in insertion order.
func (c *Catalog) Agents() []*core.AgentDefinition {
	s := c.snap.Load()
	out := make([]*core.AgentDefinition, 0, len(s.agentOrder))
	for _, name := range s.agentOrder {
		out = append(out, s.agents[name])
	}
	return out
}

// AgentsByDomain filters the current index by domain tag, preserving
// insertion order.
func (c *Catalog) AgentsByDomain(domain string) []*core.AgentDefinition {
	s := c.snap.Load()
	var out []*core.AgentDefinition
	for _, name := range s.agentOrder {
		if def := s.agents[name]; def.Domain == domain {
			out = append(out, def)
		}
	}
	return out
}

// ValidateCompatibility checks that every field the agent declares as
// required is present in the input. Unknown extra fields are permitted.
// It returns false, not an error, when the agent is unknown or a required
// field is missing.
func (c *Catalog) ValidateCompatibility(agentName string, input core.Payload) bool {
	def, ok := c.GetAgent(agentName)
	if !ok {
		return false
	}
	return len(def.MissingFields(input)) == 0
}

// GetBasket looks up a basket definition by name.
func (c *Catalog) GetBasket(name string) (core.BasketDefinition, bool) {
	def, ok := c.snap.Load().baskets[name]
	if !ok {
		return core.BasketDefinition{}, false
	}
	return def.Clone(), true
}

// Baskets returns all basket definitions in insertion order.
func (c *Catalog) Baskets() []core.BasketDefinition {
	s := c.snap.Load()
	out := make([]core.BasketDefinition, 0, len(s.basketOrder))
	for _, name := range s.basketOrder {
		out = append(out, s.baskets[name].Clone())
	}
	return out
}

// RegisterBasket validates the definition against the current agent index
// and adds it to the basket sub-index. Registering an existing name replaces
// the previous definition in place.
func (c *Catalog) RegisterBasket(def core.BasketDefinition) error {
	def = def.Clone()
	if err := def.Validate(); err != nil {
		return err
	}

	c.writeM.Lock()
	defer c.writeM.Unlock()

	cur := c.snap.Load()
	for _, agent := range def.Agents {
		if _, ok := cur.agents[agent]; !ok {
			return fmt.Errorf("basket %q: %w: %s", def.Name, core.ErrAgentNotFound, agent)
		}
	}

	next := cur.clone()
	if _, exists := next.baskets[def.Name]; !exists {
		next.basketOrder = append(next.basketOrder, def.Name)
	}
	next.baskets[def.Name] = def
	c.snap.Store(next)

	c.logger.Info("basket registered", "basket", def.Name, "strategy", string(def.Strategy))
	return nil
}

// RemoveBasket removes the named basket from the sub-index. Removing a
// non-existent name is a no-op reporting false to the caller.
func (c *Catalog) RemoveBasket(name string) bool {
	c.writeM.Lock()
	defer c.writeM.Unlock()

	cur := c.snap.Load()
	if _, ok := cur.baskets[name]; !ok {
		return false
	}

	next := cur.clone()
	delete(next.baskets, name)
	for i, n := range next.basketOrder {
		if n == name {
			next.basketOrder = append(next.basketOrder[:i], next.basketOrder[i+1:]...)
			break
		}
	}
	c.snap.Store(next)

	c.logger.Info("basket removed", "basket", name)
	return true
}
