package catalog

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/basketmesh/core"
)

const definitionsYAML = `
agents:
  - name: text_cleaner
    domain: text
    ref: builtin/text_cleaner
    inputs:
      - name: text
        type: string
        required: true
    example_input:
      text: "  raw input  "
  - name: summarizer
    domain: text
    ref: builtin/summarizer
    inputs:
      - name: text
        type: string
        required: true
      - name: max_words
        type: int
        required: false
  - name: risk_scorer
    domain: finance
    ref: builtin/risk_scorer
    inputs:
      - name: amount
        type: number
        required: true
baskets:
  - name: text_pipeline
    agents: [text_cleaner, summarizer]
    strategy: sequential
    description: clean then summarize
  - name: fanout
    agents: [text_cleaner, risk_scorer]
    strategy: parallel
    description: independent analysis
`

func echoFunc(_ context.Context, input core.Payload, _ *core.AgentState) (core.Payload, error) {
	return input, nil
}

func newLoadedCatalog(t *testing.T) *Catalog {
	t.Helper()
	funcs := NewFuncRegistry()
	funcs.Register("builtin/text_cleaner", echoFunc)
	funcs.Register("builtin/summarizer", echoFunc)
	funcs.Register("builtin/risk_scorer", echoFunc)

	c := New(func(o *Options) { o.Funcs = funcs })
	require.NoError(t, c.Load("test", strings.NewReader(definitionsYAML)))
	return c
}

func TestLoadResolvesReferences(t *testing.T) {
	c := newLoadedCatalog(t)

	def, ok := c.GetAgent("text_cleaner")
	require.True(t, ok)
	assert.Equal(t, "text", def.Domain)
	assert.NotNil(t, def.Func)
	assert.Equal(t, core.Payload{"text": "  raw input  "}, def.ExampleInput)

	_, ok = c.GetAgent("unknown")
	assert.False(t, ok)
}

func TestLoadMalformedKeepsPreviousSnapshot(t *testing.T) {
	c := newLoadedCatalog(t)

	err := c.Load("broken", strings.NewReader("agents: [not valid"))
	require.Error(t, err)

	var cfgErr *core.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "broken", cfgErr.Source)

	// Previous index must remain active.
	_, ok := c.GetAgent("text_cleaner")
	assert.True(t, ok)
	assert.Len(t, c.Baskets(), 2)
}

func TestLoadRejectsBasketWithUnknownAgent(t *testing.T) {
	c := New()
	bad := `
agents:
  - name: a
    ref: builtin/a
baskets:
  - name: broken
    agents: [a, ghost]
`
	err := c.Load("test", strings.NewReader(bad))
	var cfgErr *core.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestAgentsByDomainPreservesInsertionOrder(t *testing.T) {
	c := newLoadedCatalog(t)

	text := c.AgentsByDomain("text")
	require.Len(t, text, 2)
	assert.Equal(t, "text_cleaner", text[0].Name)
	assert.Equal(t, "summarizer", text[1].Name)

	assert.Empty(t, c.AgentsByDomain("nonexistent"))
}

func TestValidateCompatibility(t *testing.T) {
	c := newLoadedCatalog(t)

	assert.True(t, c.ValidateCompatibility("summarizer", core.Payload{"text": "x"}))
	assert.True(t, c.ValidateCompatibility("summarizer", core.Payload{"text": "x", "extra": 1}))
	assert.False(t, c.ValidateCompatibility("summarizer", core.Payload{"max_words": 10}))
	assert.False(t, c.ValidateCompatibility("unknown_agent", core.Payload{"text": "x"}))
}

func TestRegisterAndRemoveBasket(t *testing.T) {
	c := newLoadedCatalog(t)

	def := core.BasketDefinition{
		Name:     "scoring",
		Agents:   []string{"risk_scorer"},
		Strategy: core.StrategySequential,
	}
	require.NoError(t, c.RegisterBasket(def))

	got, ok := c.GetBasket("scoring")
	require.True(t, ok)
	assert.Equal(t, []string{"risk_scorer"}, got.Agents)

	// Round-trip: listing preserves agent order and strategy.
	baskets := c.Baskets()
	require.Len(t, baskets, 3)
	assert.Equal(t, "scoring", baskets[2].Name)
	assert.Equal(t, core.StrategySequential, baskets[2].Strategy)

	assert.True(t, c.RemoveBasket("scoring"))
	_, ok = c.GetBasket("scoring")
	assert.False(t, ok)

	// Removing a non-existent basket is a reported no-op.
	assert.False(t, c.RemoveBasket("scoring"))
}

func TestRegisterBasketRejectsUnknownAgent(t *testing.T) {
	c := newLoadedCatalog(t)

	err := c.RegisterBasket(core.BasketDefinition{
		Name:   "bad",
		Agents: []string{"text_cleaner", "ghost"},
	})
	require.ErrorIs(t, err, core.ErrAgentNotFound)
	_, ok := c.GetBasket("bad")
	assert.False(t, ok)
}

func TestConcurrentReadersDuringMutation(t *testing.T) {
	c := newLoadedCatalog(t)

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				// Readers must always see a complete snapshot.
				for _, b := range c.Baskets() {
					assert.NotEmpty(t, b.Name)
					assert.NotEmpty(t, b.Agents)
				}
				c.GetAgent("text_cleaner")
			}
		}()
	}

	for i := 0; i < 200; i++ {
		def := core.BasketDefinition{Name: "churn", Agents: []string{"text_cleaner"}}
		require.NoError(t, c.RegisterBasket(def))
		c.RemoveBasket("churn")
	}
	close(stop)
	wg.Wait()
}

func TestFuncRegistry(t *testing.T) {
	r := NewFuncRegistry()
	_, ok := r.Resolve("builtin/x")
	assert.False(t, ok)

	r.Register("builtin/x", echoFunc)
	fn, ok := r.Resolve("builtin/x")
	require.True(t, ok)

	out, err := fn(context.Background(), core.Payload{"k": "v"}, nil)
	require.NoError(t, err)
	assert.Equal(t, core.Payload{"k": "v"}, out)
	assert.Equal(t, []string{"builtin/x"}, r.Refs())
}
