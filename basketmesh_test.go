package basketmesh

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/basketmesh/core"
	"github.com/hupe1980/basketmesh/telemetry"
)

const meshDefinitions = `
agents:
  - name: normalizer
    domain: text
    ref: builtin/normalizer
    inputs:
      - name: text
        required: true
    example_input:
      text: "hello world"
  - name: counter
    domain: text
    ref: builtin/counter
baskets:
  - name: text_pipeline
    agents: [normalizer, counter]
    strategy: sequential
`

func newTestMesh(t *testing.T, optFns ...func(o *Options)) *Mesh {
	t.Helper()

	m := New(optFns...)
	m.RegisterFunc("builtin/normalizer", func(_ context.Context, input core.Payload, _ *core.AgentState) (core.Payload, error) {
		text, _ := input["text"].(string)
		return core.Payload{"text": strings.ToUpper(text)}, nil
	})
	m.RegisterFunc("builtin/counter", func(_ context.Context, input core.Payload, state *core.AgentState) (core.Payload, error) {
		out := input.Clone()
		if state != nil {
			n, _ := state.Get("calls")
			count, _ := n.(int)
			state.Set("calls", count+1)
			out["calls"] = count + 1
		}
		return out, nil
	})
	require.NoError(t, m.Catalog().Load("test", strings.NewReader(meshDefinitions)))
	return m
}

func TestRunAgent(t *testing.T) {
	m := newTestMesh(t)
	defer m.Close()

	run, err := m.RunAgent(context.Background(), "normalizer", core.Payload{"text": "go"})
	require.NoError(t, err)
	assert.Equal(t, "GO", run.Output["text"])
	assert.NotEmpty(t, run.ExecutionID)

	recs, err := m.ExecutionLogs(context.Background(), run.ExecutionID, 10)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestRunAgentRefusesIncompatibleInput(t *testing.T) {
	m := newTestMesh(t)
	defer m.Close()

	_, err := m.RunAgent(context.Background(), "normalizer", core.Payload{"body": "x"})
	var compErr *core.CompatibilityError
	require.ErrorAs(t, err, &compErr)
	assert.Equal(t, []string{"text"}, compErr.Missing)
}

func TestRunAgentUnknown(t *testing.T) {
	m := newTestMesh(t)
	defer m.Close()

	_, err := m.RunAgent(context.Background(), "nope", core.Payload{})
	assert.ErrorIs(t, err, core.ErrAgentNotFound)
}

func TestRunAgentStatefulSession(t *testing.T) {
	m := newTestMesh(t)
	defer m.Close()

	opt := func(o *RunAgentOptions) {
		o.Stateful = true
		o.SessionID = "session-1"
	}
	run1, err := m.RunAgent(context.Background(), "counter", core.Payload{}, opt)
	require.NoError(t, err)
	run2, err := m.RunAgent(context.Background(), "counter", core.Payload{}, opt)
	require.NoError(t, err)

	assert.Equal(t, 1, run1.Output["calls"])
	assert.Equal(t, 2, run2.Output["calls"])
}

func TestRunBasket(t *testing.T) {
	m := newTestMesh(t)
	defer m.Close()

	res, err := m.RunBasket(context.Background(), "text_pipeline", core.Payload{"text": "hi"})
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, res.Status)
	require.Len(t, res.Steps, 2)
	assert.Equal(t, "HI", res.Steps[1].Output["text"])
}

func TestRunBasketInputFallback(t *testing.T) {
	m := newTestMesh(t)
	defer m.Close()

	// No payload given: the first agent's example input seeds the run.
	res, err := m.RunBasket(context.Background(), "text_pipeline", nil)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, res.Status)
	assert.Equal(t, "HELLO WORLD", res.Steps[0].Output["text"])
}

func TestRunBasketRefusesIncompatibleSeed(t *testing.T) {
	m := newTestMesh(t)
	defer m.Close()

	// The seed lacks the first agent's required field; nothing executes.
	_, err := m.RunBasket(context.Background(), "text_pipeline", core.Payload{"body": "x"})
	var compErr *core.CompatibilityError
	require.ErrorAs(t, err, &compErr)
	assert.Equal(t, "normalizer", compErr.Agent)
}

func TestRunBasketUnknown(t *testing.T) {
	m := newTestMesh(t)
	defer m.Close()

	_, err := m.RunBasket(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, core.ErrBasketNotFound)
}

func TestCreateAndDeleteBasket(t *testing.T) {
	ctx := context.Background()
	audit, err := telemetry.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer audit.Close()

	m := newTestMesh(t, func(o *Options) { o.Audit = audit })
	defer m.Close()

	def := core.BasketDefinition{
		Name:     "adhoc",
		Agents:   []string{"counter"},
		Strategy: core.StrategyParallel,
	}
	require.NoError(t, m.CreateBasket(ctx, def))

	_, ok := m.Catalog().GetBasket("adhoc")
	assert.True(t, ok)
	_, found, err := audit.GetBasket(ctx, "adhoc")
	require.NoError(t, err)
	assert.True(t, found)

	res, err := m.RunBasket(ctx, "adhoc", core.Payload{"x": 1})
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, res.Status)

	sum, err := m.DeleteBasket(ctx, "adhoc")
	require.NoError(t, err)
	assert.Equal(t, "adhoc", sum.BasketName)

	_, ok = m.Catalog().GetBasket("adhoc")
	assert.False(t, ok)
	_, err = m.RunBasket(ctx, "adhoc", nil)
	assert.ErrorIs(t, err, core.ErrBasketNotFound)
}

func TestCreateBasketUnknownAgent(t *testing.T) {
	m := newTestMesh(t)
	defer m.Close()

	err := m.CreateBasket(context.Background(), core.BasketDefinition{
		Name:     "broken",
		Agents:   []string{"ghost"},
		Strategy: core.StrategySequential,
	})
	assert.ErrorIs(t, err, core.ErrAgentNotFound)
}

func TestAgentsByDomainFilter(t *testing.T) {
	m := newTestMesh(t)
	defer m.Close()

	assert.Len(t, m.Agents(""), 2)
	assert.Len(t, m.Agents("text"), 2)
	assert.Empty(t, m.Agents("finance"))
}

func TestHealth(t *testing.T) {
	m := newTestMesh(t)
	defer m.Close()

	ephemeral, durable := m.Health(context.Background())
	assert.True(t, ephemeral)
	assert.False(t, durable, "no durable store configured")
}
