package invoker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/basketmesh/core"
	"github.com/hupe1980/basketmesh/internal/testutil"
)

func upperDef() *core.AgentDefinition {
	return &core.AgentDefinition{
		Name:   "upper",
		Domain: "text",
		Ref:    "builtin/upper",
		Func: func(_ context.Context, input core.Payload, _ *core.AgentState) (core.Payload, error) {
			text, _ := input["text"].(string)
			return core.Payload{"text": text, "upper": true}, nil
		},
	}
}

func TestRunStateless(t *testing.T) {
	iv := New()
	res := iv.Run(context.Background(), upperDef(), core.Payload{"text": "hi"}, false, "")

	require.True(t, res.OK())
	assert.Equal(t, "upper", res.Agent)
	assert.Equal(t, true, res.Output["upper"])
	assert.Empty(t, res.ErrorMessage())

	// Stateless runs never create a state container.
	_, ok := iv.State("upper", "")
	assert.False(t, ok)
}

func TestRunStatefulPersistsAcrossCalls(t *testing.T) {
	def := &core.AgentDefinition{
		Name: "counter",
		Ref:  "builtin/counter",
		Func: func(_ context.Context, _ core.Payload, state *core.AgentState) (core.Payload, error) {
			n := 0
			if v, ok := state.Get("count"); ok {
				n = v.(int)
			}
			n++
			state.Set("count", n)
			return core.Payload{"count": n}, nil
		},
	}

	iv := New()
	sessionID := core.NewExecutionID()

	for want := 1; want <= 3; want++ {
		res := iv.Run(context.Background(), def, core.Payload{}, true, sessionID)
		require.True(t, res.OK())
		assert.Equal(t, want, res.Output["count"])
	}

	// A different session starts from a fresh container.
	res := iv.Run(context.Background(), def, core.Payload{}, true, core.NewExecutionID())
	require.True(t, res.OK())
	assert.Equal(t, 1, res.Output["count"])
}

func TestRunUnresolvedReference(t *testing.T) {
	def := testutil.NewAgentBuilder("ghost").Func(nil).Build()
	iv := New()

	res := iv.Run(context.Background(), &def, core.Payload{"x": 1}, false, "")
	require.False(t, res.OK())

	var resErr *core.ModuleResolutionError
	require.ErrorAs(t, res.Err, &resErr)
	assert.Equal(t, "ghost", resErr.Agent)
	assert.Zero(t, res.Duration)
}

func TestRunAgentError(t *testing.T) {
	def := testutil.NewAgentBuilder("flaky").Func(testutil.FailFunc("backend unavailable")).Build()

	iv := New()
	res := iv.Run(context.Background(), &def, core.Payload{}, false, "")

	require.False(t, res.OK())
	var runtimeErr *core.AgentRuntimeError
	require.ErrorAs(t, res.Err, &runtimeErr)
	assert.Contains(t, res.Err.Error(), "backend unavailable")
	assert.Nil(t, res.Output)
}

func TestRunRecoversPanic(t *testing.T) {
	def := &core.AgentDefinition{
		Name: "crasher",
		Ref:  "builtin/crasher",
		Func: func(_ context.Context, _ core.Payload, _ *core.AgentState) (core.Payload, error) {
			panic("index out of range")
		},
	}

	iv := New()

	require.NotPanics(t, func() {
		res := iv.Run(context.Background(), def, core.Payload{}, false, "")
		require.False(t, res.OK())

		var runtimeErr *core.AgentRuntimeError
		require.ErrorAs(t, res.Err, &runtimeErr)
		assert.Contains(t, runtimeErr.Error(), "index out of range")
	})
}

func TestScopeReleaseRunsExactlyOnce(t *testing.T) {
	released := 0
	scope := &execScope{onClose: func() { released++ }}

	scope.release()
	scope.release()
	scope.release()

	assert.Equal(t, 1, released)
}

func TestScopeReleasedOnPanicPath(t *testing.T) {
	released := 0
	def := &core.AgentDefinition{
		Name: "crasher",
		Ref:  "builtin/crasher",
		Func: func(_ context.Context, _ core.Payload, _ *core.AgentState) (core.Payload, error) {
			panic("boom")
		},
	}

	iv := New()
	// Exercise the stateful path so a scope with a close hook is acquired.
	sessionID := "session-1"
	st := iv.attachState(def.Name, sessionID)
	require.NotNil(t, st)

	scope := &execScope{state: st, onClose: func() { released++ }}
	func() {
		defer scope.release()
		_, _ = iv.invoke(context.Background(), def, core.Payload{}, scope.state)
	}()

	assert.Equal(t, 1, released)
}

func TestPurgeSession(t *testing.T) {
	iv := New()
	session := "exec-1"

	iv.attachState("a", session)
	iv.attachState("b", session)
	iv.attachState("a", "other")

	removed := iv.PurgeSession([]string{"a", "b", "c"}, session)
	assert.Equal(t, 2, removed)

	_, ok := iv.State("a", session)
	assert.False(t, ok)
	_, ok = iv.State("a", "other")
	assert.True(t, ok)
}
