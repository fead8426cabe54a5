package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GhostKellz/ghostlang-sub000/value"
)

func TestEngine_RunSimpleScript(t *testing.T) {
	e := Create(DefaultConfig())
	script, err := e.LoadScript("var x = 1 + 2")
	require.NoError(t, err)

	_, err = script.Run(time.Second)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, script.State())

	v, ok := script.GetGlobal("x")
	require.True(t, ok)
	assert.Equal(t, float64(3), v.AsNumber())
}

func TestEngine_GlobalsPersistAcrossRuns(t *testing.T) {
	e := Create(DefaultConfig())
	script, err := e.LoadScript("counter = counter + 1")
	require.NoError(t, err)
	script.SetGlobal("counter", value.Number(0))

	_, err = script.Run(time.Second)
	require.NoError(t, err)
	_, err = script.Run(time.Second)
	require.NoError(t, err)

	v, ok := script.GetGlobal("counter")
	require.True(t, ok)
	assert.Equal(t, float64(2), v.AsNumber())
}

func TestEngine_RegisterFunctionIsVisibleToScript(t *testing.T) {
	e := Create(DefaultConfig())
	e.RegisterFunction("double", func(ctx *value.NativeContext, args []value.Value) (value.Value, error) {
		return value.Number(args[0].AsNumber() * 2), nil
	})

	script, err := e.LoadScript("var result = double(21)")
	require.NoError(t, err)
	_, err = script.Run(time.Second)
	require.NoError(t, err)

	v, ok := script.GetGlobal("result")
	require.True(t, ok)
	assert.Equal(t, float64(42), v.AsNumber())
}

func TestEngine_RegisterModuleIsVisibleToScript(t *testing.T) {
	e := Create(DefaultConfig())
	a := e.alloc
	module, err := value.NewTable(a)
	require.NoError(t, err)
	module.Set("pi", value.Number(3.14159))
	e.RegisterModule("math", module)

	script, err := e.LoadScript("var x = math.pi")
	require.NoError(t, err)
	_, err = script.Run(time.Second)
	require.NoError(t, err)

	v, ok := script.GetGlobal("x")
	require.True(t, ok)
	assert.Equal(t, 3.14159, v.AsNumber())
}

func TestEngine_CallInvokesFunctionDefinedByPriorRun(t *testing.T) {
	e := Create(DefaultConfig())
	script, err := e.LoadScript(`
function add(a, b)
  return a + b
end
`)
	require.NoError(t, err)
	_, err = script.Run(time.Second)
	require.NoError(t, err)

	v, err := script.Call("add", value.Number(4), value.Number(5))
	require.NoError(t, err)
	assert.Equal(t, float64(9), v.AsNumber())
}

func TestEngine_FailedScriptSetsStateFailed(t *testing.T) {
	e := Create(DefaultConfig())
	script, err := e.LoadScript("var x = undefinedVar")
	require.NoError(t, err)

	_, err = script.Run(time.Second)
	require.Error(t, err)
	assert.Equal(t, StateFailed, script.State())
}

func TestEngine_TraceFuncIsCalledPerInstruction(t *testing.T) {
	e := Create(DefaultConfig())
	var events []TraceEvent
	e.TraceFunc = func(ev TraceEvent) {
		events = append(events, ev)
	}

	script, err := e.LoadScript("var x = 1\nvar y = 2")
	require.NoError(t, err)
	_, err = script.Run(time.Second)
	require.NoError(t, err)

	assert.NotEmpty(t, events)
}

func TestLoadConfig_MissingFileIsError(t *testing.T) {
	_, err := LoadConfig("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestDumpGlobals_RendersBoundNames(t *testing.T) {
	e := Create(DefaultConfig())
	script, err := e.LoadScript("var x = 1")
	require.NoError(t, err)
	_, err = script.Run(time.Second)
	require.NoError(t, err)

	dump := script.DumpGlobals()
	assert.Contains(t, dump, "x")
}
