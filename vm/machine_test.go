package vm

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GhostKellz/ghostlang-sub000/alloc"
	"github.com/GhostKellz/ghostlang-sub000/bytecode"
	"github.com/GhostKellz/ghostlang-sub000/compiler"
	"github.com/GhostKellz/ghostlang-sub000/gherrors"
	"github.com/GhostKellz/ghostlang-sub000/security"
	"github.com/GhostKellz/ghostlang-sub000/value"
)

func newTestMachine(functions []*bytecode.FunctionInfo) *Machine {
	return New(
		alloc.New(0),
		security.New(false, false, false, nil, nil),
		NewGlobalStore(),
		NewGlobalStore(),
		functions,
	)
}

func runSource(t *testing.T, src string) (value.Value, *Machine, error) {
	t.Helper()
	script, err := compiler.Compile(src)
	require.NoError(t, err)
	m := newTestMachine(script.Functions)
	v, runErr := m.Execute(script.Instructions, script.Constants)
	return v, m, runErr
}

func TestMachine_Arithmetic(t *testing.T) {
	_, m, err := runSource(t, "var x = 3 + 4 * 2")
	require.NoError(t, err)
	v, ok := m.ScriptGlobals.Get("x")
	require.True(t, ok)
	assert.Equal(t, float64(11), v.AsNumber())
}

func TestMachine_LocalAndGlobalDoNotCollideInResolution(t *testing.T) {
	_, m, err := runSource(t, "local x = 1\nvar x = 2")
	require.NoError(t, err)
	// local x shadows within its own frame; the subsequent `var x` store
	// finds the named local first and updates it in place rather than
	// creating a second script global.
	_, hasGlobal := m.ScriptGlobals.Get("x")
	assert.False(t, hasGlobal)
}

func TestMachine_IfElse(t *testing.T) {
	_, m, err := runSource(t, `
if (1 < 2) {
  var result = "yes"
} else {
  var result = "no"
}
`)
	require.NoError(t, err)
	v, ok := m.ScriptGlobals.Get("result")
	require.True(t, ok)
	assert.Equal(t, "yes", v.AsString())
}

func TestMachine_WhileLoop(t *testing.T) {
	_, m, err := runSource(t, "var i = 0\nwhile (i < 5) { i = i + 1 }")
	require.NoError(t, err)
	v, _ := m.ScriptGlobals.Get("i")
	assert.Equal(t, float64(5), v.AsNumber())
}

func TestMachine_NumericForLoop(t *testing.T) {
	_, m, err := runSource(t, "var sum = 0\nfor i = 1, 5 do sum = sum + i end")
	require.NoError(t, err)
	v, _ := m.ScriptGlobals.Get("sum")
	assert.Equal(t, float64(15), v.AsNumber())
	// the loop variable itself remains inspectable after the loop ends.
	iv, ok := m.ScriptGlobals.Get("i")
	require.True(t, ok)
	assert.Equal(t, float64(5), iv.AsNumber())
}

func TestMachine_ForInPairs(t *testing.T) {
	_, m, err := runSource(t, `
var t = { a = 1, b = 2 }
var last = ""
for k, v in pairs(t) do
  last = k
end
`)
	require.NoError(t, err)
	v, ok := m.ScriptGlobals.Get("last")
	require.True(t, ok)
	assert.Contains(t, []string{"a", "b"}, v.AsString())
}

func TestMachine_FunctionCallReturnsValue(t *testing.T) {
	_, m, err := runSource(t, `
function add(a, b)
  return a + b
end
var result = add(2, 3)
`)
	require.NoError(t, err)
	v, ok := m.ScriptGlobals.Get("result")
	require.True(t, ok)
	assert.Equal(t, float64(5), v.AsNumber())
}

func TestMachine_TableAndArrayRoundTrip(t *testing.T) {
	_, m, err := runSource(t, `
var t = { a = 1 }
var arr = [10, 20, 30]
arr[0] = 99
var x = t.a
var y = arr[0]
var z = arr[1]
`)
	require.NoError(t, err)
	x, _ := m.ScriptGlobals.Get("x")
	y, _ := m.ScriptGlobals.Get("y")
	z, _ := m.ScriptGlobals.Get("z")
	assert.Equal(t, float64(1), x.AsNumber())
	assert.Equal(t, float64(99), y.AsNumber())
	assert.Equal(t, float64(20), z.AsNumber())
}

func TestMachine_UndefinedVariableIsError(t *testing.T) {
	_, _, err := runSource(t, "var x = y")
	require.Error(t, err)
	var ge *gherrors.GhostError
	require.True(t, errors.As(err, &ge))
	assert.ErrorIs(t, ge, gherrors.KindUndefinedVariable)
}

func TestMachine_DivisionByZeroProducesInf(t *testing.T) {
	_, m, err := runSource(t, "var x = 1 / 0")
	require.NoError(t, err)
	v, _ := m.ScriptGlobals.Get("x")
	assert.True(t, math.IsInf(v.AsNumber(), 1))
}

func TestMachine_TypeErrorOnArithmeticOverString(t *testing.T) {
	_, _, err := runSource(t, `var x = "a" - 1`)
	require.Error(t, err)
	var ge *gherrors.GhostError
	require.True(t, errors.As(err, &ge))
	assert.ErrorIs(t, ge, gherrors.KindTypeError)
}

func TestMachine_Concat(t *testing.T) {
	_, m, err := runSource(t, `var x = "count: " .. 5`)
	require.NoError(t, err)
	v, _ := m.ScriptGlobals.Get("x")
	assert.Equal(t, "count: 5", v.AsString())
}

func TestMachine_TopLevelBareExpressionIsScriptResult(t *testing.T) {
	v, _, err := runSource(t, "3 + 4 * 5 - 6 / 2")
	require.NoError(t, err)
	assert.Equal(t, float64(20), v.AsNumber())
}

func TestMachine_TrailingIdentifierExpressionIsScriptResult(t *testing.T) {
	v, _, err := runSource(t, "local x = 10\nvar y = 20\nx + y")
	require.NoError(t, err)
	assert.Equal(t, float64(30), v.AsNumber())
}

func TestMachine_ScriptWithNoTrailingExpressionReturnsNil(t *testing.T) {
	v, _, err := runSource(t, "var x = 1\nvar y = 2")
	require.NoError(t, err)
	assert.True(t, v.IsNil())
}

func TestMachine_ConcatAllocationsAreAccounted(t *testing.T) {
	script, err := compiler.Compile(`
var s = ""
var i = 0
while (i < 20) {
  s = s .. "0123456789"
  i = i + 1
}
`)
	require.NoError(t, err)
	m := New(alloc.New(200), security.New(false, false, false, nil, nil), NewGlobalStore(), NewGlobalStore(), script.Functions)
	_, runErr := m.Execute(script.Instructions, script.Constants)
	require.Error(t, runErr, "repeated concat must eventually exceed a small memory cap")
	var ge *gherrors.GhostError
	require.True(t, errors.As(runErr, &ge))
	assert.ErrorIs(t, ge, gherrors.KindMemoryLimitExceeded)
}

func TestMachine_MemoryLimitExceeded(t *testing.T) {
	script, err := compiler.Compile(`var t = { a = 1 }`)
	require.NoError(t, err)
	m := New(alloc.New(8), security.New(false, false, false, nil, nil), NewGlobalStore(), NewGlobalStore(), script.Functions)
	_, runErr := m.Execute(script.Instructions, script.Constants)
	require.Error(t, runErr)
	var ge *gherrors.GhostError
	require.True(t, errors.As(runErr, &ge))
	assert.ErrorIs(t, ge, gherrors.KindMemoryLimitExceeded)
}

func TestMachine_ExecutionTimeout(t *testing.T) {
	script, err := compiler.Compile("var i = 0\nwhile (i < 1000000) { i = i + 1 }")
	require.NoError(t, err)
	m := newTestMachine(script.Functions)
	m.Deadline = time.Now().Add(-time.Second) // already expired
	_, runErr := m.Execute(script.Instructions, script.Constants)
	require.Error(t, runErr)
	var ge *gherrors.GhostError
	require.True(t, errors.As(runErr, &ge))
	assert.ErrorIs(t, ge, gherrors.KindExecutionTimeout)
}

func TestMachine_InstructionLimitExceeded(t *testing.T) {
	script, err := compiler.Compile("var i = 0\nwhile (i < 1000000) { i = i + 1 }")
	require.NoError(t, err)
	m := newTestMachine(script.Functions)
	m.MaxInstructions = 10
	_, runErr := m.Execute(script.Instructions, script.Constants)
	require.Error(t, runErr)
	var ge *gherrors.GhostError
	require.True(t, errors.As(runErr, &ge))
	assert.ErrorIs(t, ge, gherrors.KindInstructionLimit)
}

func TestMachine_StackOverflowOnUnboundedRecursion(t *testing.T) {
	script, err := compiler.Compile(`
function recurse(n)
  return recurse(n + 1)
end
recurse(0)
`)
	require.NoError(t, err)
	m := newTestMachine(script.Functions)
	m.MaxCallDepth = 16
	_, runErr := m.Execute(script.Instructions, script.Constants)
	require.Error(t, runErr)
	var ge *gherrors.GhostError
	require.True(t, errors.As(runErr, &ge))
	assert.ErrorIs(t, ge, gherrors.KindStackOverflow)
}

func TestMachine_NativeFunctionRegisteredAsEngineGlobal(t *testing.T) {
	script, err := compiler.Compile(`var result = double(21)`)
	require.NoError(t, err)

	engineGlobals := NewGlobalStore()
	engineGlobals.Set("double", value.Native("double", func(ctx *value.NativeContext, args []value.Value) (value.Value, error) {
		return value.Number(args[0].AsNumber() * 2), nil
	}))

	m := New(alloc.New(0), security.New(false, false, false, nil, nil), engineGlobals, NewGlobalStore(), script.Functions)
	_, runErr := m.Execute(script.Instructions, script.Constants)
	require.NoError(t, runErr)
	v, ok := m.ScriptGlobals.Get("result")
	require.True(t, ok)
	assert.Equal(t, float64(42), v.AsNumber())
}

func TestMachine_ScriptGlobalsPersistAcrossRuns(t *testing.T) {
	script, err := compiler.Compile(`counter = counter + 1`)
	require.NoError(t, err)
	scriptGlobals := NewGlobalStore()
	scriptGlobals.Set("counter", value.Number(0))

	m := New(alloc.New(0), security.New(false, false, false, nil, nil), NewGlobalStore(), scriptGlobals, script.Functions)
	_, err = m.Execute(script.Instructions, script.Constants)
	require.NoError(t, err)
	_, err = m.Execute(script.Instructions, script.Constants)
	require.NoError(t, err)

	v, _ := scriptGlobals.Get("counter")
	assert.Equal(t, float64(2), v.AsNumber())
}

func TestMachine_RequireModuleStubYieldsNilWithoutLoader(t *testing.T) {
	script, err := compiler.Compile(`var m = require("config.gza")`)
	require.NoError(t, err)
	m := newTestMachine(script.Functions)
	_, err = m.Execute(script.Instructions, script.Constants)
	require.NoError(t, err)
	v, ok := m.ScriptGlobals.Get("m")
	require.True(t, ok)
	assert.True(t, v.IsNil())
}

func TestMachine_StringIntrinsics(t *testing.T) {
	m := newTestMachine(nil)
	fr := newFrame(nil, nil, "<test>")
	m.setReg(fr, 0, value.BorrowedString("Hello"))

	jumped, _, _, err := m.step(fr, bytecode.New(bytecode.OpStrUpper, 1, 0))
	require.NoError(t, err)
	assert.False(t, jumped)
	assert.Equal(t, "HELLO", fr.getReg(1).AsString())

	_, _, _, err = m.step(fr, bytecode.New(bytecode.OpStrLower, 2, 0))
	require.NoError(t, err)
	assert.Equal(t, "hello", fr.getReg(2).AsString())

	_, _, _, err = m.step(fr, bytecode.New(bytecode.OpStrLen, 3, 0))
	require.NoError(t, err)
	assert.Equal(t, float64(5), fr.getReg(3).AsNumber())
}
