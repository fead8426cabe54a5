package stdlib

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GhostKellz/ghostlang-sub000/alloc"
	"github.com/GhostKellz/ghostlang-sub000/value"
)

type fakeRegistrar struct {
	fns map[string]func(ctx *value.NativeContext, args []value.Value) (value.Value, error)
}

func newFakeRegistrar() *fakeRegistrar {
	return &fakeRegistrar{fns: make(map[string]func(ctx *value.NativeContext, args []value.Value) (value.Value, error))}
}

func (r *fakeRegistrar) RegisterFunction(name string, fn func(ctx *value.NativeContext, args []value.Value) (value.Value, error)) {
	r.fns[name] = fn
}

func TestRegister_InstallsExpectedFunctions(t *testing.T) {
	r := newFakeRegistrar()
	Register(r)
	for _, name := range []string{"tostring", "tonumber", "strlen", "substr", "str_upper", "str_lower", "str_find", "gsub", "array_get", "array_set", "array_len", "table_keys"} {
		assert.Contains(t, r.fns, name)
	}
}

func TestToString_Number(t *testing.T) {
	v, err := toStringFn(nil, []value.Value{value.Number(42)})
	require.NoError(t, err)
	assert.Equal(t, "42", v.AsString())
}

func TestToNumber_ValidAndInvalid(t *testing.T) {
	v, err := toNumberFn(nil, []value.Value{value.BorrowedString("3.5")})
	require.NoError(t, err)
	assert.Equal(t, 3.5, v.AsNumber())

	v, err = toNumberFn(nil, []value.Value{value.BorrowedString("not a number")})
	require.NoError(t, err)
	assert.True(t, v.IsNil())
}

func TestSubstr(t *testing.T) {
	v, err := substrFn(nil, []value.Value{value.BorrowedString("hello world"), value.Number(6), value.Number(5)})
	require.NoError(t, err)
	assert.Equal(t, "world", v.AsString())
}

func TestStrFind_FoundAndNotFound(t *testing.T) {
	v, err := strFindFn(nil, []value.Value{value.BorrowedString("hello world"), value.BorrowedString("world")})
	require.NoError(t, err)
	assert.Equal(t, float64(6), v.AsNumber())

	v, err = strFindFn(nil, []value.Value{value.BorrowedString("hello world"), value.BorrowedString("xyz")})
	require.NoError(t, err)
	assert.Equal(t, float64(-1), v.AsNumber())
}

func TestGsub(t *testing.T) {
	v, err := gsubFn(nil, []value.Value{value.BorrowedString("a.b.c"), value.BorrowedString("%."), value.BorrowedString("-")})
	require.NoError(t, err)
	assert.Equal(t, "a-b-c", v.AsString())
}

func TestArrayGetSet1Based(t *testing.T) {
	a := alloc.New(0)
	arr, err := value.NewArray(a)
	require.NoError(t, err)
	arr.Push(value.Number(10))
	arr.Push(value.Number(20))

	ctx := &value.NativeContext{Allocator: a}
	v, err := arrayGet1BasedFn(ctx, []value.Value{value.ArrayValue(arr), value.Number(1)})
	require.NoError(t, err)
	assert.Equal(t, float64(10), v.AsNumber())

	_, err = arraySet1BasedFn(ctx, []value.Value{value.ArrayValue(arr), value.Number(2), value.Number(99)})
	require.NoError(t, err)
	assert.Equal(t, float64(99), arr.Get(1).AsNumber())
}

func TestArrayInsertRemove1Based(t *testing.T) {
	a := alloc.New(0)
	arr, err := value.NewArray(a)
	require.NoError(t, err)
	arr.Push(value.Number(10))
	arr.Push(value.Number(30))

	ctx := &value.NativeContext{Allocator: a}
	_, err = arrayInsert1BasedFn(ctx, []value.Value{value.ArrayValue(arr), value.Number(2), value.Number(20)})
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 20, 30}, toFloats(arr))

	removed, err := arrayRemove1BasedFn(ctx, []value.Value{value.ArrayValue(arr), value.Number(1)})
	require.NoError(t, err)
	assert.Equal(t, float64(10), removed.AsNumber())
	assert.Equal(t, []float64{20, 30}, toFloats(arr))
}

func toFloats(arr *value.Array) []float64 {
	out := make([]float64, arr.Len())
	for i := range out {
		out[i] = arr.Get(i).AsNumber()
	}
	return out
}

func TestTableKeys(t *testing.T) {
	a := alloc.New(0)
	tbl, err := value.NewTable(a)
	require.NoError(t, err)
	tbl.Set("a", value.Number(1))
	tbl.Set("b", value.Number(2))

	ctx := &value.NativeContext{Allocator: a}
	v, err := tableKeysFn(ctx, []value.Value{value.TableValue(tbl)})
	require.NoError(t, err)
	require.True(t, v.IsArray())
	assert.Equal(t, 2, v.AsArray().Len())
}
