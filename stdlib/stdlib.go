// Package stdlib implements the "default bootstrap" native functions
// SPEC_FULL.md §12 describes: tostring/tonumber coercion helpers, plus
// string/array/table native equivalents of the VM's string-intrinsic
// opcodes (spec §4.4: "these exist as opcodes for performance; equivalent
// native functions are also registered"). Concrete built-in libraries
// beyond this are explicitly a host embedding concern (spec §1 Non-goals),
// so this package stays deliberately small.
package stdlib

import (
	"strconv"
	"strings"

	"github.com/GhostKellz/ghostlang-sub000/pattern"
	"github.com/GhostKellz/ghostlang-sub000/value"
)

// registrar is the subset of engine.Engine's API this package needs,
// kept narrow so stdlib does not import engine (which already imports
// vm, which already imports value/alloc/security) — avoiding a cycle and
// keeping stdlib reusable by any host that exposes the same shape.
type registrar interface {
	RegisterFunction(name string, fn func(ctx *value.NativeContext, args []value.Value) (value.Value, error))
}

// Register installs every stdlib native function onto e. Call this once
// per Engine right after Create, before loading any script (SPEC_FULL.md
// §12's "engine facade's default bootstrap").
func Register(e registrar) {
	e.RegisterFunction("tostring", toStringFn)
	e.RegisterFunction("tonumber", toNumberFn)

	e.RegisterFunction("strlen", strLenFn)
	e.RegisterFunction("substr", substrFn)
	e.RegisterFunction("str_upper", strUpperFn)
	e.RegisterFunction("str_lower", strLowerFn)
	e.RegisterFunction("str_find", strFindFn)
	e.RegisterFunction("gsub", gsubFn)

	e.RegisterFunction("array_get", arrayGet1BasedFn)
	e.RegisterFunction("array_set", arraySet1BasedFn)
	e.RegisterFunction("array_len", arrayLenFn)
	e.RegisterFunction("array_insert", arrayInsert1BasedFn)
	e.RegisterFunction("array_remove", arrayRemove1BasedFn)

	e.RegisterFunction("table_keys", tableKeysFn)
}

func arg(args []value.Value, i int) value.Value {
	if i < 0 || i >= len(args) {
		return value.Nil
	}
	return args[i]
}

// toStringFn converts any guest value to its display string, the
// counterpart `concat` needs since it only accepts stringlike operands
// (spec §4.4).
func toStringFn(_ *value.NativeContext, args []value.Value) (value.Value, error) {
	v := arg(args, 0)
	switch {
	case v.IsString():
		return v, nil
	case v.IsNumber():
		return value.BorrowedString(strconv.FormatFloat(v.AsNumber(), 'g', -1, 64)), nil
	case v.IsBool():
		return value.BorrowedString(strconv.FormatBool(v.AsBool())), nil
	case v.IsNil():
		return value.BorrowedString("nil"), nil
	default:
		return value.BorrowedString(v.GoString()), nil
	}
}

// toNumberFn parses a string argument as a float64, returning Nil (not an
// error) on failure, matching Lua's tonumber convention that a failed
// conversion is a guest-visible nil rather than a host-level error.
func toNumberFn(_ *value.NativeContext, args []value.Value) (value.Value, error) {
	v := arg(args, 0)
	if v.IsNumber() {
		return v, nil
	}
	if !v.IsString() {
		return value.Nil, nil
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(v.AsString()), 64)
	if err != nil {
		return value.Nil, nil
	}
	return value.Number(n), nil
}

func strLenFn(_ *value.NativeContext, args []value.Value) (value.Value, error) {
	return value.Number(float64(len(arg(args, 0).AsString()))), nil
}

// substrFn mirrors the substr opcode's (string, start, length) signature,
// using 0-based start per the VM-layer convention (spec §4.4).
func substrFn(_ *value.NativeContext, args []value.Value) (value.Value, error) {
	s := arg(args, 0).AsString()
	start := int(arg(args, 1).AsNumber())
	length := -1
	if len(args) > 2 {
		length = int(arg(args, 2).AsNumber())
	}
	if start < 0 {
		start = 0
	}
	if start > len(s) {
		return value.BorrowedString(""), nil
	}
	end := len(s)
	if length >= 0 && start+length < end {
		end = start + length
	}
	return value.BorrowedString(s[start:end]), nil
}

func strUpperFn(_ *value.NativeContext, args []value.Value) (value.Value, error) {
	return value.BorrowedString(strings.ToUpper(arg(args, 0).AsString())), nil
}

func strLowerFn(_ *value.NativeContext, args []value.Value) (value.Value, error) {
	return value.BorrowedString(strings.ToLower(arg(args, 0).AsString())), nil
}

// strFindFn returns the 0-based byte offset of pattern's first match in s,
// or -1 if none, using the Lua-style pattern matcher of package pattern
// (spec §4.5/§4.4 str_find).
func strFindFn(_ *value.NativeContext, args []value.Value) (value.Value, error) {
	s := arg(args, 0).AsString()
	pat := arg(args, 1).AsString()
	p, err := pattern.Compile(pat)
	if err != nil {
		return value.Number(-1), nil
	}
	m, err := p.Find(s, 0)
	if err != nil || m == nil {
		return value.Number(-1), nil
	}
	return value.Number(float64(m.Start)), nil
}

// gsubFn exposes package pattern's Gsub as a native function, since
// substitution has no dedicated opcode (spec §4.5's find/gsub operations
// are native-function surface, not VM intrinsics).
func gsubFn(_ *value.NativeContext, args []value.Value) (value.Value, error) {
	s := arg(args, 0).AsString()
	pat := arg(args, 1).AsString()
	repl := arg(args, 2).AsString()
	out, err := pattern.Gsub(s, pat, repl)
	if err != nil {
		return value.BorrowedString(s), nil
	}
	return value.BorrowedString(out), nil
}

// arrayGet1BasedFn offers the surface-language 1-based array accessor
// spec §3 mentions ("surface language uses 1-based helpers via native
// functions") layered over the VM's 0-based array_get opcode.
func arrayGet1BasedFn(_ *value.NativeContext, args []value.Value) (value.Value, error) {
	arr := arg(args, 0).AsArray()
	if arr == nil {
		return value.Nil, nil
	}
	idx := int(arg(args, 1).AsNumber()) - 1
	return arr.Get(idx), nil
}

func arraySet1BasedFn(ctx *value.NativeContext, args []value.Value) (value.Value, error) {
	arr := arg(args, 0).AsArray()
	if arr == nil {
		return value.Nil, nil
	}
	idx := int(arg(args, 1).AsNumber()) - 1
	val := arg(args, 2)
	old := arr.Get(idx)
	value.Retain(val)
	arr.Set(idx, val)
	if !old.IsNil() {
		value.Release(ctx.Allocator, old)
	}
	return value.Nil, nil
}

// arrayInsert1BasedFn shifts elements right and inserts val at a 1-based
// position, mirroring arrayGet1BasedFn/arraySet1BasedFn's surface-language
// indexing convention.
func arrayInsert1BasedFn(_ *value.NativeContext, args []value.Value) (value.Value, error) {
	arr := arg(args, 0).AsArray()
	if arr == nil {
		return value.Nil, nil
	}
	idx := int(arg(args, 1).AsNumber()) - 1
	val := arg(args, 2)
	value.Retain(val)
	arr.Insert(idx, val)
	return value.Nil, nil
}

// arrayRemove1BasedFn deletes and returns the element at a 1-based position.
func arrayRemove1BasedFn(ctx *value.NativeContext, args []value.Value) (value.Value, error) {
	arr := arg(args, 0).AsArray()
	if arr == nil {
		return value.Nil, nil
	}
	idx := int(arg(args, 1).AsNumber()) - 1
	removed := arr.RemoveAt(idx)
	if !removed.IsNil() {
		value.Release(ctx.Allocator, removed)
	}
	return removed, nil
}

func arrayLenFn(_ *value.NativeContext, args []value.Value) (value.Value, error) {
	arr := arg(args, 0).AsArray()
	if arr == nil {
		return value.Number(0), nil
	}
	return value.Number(float64(arr.Len())), nil
}

// tableKeysFn returns a table's keys as a guest-visible array, insertion
// ordered (spec §3).
func tableKeysFn(ctx *value.NativeContext, args []value.Value) (value.Value, error) {
	t := arg(args, 0).AsTable()
	if t == nil {
		return value.Nil, nil
	}
	out, err := value.NewArray(ctx.Allocator)
	if err != nil {
		return value.Nil, err
	}
	for _, k := range t.Keys() {
		out.Push(value.BorrowedString(k))
	}
	return value.ArrayValue(out), nil
}
