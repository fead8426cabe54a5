// Package value implements ScriptValue: the tagged value representation
// shared by the compiler's constant pool, the VM's registers/locals/
// globals, and the host FFI boundary.
//
// Heap-bearing variants (owned strings, tables, arrays, closures, userdata)
// are reference-counted independently of Go's garbage collector: the
// refcount exists so the memory-limited allocator's byte-accounting
// (package alloc) can be credited and debited deterministically, matching
// spec invariant "the memory accounted by the limited allocator equals the
// sum of live allocations". Go's GC still reclaims the underlying memory
// once nothing references it; the refcount only drives alloc accounting.
package value

import (
	"fmt"
	"sync/atomic"

	"golang.org/x/exp/slices"

	"github.com/GhostKellz/ghostlang-sub000/alloc"
)

// Kind discriminates the variant held by a Value.
type Kind byte

const (
	KindNil Kind = iota
	KindBool
	KindNumber
	KindString
	KindTable
	KindArray
	KindClosure
	KindNative
	KindUserData
)

func (k Kind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindTable:
		return "table"
	case KindArray:
		return "array"
	case KindClosure:
		return "closure"
	case KindNative:
		return "native function"
	case KindUserData:
		return "userdata"
	default:
		return "unknown"
	}
}

// heapObj is implemented by every reference-counted heap variant.
type heapObj interface {
	retain()
	// release decrements the refcount and, if it reaches zero, frees any
	// allocator-accounted bytes and returns true.
	release(a *alloc.Allocator) bool
}

// Value is the tagged union consumed by the VM. It is small enough to copy
// by value into registers, locals, and container slots.
type Value struct {
	kind   Kind
	num    float64 // number payload, and 0/1 for boolean
	str    *StringData
	heap   heapObj
	native *NativeFunc
}

// Nil is the shared nil value.
var Nil = Value{kind: KindNil}

func Bool(b bool) Value {
	if b {
		return Value{kind: KindBool, num: 1}
	}
	return Value{kind: KindBool, num: 0}
}

func Number(n float64) Value { return Value{kind: KindNumber, num: n} }

// Kind reports the value's tag.
func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNil() bool    { return v.kind == KindNil }
func (v Value) IsBool() bool   { return v.kind == KindBool }
func (v Value) IsNumber() bool { return v.kind == KindNumber }
func (v Value) IsString() bool { return v.kind == KindString }
func (v Value) IsTable() bool  { return v.kind == KindTable }
func (v Value) IsArray() bool  { return v.kind == KindArray }
func (v Value) IsClosure() bool { return v.kind == KindClosure }
func (v Value) IsNative() bool  { return v.kind == KindNative }
func (v Value) IsUserData() bool { return v.kind == KindUserData }

func (v Value) AsBool() bool { return v.kind == KindBool && v.num != 0 }

// AsNumber returns the numeric payload; callers must check IsNumber first.
func (v Value) AsNumber() float64 { return v.num }

// AsString returns the raw bytes; callers must check IsString first.
func (v Value) AsString() string {
	if v.str == nil {
		return ""
	}
	return v.str.text
}

func (v Value) AsTable() *Table {
	t, _ := v.heap.(*Table)
	return t
}

func (v Value) AsArray() *Array {
	a, _ := v.heap.(*Array)
	return a
}

func (v Value) AsClosure() *Closure {
	c, _ := v.heap.(*Closure)
	return c
}

func (v Value) AsUserData() *UserData {
	u, _ := v.heap.(*UserData)
	return u
}

func (v Value) AsNative() *NativeFunc { return v.native }

// Truthy implements the VM's truthiness rule for logical opcodes (§4.4,
// §9 "Truthiness of 0"). Ghostlang follows the legacy rule recorded in
// DESIGN.md: nil, false, and the number 0 are falsy; everything else,
// including empty strings/tables/arrays, is truthy.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindNil:
		return false
	case KindBool:
		return v.num != 0
	case KindNumber:
		return v.num != 0
	default:
		return true
	}
}

// StringData backs a string Value. Borrowed strings point at memory owned
// by the constant pool or source buffer and carry no refcount; owned
// strings are allocator-accounted and reference-counted.
type StringData struct {
	text  string
	owned bool
	refs  int32 // only meaningful when owned
	bytes int   // bytes charged to the allocator when owned
}

func (s *StringData) retain() {
	if s != nil && s.owned {
		atomic.AddInt32(&s.refs, 1)
	}
}

func (s *StringData) release(a *alloc.Allocator) bool {
	if s == nil || !s.owned {
		return false
	}
	if atomic.AddInt32(&s.refs, -1) == 0 {
		if a != nil {
			a.Free(s.bytes)
		}
		return true
	}
	return false
}

// BorrowedString wraps a string living in the constant pool or source
// buffer; it is never separately freed.
func BorrowedString(s string) Value {
	return Value{kind: KindString, str: &StringData{text: s, owned: false}}
}

// OwnedString allocates an owned string through the given allocator,
// returning a MemoryLimitExceeded-style error on failure.
func OwnedString(a *alloc.Allocator, s string) (Value, error) {
	n := len(s)
	if err := a.Alloc(n); err != nil {
		return Value{}, err
	}
	return Value{kind: KindString, str: &StringData{text: s, owned: true, refs: 1, bytes: n}}, nil
}

// Retain increments the refcount of any heap-bearing value. It is a no-op
// for nil/bool/number/native values. Call this whenever a Value is copied
// into a register, local, global, or container slot that outlives the copy
// source.
func Retain(v Value) {
	if v.kind == KindString {
		v.str.retain()
		return
	}
	if v.heap != nil {
		v.heap.retain()
	}
}

// Release decrements the refcount of any heap-bearing value, crediting the
// allocator if this was the last reference. Call this on register/local
// overwrite, scope exit, and container removal.
func Release(a *alloc.Allocator, v Value) {
	if v.kind == KindString {
		v.str.release(a)
		return
	}
	if v.heap != nil {
		v.heap.release(a)
	}
}

// refCounted is embedded by Table, Array, Closure, and UserData to share
// the retain/release bookkeeping.
type refCounted struct {
	count int32
	bytes int
}

func (r *refCounted) retain() { atomic.AddInt32(&r.count, 1) }

func (r *refCounted) releaseBase(a *alloc.Allocator) bool {
	if atomic.AddInt32(&r.count, -1) == 0 {
		if a != nil && r.bytes > 0 {
			a.Free(r.bytes)
		}
		return true
	}
	return false
}

// Table is the reference-counted string-keyed mapping variant. Iteration
// order is insertion order within a run, per spec §3.
type Table struct {
	refCounted
	keys []string
	m    map[string]Value
}

// NewTable allocates an empty table, charging its initial overhead to a.
func NewTable(a *alloc.Allocator) (*Table, error) {
	const overhead = 64
	if err := a.Alloc(overhead); err != nil {
		return nil, err
	}
	t := &Table{m: make(map[string]Value)}
	t.count = 1
	t.bytes = overhead
	return t, nil
}

func (t *Table) release(a *alloc.Allocator) bool { return t.releaseBase(a) }

// Get returns the value for key, or Nil if absent (the Get miss case is not
// an error, per §4.4 get_table semantics).
func (t *Table) Get(key string) Value {
	if v, ok := t.m[key]; ok {
		return v
	}
	return Nil
}

// Set inserts or overwrites key. The stored key is duplicated so the table
// does not alias caller-owned memory (matching spec's "duplicates string
// key" note on set_table).
func (t *Table) Set(key string, v Value) {
	if _, exists := t.m[key]; !exists {
		t.keys = append(t.keys, key)
	}
	t.m[key] = v
}

// Keys returns the insertion-ordered key list.
func (t *Table) Keys() []string { return t.keys }

func (t *Table) Len() int { return len(t.keys) }

// SortedKeys returns the keys in sorted order, as a debug helper; it does
// not affect iteration order seen by guest scripts.
func (t *Table) SortedKeys() []string {
	ks := append([]string(nil), t.keys...)
	slices.Sort(ks)
	return ks
}

// Array is the reference-counted 0-indexed ordered-sequence variant.
type Array struct {
	refCounted
	items []Value
}

// NewArray allocates an empty array, charging its initial overhead to a.
func NewArray(a *alloc.Allocator) (*Array, error) {
	const overhead = 32
	if err := a.Alloc(overhead); err != nil {
		return nil, err
	}
	arr := &Array{}
	arr.count = 1
	arr.bytes = overhead
	return arr, nil
}

func (arr *Array) release(a *alloc.Allocator) bool { return arr.releaseBase(a) }

func (arr *Array) Len() int { return len(arr.items) }

// Get returns the element at idx, or Nil if out of range (§4.4 array_get).
func (arr *Array) Get(idx int) Value {
	if idx < 0 || idx >= len(arr.items) {
		return Nil
	}
	return arr.items[idx]
}

// Set overwrites an in-range index, appends when idx == len, and silently
// ignores indices beyond that (§4.4 array_set: "a design decision to keep
// arrays dense").
func (arr *Array) Set(idx int, v Value) {
	switch {
	case idx >= 0 && idx < len(arr.items):
		arr.items[idx] = v
	case idx == len(arr.items):
		arr.items = append(arr.items, v)
	}
}

// Push appends v unconditionally.
func (arr *Array) Push(v Value) {
	arr.items = append(arr.items, v)
}

// Insert shifts every element from idx onward right by one and places v at
// idx, clamping idx into [0, Len()] so an out-of-range index degrades to a
// Push or a no-op-free prepend instead of panicking.
func (arr *Array) Insert(idx int, v Value) {
	if idx < 0 {
		idx = 0
	}
	if idx > len(arr.items) {
		idx = len(arr.items)
	}
	arr.items = slices.Insert(arr.items, idx, v)
}

// RemoveAt deletes the element at idx, returning it (or Nil if idx is out
// of range, matching Get's out-of-range convention).
func (arr *Array) RemoveAt(idx int) Value {
	if idx < 0 || idx >= len(arr.items) {
		return Nil
	}
	v := arr.items[idx]
	arr.items = slices.Delete(arr.items, idx, idx+1)
	return v
}

// Items returns a defensive copy of the backing slice: callers can hold
// onto it across further array mutation.
func (arr *Array) Items() []Value { return slices.Clone(arr.items) }

// Closure pairs a function-table index with captured upvalues. Upvalues are
// values, not cells: there is no mutation-through-upvalue (§3).
type Closure struct {
	refCounted
	FuncIndex int
	Upvalues  []Value
}

func NewClosure(a *alloc.Allocator, funcIndex int, upvalues []Value) (*Closure, error) {
	overhead := 24 + len(upvalues)*8
	if err := a.Alloc(overhead); err != nil {
		return nil, err
	}
	c := &Closure{FuncIndex: funcIndex, Upvalues: upvalues}
	c.count = 1
	c.bytes = overhead
	return c, nil
}

func (c *Closure) release(a *alloc.Allocator) bool { return c.releaseBase(a) }

// UserData is an opaque host pointer with a type name and destructor. It is
// not copyable in the surface language; only the reference is shared.
type UserData struct {
	refCounted
	TypeName string
	Ptr      interface{}
	Destroy  func(interface{})
}

func NewUserData(a *alloc.Allocator, typeName string, ptr interface{}, destroy func(interface{})) (*UserData, error) {
	const overhead = 16
	if err := a.Alloc(overhead); err != nil {
		return nil, err
	}
	u := &UserData{TypeName: typeName, Ptr: ptr, Destroy: destroy}
	u.count = 1
	u.bytes = overhead
	return u, nil
}

func (u *UserData) release(a *alloc.Allocator) bool {
	freed := u.releaseBase(a)
	if freed && u.Destroy != nil {
		u.Destroy(u.Ptr)
	}
	return freed
}

// NativeContext is the opaque handle a native function receives so it can
// allocate through the engine's allocator, per DESIGN.md's resolution of the
// "native-function context" re-architecture note in spec §9. It carries no
// security context.
type NativeContext struct {
	Allocator *alloc.Allocator
	UserData  interface{} // host-owned context pointer, per §3's NativeFn contract
}

// NativeFunc is a host-supplied callable registered into engine globals.
type NativeFunc struct {
	Name string
	Fn   func(ctx *NativeContext, args []Value) (Value, error)
}

func Native(name string, fn func(ctx *NativeContext, args []Value) (Value, error)) Value {
	return Value{kind: KindNative, native: &NativeFunc{Name: name, Fn: fn}}
}

func TableValue(t *Table) Value       { return Value{kind: KindTable, heap: t} }
func ArrayValue(a *Array) Value       { return Value{kind: KindArray, heap: a} }
func ClosureValue(c *Closure) Value   { return Value{kind: KindClosure, heap: c} }
func UserDataValue(u *UserData) Value { return Value{kind: KindUserData, heap: u} }

// Equal implements the VM's eq opcode: tag-then-value comparison. Table and
// array equality is reference identity (§9 open question, resolved in
// DESIGN.md).
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNil:
		return true
	case KindBool:
		return a.num == b.num
	case KindNumber:
		return a.num == b.num
	case KindString:
		return a.AsString() == b.AsString()
	case KindTable:
		return a.heap == b.heap
	case KindArray:
		return a.heap == b.heap
	case KindClosure:
		return a.heap == b.heap
	case KindUserData:
		return a.heap == b.heap
	case KindNative:
		return a.native == b.native
	default:
		return false
	}
}

// GoString renders a debug representation. It is used by
// engine.Script.DumpGlobals, by the CLI when printing a script's result,
// and by stdlib's tostring for tables, arrays, closures and other
// non-scalar values.
func (v Value) GoString() string {
	switch v.kind {
	case KindNil:
		return "nil"
	case KindBool:
		return fmt.Sprintf("%v", v.AsBool())
	case KindNumber:
		return fmt.Sprintf("%g", v.num)
	case KindString:
		return fmt.Sprintf("%q", v.AsString())
	case KindTable:
		return fmt.Sprintf("table(%d keys)", v.AsTable().Len())
	case KindArray:
		return fmt.Sprintf("array(%d)", v.AsArray().Len())
	case KindClosure:
		return fmt.Sprintf("closure(fn=%d)", v.AsClosure().FuncIndex)
	case KindNative:
		return fmt.Sprintf("native(%s)", v.native.Name)
	case KindUserData:
		return fmt.Sprintf("userdata(%s)", v.AsUserData().TypeName)
	default:
		return "?"
	}
}
