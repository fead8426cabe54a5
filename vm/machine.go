// Package vm implements the fetch-decode-execute loop described in spec
// §4.4: a register-based dispatch loop over bytecode.Instruction streams,
// resolving names against locals-then-globals per spec §9, and enforcing
// the memory/time/instruction sandboxing limits of spec §4.1/§5.
package vm

import (
	"fmt"
	"strconv"
	"time"

	"github.com/GhostKellz/ghostlang-sub000/alloc"
	"github.com/GhostKellz/ghostlang-sub000/bytecode"
	"github.com/GhostKellz/ghostlang-sub000/gherrors"
	"github.com/GhostKellz/ghostlang-sub000/pattern"
	"github.com/GhostKellz/ghostlang-sub000/security"
	"github.com/GhostKellz/ghostlang-sub000/value"
)

const (
	maxRegisterFile  = 256
	defaultMaxDepth  = 200
)

// ModuleLoader resolves a require() path to a module value. A nil loader
// makes require_module a no-op stub that yields Nil, per SPEC_FULL.md §12.
type ModuleLoader func(path string) (value.Value, error)

// Machine executes one compiled program's instructions against a shared
// allocator, security context, and pair of global stores. A Machine is not
// safe for concurrent Run calls; the host serializes execution per engine,
// per spec's single-threaded execution model.
type Machine struct {
	Allocator     *alloc.Allocator
	Security      *security.Context
	EngineGlobals *GlobalStore
	ScriptGlobals *GlobalStore
	Functions     []*bytecode.FunctionInfo

	Deadline        time.Time // zero means no deadline
	MaxInstructions uint64    // 0 means unlimited
	MaxCallDepth    int       // 0 means defaultMaxDepth
	ModuleLoader    ModuleLoader
	Clock           func() time.Time // defaults to time.Now; overridable for tests

	// Trace, when set, is invoked once per executed instruction with the
	// current function name and program counter, for host-side
	// instrumentation (engine.Engine.TraceFunc). It never sees the VM's
	// internal register/local state.
	Trace func(ins bytecode.Instruction, functionName string, pc int)

	instructionCount uint64
	callDepth        int
}

// New constructs a Machine ready to execute. EngineGlobals and ScriptGlobals
// must be supplied by the caller (the engine facade owns their lifetime so
// it can share EngineGlobals across scripts and persist ScriptGlobals
// across repeated runs of the same script).
func New(alc *alloc.Allocator, sec *security.Context, engineGlobals, scriptGlobals *GlobalStore, functions []*bytecode.FunctionInfo) *Machine {
	return &Machine{
		Allocator:     alc,
		Security:      sec,
		EngineGlobals: engineGlobals,
		ScriptGlobals: scriptGlobals,
		Functions:     functions,
		Clock:         time.Now,
	}
}

func (m *Machine) maxDepth() int {
	if m.MaxCallDepth <= 0 {
		return defaultMaxDepth
	}
	return m.MaxCallDepth
}

// frame is one call's mutable execution state: its register file, the
// index-addressed local slots seeded from call arguments, and the
// name-addressed locals bound by declare_local (spec §9's "locals-by-name"
// resolution, distinct from the slot-indexed load_local/store_local pair).
type frame struct {
	instructions []bytecode.Instruction
	constants    []value.Value
	registers    [maxRegisterFile]value.Value
	localSlots   []value.Value
	namedLocals  map[string]value.Value
	pc           int
	functionName string
}

func newFrame(instructions []bytecode.Instruction, constants []value.Value, name string) *frame {
	return &frame{
		instructions: instructions,
		constants:    constants,
		namedLocals:  make(map[string]value.Value),
		functionName: name,
	}
}

func (fr *frame) constString(idx uint16) string {
	if int(idx) >= len(fr.constants) {
		return ""
	}
	return fr.constants[idx].AsString()
}

func (fr *frame) constValue(idx uint16) value.Value {
	if int(idx) >= len(fr.constants) {
		return value.Nil
	}
	return fr.constants[idx]
}

// setReg overwrites a register, releasing whatever it previously held and
// retaining the incoming value, per the manual-refcounting discipline in
// package value.
func (m *Machine) setReg(fr *frame, idx uint16, v value.Value) {
	if int(idx) >= maxRegisterFile {
		return
	}
	value.Release(m.Allocator, fr.registers[idx])
	value.Retain(v)
	fr.registers[idx] = v
}

func (fr *frame) getReg(idx uint16) value.Value {
	if int(idx) >= maxRegisterFile {
		return value.Nil
	}
	return fr.registers[idx]
}

func (m *Machine) setLocalSlot(fr *frame, idx uint16, v value.Value) {
	for len(fr.localSlots) <= int(idx) {
		fr.localSlots = append(fr.localSlots, value.Nil)
	}
	value.Release(m.Allocator, fr.localSlots[idx])
	value.Retain(v)
	fr.localSlots[idx] = v
}

func (fr *frame) getLocalSlot(idx uint16) value.Value {
	if int(idx) >= len(fr.localSlots) {
		return value.Nil
	}
	return fr.localSlots[idx]
}

func (m *Machine) declareLocal(fr *frame, name string, v value.Value) {
	if old, ok := fr.namedLocals[name]; ok {
		value.Release(m.Allocator, old)
	}
	value.Retain(v)
	fr.namedLocals[name] = v
}

// resolveLoad implements spec §9's "locals-by-name" lookup: the current
// frame's named locals, then the script's run-scoped globals, then the
// engine-wide globals shared across every script.
func (m *Machine) resolveLoad(fr *frame, name string) (value.Value, bool) {
	if v, ok := fr.namedLocals[name]; ok {
		return v, true
	}
	if v, ok := m.ScriptGlobals.Get(name); ok {
		return v, true
	}
	if v, ok := m.EngineGlobals.Get(name); ok {
		return v, true
	}
	return value.Nil, false
}

// resolveStore updates an existing binding wherever it is found (local,
// then script global, then engine global); a name bound nowhere yet
// becomes a new script-scoped global, never an engine global, since the
// engine store is reserved for host-registered bindings.
func (m *Machine) resolveStore(fr *frame, name string, v value.Value) {
	if _, ok := fr.namedLocals[name]; ok {
		m.declareLocal(fr, name, v)
		return
	}
	if _, ok := m.ScriptGlobals.Get(name); ok {
		m.ScriptGlobals.Set(name, v)
		return
	}
	if _, ok := m.EngineGlobals.Get(name); ok {
		m.EngineGlobals.Set(name, v)
		return
	}
	m.ScriptGlobals.Set(name, v)
}

func ghostErr(kind error, format string, args ...interface{}) *gherrors.GhostError {
	return gherrors.New(kind, fmt.Sprintf(format, args...), gherrors.Context{})
}

func (m *Machine) ghostErrAt(fr *frame, kind error, format string, args ...interface{}) *gherrors.GhostError {
	return gherrors.New(kind, fmt.Sprintf(format, args...), gherrors.Context{
		InstructionPointer: fr.pc,
		FunctionName:       fr.functionName,
	})
}

// Execute runs a top-level (or already-entered) instruction stream to
// completion and returns its result: the operand of the first ret
// encountered, or Nil if execution falls off the end of the stream.
func (m *Machine) Execute(instructions []bytecode.Instruction, constants []value.Value) (value.Value, error) {
	fr := newFrame(instructions, constants, "<script>")
	return m.run(fr)
}

func (m *Machine) checkLimits(fr *frame) error {
	m.instructionCount++
	if m.MaxInstructions > 0 && m.instructionCount > m.MaxInstructions {
		return m.ghostErrAt(fr, gherrors.KindInstructionLimit, "exceeded %d instructions", m.MaxInstructions)
	}
	if !m.Deadline.IsZero() {
		clock := m.Clock
		if clock == nil {
			clock = time.Now
		}
		if clock().After(m.Deadline) {
			return m.ghostErrAt(fr, gherrors.KindExecutionTimeout, "execution deadline exceeded")
		}
	}
	return nil
}

// run is the dispatch loop. It returns the frame's ret value (or Nil) and
// releases every register/local it retained before returning, so a
// frame's resources never outlive its call.
func (m *Machine) run(fr *frame) (result value.Value, err error) {
	defer func() {
		for i := range fr.registers {
			value.Release(m.Allocator, fr.registers[i])
		}
		for _, v := range fr.localSlots {
			value.Release(m.Allocator, v)
		}
		for _, v := range fr.namedLocals {
			value.Release(m.Allocator, v)
		}
	}()

	for fr.pc < len(fr.instructions) {
		if err := m.checkLimits(fr); err != nil {
			return value.Nil, err
		}

		ins := fr.instructions[fr.pc]
		if m.Trace != nil {
			m.Trace(ins, fr.functionName, fr.pc)
		}

		jumped, ret, hasRet, stepErr := m.step(fr, ins)
		if stepErr != nil {
			return value.Nil, stepErr
		}
		if hasRet {
			return ret, nil
		}
		if !jumped {
			fr.pc++
		}
	}
	return value.Nil, nil
}

// step executes one instruction. jumped reports whether fr.pc was set
// directly (so run must not additionally increment it); hasRet reports a
// ret instruction was executed.
func (m *Machine) step(fr *frame, ins bytecode.Instruction) (jumped bool, ret value.Value, hasRet bool, err error) {
	op := ins.Op
	o := ins.Operands

	switch op {
	case bytecode.OpNop:
		// no-op

	case bytecode.OpLoadConst:
		m.setReg(fr, o[0], fr.constValue(o[1]))

	case bytecode.OpLoadLocal:
		m.setReg(fr, o[0], fr.getLocalSlot(o[1]))

	case bytecode.OpStoreLocal:
		m.setLocalSlot(fr, o[1], fr.getReg(o[0]))

	case bytecode.OpLoadGlobal:
		name := fr.constString(o[1])
		v, ok := m.resolveLoad(fr, name)
		if !ok {
			return false, value.Nil, false, m.ghostErrAt(fr, gherrors.KindUndefinedVariable, "undefined variable %q", name)
		}
		m.setReg(fr, o[0], v)

	case bytecode.OpStoreGlobal:
		name := fr.constString(o[1])
		m.resolveStore(fr, name, fr.getReg(o[0]))

	case bytecode.OpDeclareLocal:
		name := fr.constString(o[0])
		m.declareLocal(fr, name, fr.getReg(o[1]))

	case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv, bytecode.OpMod:
		v, aerr := m.arith(fr, op, o[1], o[2])
		if aerr != nil {
			return false, value.Nil, false, aerr
		}
		m.setReg(fr, o[0], v)

	case bytecode.OpConcat:
		v, cerr := m.concat(fr, o[1], o[2])
		if cerr != nil {
			return false, value.Nil, false, cerr
		}
		m.setReg(fr, o[0], v)

	case bytecode.OpEq:
		m.setReg(fr, o[0], value.Bool(value.Equal(fr.getReg(o[1]), fr.getReg(o[2]))))

	case bytecode.OpNe:
		m.setReg(fr, o[0], value.Bool(!value.Equal(fr.getReg(o[1]), fr.getReg(o[2]))))

	case bytecode.OpLt, bytecode.OpLe, bytecode.OpGt, bytecode.OpGe:
		v, cerr := m.compare(fr, op, o[1], o[2])
		if cerr != nil {
			return false, value.Nil, false, cerr
		}
		m.setReg(fr, o[0], v)

	case bytecode.OpLogicalAnd:
		m.setReg(fr, o[0], value.Bool(fr.getReg(o[1]).Truthy() && fr.getReg(o[2]).Truthy()))

	case bytecode.OpLogicalOr:
		m.setReg(fr, o[0], value.Bool(fr.getReg(o[1]).Truthy() || fr.getReg(o[2]).Truthy()))

	case bytecode.OpLogicalNot:
		m.setReg(fr, o[0], value.Bool(!fr.getReg(o[1]).Truthy()))

	case bytecode.OpJump:
		fr.pc = int(o[0])
		return true, value.Nil, false, nil

	case bytecode.OpJumpIfFalse:
		if !fr.getReg(o[0]).Truthy() {
			fr.pc = int(o[1])
			return true, value.Nil, false, nil
		}

	case bytecode.OpJumpIfTrue:
		if fr.getReg(o[0]).Truthy() {
			fr.pc = int(o[1])
			return true, value.Nil, false, nil
		}

	case bytecode.OpRet:
		if ins.Extra == 0 {
			return false, value.Nil, true, nil
		}
		return false, fr.getReg(o[0]), true, nil

	case bytecode.OpCall:
		name := fr.constString(o[0])
		callee, ok := m.resolveLoad(fr, name)
		if !ok {
			return false, value.Nil, false, m.ghostErrAt(fr, gherrors.KindFunctionNotFound, "function %q not found", name)
		}
		v, cerr := m.invoke(fr, callee, o[1], ins.Extra)
		if cerr != nil {
			return false, value.Nil, false, cerr
		}
		_ = v // OpCall's by-name form has no natural destination register; result is discarded

	case bytecode.OpCallClosure:
		callee := fr.getReg(o[0])
		v, cerr := m.invoke(fr, callee, o[1], ins.Extra)
		if cerr != nil {
			return false, value.Nil, false, cerr
		}
		m.setReg(fr, o[0], v)

	case bytecode.OpNewTable:
		t, nerr := value.NewTable(m.Allocator)
		if nerr != nil {
			return false, value.Nil, false, m.wrapAllocErr(fr, nerr)
		}
		m.setReg(fr, o[0], value.TableValue(t))

	case bytecode.OpGetTable:
		tbl := fr.getReg(o[1]).AsTable()
		if tbl == nil {
			return false, value.Nil, false, m.ghostErrAt(fr, gherrors.KindTypeError, "get_table on a non-table value")
		}
		m.setReg(fr, o[0], tbl.Get(fr.getReg(o[2]).AsString()))

	case bytecode.OpSetTable:
		tbl := fr.getReg(o[0]).AsTable()
		if tbl == nil {
			return false, value.Nil, false, m.ghostErrAt(fr, gherrors.KindTypeError, "set_table on a non-table value")
		}
		key := fr.getReg(o[1]).AsString()
		val := fr.getReg(o[2])
		old := tbl.Get(key)
		value.Retain(val)
		tbl.Set(key, val)
		if !old.IsNil() {
			value.Release(m.Allocator, old)
		}

	case bytecode.OpNewArray:
		a, nerr := value.NewArray(m.Allocator)
		if nerr != nil {
			return false, value.Nil, false, m.wrapAllocErr(fr, nerr)
		}
		m.setReg(fr, o[0], value.ArrayValue(a))

	case bytecode.OpArrayGet:
		arr := fr.getReg(o[1]).AsArray()
		if arr == nil {
			return false, value.Nil, false, m.ghostErrAt(fr, gherrors.KindTypeError, "array_get on a non-array value")
		}
		m.setReg(fr, o[0], arr.Get(int(fr.getReg(o[2]).AsNumber())))

	case bytecode.OpArraySet:
		arr := fr.getReg(o[0]).AsArray()
		if arr == nil {
			return false, value.Nil, false, m.ghostErrAt(fr, gherrors.KindTypeError, "array_set on a non-array value")
		}
		idx := int(fr.getReg(o[1]).AsNumber())
		val := fr.getReg(o[2])
		old := arr.Get(idx)
		value.Retain(val)
		arr.Set(idx, val)
		if !old.IsNil() {
			value.Release(m.Allocator, old)
		}

	case bytecode.OpArrayPush:
		arr := fr.getReg(o[0]).AsArray()
		if arr == nil {
			return false, value.Nil, false, m.ghostErrAt(fr, gherrors.KindTypeError, "array_push on a non-array value")
		}
		val := fr.getReg(o[1])
		value.Retain(val)
		arr.Push(val)

	case bytecode.OpArrayLen:
		arr := fr.getReg(o[1]).AsArray()
		if arr == nil {
			return false, value.Nil, false, m.ghostErrAt(fr, gherrors.KindTypeError, "array_len on a non-array value")
		}
		m.setReg(fr, o[0], value.Number(float64(arr.Len())))

	case bytecode.OpForInit:
		name := fr.constString(o[0])
		m.resolveStore(fr, name, fr.getReg(o[1]))

	case bytecode.OpForLoop:
		name := fr.constString(o[0])
		cur, ok := m.resolveLoad(fr, name)
		if !ok || !cur.IsNumber() {
			return false, value.Nil, false, m.ghostErrAt(fr, gherrors.KindTypeError, "for-loop counter %q is not a number", name)
		}
		end := fr.getReg(o[1])
		next := cur.AsNumber() + 1
		if next <= end.AsNumber() {
			m.resolveStore(fr, name, value.Number(next))
			fr.pc = int(o[2])
			return true, value.Nil, false, nil
		}

	case bytecode.OpForInInit:
		tbl := fr.getReg(o[0]).AsTable()
		if tbl == nil {
			return false, value.Nil, false, m.ghostErrAt(fr, gherrors.KindTypeError, "for-in over a non-table value")
		}
		m.setReg(fr, o[1], value.Number(0))

	case bytecode.OpForInNext:
		tbl := fr.getReg(o[2]).AsTable()
		cursorReg := ins.Extra
		if tbl == nil {
			return false, value.Nil, false, m.ghostErrAt(fr, gherrors.KindTypeError, "for-in over a non-table value")
		}
		cursor := int(fr.getReg(cursorReg).AsNumber())
		keys := tbl.Keys()
		if cursor >= len(keys) {
			m.setReg(fr, o[0], value.Nil)
			m.setReg(fr, o[1], value.Nil)
		} else {
			k := keys[cursor]
			m.setReg(fr, o[0], value.BorrowedString(k))
			m.setReg(fr, o[1], tbl.Get(k))
			m.setReg(fr, cursorReg, value.Number(float64(cursor+1)))
		}

	case bytecode.OpClosure:
		cls, cerr := value.NewClosure(m.Allocator, int(o[1]), nil)
		if cerr != nil {
			return false, value.Nil, false, m.wrapAllocErr(fr, cerr)
		}
		m.setReg(fr, o[0], value.ClosureValue(cls))

	case bytecode.OpStrLen:
		s := fr.getReg(o[1])
		if !s.IsString() {
			return false, value.Nil, false, m.ghostErrAt(fr, gherrors.KindTypeError, "strlen on a non-string value")
		}
		m.setReg(fr, o[0], value.Number(float64(len(s.AsString()))))

	case bytecode.OpSubstr:
		s := fr.getReg(o[1]).AsString()
		start := int(fr.getReg(o[2]).AsNumber())
		length := int(ins.Extra)
		v, serr := value.OwnedString(m.Allocator, substr(s, start, length))
		if serr != nil {
			return false, value.Nil, false, m.wrapAllocErr(fr, serr)
		}
		m.setReg(fr, o[0], v)

	case bytecode.OpStrUpper:
		v, serr := value.OwnedString(m.Allocator, toUpperASCII(fr.getReg(o[1]).AsString()))
		if serr != nil {
			return false, value.Nil, false, m.wrapAllocErr(fr, serr)
		}
		m.setReg(fr, o[0], v)

	case bytecode.OpStrLower:
		v, serr := value.OwnedString(m.Allocator, toLowerASCII(fr.getReg(o[1]).AsString()))
		if serr != nil {
			return false, value.Nil, false, m.wrapAllocErr(fr, serr)
		}
		m.setReg(fr, o[0], v)

	case bytecode.OpStrFind:
		s := fr.getReg(o[1]).AsString()
		pat := fr.getReg(o[2]).AsString()
		idx := -1
		if p, perr := pattern.Compile(pat); perr == nil {
			if mr, _ := p.Find(s, 0); mr != nil {
				idx = mr.Start
			}
		}
		m.setReg(fr, o[0], value.Number(float64(idx)))

	case bytecode.OpRequireModule:
		path := fr.constString(o[1])
		if m.ModuleLoader == nil {
			m.setReg(fr, o[0], value.Nil)
			break
		}
		v, lerr := m.ModuleLoader(path)
		if lerr != nil {
			return false, value.Nil, false, m.ghostErrAt(fr, gherrors.KindInvalidModuleName, "require(%q): %s", path, lerr.Error())
		}
		m.setReg(fr, o[0], v)

	default:
		return false, value.Nil, false, m.ghostErrAt(fr, gherrors.KindTypeError, "unimplemented opcode %s", op)
	}

	return false, value.Nil, false, nil
}

func (m *Machine) wrapAllocErr(fr *frame, err error) *gherrors.GhostError {
	return m.ghostErrAt(fr, gherrors.KindMemoryLimitExceeded, "%s", err.Error())
}

// CallValue invokes a closure or native function value directly, without
// going through any register file — used by the engine facade's
// Script.Call to re-enter a script-defined function between Run calls.
func (m *Machine) CallValue(callee value.Value, args []value.Value) (value.Value, error) {
	switch {
	case callee.IsClosure():
		return m.callClosure(callee.AsClosure(), args)
	case callee.IsNative():
		return m.callNative(callee.AsNative(), args)
	default:
		return value.Nil, ghostErr(gherrors.KindNotAFunction, "value of kind %s is not callable", callee.Kind())
	}
}

// invoke dispatches a callee value (closure or native) with argCount
// registers starting at argStart as arguments.
func (m *Machine) invoke(fr *frame, callee value.Value, argStart uint16, argCount uint16) (value.Value, error) {
	args := make([]value.Value, argCount)
	for i := uint16(0); i < argCount; i++ {
		args[i] = fr.getReg(argStart + i)
	}

	switch {
	case callee.IsClosure():
		return m.callClosure(callee.AsClosure(), args)
	case callee.IsNative():
		return m.callNative(callee.AsNative(), args)
	default:
		return value.Nil, m.ghostErrAt(fr, gherrors.KindNotAFunction, "value of kind %s is not callable", callee.Kind())
	}
}

func (m *Machine) callClosure(cls *value.Closure, args []value.Value) (value.Value, error) {
	if cls.FuncIndex < 0 || cls.FuncIndex >= len(m.Functions) {
		return value.Nil, ghostErr(gherrors.KindFunctionNotFound, "closure references unknown function index %d", cls.FuncIndex)
	}
	fn := m.Functions[cls.FuncIndex]

	m.callDepth++
	defer func() { m.callDepth-- }()
	if m.callDepth > m.maxDepth() {
		return value.Nil, ghostErr(gherrors.KindStackOverflow, "call depth exceeded %d frames", m.maxDepth())
	}

	callee := newFrame(fn.Instructions, fn.Constants, fn.Name)
	for i := 0; i < fn.ParamCount; i++ {
		var v value.Value
		if i < len(args) {
			v = args[i]
		}
		m.setLocalSlot(callee, uint16(i), v)
	}

	return m.run(callee)
}

func (m *Machine) callNative(nf *value.NativeFunc, args []value.Value) (value.Value, error) {
	ctx := &value.NativeContext{Allocator: m.Allocator}
	return nf.Fn(ctx, args)
}

func (m *Machine) arith(fr *frame, op bytecode.Opcode, aReg, bReg uint16) (value.Value, error) {
	a, b := fr.getReg(aReg), fr.getReg(bReg)
	if !a.IsNumber() || !b.IsNumber() {
		return value.Nil, m.ghostErrAt(fr, gherrors.KindTypeError, "arithmetic on non-number operands (%s, %s)", a.Kind(), b.Kind())
	}
	x, y := a.AsNumber(), b.AsNumber()
	switch op {
	case bytecode.OpAdd:
		return value.Number(x + y), nil
	case bytecode.OpSub:
		return value.Number(x - y), nil
	case bytecode.OpMul:
		return value.Number(x * y), nil
	case bytecode.OpDiv:
		return value.Number(x / y), nil
	case bytecode.OpMod:
		return value.Number(float64(int64(x) % int64(y))), nil
	}
	return value.Nil, m.ghostErrAt(fr, gherrors.KindTypeError, "not an arithmetic opcode: %s", op)
}

func (m *Machine) compare(fr *frame, op bytecode.Opcode, aReg, bReg uint16) (value.Value, error) {
	a, b := fr.getReg(aReg), fr.getReg(bReg)

	var less, equal bool
	switch {
	case a.IsNumber() && b.IsNumber():
		less = a.AsNumber() < b.AsNumber()
		equal = a.AsNumber() == b.AsNumber()
	case a.IsString() && b.IsString():
		less = a.AsString() < b.AsString()
		equal = a.AsString() == b.AsString()
	default:
		return value.Nil, m.ghostErrAt(fr, gherrors.KindTypeError, "cannot order %s and %s", a.Kind(), b.Kind())
	}

	switch op {
	case bytecode.OpLt:
		return value.Bool(less), nil
	case bytecode.OpLe:
		return value.Bool(less || equal), nil
	case bytecode.OpGt:
		return value.Bool(!less && !equal), nil
	case bytecode.OpGe:
		return value.Bool(!less), nil
	}
	return value.Nil, m.ghostErrAt(fr, gherrors.KindTypeError, "not a comparison opcode: %s", op)
}

// concat produces an owned string (spec §4.4: "the result is an owned
// string"), so repeated concatenation is charged against the allocator
// like any other heap allocation.
func (m *Machine) concat(fr *frame, aReg, bReg uint16) (value.Value, error) {
	a, b := fr.getReg(aReg), fr.getReg(bReg)
	as, aok := concatOperand(a)
	bs, bok := concatOperand(b)
	if !aok || !bok {
		return value.Nil, m.ghostErrAt(fr, gherrors.KindTypeError, "cannot concatenate %s and %s", a.Kind(), b.Kind())
	}
	v, err := value.OwnedString(m.Allocator, as+bs)
	if err != nil {
		return value.Nil, m.wrapAllocErr(fr, err)
	}
	return v, nil
}

func concatOperand(v value.Value) (string, bool) {
	switch {
	case v.IsString():
		return v.AsString(), true
	case v.IsNumber():
		return strconv.FormatFloat(v.AsNumber(), 'g', -1, 64), true
	default:
		return "", false
	}
}

func substr(s string, start, length int) string {
	if start < 0 {
		start = 0
	}
	if start > len(s) {
		return ""
	}
	end := start + length
	if length < 0 || end > len(s) {
		end = len(s)
	}
	return s[start:end]
}

func toUpperASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - 32
		}
	}
	return string(b)
}

func toLowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 32
		}
	}
	return string(b)
}
