package engine

import (
	"fmt"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/uuid"
	strftime "github.com/ncruces/go-strftime"

	"github.com/GhostKellz/ghostlang-sub000/alloc"
	"github.com/GhostKellz/ghostlang-sub000/bytecode"
	"github.com/GhostKellz/ghostlang-sub000/compiler"
	"github.com/GhostKellz/ghostlang-sub000/gherrors"
	"github.com/GhostKellz/ghostlang-sub000/security"
	"github.com/GhostKellz/ghostlang-sub000/value"
	"github.com/GhostKellz/ghostlang-sub000/vm"
)

// TraceEvent is one dispatch-loop step, handed to an Engine's optional
// Trace callback. It is a debug/instrumentation surface only: nothing in
// the VM's semantics depends on whether tracing is enabled.
type TraceEvent struct {
	ScriptID     string
	FunctionName string
	PC           int
	Opcode       string
	Timestamp    string
}

// Engine owns one allocator, security context, and engine-wide global
// store, shared by every Script it loads (spec §5 "one engine, many
// scripts, shared globals and allocator").
type Engine struct {
	ID       string
	cfg      Config
	alloc    *alloc.Allocator
	security *security.Context
	globals  *vm.GlobalStore

	// TraceFunc, when set, receives one TraceEvent per instruction executed
	// by Script.Run across every script run by this engine. Events carry no
	// argument values; go-spew is used only by Script.DumpGlobals.
	TraceFunc func(TraceEvent)

	moduleLoader vm.ModuleLoader
}

// Create constructs a new Engine from cfg. The returned ID is a fresh
// UUID, suitable for correlating host-side logs with a specific engine
// instance (SPEC_FULL.md §11).
func Create(cfg Config) *Engine {
	return &Engine{
		ID:       uuid.NewString(),
		cfg:      cfg,
		alloc:    alloc.New(cfg.MemoryLimitBytes),
		security: cfg.securityContext(),
		globals:  vm.NewGlobalStore(),
	}
}

// Destroy releases the engine's resources. Scripts created from it must
// not be run afterward.
func (e *Engine) Destroy() {
	e.globals = nil
}

// RegisterFunction exposes a host-implemented native function to every
// script this engine loads, under name.
func (e *Engine) RegisterFunction(name string, fn func(ctx *value.NativeContext, args []value.Value) (value.Value, error)) {
	e.globals.Set(name, value.Native(name, fn))
}

// RegisterModule exposes a pre-built table as a named global, the
// mechanism scripts see for things like a `string` or `math` standard
// library module (SPEC_FULL.md §12).
func (e *Engine) RegisterModule(name string, module *value.Table) {
	e.globals.Set(name, value.TableValue(module))
}

// SetModuleLoader installs the resolver used for require_module (spec's
// require()); a nil loader keeps require() a stub returning Nil.
func (e *Engine) SetModuleLoader(loader vm.ModuleLoader) {
	e.moduleLoader = loader
}

// LoadScript compiles src and returns a Script bound to this engine, ready
// to Run. Compilation failures surface as *gherrors.GhostError of kind
// gherrors.KindParseError.
func (e *Engine) LoadScript(src string) (*Script, error) {
	compiled, err := compiler.Compile(src)
	if err != nil {
		return nil, err
	}
	return &Script{
		ID:      uuid.NewString(),
		engine:  e,
		program: compiled,
		globals: vm.NewGlobalStore(),
		state:   StateLoaded,
	}, nil
}

// ScriptState models the lifecycle spec §5 describes: Loaded -> Running ->
// Completed/Failed, with globals preserved across repeated Run calls.
type ScriptState int

const (
	StateLoaded ScriptState = iota
	StateRunning
	StateCompleted
	StateFailed
)

func (s ScriptState) String() string {
	switch s {
	case StateLoaded:
		return "loaded"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Script is one compiled program bound to an Engine. Its globals persist
// across repeated Run calls, per spec §5.
type Script struct {
	ID      string
	engine  *Engine
	program *compiler.Script
	globals *vm.GlobalStore
	state   ScriptState
}

func (s *Script) State() ScriptState { return s.state }

// Run executes the script's top-level instructions once. The deadline comes
// only from timeout; a zero timeout means no deadline is enforced. Run does
// not read the engine's Config.Timeout.
func (s *Script) Run(timeout time.Duration) (value.Value, error) {
	s.state = StateRunning

	m := vm.New(s.engine.alloc, s.engine.security, s.engine.globals, s.globals, s.program.Functions)
	m.MaxInstructions = s.engine.cfg.MaxInstructions
	m.MaxCallDepth = s.engine.cfg.MaxCallDepth
	m.ModuleLoader = s.engine.moduleLoader

	if timeout > 0 {
		m.Deadline = time.Now().Add(timeout)
	}

	if s.engine.TraceFunc != nil {
		m.Trace = func(ins bytecode.Instruction, functionName string, pc int) {
			s.engine.TraceFunc(TraceEvent{
				ScriptID:     s.ID,
				FunctionName: functionName,
				PC:           pc,
				Opcode:       ins.Op.String(),
				Timestamp:    nowTimestamp(),
			})
		}
	}

	v, err := m.Execute(s.program.Instructions, s.program.Constants)
	if err != nil {
		s.state = StateFailed
		return value.Nil, err
	}
	s.state = StateCompleted
	return v, nil
}

// GetGlobal reads a script-scoped global by name, falling back to the
// engine-wide globals (mirrors vm's own locals-then-globals resolution,
// minus the "locals" step since no call frame is active between runs).
func (s *Script) GetGlobal(name string) (value.Value, bool) {
	if v, ok := s.globals.Get(name); ok {
		return v, true
	}
	return s.engine.globals.Get(name)
}

// SetGlobal writes a script-scoped global, visible to the script on its
// next Run and to host code via GetGlobal.
func (s *Script) SetGlobal(name string, v value.Value) {
	s.globals.Set(name, v)
}

// Call invokes a script-defined function by name with the given arguments,
// without re-running the script's top-level statements. The function must
// already be bound (as a closure) in the script's globals from a prior Run.
func (s *Script) Call(name string, args ...value.Value) (value.Value, error) {
	callee, ok := s.GetGlobal(name)
	if !ok {
		return value.Nil, gherrors.New(gherrors.KindFunctionNotFound, fmt.Sprintf("no such function %q", name), gherrors.Context{})
	}
	if !callee.IsClosure() {
		return value.Nil, gherrors.New(gherrors.KindNotAFunction, fmt.Sprintf("global %q is not callable", name), gherrors.Context{})
	}

	m := vm.New(s.engine.alloc, s.engine.security, s.engine.globals, s.globals, s.program.Functions)
	m.MaxCallDepth = s.engine.cfg.MaxCallDepth
	return m.CallValue(callee, args)
}

// Destroy releases the script's globals; the engine's shared allocator and
// security context are unaffected.
func (s *Script) Destroy() {
	s.globals = nil
	s.program = nil
}

// DumpGlobals renders every script-scoped global via go-spew, for
// host-side debugging (SPEC_FULL.md §10.3).
func (s *Script) DumpGlobals() string {
	names := s.globals.Keys()
	out := make(map[string]string, len(names))
	for _, n := range names {
		v, _ := s.globals.Get(n)
		out[n] = v.GoString()
	}
	return spew.Sdump(out)
}

// nowTimestamp formats the current time for TraceEvent.Timestamp (the events
// handed to Engine.TraceFunc), via go-strftime.
func nowTimestamp() string {
	return strftime.Format("%Y-%m-%d %H:%M:%S", time.Now())
}
