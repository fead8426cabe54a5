// Package gherrors defines the error-kind taxonomy shared by the compiler
// and the virtual machine. Every error that crosses the host boundary is one
// of the sentinel kinds below, wrapped in a *GhostError carrying positional
// and call-frame context.
package gherrors

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is a sentinel error identifying the category of failure. Callers use
// errors.Is(err, gherrors.KindTypeError) etc. to classify a *GhostError.
var (
	KindParseError             = errors.New("parse error")
	KindTypeError              = errors.New("type error")
	KindUndefinedVariable      = errors.New("undefined variable")
	KindFunctionNotFound       = errors.New("function not found")
	KindNotAFunction           = errors.New("not a function")
	KindMemoryLimitExceeded    = errors.New("memory limit exceeded")
	KindExecutionTimeout       = errors.New("execution timeout")
	KindInstructionLimit       = errors.New("instruction limit exceeded")
	KindIONotAllowed           = errors.New("i/o not allowed")
	KindSyscallNotAllowed      = errors.New("syscall not allowed")
	KindSecurityViolation      = errors.New("security violation")
	KindStackOverflow          = errors.New("stack overflow")
	KindInvalidSyntax          = errors.New("invalid syntax")
	KindInvalidFunctionName    = errors.New("invalid function name")
	KindInvalidGlobalName      = errors.New("invalid global name")
	KindInvalidModuleName      = errors.New("invalid module name")
	KindOutOfMemory            = errors.New("out of memory")
)

// StackFrame is one entry of the call-frame trace attached to an error.
type StackFrame struct {
	FunctionName string
	Line         int
	Column       int
}

// Context carries the positional and diagnostic detail the host receives
// alongside an error Kind, per spec §7's ErrorContext.
type Context struct {
	Line             int
	Column           int
	InstructionPointer int
	SourceSnippet    string
	FunctionName     string
	Timestamp        string // optional, formatted and set by the caller; the compiler and VM leave it empty
}

// GhostError wraps a Kind with a Context and an optional call stack. It
// implements error and supports errors.Is/errors.As via Unwrap.
type GhostError struct {
	Kind    error
	Message string
	Context Context
	Stack   []StackFrame
}

// New constructs a GhostError of the given kind.
func New(kind error, message string, ctx Context) *GhostError {
	return &GhostError{Kind: kind, Message: message, Context: ctx}
}

// WithStack attaches a call-frame trace and returns the receiver for chaining.
func (e *GhostError) WithStack(frames []StackFrame) *GhostError {
	e.Stack = frames
	return e
}

func (e *GhostError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	if e.Context.Line > 0 {
		fmt.Fprintf(&b, " (line %d, column %d)", e.Context.Line, e.Context.Column)
	}
	if e.Context.FunctionName != "" {
		fmt.Fprintf(&b, " in %s", e.Context.FunctionName)
	}
	return b.String()
}

// Unwrap exposes the sentinel Kind so errors.Is/errors.As classify correctly.
func (e *GhostError) Unwrap() error {
	return e.Kind
}

// Trace renders the attached stack frames, most-recent first, for
// host-facing diagnostics.
func (e *GhostError) Trace() string {
	if len(e.Stack) == 0 {
		return ""
	}
	var b strings.Builder
	for i, f := range e.Stack {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "  at %s (line %d:%d)", f.FunctionName, f.Line, f.Column)
	}
	return b.String()
}
