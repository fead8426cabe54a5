// Package compiler implements the lexer and single-pass recursive-descent
// compiler of spec §4.3: it consumes Ghostlang source token-by-token and
// emits a bytecode.Instruction stream, constant pool, and function table
// directly, with no intermediate AST.
//
// The compiler is deliberately scope-agnostic (spec §9 "Globals-first name
// resolution at runtime"): every variable name is compiled to a
// constant-pool string, and opcode LoadGlobal/StoreGlobal resolve
// locals-by-name then globals at VM runtime. The compiler's only job
// regarding scope is emitting DeclareLocal for `local` statements and for
// function parameters.
package compiler

import (
	"fmt"

	"github.com/GhostKellz/ghostlang-sub000/bytecode"
	"github.com/GhostKellz/ghostlang-sub000/gherrors"
	"github.com/GhostKellz/ghostlang-sub000/value"
)

const (
	maxRegisters   = 256
	maxParenDepth  = 64
	maxExprDepth   = 256
)

// Script is the unit produced by compiling source: the root instruction
// stream (the top-level script is not itself in FunctionTable, per
// spec §3) plus the constant pool and every nested function compiled from
// `function` declarations.
type Script struct {
	Instructions []bytecode.Instruction
	Constants    []value.Value
	Functions    []*bytecode.FunctionInfo
	Source       string
}

// frame holds the in-progress instruction stream / constant pool / register
// cursor for one function body (or the top-level script). Nested function
// bodies get their own frame; the frame stack lets a `function` declaration
// be compiled without disturbing the enclosing frame's register cursor.
type frame struct {
	instructions []bytecode.Instruction
	constants    []value.Value
	constIndex   map[string]int // dedupe key -> constant slot
	nextReg      uint16
	maxRegSeen   uint16
	localCount   int
	paramCount   int
}

func newFrame() *frame {
	return &frame{constIndex: make(map[string]int)}
}

func (f *frame) emit(ins bytecode.Instruction) int {
	f.instructions = append(f.instructions, ins)
	return len(f.instructions) - 1
}

func (f *frame) allocReg() (uint16, error) {
	if f.nextReg >= maxRegisters {
		return 0, fmt.Errorf("register file exhausted (limit %d)", maxRegisters)
	}
	r := f.nextReg
	f.nextReg++
	if f.nextReg > f.maxRegSeen {
		f.maxRegSeen = f.nextReg
	}
	return r, nil
}

func (f *frame) constString(s string) uint16 {
	key := "s:" + s
	if idx, ok := f.constIndex[key]; ok {
		return uint16(idx)
	}
	idx := len(f.constants)
	f.constants = append(f.constants, value.BorrowedString(s))
	f.constIndex[key] = idx
	return uint16(idx)
}

func (f *frame) constNumber(n float64) uint16 {
	key := fmt.Sprintf("n:%v", n)
	if idx, ok := f.constIndex[key]; ok {
		return uint16(idx)
	}
	idx := len(f.constants)
	f.constants = append(f.constants, value.Number(n))
	f.constIndex[key] = idx
	return uint16(idx)
}

// Compiler drives the lexer and emits bytecode for one frame at a time.
type Compiler struct {
	lex    *Lexer
	cur    Token
	peek   Token
	source string

	frames            []*frame
	parenDep          int
	exprDepth         int
	compiledFunctions []*bytecode.FunctionInfo

	// inTopLevel is true only while compiling the outermost statement
	// sequence (not inside an if/while/for/function body). topLevelExprReg
	// tracks the register of the most recently compiled top-level
	// expression-statement, so Compile can make the script's value (spec
	// §8 "a single expression evaluates to itself") the program's result.
	inTopLevel      bool
	hasTopLevelExpr bool
	topLevelExprReg uint16
}

// recordTopLevelExpr notes that the top-level statement just compiled was
// an expression whose result lives in reg; compileStatement clears this
// before every top-level statement, so only the last one sticks.
func (c *Compiler) recordTopLevelExpr(reg uint16) {
	if c.inTopLevel {
		c.hasTopLevelExpr = true
		c.topLevelExprReg = reg
	}
}

// Compile parses and compiles src into a Script, or returns a *gherrors.GhostError
// of kind gherrors.KindParseError. Compile never panics on malformed input.
func Compile(src string) (script *Script, err error) {
	c := &Compiler{lex: NewLexer(src), source: src}
	c.frames = []*frame{newFrame()}

	defer func() {
		if r := recover(); r != nil {
			if pe, ok := r.(*gherrors.GhostError); ok {
				script, err = nil, pe
				return
			}
			panic(r)
		}
	}()

	c.cur = c.lex.Next()
	c.peek = c.lex.Next()

	c.inTopLevel = true
	for c.cur.Type != TokEOF {
		c.compileStatement()
	}

	top := c.frames[0]

	// If the script ends on a bare expression statement rather than an
	// explicit return, surface that expression's value as the script's
	// result (spec §8's "single number -> returns that number" and the
	// idempotence property eval("3 + 4") == 7) instead of falling off the
	// end to Nil.
	if c.hasTopLevelExpr && (len(top.instructions) == 0 || top.instructions[len(top.instructions)-1].Op != bytecode.OpRet) {
		ins := bytecode.New(bytecode.OpRet, c.topLevelExprReg)
		ins.Extra = 1
		top.emit(ins)
	}

	return &Script{
		Instructions: top.instructions,
		Constants:    top.constants,
		Functions:    c.functions(),
		Source:       src,
	}, nil
}

// functions returns every nested function compiled from `function`
// declarations, in declaration order; see compileFunctionDecl, which
// appends to c.compiledFunctions as each function body finishes.
func (c *Compiler) functions() []*bytecode.FunctionInfo {
	return c.compiledFunctions
}

func (c *Compiler) top() *frame { return c.frames[len(c.frames)-1] }

func (c *Compiler) fail(kind error, format string, args ...interface{}) {
	c.failAt(c.cur.Pos, kind, format, args...)
}

func (c *Compiler) failAt(pos Position, kind error, format string, args ...interface{}) {
	panic(&gherrors.GhostError{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Context: gherrors.Context{Line: pos.Line, Column: pos.Column},
	})
}

func (c *Compiler) advance() {
	c.cur = c.peek
	c.peek = c.lex.Next()
	if c.cur.Type == TokError {
		c.fail(gherrors.KindParseError, "%s", c.cur.Value)
	}
}

func (c *Compiler) expect(tt TokenType, what string) Token {
	if c.cur.Type != tt {
		c.fail(gherrors.KindParseError, "expected %s, got %q", what, c.cur.Value)
	}
	t := c.cur
	c.advance()
	return t
}

func (c *Compiler) accept(tt TokenType) bool {
	if c.cur.Type == tt {
		c.advance()
		return true
	}
	return false
}
