package compiler

import (
	"github.com/GhostKellz/ghostlang-sub000/bytecode"
	"github.com/GhostKellz/ghostlang-sub000/gherrors"
)

// compileStatement dispatches on the current token per the statement
// grammar in spec §4.3. It never leaves the token cursor mid-statement: on
// return, cur points at the first token of the next statement (or EOF/end).
func (c *Compiler) compileStatement() {
	// Only the immediately preceding top-level statement should be able to
	// supply the script's result value; clear any earlier one before
	// dispatching this statement (see recordTopLevelExpr).
	if c.inTopLevel {
		c.hasTopLevelExpr = false
	}

	switch c.cur.Type {
	case TokVar:
		c.compileVarDecl()
	case TokLocal:
		c.compileLocalDecl()
	case TokIf:
		c.compileIf()
	case TokWhile:
		c.compileWhile()
	case TokFor:
		c.compileFor()
	case TokFunction:
		c.compileFunctionDecl()
	case TokReturn:
		c.compileReturn()
	case TokRequire:
		c.compileRequire()
	case TokIdent:
		c.compileIdentStatement()
	default:
		// Anything else beginning a statement must be a bare expression
		// (a number/string/table/array literal, a parenthesized
		// expression, or a unary `!`) — spec §8's "single number ->
		// returns that number" and scenario 1's "3 + 4 * 5 - 6 / 2" both
		// start this way. compileExpr itself reports a ParseError for any
		// token that cannot start an expression either.
		reg := c.compileExpr()
		c.recordTopLevelExpr(reg)
	}
	c.accept(TokSemicolon)
}

func (c *Compiler) compileVarDecl() {
	c.advance() // 'var'
	name := c.expect(TokIdent, "identifier").Value
	c.expect(TokAssign, "'='")
	src := c.compileExpr()
	f := c.top()
	nameK := f.constString(name)
	f.emit(bytecode.New(bytecode.OpStoreGlobal, src, nameK))
}

func (c *Compiler) compileLocalDecl() {
	c.advance() // 'local'
	name := c.expect(TokIdent, "identifier").Value
	c.expect(TokAssign, "'='")
	src := c.compileExpr()
	f := c.top()
	nameK := f.constString(name)
	f.emit(bytecode.New(bytecode.OpDeclareLocal, nameK, src))
	f.localCount++
}

// compileIdentStatement handles every statement form that starts with an
// identifier: `NAME = EXPR`, `NAME[IDX] = EXPR`, and an expression-statement
// (a bare call, property/array access, or a larger expression like `x + y`
// built on top of the identifier).
func (c *Compiler) compileIdentStatement() {
	name := c.cur.Value
	namePos := c.cur.Pos
	c.advance()

	if c.cur.Type == TokAssign {
		c.advance()
		src := c.compileExpr()
		f := c.top()
		nameK := f.constString(name)
		f.emit(bytecode.New(bytecode.OpStoreGlobal, src, nameK))
		return
	}

	f := c.top()
	reg, err := f.allocReg()
	if err != nil {
		c.failAt(namePos, gherrors.KindStackOverflow, "%s", err.Error())
	}
	nameK := f.constString(name)
	f.emit(bytecode.New(bytecode.OpLoadGlobal, reg, nameK))

	if c.cur.Type == TokLBracket {
		c.advance()
		idxReg := c.compileExpr()
		c.expect(TokRBracket, "']'")

		if c.cur.Type == TokAssign {
			c.advance()
			valReg := c.compileExpr()
			f.emit(bytecode.New(bytecode.OpArraySet, reg, idxReg, valReg))
			return
		}

		dst, derr := f.allocReg()
		if derr != nil {
			c.fail(gherrors.KindStackOverflow, "%s", derr.Error())
		}
		f.emit(bytecode.New(bytecode.OpArrayGet, dst, reg, idxReg))
		reg = dst
	}

	// Not an assignment: this identifier (plus whatever trailer already
	// consumed above) is the start of a full expression-statement — e.g.
	// a bare call, or scenario 2's closing `x + y`. Walk any remaining
	// `.`/`[`/`(` trailers, then re-enter the precedence chain above
	// postfix (binary operators, `!`/concat/relational/equality/and/or)
	// with what's been parsed so far as the left-hand operand, instead of
	// stopping at trailers the way a bare call/property-read would.
	reg = c.compileTrailers(reg)
	reg = c.continueExprFrom(reg)
	c.recordTopLevelExpr(reg)
}

func (c *Compiler) compileIf() {
	c.advance() // 'if'
	c.expect(TokLParen, "'('")
	cond := c.compileExpr()
	c.expect(TokRParen, "')'")

	f := c.top()
	jfIdx := f.emit(bytecode.New(bytecode.OpJumpIfFalse, cond, 0))

	c.expect(TokLBrace, "'{'")
	c.compileBlockUntil(TokRBrace)
	c.expect(TokRBrace, "'}'")

	var endJumps []int

	for c.cur.Type == TokElseIf {
		endJumps = append(endJumps, f.emit(bytecode.New(bytecode.OpJump, 0)))
		patchJump(f, jfIdx, len(f.instructions))

		c.advance()
		c.expect(TokLParen, "'('")
		elifCond := c.compileExpr()
		c.expect(TokRParen, "')'")
		jfIdx = f.emit(bytecode.New(bytecode.OpJumpIfFalse, elifCond, 0))

		c.expect(TokLBrace, "'{'")
		c.compileBlockUntil(TokRBrace)
		c.expect(TokRBrace, "'}'")
	}

	if c.cur.Type == TokElse {
		endJumps = append(endJumps, f.emit(bytecode.New(bytecode.OpJump, 0)))
		patchJump(f, jfIdx, len(f.instructions))

		c.advance()
		c.expect(TokLBrace, "'{'")
		c.compileBlockUntil(TokRBrace)
		c.expect(TokRBrace, "'}'")
	} else {
		patchJump(f, jfIdx, len(f.instructions))
	}

	for _, idx := range endJumps {
		patchJump(f, idx, len(f.instructions))
	}
}

func (c *Compiler) compileWhile() {
	c.advance() // 'while'

	f := c.top()
	label := len(f.instructions)

	braceForm := false
	if c.cur.Type == TokLParen {
		c.advance()
		cond := c.compileExpr()
		c.expect(TokRParen, "')'")
		if c.cur.Type == TokLBrace {
			braceForm = true
		}
		jf := f.emit(bytecode.New(bytecode.OpJumpIfFalse, cond, 0))
		if braceForm {
			c.expect(TokLBrace, "'{'")
			c.compileBlockUntil(TokRBrace)
			c.expect(TokRBrace, "'}'")
		} else {
			c.expect(TokDo, "'do'")
			c.compileBlockUntil(TokEnd)
			c.expect(TokEnd, "'end'")
		}
		f.emit(bytecode.New(bytecode.OpJump, uint16(label)))
		patchJump(f, jf, len(f.instructions))
		return
	}

	cond := c.compileExpr()
	jf := f.emit(bytecode.New(bytecode.OpJumpIfFalse, cond, 0))
	c.expect(TokDo, "'do'")
	c.compileBlockUntil(TokEnd)
	c.expect(TokEnd, "'end'")
	f.emit(bytecode.New(bytecode.OpJump, uint16(label)))
	patchJump(f, jf, len(f.instructions))
}

func (c *Compiler) compileFor() {
	c.advance() // 'for'

	first := c.expect(TokIdent, "identifier").Value

	if c.cur.Type == TokAssign {
		c.advance()
		startReg := c.compileExpr()
		c.expect(TokComma, "','")
		endReg := c.compileExpr()
		c.expect(TokDo, "'do'")

		f := c.top()
		nameK := f.constString(first)
		f.emit(bytecode.New(bytecode.OpStoreGlobal, startReg, nameK))

		label := len(f.instructions)
		c.compileBlockUntil(TokEnd)
		c.expect(TokEnd, "'end'")
		f.emit(bytecode.New(bytecode.OpForLoop, nameK, endReg, uint16(label)))
		return
	}

	c.expect(TokComma, "','")
	second := c.expect(TokIdent, "identifier").Value
	c.expect(TokIn, "'in'")
	c.expect(TokPairs, "'pairs'")
	c.expect(TokLParen, "'('")
	tableReg := c.compileExpr()
	c.expect(TokRParen, "')'")
	c.expect(TokDo, "'do'")

	f := c.top()
	cursorReg, err := f.allocReg()
	if err != nil {
		c.fail(gherrors.KindStackOverflow, "%s", err.Error())
	}
	f.emit(bytecode.New(bytecode.OpForInInit, tableReg, cursorReg))

	label := len(f.instructions)
	keyReg, err := f.allocReg()
	if err != nil {
		c.fail(gherrors.KindStackOverflow, "%s", err.Error())
	}
	valReg, err := f.allocReg()
	if err != nil {
		c.fail(gherrors.KindStackOverflow, "%s", err.Error())
	}
	ins := bytecode.New(bytecode.OpForInNext, keyReg, valReg, tableReg)
	ins.Extra = cursorReg
	f.emit(ins)

	jf := f.emit(bytecode.New(bytecode.OpJumpIfFalse, keyReg, 0))

	keyK := f.constString(first)
	valK := f.constString(second)
	f.emit(bytecode.New(bytecode.OpStoreGlobal, keyReg, keyK))
	f.emit(bytecode.New(bytecode.OpStoreGlobal, valReg, valK))

	c.compileBlockUntil(TokEnd)
	c.expect(TokEnd, "'end'")

	f.emit(bytecode.New(bytecode.OpJump, uint16(label)))
	patchJump(f, jf, len(f.instructions))
}

func (c *Compiler) compileReturn() {
	c.advance() // 'return'
	f := c.top()
	if c.atStatementEnd() {
		ins := bytecode.New(bytecode.OpRet, 0)
		ins.Extra = 0
		f.emit(ins)
		return
	}
	src := c.compileExpr()
	ins := bytecode.New(bytecode.OpRet, src)
	ins.Extra = 1
	f.emit(ins)
}

func (c *Compiler) atStatementEnd() bool {
	switch c.cur.Type {
	case TokSemicolon, TokRBrace, TokEnd, TokElse, TokElseIf, TokEOF:
		return true
	}
	return false
}

// compileRequire compiles `require("PATH")` and returns the register that
// receives the module value, so it serves both as a statement and as an
// expression operand (e.g. `var m = require("x")`).
func (c *Compiler) compileRequire() uint16 {
	c.advance() // 'require'
	c.expect(TokLParen, "'('")
	pathTok := c.expect(TokString, "string literal")
	c.expect(TokRParen, "')'")

	f := c.top()
	dst, err := f.allocReg()
	if err != nil {
		c.fail(gherrors.KindStackOverflow, "%s", err.Error())
	}
	pathK := f.constString(pathTok.Value)
	f.emit(bytecode.New(bytecode.OpRequireModule, dst, pathK))
	return dst
}

func (c *Compiler) compileFunctionDecl() {
	c.advance() // 'function'
	name := c.expect(TokIdent, "identifier").Value
	c.expect(TokLParen, "'('")

	var params []string
	if c.cur.Type != TokRParen {
		params = append(params, c.expect(TokIdent, "parameter name").Value)
		for c.accept(TokComma) {
			params = append(params, c.expect(TokIdent, "parameter name").Value)
		}
	}
	c.expect(TokRParen, "')'")

	fn := newFrame()
	fn.paramCount = len(params)
	c.frames = append(c.frames, fn)

	// Parameters are seeded into locals [0, len(params)) by the VM at call
	// time (spec §4.4 call_closure: "parameters are seeded into the first
	// param_count locals"); bind each name so the scope-agnostic
	// load_global/store_global resolution sees them as locals immediately.
	for i, p := range params {
		nameK := fn.constString(p)
		src, _ := fn.allocReg()
		fn.emit(bytecode.New(bytecode.OpLoadLocal, src, uint16(i)))
		fn.emit(bytecode.New(bytecode.OpDeclareLocal, nameK, src))
	}

	c.compileBlockUntil(TokEnd)
	c.expect(TokEnd, "'end'")

	if len(fn.instructions) == 0 || fn.instructions[len(fn.instructions)-1].Op != bytecode.OpRet {
		ins := bytecode.New(bytecode.OpRet, 0)
		ins.Extra = 0
		fn.emit(ins)
	}

	c.frames = c.frames[:len(c.frames)-1]
	fnID := len(c.compiledFunctions)
	c.compiledFunctions = append(c.compiledFunctions, &bytecode.FunctionInfo{
		Name:         name,
		ParamCount:   len(params),
		LocalCount:   fn.localCount,
		Instructions: fn.instructions,
		Constants:    fn.constants,
	})

	outer := c.top()
	dst, err := outer.allocReg()
	if err != nil {
		c.fail(gherrors.KindStackOverflow, "%s", err.Error())
	}
	outer.emit(bytecode.New(bytecode.OpClosure, dst, uint16(fnID), 0))
	nameK := outer.constString(name)
	outer.emit(bytecode.New(bytecode.OpStoreGlobal, dst, nameK))
}

// compileBlockUntil parses statements until the current token is `until`
// (not consumed), used for both `end`-terminated and `}`-terminated blocks.
func (c *Compiler) compileBlockUntil(until TokenType) {
	// A statement inside a nested block (if/while/for/function body) never
	// supplies the script's overall result value, even when the block
	// itself sits at the top level; only a bare top-level statement does
	// (see recordTopLevelExpr). Suspend tracking for the block's duration.
	prevTopLevel, prevHasExpr := c.inTopLevel, c.hasTopLevelExpr
	c.inTopLevel = false
	for c.cur.Type != until && c.cur.Type != TokEOF {
		c.compileStatement()
	}
	c.inTopLevel, c.hasTopLevelExpr = prevTopLevel, prevHasExpr
}

func patchJump(f *frame, at int, target int) {
	ins := &f.instructions[at]
	switch ins.Op {
	case bytecode.OpJump:
		ins.Operands[0] = uint16(target)
	case bytecode.OpJumpIfFalse, bytecode.OpJumpIfTrue:
		ins.Operands[1] = uint16(target)
	}
}
