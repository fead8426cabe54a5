package compiler

import "fmt"

// TokenType enumerates the lexical categories of spec §4.3.
type TokenType int

const (
	TokEOF TokenType = iota
	TokError

	TokIdent
	TokNumber
	TokString

	TokVar
	TokLocal
	TokIf
	TokElseIf
	TokElse
	TokWhile
	TokDo
	TokFor
	TokIn
	TokFunction
	TokEnd
	TokReturn
	TokRequire
	TokPairs

	TokAssign // =
	TokPlus
	TokMinus
	TokStar
	TokSlash
	TokPercent
	TokConcat // ..
	TokNot    // !
	TokEq     // ==
	TokNe     // != or ~=
	TokLt
	TokLe
	TokGt
	TokGe
	TokAnd // &&
	TokOr  // ||

	TokLParen
	TokRParen
	TokLBrace
	TokRBrace
	TokLBracket
	TokRBracket
	TokComma
	TokDot
	TokSemicolon
)

var keywords = map[string]TokenType{
	"var":      TokVar,
	"local":    TokLocal,
	"if":       TokIf,
	"elseif":   TokElseIf,
	"else":     TokElse,
	"while":    TokWhile,
	"do":       TokDo,
	"for":      TokFor,
	"in":       TokIn,
	"function": TokFunction,
	"end":      TokEnd,
	"return":   TokReturn,
	"require":  TokRequire,
	"pairs":    TokPairs,
}

// Position is a 1-based line/column plus byte offset into the source.
type Position struct {
	Line   int
	Column int
	Offset int
}

// Token is one lexical unit produced by the Lexer.
type Token struct {
	Type  TokenType
	Value string
	Pos   Position
}

func (t Token) String() string {
	return fmt.Sprintf("Token{%v %q @%d:%d}", t.Type, t.Value, t.Pos.Line, t.Pos.Column)
}
