package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLexer_BasicTokens(t *testing.T) {
	input := `+ - * / % .. == != ~= <= >= && || = < > ( ) { } [ ] , . ;`

	expected := []TokenType{
		TokPlus, TokMinus, TokStar, TokSlash, TokPercent, TokConcat,
		TokEq, TokNe, TokNe, TokLe, TokGe, TokAnd, TokOr,
		TokAssign, TokLt, TokGt,
		TokLParen, TokRParen, TokLBrace, TokRBrace, TokLBracket, TokRBracket,
		TokComma, TokDot, TokSemicolon, TokEOF,
	}

	l := NewLexer(input)
	for i, want := range expected {
		tok := l.Next()
		assert.Equalf(t, want, tok.Type, "token %d", i)
	}
}

func TestLexer_NumbersAndIdentifiers(t *testing.T) {
	l := NewLexer(`3 4.5 x _foo foo123 local var`)

	tok := l.Next()
	require.Equal(t, TokNumber, tok.Type)
	assert.Equal(t, "3", tok.Value)

	tok = l.Next()
	require.Equal(t, TokNumber, tok.Type)
	assert.Equal(t, "4.5", tok.Value)

	tok = l.Next()
	require.Equal(t, TokIdent, tok.Type)
	assert.Equal(t, "x", tok.Value)

	tok = l.Next()
	assert.Equal(t, TokIdent, tok.Type)
	assert.Equal(t, "_foo", tok.Value)

	tok = l.Next()
	assert.Equal(t, TokIdent, tok.Type)
	assert.Equal(t, "foo123", tok.Value)

	tok = l.Next()
	assert.Equal(t, TokLocal, tok.Type)

	tok = l.Next()
	assert.Equal(t, TokVar, tok.Type)
}

func TestLexer_StringEscapes(t *testing.T) {
	l := NewLexer(`"hello \"world\"" "a\\b"`)

	tok := l.Next()
	require.Equal(t, TokString, tok.Type)
	assert.Equal(t, `hello "world"`, tok.Value)

	tok = l.Next()
	require.Equal(t, TokString, tok.Type)
	assert.Equal(t, `a\b`, tok.Value)
}

func TestLexer_Comments(t *testing.T) {
	l := NewLexer("-- a comment\n3 // another\n4")
	tok := l.Next()
	assert.Equal(t, TokNumber, tok.Type)
	assert.Equal(t, "3", tok.Value)
	tok = l.Next()
	assert.Equal(t, TokNumber, tok.Type)
	assert.Equal(t, "4", tok.Value)
}

func TestLexer_UnterminatedStringDoesNotPanic(t *testing.T) {
	l := NewLexer(`"unterminated`)
	tok := l.Next()
	assert.Equal(t, TokError, tok.Type)
}

func TestLexer_NeverHangsOnLongIdentifier(t *testing.T) {
	long := make([]byte, 100000)
	for i := range long {
		long[i] = 'a'
	}
	l := NewLexer(string(long))
	tok := l.Next()
	assert.Equal(t, TokIdent, tok.Type)
	assert.Len(t, tok.Value, 100000)
	assert.Equal(t, TokEOF, l.Next().Type)
}

func TestLexer_NulBytesDoNotPanic(t *testing.T) {
	src := "var x = 1\x00\x00"
	l := NewLexer(src)
	for i := 0; i < 10; i++ {
		_ = l.Next()
	}
}
