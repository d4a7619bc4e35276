package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tokenExpectation struct {
	typ TokenType
	val string
}

func assertTokens(t *testing.T, input string, expected []tokenExpectation) []Token {
	t.Helper()
	tokens, err := NewLexer(input, "test.sql").Tokenize()
	require.NoError(t, err, "unexpected error")
	require.Len(t, tokens, len(expected), "wrong number of tokens")
	for i, exp := range expected {
		assert.Equal(t, exp.typ, tokens[i].Type, "token[%d] type", i)
		if exp.typ != TokenEOF {
			assert.Equal(t, exp.val, tokens[i].Value, "token[%d] value", i)
		}
	}
	return tokens
}

func TestLexer_PlainText(t *testing.T) {
	assertTokens(t, "SELECT * FROM users", []tokenExpectation{
		{TokenText, "SELECT * FROM users"},
		{TokenEOF, ""},
	})
}

func TestLexer_SimpleExpression(t *testing.T) {
	tokens := assertTokens(t, "SELECT * FROM {{ ref('orders') }} o", []tokenExpectation{
		{TokenText, "SELECT * FROM "},
		{TokenExpr, "ref('orders')"},
		{TokenText, " o"},
		{TokenEOF, ""},
	})
	assert.Equal(t, "{{ ref('orders') }}", tokens[1].Raw)
}

func TestLexer_StatementAndComment(t *testing.T) {
	assertTokens(t, "{% if is_incremental() %}x{% endif %}{# note #}", []tokenExpectation{
		{TokenStmt, "if is_incremental()"},
		{TokenText, "x"},
		{TokenStmt, "endif"},
		{TokenComment, "note"},
		{TokenEOF, ""},
	})
}

func TestLexer_WhitespaceControl(t *testing.T) {
	tokens := assertTokens(t, "a {%- if x -%} b {{- y }}", []tokenExpectation{
		{TokenText, "a "},
		{TokenStmt, "if x"},
		{TokenText, " b "},
		{TokenExpr, "y"},
		{TokenEOF, ""},
	})
	assert.Equal(t, Trim{Left: true, Right: true}, tokens[1].Trim)
	assert.Equal(t, Trim{Left: true}, tokens[3].Trim)
}

func TestLexer_ClosingDelimiterInsideString(t *testing.T) {
	assertTokens(t, `{{ "a }} b" }}`, []tokenExpectation{
		{TokenExpr, `"a }} b"`},
		{TokenEOF, ""},
	})
}

func TestLexer_NestedBraces(t *testing.T) {
	assertTokens(t, "{{ config(meta={'a': {'b': 1}}) }}", []tokenExpectation{
		{TokenExpr, "config(meta={'a': {'b': 1}})"},
		{TokenEOF, ""},
	})
}

func TestLexer_DelimitersInsideSQLString(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		quoted int
	}{
		{"single quotes", "select '{{ not_a_directive }}' as x", 1},
		{"double quotes", `select "{% if %}" as x`, 1},
		{"backticks", "select `{{x}}` from t", 1},
		{"escaped quote", `select 'it\'s {{ x }}' as y`, 1},
		{"doubled quote", "select 'it''s {{ x }}' as y", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens, err := NewLexer(tt.input, "test.sql").Tokenize()
			require.NoError(t, err)
			require.Len(t, tokens, 2)
			assert.Equal(t, TokenText, tokens[0].Type)
			assert.Equal(t, tt.input, tokens[0].Value)
			assert.Len(t, tokens[0].Quoted, tt.quoted)
		})
	}
}

func TestLexer_SQLCommentsDoNotOpenStrings(t *testing.T) {
	assertTokens(t, "-- don't\nselect {{ x }} /* it's */ {{ y }}", []tokenExpectation{
		{TokenText, "-- don't\nselect "},
		{TokenExpr, "x"},
		{TokenText, " /* it's */ "},
		{TokenExpr, "y"},
		{TokenEOF, ""},
	})
}

func TestLexer_DirectiveInsideLineComment(t *testing.T) {
	assertTokens(t, "-- uses {{ ref('a') }} isn't\nselect 1", []tokenExpectation{
		{TokenText, "-- uses "},
		{TokenExpr, "ref('a')"},
		{TokenText, " isn't\nselect 1"},
		{TokenEOF, ""},
	})
}

func TestLexer_Raw(t *testing.T) {
	assertTokens(t, "{% raw %}{{ keep }}{% endraw %}", []tokenExpectation{
		{TokenStmt, "raw"},
		{TokenRawText, "{{ keep }}"},
		{TokenStmt, "endraw"},
		{TokenEOF, ""},
	})
}

func TestLexer_Unclosed(t *testing.T) {
	tests := []struct {
		name  string
		input string
		msg   string
	}{
		{"expression", "SELECT {{ column", "unclosed expression"},
		{"statement", "{% if x", "unclosed statement"},
		{"comment", "{# nope", "unclosed comment"},
		{"raw", "{% raw %}abc", "unclosed 'raw' block"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLexer(tt.input, "test.sql").Tokenize()
			require.Error(t, err)
			var lexErr *LexError
			require.ErrorAs(t, err, &lexErr)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestLexer_PositionTracking(t *testing.T) {
	tokens, err := NewLexer("line1\nline2 {{ expr }}", "test.sql").Tokenize()
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(tokens), 2)
	assert.Equal(t, 2, tokens[1].Pos.Line)
	assert.Equal(t, 7, tokens[1].Pos.Column)
	assert.Equal(t, "test.sql", tokens[1].Pos.File)
}
