package template

import (
	"strings"
	"unicode/utf8"
)

// TokenType identifies the type of token.
type TokenType int

// TokenType constants for template token types.
const (
	TokenText    TokenType = iota // Literal text (SQL)
	TokenExpr                     // Expression content (between {{ and }})
	TokenStmt                     // Statement content (between {% and %})
	TokenComment                  // Comment content (between {# and #})
	TokenRawText                  // Verbatim content of a raw block
	TokenEOF                      // End of input
)

func (t TokenType) String() string {
	switch t {
	case TokenText:
		return "TEXT"
	case TokenExpr:
		return "EXPR"
	case TokenStmt:
		return "STMT"
	case TokenComment:
		return "COMMENT"
	case TokenRawText:
		return "RAW"
	case TokenEOF:
		return "EOF"
	default:
		return "UNKNOWN"
	}
}

// Token represents a lexical token.
type Token struct {
	Type  TokenType
	Value string // trimmed directive body, or text verbatim
	Raw   string // exact source slice including delimiters
	Pos   Position
	Start int // byte offset of Raw in the input
	End   int
	Trim  Trim
	// Quoted lists directive delimiters seen inside SQL strings (text tokens only).
	Quoted []Position
}

// sqlState tracks SQL quoting inside literal text.
type sqlState int

const (
	sqlCode sqlState = iota
	sqlSingle
	sqlDouble
	sqlBacktick
	sqlLineComment
	sqlBlockComment
)

// Lexer tokenizes a template string.
type Lexer struct {
	input    string
	file     string
	pos      int // current position in input
	line     int // current line number (1-based)
	col      int // current column number (1-based)
	lastLine int // line at start of current token
	lastCol  int // column at start of current token
	sql      sqlState
	inRaw    bool
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input, file string) *Lexer {
	return &Lexer{
		input: input,
		file:  file,
		pos:   0,
		line:  1,
		col:   1,
	}
}

// Tokenize converts the input into a slice of tokens.
func (l *Lexer) Tokenize() ([]Token, error) {
	var tokens []Token

	for {
		tok, err := l.nextToken()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF {
			break
		}
	}

	return tokens, nil
}

// nextToken returns the next token from the input.
func (l *Lexer) nextToken() (Token, error) {
	if l.pos >= len(l.input) {
		if l.inRaw {
			return Token{}, NewLexError(l.position(), "unclosed 'raw' block (missing 'endraw')")
		}
		return Token{Type: TokenEOF, Pos: l.position(), Start: l.pos, End: l.pos}, nil
	}

	if l.inRaw {
		return l.scanRaw()
	}

	if l.sql != sqlSingle && l.sql != sqlDouble && l.sql != sqlBacktick {
		switch {
		case l.matchString("{{"):
			return l.scanDirective(TokenExpr, "}}")
		case l.matchString("{%"):
			tok, err := l.scanDirective(TokenStmt, "%}")
			if err == nil && isRawOpen(tok.Value) {
				l.inRaw = true
			}
			return tok, err
		case l.matchString("{#"):
			return l.scanDirective(TokenComment, "#}")
		}
	}

	return l.scanText()
}

// scanText scans literal text until a directive delimiter outside a SQL string, or EOF.
func (l *Lexer) scanText() (Token, error) {
	l.markStart()
	start := l.pos
	var quoted []Position

	for l.pos < len(l.input) {
		if l.atDelimiter() {
			if l.inString() {
				quoted = append(quoted, l.position())
			} else {
				break
			}
		}
		l.stepSQL()
	}

	if l.pos == start {
		// No text consumed, something is wrong
		return Token{}, NewLexError(l.position(), "unexpected state in lexer")
	}

	return Token{
		Type:   TokenText,
		Value:  l.input[start:l.pos],
		Raw:    l.input[start:l.pos],
		Pos:    l.startPosition(),
		Start:  start,
		End:    l.pos,
		Quoted: quoted,
	}, nil
}

// stepSQL advances one rune and updates the SQL quoting state.
func (l *Lexer) stepSQL() {
	r := l.peek()
	switch l.sql {
	case sqlCode:
		switch {
		case r == '\'':
			l.sql = sqlSingle
		case r == '"':
			l.sql = sqlDouble
		case r == '`':
			l.sql = sqlBacktick
		case l.matchString("--"):
			l.sql = sqlLineComment
		case l.matchString("/*"):
			l.sql = sqlBlockComment
			l.advance()
		}
	case sqlSingle, sqlDouble, sqlBacktick:
		if r == '\\' {
			l.advance()
		} else if (r == '\'' && l.sql == sqlSingle) || (r == '"' && l.sql == sqlDouble) || (r == '`' && l.sql == sqlBacktick) {
			l.sql = sqlCode
		}
	case sqlLineComment:
		if r == '\n' {
			l.sql = sqlCode
		}
	case sqlBlockComment:
		if l.matchString("*/") {
			l.sql = sqlCode
			l.advance()
		}
	}
	l.advance()
}

// scanDirective scans a delimited directive. Quotes inside the body are tracked
// so a closing delimiter inside a string literal does not end the directive.
func (l *Lexer) scanDirective(typ TokenType, closer string) (Token, error) {
	l.markStart()
	start := l.pos

	// Skip opening delimiter
	l.pos += 2
	l.col += 2

	var trim Trim
	if l.matchString("-") {
		trim.Left = true
		l.advance()
	} else if l.matchString("+") {
		l.advance()
	}

	bodyStart := l.pos
	depth := 0 // Track nested braces
	var quote rune

	for l.pos < len(l.input) {
		r := l.peek()
		if typ == TokenComment {
			if l.matchString(closer) || l.matchString("-"+closer) {
				break
			}
			l.advance()
			continue
		}

		if quote != 0 {
			if r == '\\' {
				l.advance()
			} else if r == quote {
				quote = 0
			}
			l.advance()
			continue
		}

		if depth == 0 && (l.matchString(closer) || l.matchString("-"+closer) || l.matchString("+"+closer)) {
			break
		}

		switch r {
		case '\'', '"':
			quote = r
		case '{':
			depth++
		case '}':
			if depth > 0 {
				depth--
			}
		}
		l.advance()
	}

	if l.pos >= len(l.input) {
		return Token{}, NewLexError(l.startPosition(), unclosedMessage(typ, closer))
	}

	bodyEnd := l.pos
	if l.matchString("-") {
		trim.Right = true
		l.advance()
	} else if l.matchString("+") {
		l.advance()
	}

	// Skip closing delimiter
	l.pos += 2
	l.col += 2

	return Token{
		Type:  typ,
		Value: strings.TrimSpace(l.input[bodyStart:bodyEnd]),
		Raw:   l.input[start:l.pos],
		Pos:   l.startPosition(),
		Start: start,
		End:   l.pos,
		Trim:  trim,
	}, nil
}

// scanRaw scans the verbatim content of a raw block up to its endraw statement.
func (l *Lexer) scanRaw() (Token, error) {
	l.markStart()
	start := l.pos

	for l.pos < len(l.input) {
		if l.matchString("{%") && isRawClose(l.input[l.pos:]) {
			break
		}
		l.advance()
	}
	if l.pos >= len(l.input) {
		return Token{}, NewLexError(l.startPosition(), "unclosed 'raw' block (missing 'endraw')")
	}
	l.inRaw = false

	if l.pos == start {
		return l.nextToken()
	}
	return Token{
		Type:  TokenRawText,
		Value: l.input[start:l.pos],
		Raw:   l.input[start:l.pos],
		Pos:   l.startPosition(),
		Start: start,
		End:   l.pos,
	}, nil
}

func unclosedMessage(typ TokenType, closer string) string {
	switch typ {
	case TokenExpr:
		return "unclosed expression: missing '" + closer + "'"
	case TokenComment:
		return "unclosed comment: missing '" + closer + "'"
	default:
		return "unclosed statement: missing '" + closer + "'"
	}
}

func isRawOpen(stmt string) bool {
	return stmt == "raw"
}

// isRawClose reports whether s starts with an endraw statement.
func isRawClose(s string) bool {
	s = strings.TrimPrefix(s, "{%")
	s = strings.TrimPrefix(s, "-")
	s = strings.TrimLeft(s, " \t\r\n")
	if !strings.HasPrefix(s, "endraw") {
		return false
	}
	s = strings.TrimLeft(s[len("endraw"):], " \t\r\n")
	s = strings.TrimPrefix(s, "-")
	return strings.HasPrefix(s, "%}")
}

// Helper methods

func (l *Lexer) atDelimiter() bool {
	return l.matchString("{{") || l.matchString("{%") || l.matchString("{#")
}

func (l *Lexer) inString() bool {
	return l.sql == sqlSingle || l.sql == sqlDouble || l.sql == sqlBacktick
}

// peek returns the current rune without advancing.
func (l *Lexer) peek() rune {
	if l.pos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.pos:])
	return r
}

// advance moves to the next rune, updating position tracking.
func (l *Lexer) advance() {
	if l.pos >= len(l.input) {
		return
	}

	r, size := utf8.DecodeRuneInString(l.input[l.pos:])
	l.pos += size

	if r == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
}

// matchString checks if the input at current position matches s.
func (l *Lexer) matchString(s string) bool {
	return strings.HasPrefix(l.input[l.pos:], s)
}

// markStart records the start position for the current token.
func (l *Lexer) markStart() {
	l.lastLine = l.line
	l.lastCol = l.col
}

// position returns the current position.
func (l *Lexer) position() Position {
	return Position{File: l.file, Line: l.line, Column: l.col}
}

// startPosition returns the position where the current token started.
func (l *Lexer) startPosition() Position {
	return Position{File: l.file, Line: l.lastLine, Column: l.lastCol}
}
