package template

import "fmt"

// Error is the base interface for all template errors.
type Error interface {
	error
	Position() Position
}

// baseError provides common error functionality.
type baseError struct {
	pos Position
	msg string
}

func (e *baseError) Position() Position { return e.pos }
func (e *baseError) Error() string {
	if e.pos.File != "" {
		return fmt.Sprintf("%s:%d:%d: %s", e.pos.File, e.pos.Line, e.pos.Column, e.msg)
	}
	return fmt.Sprintf("%d:%d: %s", e.pos.Line, e.pos.Column, e.msg)
}

// Message returns the error text without the position prefix.
func (e *baseError) Message() string { return e.msg }

// LexError represents an error during lexical analysis.
type LexError struct {
	baseError
}

// NewLexError creates a new lexer error.
func NewLexError(pos Position, msg string) *LexError {
	return &LexError{baseError: baseError{pos: pos, msg: msg}}
}

// ParseError represents an error during parsing.
type ParseError struct {
	baseError
}

// NewParseError creates a new parser error.
func NewParseError(pos Position, msg string) *ParseError {
	return &ParseError{baseError: baseError{pos: pos, msg: msg}}
}

// NewParseErrorf creates a new parser error with formatting.
func NewParseErrorf(pos Position, format string, args ...any) *ParseError {
	return &ParseError{baseError: baseError{pos: pos, msg: fmt.Sprintf(format, args...)}}
}

// UnmatchedBlockError indicates a block statement without its counterpart.
type UnmatchedBlockError struct {
	baseError
	BlockKind StmtKind // The kind of statement that was unmatched
	Keyword   string   // The statement keyword as written
}

// NewUnmatchedBlockError creates a new unmatched block error.
func NewUnmatchedBlockError(pos Position, kind StmtKind, keyword string) *UnmatchedBlockError {
	var msg string
	switch kind {
	case StmtFor:
		msg = "unclosed 'for' block (missing 'endfor')"
	case StmtIf:
		msg = "unclosed 'if' block (missing 'endif')"
	case StmtSet:
		msg = "unclosed 'set' block (missing 'endset')"
	case StmtRaw:
		msg = "unclosed 'raw' block (missing 'endraw')"
	case StmtBlock:
		msg = fmt.Sprintf("unclosed '%s' block (missing 'end%s')", keyword, keyword)
	case StmtEndFor:
		msg = "'endfor' without matching 'for'"
	case StmtEndIf:
		msg = "'endif' without matching 'if'"
	case StmtEndSet:
		msg = "'endset' without matching 'set'"
	case StmtEndRaw:
		msg = "'endraw' without matching 'raw'"
	case StmtElse:
		msg = "'else' without matching 'if' or 'for'"
	case StmtElif:
		msg = "'elif' without matching 'if'"
	case StmtEndBlock:
		msg = fmt.Sprintf("'%s' without matching '%s'", keyword, keyword[len("end"):])
	default:
		msg = fmt.Sprintf("unmatched block: %s", keyword)
	}
	return &UnmatchedBlockError{
		baseError: baseError{pos: pos, msg: msg},
		BlockKind: kind,
		Keyword:   keyword,
	}
}
