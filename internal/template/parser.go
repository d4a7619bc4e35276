package template

import (
	"strings"
)

// genericBlocks are block statements kept as opaque subtrees.
var genericBlocks = map[string]bool{
	"macro":  true,
	"call":   true,
	"filter": true,
	"block":  true,
	"trans":  true,
}

// frame is an open block on the parser stack.
type frame struct {
	kind    StmtKind
	keyword string
	open    Token
	block   Node
	body    *[]Node
	inElse  bool
}

// Parser builds a node tree from a token stream.
type Parser struct {
	input  string
	file   string
	tokens []Token
	root   []Node
	stack  []*frame
}

// ParseString parses a template from a string.
func ParseString(input, file string) (*Template, error) {
	tokens, err := NewLexer(input, file).Tokenize()
	if err != nil {
		return nil, err
	}
	p := &Parser{input: input, file: file, tokens: tokens}
	nodes, err := p.Parse()
	if err != nil {
		return nil, err
	}
	return &Template{Nodes: nodes, File: file}, nil
}

// Parse consumes the token stream and returns the top-level nodes.
func (p *Parser) Parse() ([]Node, error) {
	for i, tok := range p.tokens {
		switch tok.Type {
		case TokenText:
			p.appendNode(&TextNode{
				nodeBase:         nodeBase{pos: tok.Pos, src: tok.Raw},
				Text:             tok.Value,
				TrimLeading:      i > 0 && p.tokens[i-1].Trim.Right,
				TrimTrailing:     i+1 < len(p.tokens) && p.tokens[i+1].Trim.Left,
				QuotedDelimiters: tok.Quoted,
			})
		case TokenRawText:
			top := p.top()
			if top == nil || top.kind != StmtRaw {
				return nil, NewParseError(tok.Pos, "raw text outside a raw block")
			}
			top.block.(*RawBlock).Text = tok.Value
		case TokenExpr:
			p.appendNode(&ExprNode{nodeBase: nodeBase{pos: tok.Pos, src: tok.Raw}, Expr: tok.Value, Trim: tok.Trim})
		case TokenComment:
			p.appendNode(&CommentNode{nodeBase: nodeBase{pos: tok.Pos, src: tok.Raw}, Text: tok.Value, Trim: tok.Trim})
		case TokenStmt:
			if err := p.statement(tok); err != nil {
				return nil, err
			}
		case TokenEOF:
			if top := p.top(); top != nil {
				return nil, NewUnmatchedBlockError(top.open.Pos, top.kind, top.keyword)
			}
		}
	}
	return p.root, nil
}

func (p *Parser) top() *frame {
	if len(p.stack) == 0 {
		return nil
	}
	return p.stack[len(p.stack)-1]
}

func (p *Parser) appendNode(n Node) {
	if top := p.top(); top != nil {
		*top.body = append(*top.body, n)
		return
	}
	p.root = append(p.root, n)
}

func (p *Parser) push(f *frame) {
	p.appendNode(f.block)
	p.stack = append(p.stack, f)
}

// pop closes the innermost block, which must be of the given kind.
func (p *Parser) pop(closing Token, kind, endKind StmtKind, keyword string) (*frame, error) {
	top := p.top()
	if top == nil || top.kind != kind || (kind == StmtBlock && "end"+top.keyword != keyword) {
		return nil, NewUnmatchedBlockError(closing.Pos, endKind, keyword)
	}
	p.stack = p.stack[:len(p.stack)-1]
	return top, nil
}

// blockBase returns the node base spanning from the opening to the closing statement.
func (p *Parser) blockBase(open, closing Token) nodeBase {
	return nodeBase{pos: open.Pos, src: p.input[open.Start:closing.End]}
}

func (p *Parser) statement(tok Token) error {
	keyword, rest := splitKeyword(tok.Value)

	switch keyword {
	case "if":
		b := &IfBlock{nodeBase: nodeBase{pos: tok.Pos}, Condition: rest}
		p.push(&frame{kind: StmtIf, keyword: keyword, open: tok, block: b, body: &b.Body})

	case "elif":
		top := p.top()
		if top == nil || top.kind != StmtIf {
			return NewUnmatchedBlockError(tok.Pos, StmtElif, keyword)
		}
		if top.inElse {
			return NewParseError(tok.Pos, "'elif' after 'else'")
		}
		b := top.block.(*IfBlock)
		b.ElseIfs = append(b.ElseIfs, Branch{Condition: rest, Pos: tok.Pos})
		top.body = &b.ElseIfs[len(b.ElseIfs)-1].Body

	case "else":
		top := p.top()
		if top == nil || (top.kind != StmtIf && top.kind != StmtFor) {
			return NewUnmatchedBlockError(tok.Pos, StmtElse, keyword)
		}
		if top.inElse {
			return NewParseErrorf(tok.Pos, "duplicate 'else' in '%s' block", top.keyword)
		}
		top.inElse = true
		switch b := top.block.(type) {
		case *IfBlock:
			b.HasElse = true
			top.body = &b.Else
		case *ForBlock:
			top.body = &b.Else
		}

	case "endif":
		f, err := p.pop(tok, StmtIf, StmtEndIf, keyword)
		if err != nil {
			return err
		}
		b := f.block.(*IfBlock)
		b.nodeBase = p.blockBase(f.open, tok)
		b.Trim = Trim{Left: f.open.Trim.Left, Right: tok.Trim.Right}

	case "for":
		vars, iter, ok := splitFor(rest)
		if !ok {
			return NewParseErrorf(tok.Pos, "invalid for statement: %q", tok.Value)
		}
		b := &ForBlock{nodeBase: nodeBase{pos: tok.Pos}, VarName: vars, IterExpr: iter}
		p.push(&frame{kind: StmtFor, keyword: keyword, open: tok, block: b, body: &b.Body})

	case "endfor":
		f, err := p.pop(tok, StmtFor, StmtEndFor, keyword)
		if err != nil {
			return err
		}
		b := f.block.(*ForBlock)
		b.nodeBase = p.blockBase(f.open, tok)
		b.Trim = Trim{Left: f.open.Trim.Left, Right: tok.Trim.Right}

	case "set":
		if name, value, ok := splitAssignment(rest); ok {
			p.appendNode(&SetNode{nodeBase: nodeBase{pos: tok.Pos, src: tok.Raw}, Name: name, Value: value, Trim: tok.Trim})
			return nil
		}
		if rest == "" {
			return NewParseError(tok.Pos, "set statement without a target")
		}
		b := &SetBlock{nodeBase: nodeBase{pos: tok.Pos}, Name: rest}
		p.push(&frame{kind: StmtSet, keyword: keyword, open: tok, block: b, body: &b.Body})

	case "endset":
		f, err := p.pop(tok, StmtSet, StmtEndSet, keyword)
		if err != nil {
			return err
		}
		b := f.block.(*SetBlock)
		b.nodeBase = p.blockBase(f.open, tok)
		b.Trim = Trim{Left: f.open.Trim.Left, Right: tok.Trim.Right}

	case "raw":
		b := &RawBlock{nodeBase: nodeBase{pos: tok.Pos}}
		p.push(&frame{kind: StmtRaw, keyword: keyword, open: tok, block: b, body: new([]Node)})

	case "endraw":
		f, err := p.pop(tok, StmtRaw, StmtEndRaw, keyword)
		if err != nil {
			return err
		}
		b := f.block.(*RawBlock)
		b.nodeBase = p.blockBase(f.open, tok)
		b.Trim = Trim{Left: f.open.Trim.Left, Right: tok.Trim.Right}

	default:
		switch {
		case genericBlocks[keyword]:
			b := &GenericBlock{nodeBase: nodeBase{pos: tok.Pos}, Keyword: keyword, Expr: rest}
			p.push(&frame{kind: StmtBlock, keyword: keyword, open: tok, block: b, body: &b.Body})
		case strings.HasPrefix(keyword, "end") && genericBlocks[keyword[len("end"):]]:
			f, err := p.pop(tok, StmtBlock, StmtEndBlock, keyword)
			if err != nil {
				return err
			}
			b := f.block.(*GenericBlock)
			b.nodeBase = p.blockBase(f.open, tok)
			b.Trim = Trim{Left: f.open.Trim.Left, Right: tok.Trim.Right}
		case strings.HasPrefix(keyword, "end") && len(keyword) > len("end"):
			return NewUnmatchedBlockError(tok.Pos, StmtEndBlock, keyword)
		default:
			p.appendNode(&StmtNode{
				nodeBase: nodeBase{pos: tok.Pos, src: tok.Raw},
				Kind:     StmtUnknown,
				Keyword:  keyword,
				Expr:     rest,
				Trim:     tok.Trim,
			})
		}
	}
	return nil
}

// splitKeyword splits a statement into its leading identifier and the rest.
func splitKeyword(stmt string) (string, string) {
	i := 0
	for i < len(stmt) {
		c := stmt[i]
		if c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (i > 0 && c >= '0' && c <= '9') {
			i++
			continue
		}
		break
	}
	return stmt[:i], strings.TrimSpace(stmt[i:])
}

// splitFor splits "x in items" into its target and iterable.
func splitFor(rest string) (string, string, bool) {
	fields := strings.Fields(rest)
	for i, f := range fields {
		if f == "in" && i > 0 && i < len(fields)-1 {
			idx := strings.Index(rest, " in ")
			if idx < 0 {
				return "", "", false
			}
			vars := strings.TrimSpace(rest[:idx])
			iter := strings.TrimSpace(rest[idx+len(" in "):])
			return vars, iter, vars != "" && iter != ""
		}
	}
	return "", "", false
}

// splitAssignment splits "name = value" on the first bare '='.
func splitAssignment(rest string) (string, string, bool) {
	var quote byte
	for i := 0; i < len(rest); i++ {
		c := rest[i]
		if quote != 0 {
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
		case '=':
			if i+1 < len(rest) && rest[i+1] == '=' {
				return "", "", false
			}
			if i > 0 && strings.ContainsRune("!<>", rune(rest[i-1])) {
				return "", "", false
			}
			name := strings.TrimSpace(rest[:i])
			value := strings.TrimSpace(rest[i+1:])
			return name, value, name != "" && value != ""
		}
	}
	return "", "", false
}
