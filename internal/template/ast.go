// Package template parses dbt SQL files into literal text and Jinja directives.
// It supports {{ expr }} expressions, {% stmt %} statements and {# comment #} comments,
// with block statements nested into a tree. Directive bodies are kept as source text;
// evaluating or rewriting them is left to the caller.
package template

// Position tracks source location for error reporting.
type Position struct {
	File   string
	Line   int
	Column int
}

// Node is the interface for all template AST nodes.
type Node interface {
	Pos() Position
	// Source returns the exact text the node was parsed from, delimiters included.
	Source() string
	node() // marker method to restrict implementation
}

// nodeBase provides common Position handling for all nodes.
type nodeBase struct {
	pos Position
	src string
}

func (n *nodeBase) Pos() Position  { return n.pos }
func (n *nodeBase) Source() string { return n.src }
func (n *nodeBase) node()          {}

// Trim records whitespace control markers ({%- and -%}) on the outer edges of a directive.
type Trim struct {
	Left  bool // strip whitespace before the directive
	Right bool // strip whitespace after the directive
}

// TextNode represents literal SQL text (passed through unchanged).
type TextNode struct {
	nodeBase
	Text string
	// TrimLeading is set when the preceding directive ends with a '-' marker.
	TrimLeading bool
	// TrimTrailing is set when the following directive starts with a '-' marker.
	TrimTrailing bool
	// QuotedDelimiters lists positions of directive delimiters found inside SQL strings.
	QuotedDelimiters []Position
}

// ExprNode represents a {{ expr }} expression.
// The Expr field contains the expression source (without delimiters).
type ExprNode struct {
	nodeBase
	Expr string
	Trim Trim
}

// CommentNode represents a {# comment #}.
type CommentNode struct {
	nodeBase
	Text string
	Trim Trim
}

// StmtKind identifies the type of statement.
type StmtKind int

// StmtKind constants for statement types.
const (
	StmtUnknown   StmtKind = iota // Any statement without structural meaning here (do, include, ...)
	StmtFor                       // {% for x in items %}
	StmtEndFor                    // {% endfor %}
	StmtIf                        // {% if cond %}
	StmtElif                      // {% elif cond %}
	StmtElse                      // {% else %}
	StmtEndIf                     // {% endif %}
	StmtSet                       // {% set x = expr %} or {% set x %}
	StmtEndSet                    // {% endset %}
	StmtRaw                       // {% raw %}
	StmtEndRaw                    // {% endraw %}
	StmtBlock                     // {% macro %}, {% call %}, {% filter %} ...
	StmtEndBlock                  // {% endmacro %}, {% endcall %} ...
)

func (k StmtKind) String() string {
	switch k {
	case StmtUnknown:
		return "unknown"
	case StmtFor:
		return "for"
	case StmtEndFor:
		return "endfor"
	case StmtIf:
		return "if"
	case StmtElif:
		return "elif"
	case StmtElse:
		return "else"
	case StmtEndIf:
		return "endif"
	case StmtSet:
		return "set"
	case StmtEndSet:
		return "endset"
	case StmtRaw:
		return "raw"
	case StmtEndRaw:
		return "endraw"
	case StmtBlock:
		return "block"
	case StmtEndBlock:
		return "endblock"
	default:
		return "unknown"
	}
}

// StmtNode represents a {% stmt %} statement that does not open a block.
type StmtNode struct {
	nodeBase
	Kind    StmtKind
	Keyword string // first word of the statement
	Expr    string // statement body after the keyword
	Trim    Trim
}

// SetNode represents an inline assignment: {% set name = expr %}.
type SetNode struct {
	nodeBase
	Name  string
	Value string
	Trim  Trim
}

// SetBlock represents a captured assignment: {% set name %}...{% endset %}.
type SetBlock struct {
	nodeBase
	Name string
	Body []Node
	Trim Trim
}

// ForBlock represents a complete for loop with its body.
// Created by the parser from statement pairs.
type ForBlock struct {
	nodeBase
	VarName  string // Loop variable name(s), e.g. "col" or "k, v"
	IterExpr string // Iterator expression
	Body     []Node // Nodes inside the loop
	Else     []Node // for ... else branch (may be nil)
	Trim     Trim
}

// IfBlock represents a complete if/elif/else conditional.
// Created by the parser from statement sequences.
type IfBlock struct {
	nodeBase
	Condition string   // if condition expression
	Body      []Node   // Nodes for the if branch
	ElseIfs   []Branch // elif branches (may be empty)
	Else      []Node   // else branch (may be nil)
	HasElse   bool
	Trim      Trim
}

// Branch represents an elif branch.
type Branch struct {
	Condition string
	Body      []Node
	Pos       Position
}

// GenericBlock is a block with no structural equivalent in the target: macro, call, filter.
type GenericBlock struct {
	nodeBase
	Keyword string // macro, call, filter, block, trans
	Expr    string // header after the keyword
	Body    []Node
	Trim    Trim
}

// RawBlock is {% raw %}...{% endraw %}; its content is literal text.
type RawBlock struct {
	nodeBase
	Text string
	Trim Trim
}

// Template represents a complete parsed template.
type Template struct {
	Nodes []Node
	File  string // Source file path
}

// Walk calls fn for every node in depth-first order, including nodes nested in blocks.
// Returning false from fn skips the node's children.
func Walk(nodes []Node, fn func(Node) bool) {
	for _, n := range nodes {
		if !fn(n) {
			continue
		}
		switch b := n.(type) {
		case *IfBlock:
			Walk(b.Body, fn)
			for _, br := range b.ElseIfs {
				Walk(br.Body, fn)
			}
			Walk(b.Else, fn)
		case *ForBlock:
			Walk(b.Body, fn)
			Walk(b.Else, fn)
		case *SetBlock:
			Walk(b.Body, fn)
		case *GenericBlock:
			Walk(b.Body, fn)
		}
	}
}
