package compiler

import "github.com/nebula-lang/nebula/pkg/diag"

// ---------------------------------------------------------------------------
// AST: abstract syntax tree for Nebula
// ---------------------------------------------------------------------------

// Node is the interface implemented by all AST nodes.
type Node interface {
	Span() diag.Span
	node() // marker method
}

// ---------------------------------------------------------------------------
// Expression nodes
// ---------------------------------------------------------------------------

// Expr is the interface for expression nodes.
type Expr interface {
	Node
	expr() // marker method
}

// NilLiteral represents the nil literal.
type NilLiteral struct {
	SpanVal diag.Span
}

func (n *NilLiteral) Span() diag.Span { return n.SpanVal }
func (n *NilLiteral) node()           {}
func (n *NilLiteral) expr()           {}

// BoolLiteral represents yes or no.
type BoolLiteral struct {
	SpanVal diag.Span
	Value   bool
}

func (n *BoolLiteral) Span() diag.Span { return n.SpanVal }
func (n *BoolLiteral) node()           {}
func (n *BoolLiteral) expr()           {}

// IntLiteral represents an integer literal.
type IntLiteral struct {
	SpanVal diag.Span
	Value   int64
}

func (n *IntLiteral) Span() diag.Span { return n.SpanVal }
func (n *IntLiteral) node()           {}
func (n *IntLiteral) expr()           {}

// FloatLiteral represents a floating-point literal.
type FloatLiteral struct {
	SpanVal diag.Span
	Value   float64
}

func (n *FloatLiteral) Span() diag.Span { return n.SpanVal }
func (n *FloatLiteral) node()           {}
func (n *FloatLiteral) expr()           {}

// StringLiteral represents a string literal (already unescaped).
type StringLiteral struct {
	SpanVal diag.Span
	Value   string
}

func (n *StringLiteral) Span() diag.Span { return n.SpanVal }
func (n *StringLiteral) node()           {}
func (n *StringLiteral) expr()           {}

// Identifier represents a variable reference.
type Identifier struct {
	SpanVal diag.Span
	Name    string
}

func (n *Identifier) Span() diag.Span { return n.SpanVal }
func (n *Identifier) node()           {}
func (n *Identifier) expr()           {}

// UnaryExpr represents a prefix operation: -x or !x.
type UnaryExpr struct {
	SpanVal diag.Span
	Op      TokenKind
	Operand Expr
}

func (n *UnaryExpr) Span() diag.Span { return n.SpanVal }
func (n *UnaryExpr) node()           {}
func (n *UnaryExpr) expr()           {}

// BinaryExpr represents an infix operation.
type BinaryExpr struct {
	SpanVal diag.Span
	Op      TokenKind
	Left    Expr
	Right   Expr
}

func (n *BinaryExpr) Span() diag.Span { return n.SpanVal }
func (n *BinaryExpr) node()           {}
func (n *BinaryExpr) expr()           {}

// CallExpr represents callee(args...).
type CallExpr struct {
	SpanVal diag.Span
	Callee  Expr
	Args    []Expr
}

func (n *CallExpr) Span() diag.Span { return n.SpanVal }
func (n *CallExpr) node()           {}
func (n *CallExpr) expr()           {}

// IndexExpr represents container[key].
type IndexExpr struct {
	SpanVal   diag.Span
	Container Expr
	Key       Expr
}

func (n *IndexExpr) Span() diag.Span { return n.SpanVal }
func (n *IndexExpr) node()           {}
func (n *IndexExpr) expr()           {}

// ListLiteral represents lst(a, b, c).
type ListLiteral struct {
	SpanVal  diag.Span
	Elements []Expr
}

func (n *ListLiteral) Span() diag.Span { return n.SpanVal }
func (n *ListLiteral) node()           {}
func (n *ListLiteral) expr()           {}

// MapEntry is one key: value pair of a map literal.
type MapEntry struct {
	Key   Expr
	Value Expr
}

// MapLiteral represents map(k: v, ...). Entry order is preserved.
type MapLiteral struct {
	SpanVal diag.Span
	Entries []MapEntry
}

func (n *MapLiteral) Span() diag.Span { return n.SpanVal }
func (n *MapLiteral) node()           {}
func (n *MapLiteral) expr()           {}

// ErrExpr represents err(expr): raise a user error.
type ErrExpr struct {
	SpanVal diag.Span
	Value   Expr
}

func (n *ErrExpr) Span() diag.Span { return n.SpanVal }
func (n *ErrExpr) node()           {}
func (n *ErrExpr) expr()           {}

// ---------------------------------------------------------------------------
// Statement nodes
// ---------------------------------------------------------------------------

// Stmt is the interface for statement nodes.
type Stmt interface {
	Node
	stmt() // marker method
}

// VarStmt represents fb name = value.
type VarStmt struct {
	SpanVal diag.Span
	Name    string
	Value   Expr
}

func (n *VarStmt) Span() diag.Span { return n.SpanVal }
func (n *VarStmt) node()           {}
func (n *VarStmt) stmt()           {}

// ConstStmt represents cn name = value.
type ConstStmt struct {
	SpanVal diag.Span
	Name    string
	Value   Expr
}

func (n *ConstStmt) Span() diag.Span { return n.SpanVal }
func (n *ConstStmt) node()           {}
func (n *ConstStmt) stmt()           {}

// AssignStmt represents target = value where target is a variable or
// an index expression.
type AssignStmt struct {
	SpanVal diag.Span
	Target  Expr
	Value   Expr
}

func (n *AssignStmt) Span() diag.Span { return n.SpanVal }
func (n *AssignStmt) node()           {}
func (n *AssignStmt) stmt()           {}

// CompoundStmt represents target op= value for += -= *= /=.
type CompoundStmt struct {
	SpanVal diag.Span
	Target  Expr
	Op      TokenKind // TokenPlusAssign .. TokenSlashAssign
	Value   Expr
}

func (n *CompoundStmt) Span() diag.Span { return n.SpanVal }
func (n *CompoundStmt) node()           {}
func (n *CompoundStmt) stmt()           {}

// ElifBranch is one elif arm of an if statement.
type ElifBranch struct {
	Cond Expr
	Body []Stmt
}

// IfStmt represents if cond do ... elif ... else ... end.
type IfStmt struct {
	SpanVal diag.Span
	Cond    Expr
	Then    []Stmt
	Elifs   []ElifBranch
	Else    []Stmt
}

func (n *IfStmt) Span() diag.Span { return n.SpanVal }
func (n *IfStmt) node()           {}
func (n *IfStmt) stmt()           {}

// WhileStmt represents while cond do ... end.
type WhileStmt struct {
	SpanVal diag.Span
	Cond    Expr
	Body    []Stmt
}

func (n *WhileStmt) Span() diag.Span { return n.SpanVal }
func (n *WhileStmt) node()           {}
func (n *WhileStmt) stmt()           {}

// ForStmt represents for name = start, end [, step] do ... end.
// Step is nil when omitted (defaults to 1).
type ForStmt struct {
	SpanVal diag.Span
	Name    string
	Start   Expr
	End     Expr
	Step    Expr
	Body    []Stmt
}

func (n *ForStmt) Span() diag.Span { return n.SpanVal }
func (n *ForStmt) node()           {}
func (n *ForStmt) stmt()           {}

// EachStmt represents each name in expr do ... end.
type EachStmt struct {
	SpanVal  diag.Span
	Name     string
	Iterable Expr
	Body     []Stmt
}

func (n *EachStmt) Span() diag.Span { return n.SpanVal }
func (n *EachStmt) node()           {}
func (n *EachStmt) stmt()           {}

// ReturnStmt represents -> [expr]. A nil Value returns nil.
type ReturnStmt struct {
	SpanVal diag.Span
	Value   Expr
}

func (n *ReturnStmt) Span() diag.Span { return n.SpanVal }
func (n *ReturnStmt) node()           {}
func (n *ReturnStmt) stmt()           {}

// BreakStmt represents break.
type BreakStmt struct {
	SpanVal diag.Span
}

func (n *BreakStmt) Span() diag.Span { return n.SpanVal }
func (n *BreakStmt) node()           {}
func (n *BreakStmt) stmt()           {}

// ContinueStmt represents continue.
type ContinueStmt struct {
	SpanVal diag.Span
}

func (n *ContinueStmt) Span() diag.Span { return n.SpanVal }
func (n *ContinueStmt) node()           {}
func (n *ContinueStmt) stmt()           {}

// ExprStmt wraps an expression used as a statement.
type ExprStmt struct {
	SpanVal diag.Span
	Expr    Expr
}

func (n *ExprStmt) Span() diag.Span { return n.SpanVal }
func (n *ExprStmt) node()           {}
func (n *ExprStmt) stmt()           {}

// FuncStmt represents fn name(params) = expr or fn name(params) do ...
// end. Expression bodies arrive desugared as a single return.
type FuncStmt struct {
	SpanVal diag.Span
	Name    string
	Params  []string
	Body    []Stmt
}

func (n *FuncStmt) Span() diag.Span { return n.SpanVal }
func (n *FuncStmt) node()           {}
func (n *FuncStmt) stmt()           {}

// Program is a parsed source file: function definitions and statements
// in source order.
type Program struct {
	Items []Stmt
}
