package compiler

// ---------------------------------------------------------------------------
// AST: Abstract Syntax Tree for the Tycho TypeScript subset
// ---------------------------------------------------------------------------

// Position represents a source location.
type Position struct {
	Offset int // byte offset
	Line   int // 1-based line number
	Column int // 1-based column number
}

// Span represents a range in source code.
type Span struct {
	Start Position
	End   Position
}

// Node is the interface implemented by all AST nodes.
type Node interface {
	Span() Span
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

// NumberLiteral represents a numeric literal. All Tycho numbers are
// IEEE-754 doubles.
type NumberLiteral struct {
	SpanVal Span
	Value   float64
}

func (n *NumberLiteral) Span() Span { return n.SpanVal }
func (n *NumberLiteral) node()      {}
func (n *NumberLiteral) expr()      {}

// StringLiteral represents a string literal.
type StringLiteral struct {
	SpanVal Span
	Value   string
}

func (n *StringLiteral) Span() Span { return n.SpanVal }
func (n *StringLiteral) node()      {}
func (n *StringLiteral) expr()      {}

// TemplateLiteral represents a template string `a ${b} c`.
// Quasis has one more element than Exprs; the rendering interleaves
// Quasis[0], Exprs[0], Quasis[1], ...
type TemplateLiteral struct {
	SpanVal Span
	Quasis  []string
	Exprs   []Expr
}

func (n *TemplateLiteral) Span() Span { return n.SpanVal }
func (n *TemplateLiteral) node()      {}
func (n *TemplateLiteral) expr()      {}

// BoolLiteral represents true or false.
type BoolLiteral struct {
	SpanVal Span
	Value   bool
}

func (n *BoolLiteral) Span() Span { return n.SpanVal }
func (n *BoolLiteral) node()      {}
func (n *BoolLiteral) expr()      {}

// NullLiteral represents the null literal.
type NullLiteral struct {
	SpanVal Span
}

func (n *NullLiteral) Span() Span { return n.SpanVal }
func (n *NullLiteral) node()      {}
func (n *NullLiteral) expr()      {}

// UndefinedLiteral represents the undefined literal.
type UndefinedLiteral struct {
	SpanVal Span
}

func (n *UndefinedLiteral) Span() Span { return n.SpanVal }
func (n *UndefinedLiteral) node()      {}
func (n *UndefinedLiteral) expr()      {}

// ArrayLiteral represents [a, b, c].
type ArrayLiteral struct {
	SpanVal  Span
	Elements []Expr
}

func (n *ArrayLiteral) Span() Span { return n.SpanVal }
func (n *ArrayLiteral) node()      {}
func (n *ArrayLiteral) expr()      {}

// ObjectLiteral represents {k: v, ...}. Keys preserve source order.
type ObjectLiteral struct {
	SpanVal Span
	Keys    []string
	Values  []Expr
}

func (n *ObjectLiteral) Span() Span { return n.SpanVal }
func (n *ObjectLiteral) node()      {}
func (n *ObjectLiteral) expr()      {}

// Identifier represents a variable or global reference.
type Identifier struct {
	SpanVal Span
	Name    string
}

func (n *Identifier) Span() Span { return n.SpanVal }
func (n *Identifier) node()      {}
func (n *Identifier) expr()      {}

// ThisExpr represents the 'this' receiver reference.
type ThisExpr struct {
	SpanVal Span
}

func (n *ThisExpr) Span() Span { return n.SpanVal }
func (n *ThisExpr) node()      {}
func (n *ThisExpr) expr()      {}

// Binary represents a binary operation (a + b, a === b, a && b, ...).
type Binary struct {
	SpanVal Span
	Op      string
	Left    Expr
	Right   Expr
}

func (n *Binary) Span() Span { return n.SpanVal }
func (n *Binary) node()      {}
func (n *Binary) expr()      {}

// Unary represents a prefix operation (-a, !a).
type Unary struct {
	SpanVal Span
	Op      string
	Operand Expr
}

func (n *Unary) Span() Span { return n.SpanVal }
func (n *Unary) node()      {}
func (n *Unary) expr()      {}

// Assign represents an assignment (target = value, target += value).
// Target is an Identifier, MemberAccess, or Index expression.
type Assign struct {
	SpanVal Span
	Op      string // "=", "+=", "-="
	Target  Expr
	Value   Expr
}

func (n *Assign) Span() Span { return n.SpanVal }
func (n *Assign) node()      {}
func (n *Assign) expr()      {}

// Call represents a call expression callee(args...).
type Call struct {
	SpanVal Span
	Callee  Expr
	Args    []Expr
}

func (n *Call) Span() Span { return n.SpanVal }
func (n *Call) node()      {}
func (n *Call) expr()      {}

// MemberAccess represents obj.prop.
type MemberAccess struct {
	SpanVal  Span
	Receiver Expr
	Name     string
}

func (n *MemberAccess) Span() Span { return n.SpanVal }
func (n *MemberAccess) node()      {}
func (n *MemberAccess) expr()      {}

// Index represents obj[expr].
type Index struct {
	SpanVal  Span
	Receiver Expr
	Key      Expr
}

func (n *Index) Span() Span { return n.SpanVal }
func (n *Index) node()      {}
func (n *Index) expr()      {}

// Await represents await expr. Only valid inside async bodies.
type Await struct {
	SpanVal Span
	Operand Expr
}

func (n *Await) Span() Span { return n.SpanVal }
func (n *Await) node()      {}
func (n *Await) expr()      {}

// New represents new Class(args...).
type New struct {
	SpanVal   Span
	ClassName string
	Args      []Expr
}

func (n *New) Span() Span { return n.SpanVal }
func (n *New) node()      {}
func (n *New) expr()      {}

// SuperCall represents super(args...) inside a constructor.
type SuperCall struct {
	SpanVal Span
	Args    []Expr
}

func (n *SuperCall) Span() Span { return n.SpanVal }
func (n *SuperCall) node()      {}
func (n *SuperCall) expr()      {}

// SuperMethodCall represents super.method(args...).
type SuperMethodCall struct {
	SpanVal Span
	Name    string
	Args    []Expr
}

func (n *SuperMethodCall) Span() Span { return n.SpanVal }
func (n *SuperMethodCall) node()      {}
func (n *SuperMethodCall) expr()      {}

// ArrowFn represents (a, b) => expr or (a, b) => { stmts }.
type ArrowFn struct {
	SpanVal Span
	Params  []Param
	Body    []Stmt // expression bodies are wrapped in a Return
}

func (n *ArrowFn) Span() Span { return n.SpanVal }
func (n *ArrowFn) node()      {}
func (n *ArrowFn) expr()      {}

// Cast represents expr as Type. The type assertion was already checked
// by the front end; at runtime it is a no-op.
type Cast struct {
	SpanVal  Span
	Operand  Expr
	TypeName string
}

func (n *Cast) Span() Span { return n.SpanVal }
func (n *Cast) node()      {}
func (n *Cast) expr()      {}

// NonNull represents expr!. A front-end assertion; a runtime no-op.
type NonNull struct {
	SpanVal Span
	Operand Expr
}

func (n *NonNull) Span() Span { return n.SpanVal }
func (n *NonNull) node()      {}
func (n *NonNull) expr()      {}

// ---------------------------------------------------------------------------
// Statement nodes
// ---------------------------------------------------------------------------

// Stmt is the interface for statement nodes.
type Stmt interface {
	Node
	stmt() // marker method
}

// ExprStmt is an expression used as a statement.
type ExprStmt struct {
	SpanVal Span
	Expr    Expr
}

func (n *ExprStmt) Span() Span { return n.SpanVal }
func (n *ExprStmt) node()      {}
func (n *ExprStmt) stmt()      {}

// VarDecl represents let/const declarations.
type VarDecl struct {
	SpanVal Span
	Name    string
	Init    Expr // nil means undefined
	Const   bool
}

func (n *VarDecl) Span() Span { return n.SpanVal }
func (n *VarDecl) node()      {}
func (n *VarDecl) stmt()      {}

// Return represents a return statement.
type Return struct {
	SpanVal Span
	Value   Expr // nil means return undefined
}

func (n *Return) Span() Span { return n.SpanVal }
func (n *Return) node()      {}
func (n *Return) stmt()      {}

// If represents if/else.
type If struct {
	SpanVal Span
	Cond    Expr
	Then    []Stmt
	Else    []Stmt // nil when absent
}

func (n *If) Span() Span { return n.SpanVal }
func (n *If) node()      {}
func (n *If) stmt()      {}

// While represents a while loop.
type While struct {
	SpanVal Span
	Cond    Expr
	Body    []Stmt
}

func (n *While) Span() Span { return n.SpanVal }
func (n *While) node()      {}
func (n *While) stmt()      {}

// For represents a classic for loop. Init/Cond/Post may each be nil.
type For struct {
	SpanVal Span
	Init    Stmt
	Cond    Expr
	Post    Expr
	Body    []Stmt
}

func (n *For) Span() Span { return n.SpanVal }
func (n *For) node()      {}
func (n *For) stmt()      {}

// ForOf represents for (let x of iterable).
type ForOf struct {
	SpanVal  Span
	VarName  string
	Iterable Expr
	Body     []Stmt
}

func (n *ForOf) Span() Span { return n.SpanVal }
func (n *ForOf) node()      {}
func (n *ForOf) stmt()      {}

// Try represents try/catch.
type Try struct {
	SpanVal   Span
	Body      []Stmt
	CatchVar  string // "" when the catch binding is omitted
	CatchBody []Stmt
}

func (n *Try) Span() Span { return n.SpanVal }
func (n *Try) node()      {}
func (n *Try) stmt()      {}

// Throw represents a throw statement.
type Throw struct {
	SpanVal Span
	Value   Expr
}

func (n *Throw) Span() Span { return n.SpanVal }
func (n *Throw) node()      {}
func (n *Throw) stmt()      {}

// Block represents a nested { ... } statement block.
type Block struct {
	SpanVal Span
	Body    []Stmt
}

func (n *Block) Span() Span { return n.SpanVal }
func (n *Block) node()      {}
func (n *Block) stmt()      {}

// ---------------------------------------------------------------------------
// Declarations
// ---------------------------------------------------------------------------

// Param represents a declared parameter with an optional default
// expression and an optional (erased) type annotation.
type Param struct {
	Name     string
	TypeName string // "" when unannotated
	Default  Expr   // nil when absent
}

// GenericParam describes a generic type parameter with an optional
// constraint. Generics are erased at runtime; the descriptor is kept
// for reflection and diagnostics.
type GenericParam struct {
	Name       string
	Constraint string // "" when unconstrained
}

// FieldDecl represents an instance or static field declaration.
type FieldDecl struct {
	SpanVal  Span
	Name     string
	TypeName string
	Init     Expr // nil means undefined
	IsStatic bool
}

func (n *FieldDecl) Span() Span { return n.SpanVal }
func (n *FieldDecl) node()      {}

// MethodDecl represents a method, constructor, or accessor body.
type MethodDecl struct {
	SpanVal    Span
	Name       string
	Params     []Param
	Body       []Stmt // nil for abstract methods
	IsStatic   bool
	IsAsync    bool
	IsAbstract bool
	IsOverride bool
}

func (n *MethodDecl) Span() Span { return n.SpanVal }
func (n *MethodDecl) node()      {}

// AccessorKind distinguishes getters from setters.
type AccessorKind int

const (
	GetterAccessor AccessorKind = iota
	SetterAccessor
)

// AccessorDecl represents a get/set accessor.
type AccessorDecl struct {
	SpanVal    Span
	Kind       AccessorKind
	Name       string
	SetterParam string // setter parameter name; "" for getters
	Body       []Stmt  // nil for abstract accessors
	IsAbstract bool
}

func (n *AccessorDecl) Span() Span { return n.SpanVal }
func (n *AccessorDecl) node()      {}

// ClassDecl represents a class declaration.
type ClassDecl struct {
	SpanVal       Span
	Name          string
	Superclass    string // "" when no extends clause
	GenericParams []GenericParam
	IsAbstract    bool
	Fields        []*FieldDecl
	Constructor   *MethodDecl // nil when implicit
	Methods       []*MethodDecl
	Accessors     []*AccessorDecl
}

func (n *ClassDecl) Span() Span { return n.SpanVal }
func (n *ClassDecl) node()      {}

// FunctionDecl represents a top-level function.
type FunctionDecl struct {
	SpanVal Span
	Name    string
	Params  []Param
	Body    []Stmt
	IsAsync bool
}

func (n *FunctionDecl) Span() Span { return n.SpanVal }
func (n *FunctionDecl) node()      {}

// ---------------------------------------------------------------------------
// Top-level structure
// ---------------------------------------------------------------------------

// Program represents a complete parsed program.
type Program struct {
	SpanVal    Span
	Classes    []*ClassDecl
	Functions  []*FunctionDecl
	Statements []Stmt // top-level statements (scripts)
}

func (n *Program) Span() Span { return n.SpanVal }
func (n *Program) node()      {}

// MakeSpan creates a span from start and end positions.
func MakeSpan(start, end Position) Span {
	return Span{Start: start, End: end}
}
