// Package codegen lowers the scheduled polyhedral model to a
// block-structured imperative module in a C-family dialect, lays out
// the state struct and emits the channel report.
package codegen

// Type is a C-family type.
type Type interface{ typeNode() }

type BasicType struct{ Name string }
type PointerType struct{ Elem Type }

func (*BasicType) typeNode()   {}
func (*PointerType) typeNode() {}

var (
	VoidType   = &BasicType{Name: "void"}
	IntCType   = &BasicType{Name: "int"}
	BoolCType  = &BasicType{Name: "bool"}
	FloatType  = &BasicType{Name: "float"}
	DoubleType = &BasicType{Name: "double"}
)

// Expr is a C-family expression.
type Expr interface{ exprNode() }

type ID struct{ Name string }
type IntLit struct{ Value int64 }
type RealLit struct{ Value float64 }
type BoolLit struct{ Value bool }

// Unop applies a prefix operator: "-", "!", "&".
type Unop struct {
	Op      string
	Operand Expr
}

// Binop applies an infix operator, including "=" for assignment.
type Binop struct {
	Op   string
	L, R Expr
}

type Call struct {
	Name string
	Args []Expr
}

type Cast struct {
	Type    Type
	Operand Expr
}

type ArrayAccess struct {
	Base  Expr
	Index []Expr
}

// Member accesses a struct field, through a pointer when Pointer is
// set.
type Member struct {
	Base    Expr
	Name    string
	Pointer bool
}

func (*ID) exprNode()          {}
func (*IntLit) exprNode()      {}
func (*RealLit) exprNode()     {}
func (*BoolLit) exprNode()     {}
func (*Unop) exprNode()        {}
func (*Binop) exprNode()       {}
func (*Call) exprNode()        {}
func (*Cast) exprNode()        {}
func (*ArrayAccess) exprNode() {}
func (*Member) exprNode()      {}

// Stmt is a C-family statement.
type Stmt interface{ stmtNode() }

type ExprStmt struct{ Expr Expr }

type VarDecl struct {
	Type Type
	Name string
	Dims []int64
	Init Expr
}

type BlockStmt struct{ Stmts []Stmt }

type ForStmt struct {
	Var   string
	Lower int64
	Upper int64
	Step  int64
	Body  *BlockStmt
}

type IfStmt struct {
	Cond Expr
	Then *BlockStmt
	Else *BlockStmt
}

type ReturnStmt struct{ Value Expr }

func (*ExprStmt) stmtNode()   {}
func (*VarDecl) stmtNode()    {}
func (*BlockStmt) stmtNode()  {}
func (*ForStmt) stmtNode()    {}
func (*IfStmt) stmtNode()     {}
func (*ReturnStmt) stmtNode() {}

// Param is one function parameter; Dims non-nil declares an array
// parameter, with 0 for an unbounded dimension.
type Param struct {
	Type Type
	Name string
	Dims []int64
}

type FuncDef struct {
	Name   string
	Result Type
	Params []Param
	Body   *BlockStmt
	Inline bool
}

// FuncDecl declares a function the host supplies.
type FuncDecl struct {
	Name   string
	Result Type
	Params []Param
}

type Field struct {
	Type Type
	Name string
	Dims []int64
	Init Expr
}

type StructDef struct {
	Name   string
	Fields []Field
}

// Decl is a namespace-level declaration.
type Decl interface{ declNode() }

func (*FuncDef) declNode()   {}
func (*FuncDecl) declNode()  {}
func (*StructDef) declNode() {}

// Module is one generated translation unit.
type Module struct {
	Includes  []string
	Namespace string
	Decls     []Decl
}

// builder accumulates statements into nested blocks, in the manner of
// an insertion-point code builder.
type builder struct {
	stack []*[]Stmt
}

func newBuilder(dst *[]Stmt) *builder {
	return &builder{stack: []*[]Stmt{dst}}
}

func (b *builder) add(s Stmt) {
	top := b.stack[len(b.stack)-1]
	*top = append(*top, s)
}

func (b *builder) push(dst *[]Stmt) { b.stack = append(b.stack, dst) }

func (b *builder) pop() { b.stack = b.stack[:len(b.stack)-1] }
