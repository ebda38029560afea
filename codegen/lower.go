package codegen

import (
	"fmt"

	"github.com/arrplang/arrp/polyhedral"
	"github.com/arrplang/arrp/schedule"
	"github.com/arrplang/arrp/token"
	"github.com/pkg/errors"
)

// Lowerer walks the scheduler's loop-nest AST and emits each
// statement's expression tree against the buffer-access model.
type Lowerer struct {
	model   *polyhedral.Model
	sched   *schedule.Schedule
	state   string
	current *polyhedral.Statement

	// inPeriod selects the periodic access model: intra-period
	// coordinates, rebased access constants and phase rotation.
	inPeriod bool

	tmpCount int
}

func NewLowerer(model *polyhedral.Model, sched *schedule.Schedule) *Lowerer {
	return &Lowerer{model: model, sched: sched, state: "s"}
}

func emitErrorf(format string, args ...any) error {
	return &token.CompileError{Kind: token.EmitError, Msg: fmt.Sprintf(format, args...)}
}

func (lw *Lowerer) setInPeriod(v bool) { lw.inPeriod = v }

func loopVar(v int) string { return fmt.Sprintf("i%d", v) }

// genNode lowers one scheduler AST node into the builder.
func (lw *Lowerer) genNode(node schedule.Node, b *builder) error {
	switch n := node.(type) {
	case *schedule.Block:
		for _, child := range n.Nodes {
			if err := lw.genNode(child, b); err != nil {
				return err
			}
		}
		return nil

	case *schedule.For:
		body := &BlockStmt{}
		loop := &ForStmt{
			Var:   loopVar(n.Var),
			Lower: n.Lower,
			Upper: n.Upper,
			Step:  n.Step,
			Body:  body,
		}
		b.add(loop)
		b.push(&body.Stmts)
		err := lw.genNode(n.Body, b)
		b.pop()
		return err

	case *schedule.If:
		then := &BlockStmt{}
		stmt := &IfStmt{
			Cond: &Binop{Op: "<", L: &ID{Name: loopVar(n.Var)}, R: &IntLit{Value: n.Below}},
			Then: then,
		}
		b.add(stmt)
		b.push(&then.Stmts)
		err := lw.genNode(n.Body, b)
		b.pop()
		return err

	case *schedule.StmtCall:
		index := make([]Expr, len(n.Index))
		for i, ix := range n.Index {
			var e Expr = &ID{Name: loopVar(ix.Var)}
			if ix.Offset != 0 {
				e = &Binop{Op: "+", L: e, R: &IntLit{Value: ix.Offset}}
			}
			index[i] = e
		}
		return lw.genStatement(n.Stmt, index, b)
	}
	return errors.Wrap(emitErrorf("unexpected schedule node %T", node), "loop nest")
}

func (lw *Lowerer) genStatement(stmt *polyhedral.Statement, index []Expr, b *builder) error {
	lw.current = stmt

	expr, err := lw.genExpr(stmt.Expr, index, b)
	if err != nil {
		return err
	}

	if stmt.Write.Array != nil {
		arrayIndex := lw.mappedIndex(index, lw.accessMatrix(stmt.Write.Array, stmt.Write.Matrix))
		dst := lw.bufferAccess(stmt.Write.Array, arrayIndex)
		b.add(&ExprStmt{Expr: &Binop{Op: "=", L: dst, R: expr}})
	} else {
		b.add(&ExprStmt{Expr: expr})
	}
	return nil
}

// accessMatrix rebases an access for the periodic phase: intra-period
// coordinates shift the streaming row by the sink's initialization
// count and drop the source's own.
func (lw *Lowerer) accessMatrix(array *polyhedral.Array, m polyhedral.AffineMatrix) polyhedral.AffineMatrix {
	if !lw.inPeriod || array.Arg || !array.IsInfinite || array.Producer == nil {
		return m
	}
	sink := lw.current
	if sink.Dimension < 0 {
		return m
	}
	rebased := m.Clone()
	rebased.Const[0] += m.Coef[0][sink.Dimension]*sink.InitCount - array.Producer.InitCount
	return rebased
}

func (lw *Lowerer) genExpr(expr polyhedral.Expr, index []Expr, b *builder) (Expr, error) {
	switch e := expr.(type) {
	case *polyhedral.Primitive:
		return lw.genPrimitive(e, index, b)

	case *polyhedral.IteratorRead:
		if e.Index < 0 || e.Index >= len(index) {
			return nil, emitErrorf("iterator read %d outside domain of %s", e.Index, lw.current.Name)
		}
		return index[e.Index], nil

	case *polyhedral.ArrayRead:
		target := lw.mappedIndex(index, lw.accessMatrix(e.Array, e.Matrix))
		return lw.bufferAccess(e.Array, target), nil

	case *polyhedral.ConstInt:
		return &IntLit{Value: e.Value}, nil
	case *polyhedral.ConstReal:
		return &RealLit{Value: e.Value}, nil
	case *polyhedral.ConstBool:
		return &BoolLit{Value: e.Value}, nil

	case *polyhedral.ExternalCall:
		target := lw.mappedIndex(index, lw.accessMatrix(e.Source.Array, e.Source.Matrix))
		if e.Source.Array.Arg {
			// Kernel argument channel: read the parameter directly.
			return &ArrayAccess{Base: &ID{Name: e.Source.Array.Name}, Index: target}, nil
		}
		access := lw.bufferAccess(e.Source.Array, target)
		return &Call{Name: e.Name, Args: []Expr{&Unop{Op: "&", Operand: access}}}, nil
	}

	return nil, emitErrorf("unexpected expression type %T", expr)
}

func exprType(e polyhedral.Expr) polyhedral.PrimType {
	switch e := e.(type) {
	case *polyhedral.Primitive:
		return e.Type
	case *polyhedral.ConstInt:
		return polyhedral.IntType
	case *polyhedral.ConstBool:
		return polyhedral.BoolType
	case *polyhedral.ArrayRead:
		return e.Array.Type
	case *polyhedral.IteratorRead:
		return polyhedral.IntType
	}
	return polyhedral.Real64Type
}

func typeFor(t polyhedral.PrimType) Type {
	switch t {
	case polyhedral.BoolType:
		return BoolCType
	case polyhedral.IntType:
		return IntCType
	case polyhedral.Real32Type:
		return FloatType
	default:
		return DoubleType
	}
}

func (lw *Lowerer) newTemp() string {
	name := fmt.Sprintf("t%d", lw.tmpCount)
	lw.tmpCount++
	return name
}

var simpleBinops = map[polyhedral.PrimOp]string{
	polyhedral.Add:        "+",
	polyhedral.Subtract:   "-",
	polyhedral.Multiply:   "*",
	polyhedral.CompareEq:  "==",
	polyhedral.CompareNeq: "!=",
	polyhedral.CompareL:   "<",
	polyhedral.CompareLeq: "<=",
	polyhedral.CompareG:   ">",
	polyhedral.CompareGeq: ">=",
	polyhedral.LogicAnd:   "&&",
	polyhedral.LogicOr:    "||",
}

var callOps = map[polyhedral.PrimOp]string{
	polyhedral.Abs: "abs", polyhedral.Max: "max", polyhedral.Min: "min",
	polyhedral.Log: "log", polyhedral.Log2: "log2", polyhedral.Log10: "log10",
	polyhedral.Exp: "exp", polyhedral.Exp2: "exp2", polyhedral.Sqrt: "sqrt",
	polyhedral.Sin: "sin", polyhedral.Cos: "cos", polyhedral.Tan: "tan",
	polyhedral.Asin: "asin", polyhedral.Acos: "acos", polyhedral.Atan: "atan",
}

func (lw *Lowerer) genPrimitive(expr *polyhedral.Primitive, index []Expr, b *builder) (Expr, error) {
	if expr.Op == polyhedral.Conditional {
		return lw.genConditional(expr, index, b)
	}

	operands := make([]Expr, len(expr.Operands))
	for i, operand := range expr.Operands {
		e, err := lw.genExpr(operand, index, b)
		if err != nil {
			return nil, err
		}
		operands[i] = e
	}

	if op, ok := simpleBinops[expr.Op]; ok {
		return &Binop{Op: op, L: operands[0], R: operands[1]}, nil
	}
	if name, ok := callOps[expr.Op]; ok {
		return &Call{Name: name, Args: operands}, nil
	}

	switch expr.Op {
	case polyhedral.Negate:
		if expr.Type == polyhedral.BoolType {
			return &Unop{Op: "!", Operand: operands[0]}, nil
		}
		return &Unop{Op: "-", Operand: operands[0]}, nil

	case polyhedral.Divide:
		// Integer operands promote to real first.
		if !exprType(expr.Operands[0]).IsReal() && !exprType(expr.Operands[1]).IsReal() {
			operands[0] = &Cast{Type: DoubleType, Operand: operands[0]}
		}
		return &Binop{Op: "/", L: operands[0], R: operands[1]}, nil

	case polyhedral.DivideInteger:
		result := &Binop{Op: "/", L: operands[0], R: operands[1]}
		if exprType(expr.Operands[0]) == polyhedral.IntType &&
			exprType(expr.Operands[1]) == polyhedral.IntType {
			return result, nil
		}
		return &Cast{Type: IntCType, Operand: &Call{Name: "trunc", Args: []Expr{result}}}, nil

	case polyhedral.Modulo:
		return &Call{Name: "remainder", Args: operands}, nil

	case polyhedral.Raise:
		return &Call{Name: "pow", Args: operands}, nil

	case polyhedral.Floor:
		if exprType(expr.Operands[0]) == polyhedral.IntType {
			return operands[0], nil
		}
		return &Call{Name: "floor", Args: operands}, nil

	case polyhedral.Ceil:
		if exprType(expr.Operands[0]) == polyhedral.IntType {
			return operands[0], nil
		}
		return &Call{Name: "ceil", Args: operands}, nil
	}

	return nil, emitErrorf("unexpected primitive op: %s", expr.Op)
}

// genConditional materializes a temporary and branches; each arm
// assigns its own value and the untaken arm is never evaluated.
func (lw *Lowerer) genConditional(expr *polyhedral.Primitive, index []Expr, b *builder) (Expr, error) {
	name := lw.newTemp()
	b.add(&VarDecl{Type: typeFor(expr.Type), Name: name})
	id := &ID{Name: name}

	cond, err := lw.genExpr(expr.Operands[0], index, b)
	if err != nil {
		return nil, err
	}

	thenBlock := &BlockStmt{}
	b.push(&thenBlock.Stmts)
	trueExpr, err := lw.genExpr(expr.Operands[1], index, b)
	if err != nil {
		b.pop()
		return nil, err
	}
	b.add(&ExprStmt{Expr: &Binop{Op: "=", L: id, R: trueExpr}})
	b.pop()

	elseBlock := &BlockStmt{}
	b.push(&elseBlock.Stmts)
	falseExpr, err := lw.genExpr(expr.Operands[2], index, b)
	if err != nil {
		b.pop()
		return nil, err
	}
	b.add(&ExprStmt{Expr: &Binop{Op: "=", L: id, R: falseExpr}})
	b.pop()

	b.add(&IfStmt{Cond: cond, Then: thenBlock, Else: elseBlock})
	return id, nil
}

// bufferAccess emits an element access with phase rotation and
// floor-remainder wrap-around.
func (lw *Lowerer) bufferAccess(array *polyhedral.Array, index []Expr) Expr {
	info := lw.sched.Buffers[array.Name]

	var buffer Expr = &ID{Name: array.Name}
	if info != nil && !info.OnStack {
		buffer = &Member{Base: &ID{Name: lw.state}, Name: array.Name, Pointer: true}
	}

	if len(array.BufferSize) == 1 && array.BufferSize[0] == 1 {
		return buffer
	}

	if lw.inPeriod && info != nil && info.HasPhase {
		phase := &Member{Base: &ID{Name: lw.state}, Name: array.Name + "_ph", Pointer: true}
		index[0] = &Binop{Op: "+", L: index[0], R: phase}
	}

	for dim := range index {
		streaming := array.IsInfinite && dim == 0
		domainSize := array.Size[dim]
		if streaming {
			domainSize = array.Period
		}
		bufferSize := array.BufferSize[dim]

		if bufferSize == 1 {
			index[dim] = &IntLit{Value: 0}
			continue
		}
		if bufferSize < domainSize || streaming {
			index[dim] = &Call{Name: "remainder",
				Args: []Expr{index[dim], &IntLit{Value: bufferSize}}}
		}
	}

	return &ArrayAccess{Base: buffer, Index: index}
}

// mappedIndex applies an affine access matrix to index expressions.
func (lw *Lowerer) mappedIndex(index []Expr, m polyhedral.AffineMatrix) []Expr {
	target := make([]Expr, 0, m.OutDim)

	for outDim := 0; outDim < m.OutDim; outDim++ {
		var val Expr
		for inDim := 0; inDim < m.InDim; inDim++ {
			coef := m.Coef[outDim][inDim]
			if coef == 0 {
				continue
			}
			term := index[inDim]
			if coef != 1 {
				term = &Binop{Op: "*", L: term, R: &IntLit{Value: coef}}
			}
			if val == nil {
				val = term
			} else {
				val = &Binop{Op: "+", L: val, R: term}
			}
		}
		c := m.Const[outDim]
		if val != nil && c != 0 {
			val = &Binop{Op: "+", L: val, R: &IntLit{Value: c}}
		}
		if val == nil {
			val = &IntLit{Value: c}
		}
		target = append(target, val)
	}
	return target
}
