package polyhedral

import (
	"fmt"

	"github.com/arrplang/arrp/ast"
	"github.com/arrplang/arrp/sema"
	"github.com/arrplang/arrp/token"
)

// Input declares one kernel argument channel.
type Input struct {
	Name string
	Type PrimType
	Size []int64
}

// binding is the value an identifier stands for during lowering.
// Scalar bindings hold an inline expression; array bindings map the
// consumer's value space into the bound array. The final access matrix
// for a reference with value map M (iteration domain -> value space)
// is dom (padded to the domain rank) plus val composed with M.
type binding struct {
	scalar Expr

	array *Array
	outer int
	dom   AffineMatrix // InDim = outer
	val   AffineMatrix // InDim = value rank
}

type bscope struct {
	parent *bscope
	names  map[string]*binding
}

func newBScope(parent *bscope) *bscope {
	return &bscope{parent: parent, names: make(map[string]*binding)}
}

func (sc *bscope) lookup(name string) (*binding, bool) {
	for s := sc; s != nil; s = s.parent {
		if b, ok := s.names[name]; ok {
			return b, true
		}
	}
	return nil, false
}

// Builder lowers a type-checked program to the polyhedral model. One
// statement is created per produced array value; user function
// instances are inlined.
type Builder struct {
	env    ast.Environment
	model  *Model
	global *bscope
	names  map[string]int
}

// Build constructs the model for a checked top-level symbol. For
// function symbols, instance is the monomorphized instance produced by
// the checker and inputs describe its parameters in order.
func Build(env ast.Environment, sym *ast.Symbol, instance *sema.Func, inputs []Input) (*Model, error) {
	b := &Builder{
		env:    env,
		model:  &Model{},
		global: newBScope(nil),
		names:  make(map[string]int),
	}

	var block *ast.Node
	if instance != nil {
		if len(inputs) != len(instance.Params) {
			return nil, polyErrorf("input count %d does not match %d parameters",
				len(inputs), len(instance.Params))
		}
		for i, in := range inputs {
			if err := b.addInput(i, in, instance.Params[i]); err != nil {
				return nil, err
			}
		}
		block = instance.Statement.Elems[2]
	} else {
		if len(inputs) > 0 {
			return nil, polyErrorf("expression symbol '%s' takes no inputs", sym.Name)
		}
		block = sym.Source.Elems[2]
	}

	out, err := b.materialize(sym.Name, block, b.global, nil)
	if err != nil {
		return nil, err
	}
	if out.array == nil {
		// A scalar result still needs a cell to live in.
		out, err = b.materializeExpr(sym.Name, out.scalar, scalarShape(), nil)
		if err != nil {
			return nil, err
		}
	}
	b.model.Output = out.array
	return b.model, nil
}

func polyErrorf(format string, args ...any) error {
	return &token.CompileError{Kind: token.PolyhedralError, Msg: fmt.Sprintf(format, args...)}
}

func scalarShape() []int64 { return []int64{1} }

func (b *Builder) uniqueName(base string) string {
	n := b.names[base]
	b.names[base] = n + 1
	if n == 0 {
		return base
	}
	return fmt.Sprintf("%s$%d", base, n)
}

func (b *Builder) addInput(index int, in Input, param string) error {
	if err := checkDomain(in.Size); err != nil {
		return err
	}
	// The argument channel is addressed by its positional parameter
	// name; the buffer keeps the channel name.
	arg := &Array{
		Name: fmt.Sprintf("in%d", index),
		Type: in.Type,
		Size: append([]int64(nil), in.Size...),
		Arg:  true,
	}
	buf := &Array{
		Name:       b.uniqueName(in.Name),
		Type:       in.Type,
		Size:       append([]int64(nil), in.Size...),
		IsInfinite: len(in.Size) > 0 && in.Size[0] == Infinite,
	}
	arg.ArgIndex = index
	b.addStatement(in.Size, &ExternalCall{
		Name:   in.Name,
		Source: AccessRelation{Array: arg, Matrix: Identity(len(in.Size))},
	}, buf)
	b.model.Inputs = append(b.model.Inputs, buf)
	b.global.names[param] = bindingIdentity(buf, 0)
	return nil
}

// checkDomain enforces the canonical domain shape: at most one
// infinite dimension, and only as the outermost.
func checkDomain(size []int64) error {
	for i, d := range size {
		if d == Infinite && i != 0 {
			return polyErrorf("infinite dimension must be outermost")
		}
		if d != Infinite && d < 1 {
			return polyErrorf("invalid domain extent %d", d)
		}
	}
	return nil
}

func (b *Builder) addStatement(domain []int64, expr Expr, target *Array) *Statement {
	stmt := &Statement{
		Name:      fmt.Sprintf("S_%d", len(b.model.Statements)),
		Domain:    append([]int64(nil), domain...),
		Expr:      expr,
		Dimension: -1,
		Write:     AccessRelation{Array: target, Matrix: Identity(len(domain))},
	}
	target.Producer = stmt
	b.model.Statements = append(b.model.Statements, stmt)
	b.model.Arrays = append(b.model.Arrays, target)
	return stmt
}

// bindingIdentity exposes an array whose trailing dimensions are the
// value space verbatim.
func bindingIdentity(arr *Array, outer int) *binding {
	rank := len(arr.Size)
	dom := NewAffineMatrix(outer, rank)
	for r := 0; r < outer; r++ {
		dom.Coef[r][r] = 1
	}
	val := NewAffineMatrix(rank-outer, rank)
	for r := outer; r < rank; r++ {
		val.Coef[r][r-outer] = 1
	}
	return &binding{array: arr, outer: outer, dom: dom, val: val}
}

// bindingReduced exposes an array whose trailing size-1 dimensions are
// dropped from the value space, matching the checker's reduced shapes.
func bindingReduced(arr *Array, outer int) *binding {
	rank := len(arr.Size)
	dom := NewAffineMatrix(outer, rank)
	for r := 0; r < outer; r++ {
		dom.Coef[r][r] = 1
	}
	v := 0
	for _, d := range arr.Size[outer:] {
		if d != 1 {
			v++
		}
	}
	val := NewAffineMatrix(v, rank)
	v = 0
	for i, d := range arr.Size[outer:] {
		if d != 1 {
			val.Coef[outer+i][v] = 1
			v++
		}
	}
	return &binding{array: arr, outer: outer, dom: dom, val: val}
}

// access lowers a reference to bnd under the value map m.
func (bnd *binding) access(m AffineMatrix) (Expr, error) {
	if bnd.scalar != nil {
		return bnd.scalar, nil
	}
	if bnd.val.InDim != m.OutDim {
		return nil, polyErrorf("access rank mismatch: bound %d, used %d", bnd.val.InDim, m.OutDim)
	}
	acc := bnd.val.After(m)
	for r := 0; r < bnd.outer; r++ {
		for c := 0; c < bnd.outer; c++ {
			acc.Coef[r][c] += bnd.dom.Coef[r][c]
		}
		acc.Const[r] += bnd.dom.Const[r]
	}
	// Padded dom rows beyond outer are already zero.
	for r := bnd.outer; r < bnd.dom.OutDim; r++ {
		acc.Const[r] += bnd.dom.Const[r]
		for c := 0; c < bnd.outer; c++ {
			acc.Coef[r][c] += bnd.dom.Coef[r][c]
		}
	}
	return &ArrayRead{Array: bnd.array, Matrix: acc}, nil
}

// materialize creates a statement computing node into a fresh array
// and returns a binding for it. Expression blocks bind their local
// statements first; identifiers and iteration forms reuse their own
// materializations instead of copying.
func (b *Builder) materialize(name string, node *ast.Node, sc *bscope, outer []int64) (*binding, error) {
	if node.Kind == ast.ExpressionBlock {
		inner := newBScope(sc)
		if err := b.bindStmts(node.Elems[0], inner, outer); err != nil {
			return nil, err
		}
		return b.materialize(name, node.Elems[1], inner, outer)
	}

	switch node.Kind {
	case ast.Identifier:
		return b.resolve(node, sc)
	case ast.ForExpression:
		return b.lowerFor(name, node, sc, outer)
	case ast.ReduceExpression:
		return b.lowerReduce(name, node, sc, outer)
	}

	shape := sema.ShapeOf(semType(node))
	domain := append(append([]int64(nil), outer...), shape...)
	if len(domain) == 0 {
		domain = scalarShape()
	}
	if err := checkDomain(domain); err != nil {
		return nil, err
	}

	m := valueSelector(len(domain), len(outer), len(shape))
	expr, err := b.lower(node, m, sc, outer)
	if err != nil {
		return nil, err
	}
	return b.finishStatement(name, expr, domain, len(outer), node)
}

func (b *Builder) materializeExpr(name string, expr Expr, domain []int64, outerDims []int64) (*binding, error) {
	arr := &Array{
		Name: b.uniqueName(name),
		Type: Real64Type,
		Size: append([]int64(nil), domain...),
	}
	arr.IsInfinite = len(domain) > 0 && domain[0] == Infinite
	b.addStatement(domain, expr, arr)
	return bindingIdentity(arr, len(outerDims)), nil
}

func (b *Builder) finishStatement(name string, expr Expr, domain []int64, outer int, node *ast.Node) (*binding, error) {
	arr := &Array{
		Name: b.uniqueName(name),
		Type: elemPrim(semType(node)),
		Size: append([]int64(nil), domain...),
	}
	arr.IsInfinite = len(domain) > 0 && domain[0] == Infinite
	b.addStatement(domain, expr, arr)
	return bindingIdentity(arr, outer), nil
}

// valueSelector maps a statement domain onto its trailing value
// dimensions.
func valueSelector(domainRank, outer, valueRank int) AffineMatrix {
	m := NewAffineMatrix(domainRank, valueRank)
	for r := 0; r < valueRank; r++ {
		m.Coef[r][outer+r] = 1
	}
	return m
}

func scalarSelector(domainRank int) AffineMatrix {
	return NewAffineMatrix(domainRank, 0)
}

func (b *Builder) bindStmts(stmts *ast.Node, sc *bscope, outer []int64) error {
	if stmts == nil {
		return nil
	}
	for _, stmt := range stmts.Elems {
		if _, ok := semType(stmt).(*sema.Func); ok {
			continue
		}
		name := stmt.Elems[0].Ident
		bnd, err := b.materialize(name, stmt.Elems[2], sc, outer)
		if err != nil {
			return err
		}
		sc.names[name] = bnd
	}
	return nil
}

func (b *Builder) resolve(node *ast.Node, sc *bscope) (*binding, error) {
	name := node.Ident
	if bnd, ok := sc.lookup(name); ok {
		return bnd, nil
	}
	if bnd, ok := b.global.names[name]; ok {
		return bnd, nil
	}
	sym, ok := b.env[name]
	if !ok {
		return nil, polyErrorf("unresolved identifier '%s'", name)
	}
	if sym.Kind != ast.ExpressionSymbol {
		return nil, polyErrorf("identifier '%s' does not name a value", name)
	}
	bnd, err := b.materialize(name, sym.Source.Elems[2], b.global, nil)
	if err != nil {
		return nil, err
	}
	b.global.names[name] = bnd
	return bnd, nil
}

func semType(node *ast.Node) sema.Type {
	if node.Sem == nil {
		return nil
	}
	return node.Sem.(sema.Type)
}

// elemPrim maps a semantic type to the element type of its storage.
func elemPrim(t sema.Type) PrimType {
	switch t.(type) {
	case *sema.Boolean:
		return BoolType
	case *sema.Integer, *sema.Range:
		return IntType
	}
	return Real64Type
}

// lower translates an expression node into the model. m maps the
// current statement's iteration domain into the node's value space.
func (b *Builder) lower(node *ast.Node, m AffineMatrix, sc *bscope, outer []int64) (Expr, error) {
	switch node.Kind {
	case ast.IntegerNum:
		return &ConstInt{Value: node.Int}, nil
	case ast.RealNum:
		return &ConstReal{Value: node.Real}, nil

	case ast.Identifier:
		bnd, err := b.resolve(node, sc)
		if err != nil {
			return nil, err
		}
		return bnd.access(m)

	case ast.Negate:
		operand, err := b.lowerOperand(node.Elems[0], m, sc, outer)
		if err != nil {
			return nil, err
		}
		return &Primitive{Op: Negate, Operands: []Expr{operand}, Type: elemPrim(semType(node))}, nil

	case ast.Add, ast.Subtract, ast.Multiply, ast.Divide, ast.Raise,
		ast.Lesser, ast.Greater, ast.LesserOrEqual, ast.GreaterOrEqual,
		ast.Equal, ast.NotEqual:
		lhs, err := b.lowerOperand(node.Elems[0], m, sc, outer)
		if err != nil {
			return nil, err
		}
		rhs, err := b.lowerOperand(node.Elems[1], m, sc, outer)
		if err != nil {
			return nil, err
		}
		return &Primitive{
			Op:       binopFor(node.Kind),
			Operands: []Expr{lhs, rhs},
			Type:     elemPrim(semType(node)),
		}, nil

	case ast.HashExpression:
		i := semType(node).(*sema.Integer)
		return &ConstInt{Value: i.Const}, nil

	case ast.Range:
		bnd, err := b.lowerRange(node, sc, outer)
		if err != nil {
			return nil, err
		}
		return bnd.access(m)

	case ast.SliceExpression:
		s, err := sliceMap(node)
		if err != nil {
			return nil, err
		}
		return b.lower(node.Elems[0], s.After(m), sc, outer)

	case ast.TransposeExpression:
		p := transposeMap(node)
		return b.lower(node.Elems[0], p.After(m), sc, outer)

	case ast.CallExpression:
		return b.lowerCall(node, m, sc, outer)

	case ast.ForExpression:
		bnd, err := b.lowerFor("it", node, sc, outer)
		if err != nil {
			return nil, err
		}
		return bnd.access(m)

	case ast.ReduceExpression:
		bnd, err := b.lowerReduce("acc", node, sc, outer)
		if err != nil {
			return nil, err
		}
		return bnd.access(m)

	case ast.ExpressionBlock:
		inner := newBScope(sc)
		if err := b.bindStmts(node.Elems[0], inner, outer); err != nil {
			return nil, err
		}
		return b.lower(node.Elems[1], m, inner, outer)
	}

	return nil, polyErrorf("unexpected expression kind %s", node.Kind)
}

// lowerOperand lowers a binary operand, broadcasting scalars.
func (b *Builder) lowerOperand(node *ast.Node, m AffineMatrix, sc *bscope, outer []int64) (Expr, error) {
	if len(sema.ShapeOf(semType(node))) == 0 {
		return b.lower(node, scalarSelector(m.InDim), sc, outer)
	}
	return b.lower(node, m, sc, outer)
}

func binopFor(kind ast.Kind) PrimOp {
	switch kind {
	case ast.Add:
		return Add
	case ast.Subtract:
		return Subtract
	case ast.Multiply:
		return Multiply
	case ast.Divide:
		return Divide
	case ast.Raise:
		return Raise
	case ast.Lesser:
		return CompareL
	case ast.Greater:
		return CompareG
	case ast.LesserOrEqual:
		return CompareLeq
	case ast.GreaterOrEqual:
		return CompareGeq
	case ast.Equal:
		return CompareEq
	case ast.NotEqual:
		return CompareNeq
	}
	panic("not a binary operator: " + kind.String())
}

var builtinOps = map[string]PrimOp{
	"log": Log, "log2": Log2, "log10": Log10,
	"exp": Exp, "exp2": Exp2, "sqrt": Sqrt,
	"sin": Sin, "cos": Cos, "tan": Tan,
	"asin": Asin, "acos": Acos, "atan": Atan,
	"ceil": Ceil, "floor": Floor,
	"abs": Abs, "max": Max, "pow": Raise,
}

func (b *Builder) lowerCall(node *ast.Node, m AffineMatrix, sc *bscope, outer []int64) (Expr, error) {
	funcNode, argsNode := node.Elems[0], node.Elems[1]

	switch f := funcNode.Sem.(type) {
	case *sema.Builtin:
		op, ok := builtinOps[f.Name]
		if !ok {
			return nil, polyErrorf("unknown builtin '%s'", f.Name)
		}
		operands := make([]Expr, len(argsNode.Elems))
		for i, argNode := range argsNode.Elems {
			operand, err := b.lowerOperand(argNode, m, sc, outer)
			if err != nil {
				return nil, err
			}
			operands[i] = operand
		}
		return &Primitive{Op: op, Operands: operands, Type: elemPrim(semType(node))}, nil

	case *sema.Func:
		// Monomorphized instance: inline with parameters bound.
		fscope := newBScope(sc)
		for i, argNode := range argsNode.Elems {
			var bnd *binding
			if len(sema.ShapeOf(semType(argNode))) == 0 {
				scalar, err := b.lower(argNode, scalarSelector(m.InDim), sc, outer)
				if err != nil {
					return nil, err
				}
				bnd = &binding{scalar: scalar}
			} else {
				var err error
				bnd, err = b.materialize(f.Params[i], argNode, sc, outer)
				if err != nil {
					return nil, err
				}
			}
			fscope.names[f.Params[i]] = bnd
		}
		body := f.Statement.Elems[2]
		inner := newBScope(fscope)
		if err := b.bindStmts(body.Elems[0], inner, outer); err != nil {
			return nil, err
		}
		return b.lower(body.Elems[1], m, inner, outer)

	case *sema.External:
		argNode := argsNode.Elems[0]
		arg, err := b.lower(argNode, m, sc, outer)
		if err != nil {
			return nil, err
		}
		read, ok := arg.(*ArrayRead)
		if !ok {
			bnd, err := b.materialize(f.Name+"_arg", argNode, sc, outer)
			if err != nil {
				return nil, err
			}
			e, err := bnd.access(m)
			if err != nil {
				return nil, err
			}
			read = e.(*ArrayRead)
		}
		return &ExternalCall{
			Name:   f.Name,
			Source: AccessRelation{Array: read.Array, Matrix: read.Matrix},
		}, nil
	}

	return nil, polyErrorf("call site without a resolved callee")
}

// sliceMap builds the map from the slice's value space into the
// sliced object's value space.
func sliceMap(node *ast.Node) (AffineMatrix, error) {
	objShape := sema.ShapeOf(semType(node.Elems[0]))
	selectors := node.Elems[1].Elems

	type dimSel struct {
		size   int64
		offset int64
	}
	dims := make([]dimSel, len(objShape))
	for d, size := range objShape {
		dims[d] = dimSel{size: size}
	}
	for d, selNode := range selectors {
		switch sel := semType(selNode).(type) {
		case *sema.Integer:
			dims[d] = dimSel{size: 1, offset: sel.Const - 1}
		case *sema.Range:
			dims[d] = dimSel{size: sel.ConstSize(), offset: sel.ConstStart() - 1}
		default:
			return AffineMatrix{}, polyErrorf("invalid slice selector type")
		}
	}

	resultRank := 0
	for _, d := range dims {
		if d.size != 1 {
			resultRank++
		}
	}

	s := NewAffineMatrix(resultRank, len(objShape))
	r := 0
	for d, sel := range dims {
		s.Const[d] = sel.offset
		if sel.size != 1 {
			s.Coef[d][r] = 1
			r++
		}
	}
	return s, nil
}

// transposeMap builds the permutation from the transposed value space
// into the object's value space.
func transposeMap(node *ast.Node) AffineMatrix {
	objShape := sema.ShapeOf(semType(node.Elems[0]))
	rank := len(objShape)

	selected := make([]bool, rank)
	order := make([]int, 0, rank)
	for _, dimNode := range node.Elems[1].Elems {
		d := int(dimNode.Int) - 1
		order = append(order, d)
		selected[d] = true
	}
	for d := 0; d < rank; d++ {
		if !selected[d] {
			order = append(order, d)
		}
	}

	p := NewAffineMatrix(rank, rank)
	for pos, d := range order {
		p.Coef[d][pos] = 1
	}
	return p
}

// lowerRange materializes a constant range as an index array.
func (b *Builder) lowerRange(node *ast.Node, sc *bscope, outer []int64) (*binding, error) {
	r, ok := semType(node).(*sema.Range)
	if !ok || !r.IsConstant() {
		return nil, polyErrorf("non-constant range cannot be materialized")
	}
	n := r.ConstSize()
	domain := append(append([]int64(nil), outer...), n)
	idx := len(outer)

	expr := &Primitive{
		Op:       Add,
		Operands: []Expr{&ConstInt{Value: r.ConstStart()}, &IteratorRead{Index: idx}},
		Type:     IntType,
	}
	arr := &Array{
		Name: b.uniqueName("rng"),
		Type: IntType,
		Size: append([]int64(nil), domain...),
	}
	b.addStatement(domain, expr, arr)
	return bindingReduced(arr, len(outer)), nil
}

// lowerFor materializes a bounded-window iteration: one window-copy
// statement per stream iterator, then the body statement over
// (count, body shape).
func (b *Builder) lowerFor(name string, node *ast.Node, sc *bscope, outer []int64) (*binding, error) {
	iterList, bodyNode := node.Elems[0], node.Elems[1]

	var count int64
	fscope := newBScope(sc)
	countIdx := len(outer)

	for i, iterNode := range iterList.Elems {
		it := iterNode.Sem.(*sema.Iterator)
		if i == 0 {
			count = it.Count
		}

		switch dt := semType(it.Domain).(type) {
		case *sema.Stream:
			bnd, err := b.windowCopy(it, dt, sc, outer, count)
			if err != nil {
				return nil, err
			}
			fscope.names[it.ID] = bnd

		case *sema.Range:
			start := dt.ConstStart()
			if it.Size == 1 {
				// The iterator value is the index itself.
				var pos Expr = &IteratorRead{Index: countIdx}
				if it.Hop != 1 {
					pos = &Primitive{Op: Multiply,
						Operands: []Expr{&ConstInt{Value: it.Hop}, pos}, Type: IntType}
				}
				fscope.names[it.ID] = &binding{scalar: &Primitive{
					Op:       Add,
					Operands: []Expr{&ConstInt{Value: start}, pos},
					Type:     IntType,
				}}
			} else {
				bnd, err := b.rangeWindowCopy(it, start, outer, count)
				if err != nil {
					return nil, err
				}
				fscope.names[it.ID] = bnd
			}

		default:
			return nil, polyErrorf("unsupported iteration domain")
		}
	}

	bodyShape := sema.ShapeOf(semType(bodyNode))
	outerBody := append(append([]int64(nil), outer...), count)
	domain := append(append([]int64(nil), outerBody...), bodyShape...)
	if err := checkDomain(domain); err != nil {
		return nil, err
	}

	inner := newBScope(fscope)
	if err := b.bindStmts(bodyNode.Elems[0], inner, outerBody); err != nil {
		return nil, err
	}
	m := valueSelector(len(domain), len(outerBody), len(bodyShape))
	expr, err := b.lower(bodyNode.Elems[1], m, inner, outerBody)
	if err != nil {
		return nil, err
	}

	arr := &Array{
		Name: b.uniqueName(name),
		Type: elemPrim(semType(node)),
		Size: append([]int64(nil), domain...),
	}
	arr.IsInfinite = len(domain) > 0 && domain[0] == Infinite
	b.addStatement(domain, expr, arr)
	return bindingReduced(arr, len(outer)), nil
}

// windowCopy materializes w[t, j, ...] = source[hop*t + j, ...].
func (b *Builder) windowCopy(it *sema.Iterator, dt *sema.Stream, sc *bscope, outer []int64, count int64) (*binding, error) {
	rest := dt.Size[1:]
	domain := append(append([]int64(nil), outer...), count, it.Size)
	domain = append(domain, rest...)
	if err := checkDomain(domain); err != nil {
		return nil, err
	}
	countIdx := len(outer)

	// Map the copy domain onto the source's value space.
	m := NewAffineMatrix(len(domain), dt.Rank())
	m.Coef[0][countIdx] = it.Hop
	m.Coef[0][countIdx+1] = 1
	for d := 1; d < dt.Rank(); d++ {
		m.Coef[d][countIdx+1+d] = 1
	}

	expr, err := b.lower(it.Domain, m, sc, outer)
	if err != nil {
		return nil, err
	}

	arr := &Array{
		Name: b.uniqueName("w"),
		Type: Real64Type,
		Size: append([]int64(nil), domain...),
	}
	arr.IsInfinite = len(domain) > 0 && domain[0] == Infinite
	b.addStatement(domain, expr, arr)
	return bindingReduced(arr, len(outer)+1), nil
}

// rangeWindowCopy materializes w[t, j] = start + hop*t + j for range
// iterators with a window size above one.
func (b *Builder) rangeWindowCopy(it *sema.Iterator, start int64, outer []int64, count int64) (*binding, error) {
	domain := append(append([]int64(nil), outer...), count, it.Size)
	countIdx := len(outer)

	var pos Expr = &IteratorRead{Index: countIdx}
	if it.Hop != 1 {
		pos = &Primitive{Op: Multiply,
			Operands: []Expr{&ConstInt{Value: it.Hop}, pos}, Type: IntType}
	}
	expr := &Primitive{
		Op: Add,
		Operands: []Expr{
			&ConstInt{Value: start},
			&Primitive{Op: Add,
				Operands: []Expr{pos, &IteratorRead{Index: countIdx + 1}}, Type: IntType},
		},
		Type: IntType,
	}
	arr := &Array{
		Name: b.uniqueName("w"),
		Type: IntType,
		Size: append([]int64(nil), domain...),
	}
	b.addStatement(domain, expr, arr)
	return bindingReduced(arr, len(outer)+1), nil
}

// lowerReduce materializes a reduction as an accumulation statement:
// the first iteration seeds the accumulator with the first element,
// later iterations rewrite it through the body.
func (b *Builder) lowerReduce(name string, node *ast.Node, sc *bscope, outer []int64) (*binding, error) {
	id1, id2 := node.Elems[0], node.Elems[1]
	domainNode, bodyNode := node.Elems[2], node.Elems[3]

	shape := sema.ShapeOf(semType(domainNode))
	if len(shape) != 1 {
		return nil, polyErrorf("reduction domain must be one-dimensional")
	}
	n := shape[0]
	if n == Infinite {
		return nil, polyErrorf("cannot reduce an infinite stream")
	}

	domain := append(append([]int64(nil), outer...), n)
	last := len(domain) - 1

	// The reduced element at the current index.
	mDom := NewAffineMatrix(len(domain), 1)
	mDom.Coef[0][last] = 1
	elem, err := b.lower(domainNode, mDom, sc, outer)
	if err != nil {
		return nil, err
	}

	arr := &Array{
		Name: b.uniqueName(name),
		Type: Real64Type,
		Size: append(append([]int64(nil), outer...), 1),
	}
	arr.IsInfinite = len(arr.Size) > 0 && arr.Size[0] == Infinite

	// Accumulator read: same outer point, cell 0.
	accMatrix := NewAffineMatrix(len(domain), len(arr.Size))
	for r := 0; r < len(outer); r++ {
		accMatrix.Coef[r][r] = 1
	}
	acc := &ArrayRead{Array: arr, Matrix: accMatrix}

	rscope := newBScope(sc)
	rscope.names[id1.Ident] = &binding{scalar: acc}
	rscope.names[id2.Ident] = &binding{scalar: elem}

	inner := newBScope(rscope)
	if err := b.bindStmts(bodyNode.Elems[0], inner, domain); err != nil {
		return nil, err
	}
	bodyExpr, err := b.lower(bodyNode.Elems[1], scalarSelector(len(domain)), inner, domain)
	if err != nil {
		return nil, err
	}

	expr := &Primitive{
		Op: Conditional,
		Operands: []Expr{
			&Primitive{Op: CompareEq,
				Operands: []Expr{&IteratorRead{Index: last}, &ConstInt{}}, Type: BoolType},
			elem,
			bodyExpr,
		},
		Type: Real64Type,
	}

	stmt := &Statement{
		Name:      fmt.Sprintf("S_%d", len(b.model.Statements)),
		Domain:    domain,
		Expr:      expr,
		Dimension: -1,
		Write:     AccessRelation{Array: arr, Matrix: accMatrix.Clone()},
	}
	arr.Producer = stmt
	b.model.Statements = append(b.model.Statements, stmt)
	b.model.Arrays = append(b.model.Arrays, arr)

	return bindingReduced(arr, len(outer)), nil
}
