package sema

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"

	"github.com/arrplang/arrp/ast"
	"github.com/arrplang/arrp/token"
)

// Session carries the process-local mutable state shared by the
// compilation stages: the monotone counter for monomorphized function
// names. It is passed explicitly; there is no global state across
// compilations.
type Session struct {
	funcCounter int
}

func NewSession() *Session { return &Session{} }

// FreshFuncName generates a unique name for a monomorphized instance.
func (s *Session) FreshFuncName(base string) string {
	s.funcCounter++
	return fmt.Sprintf("%s$%d", base, s.funcCounter)
}

// errAbort unwinds one top-level expression check after errors have
// already been recorded. It never escapes Check.
var errAbort = errors.New("type check aborted")

// Checker infers semantic types and stream sizes, resolves builtin
// overloads and monomorphizes user functions per call site. Errors are
// accumulated per top-level expression; the first abort barrier ends
// that expression's check.
type Checker struct {
	env     ast.Environment
	session *Session
	root    *Scope
	pow     *BuiltinGroup

	// Instance is the monomorphized instance of the last checked
	// top-level function symbol, nil for expression symbols.
	Instance *Func

	Errors []*token.CompileError
}

func NewChecker(env ast.Environment, session *Session) *Checker {
	c := &Checker{
		env:     env,
		session: session,
		root:    NewScope(nil),
	}
	bindBuiltins(c.root)
	powType, _, _ := c.root.Lookup("pow")
	c.pow = powType.(*BuiltinGroup)
	return c
}

// RootScope exposes the root frame so callers can bind external
// functions before checking.
func (c *Checker) RootScope() *Scope { return c.root }

// Check infers the result type of a top-level symbol applied to the
// given argument types. Function symbols are monomorphized; expression
// symbols must be applied to zero arguments.
func (c *Checker) Check(sym *ast.Symbol, args []Type) (Type, error) {
	c.Errors = c.Errors[:0]

	result, err := c.checkSymbol(sym, args)
	if err != nil && !errors.Is(err, errAbort) {
		ce := &token.CompileError{}
		if errors.As(err, &ce) {
			c.report(ce)
		} else {
			return nil, err
		}
	}
	if len(c.Errors) > 0 {
		return result, c.combined()
	}
	return result, nil
}

func (c *Checker) checkSymbol(sym *ast.Symbol, args []Type) (Type, error) {
	symType, err := c.symbolType(sym)
	if err != nil {
		return nil, err
	}
	switch symType.(type) {
	case *Func, *BuiltinGroup, *External:
		result, instance, err := c.applyFunction(symType, args, c.root, sym.Source.Line)
		if err != nil {
			return nil, err
		}
		if f, ok := instance.(*Func); ok {
			c.Instance = f
		}
		return result, nil
	}
	if len(args) > 0 {
		return nil, typeErrorf(sym.Source.Line, "symbol '%s' is not a function", sym.Name)
	}
	return symType, nil
}

func (c *Checker) report(ce *token.CompileError) {
	c.Errors = append(c.Errors, ce)
}

func (c *Checker) combined() error {
	var errs []error
	for _, ce := range c.Errors {
		errs = append(errs, ce)
	}
	return multierr.Combine(errs...)
}

func typeErrorf(line int, format string, args ...any) error {
	return token.NewTypeError(line, format, args...)
}

func (c *Checker) symbolType(sym *ast.Symbol) (Type, error) {
	if sym.Source.Sem != nil {
		return sym.Source.Sem.(Type), nil
	}
	switch sym.Kind {
	case ast.ExpressionSymbol:
		t, err := c.block(sym.Source.Elems[2], c.root)
		if err != nil {
			return nil, err
		}
		sym.Source.Sem = t
		return t, nil
	case ast.FunctionSymbol:
		f := &Func{
			Name:      sym.Name,
			Params:    sym.Params,
			Statement: sym.Source,
			Scope:     c.root,
		}
		sym.Source.Sem = f
		return f, nil
	}
	return nil, &token.CompileError{Kind: token.TypeError, Msg: "unexpected symbol kind"}
}

// innerType reduces a data type to its element type and shape: ranges
// to constant-size integer vectors, streams to real arrays, scalars to
// themselves.
func innerType(t Type) (Type, []int64, error) {
	switch t := t.(type) {
	case *Range:
		if !t.IsConstant() {
			return nil, nil, &token.CompileError{
				Kind: token.TypeError,
				Msg:  "Non-constant range used where constant range required.",
			}
		}
		return NewInt(), []int64{t.ConstSize()}, nil
	case *Stream:
		return NewReal(), t.Size, nil
	}
	return t, nil, nil
}

// overloadResolution picks a builtin overload for the given argument
// tags. A perfect match wins immediately; otherwise all mismatches
// must be integer-to-real promotions and exactly one candidate must
// remain.
func overloadResolution(overloads []Signature, args []Kind) (Signature, error) {
	var selected *Signature

	for i := range overloads {
		candidate := &overloads[i]
		if len(candidate.Params) != len(args) {
			continue
		}
		ok, perfect := true, true
		for p := range args {
			if candidate.Params[p] == args[p] {
				continue
			}
			perfect = false
			if args[p] == IntKind && candidate.Params[p] == RealKind {
				continue
			}
			ok = false
			break
		}
		if perfect {
			return *candidate, nil
		}
		if ok {
			if selected != nil {
				return Signature{}, &token.CompileError{
					Kind: token.TypeError,
					Msg:  "Ambiguous overloaded function call.",
				}
			}
			selected = candidate
		}
	}

	if selected == nil {
		return Signature{}, &token.CompileError{
			Kind: token.TypeError,
			Msg:  "Invalid arguments.",
		}
	}
	return *selected, nil
}

// applyFunction applies a callable type to argument types. User
// functions are cloned into a monomorphized instance registered under
// a fresh name; builtin groups are overload-resolved. The returned
// instance type is attached to the call site by the caller.
func (c *Checker) applyFunction(funcType Type, args []Type, scope *Scope, line int) (Type, Type, error) {
	switch f := funcType.(type) {
	case *Func:
		if len(args) != len(f.Params) {
			return nil, nil, &token.CompileError{
				Kind: token.TypeError,
				Line: line,
				Msg: fmt.Sprintf("Wrong number of arguments (required: %d, actual: %d).",
					len(f.Params), len(args)),
			}
		}

		if f.Instantiated {
			// Re-checking an expanded program: the call site already
			// references a concrete instance.
			funcScope := NewScope(scope)
			for i := range args {
				funcScope.Bind(f.Params[i], args[i])
			}
			result, err := c.block(f.Statement.Elems[2], funcScope)
			if err != nil {
				return nil, nil, err
			}
			return result, f, nil
		}

		// Duplicate the function in its static scope.
		f2 := &Func{
			Name:         c.session.FreshFuncName(f.Name),
			Params:       f.Params,
			Statement:    f.Statement.Clone(),
			Scope:        scope,
			Instantiated: true,
		}
		f2.Statement.Sem = f2
		f2.Statement.Elems[0].Ident = f2.Name

		if scope == c.root {
			sym := &ast.Symbol{
				Kind:   ast.FunctionSymbol,
				Name:   f2.Name,
				Params: f2.Params,
				Source: f2.Statement,
			}
			c.env[sym.Name] = sym
		} else {
			f2.List = f.List
			if f2.List != nil {
				f2.List.Elems = append(f2.List.Elems, f2.Statement)
			}
			scope.Bind(f2.Name, f2)
		}

		funcScope := NewScope(scope)
		for i := range args {
			funcScope.Bind(f2.Params[i], args[i])
		}
		result, err := c.block(f2.Statement.Elems[2], funcScope)
		if err != nil {
			return nil, nil, err
		}
		return result, f2, nil

	case *BuiltinGroup:
		reduced := make([]Type, len(args))
		shapes := make([][]int64, len(args))
		for i, arg := range args {
			t, shape, err := innerType(arg)
			if err != nil {
				return nil, nil, err
			}
			reduced[i] = t
			shapes[i] = shape
		}

		tags := make([]Kind, len(reduced))
		for i, t := range reduced {
			tags[i] = t.Kind()
		}

		sig, err := overloadResolution(f.Overloads, tags)
		if err != nil {
			return nil, nil, err
		}
		instance := &Builtin{Name: f.Name, Sig: sig}

		// All sized arguments must agree on the result shape.
		var resultShape []int64
		for _, shape := range shapes {
			if len(shape) == 0 {
				continue
			}
			if resultShape == nil {
				resultShape = shape
			} else if !equalShape(resultShape, shape) {
				return nil, nil, &token.CompileError{
					Kind: token.TypeError,
					Msg:  "Argument size mismatch.",
				}
			}
		}

		if resultShape != nil {
			return NewStream(resultShape...), instance, nil
		}
		switch sig.Result {
		case IntKind:
			return NewInt(), instance, nil
		case RealKind:
			return NewReal(), instance, nil
		}
		return nil, nil, &token.CompileError{
			Kind: token.TypeError,
			Msg:  fmt.Sprintf("unexpected builtin result tag %s", sig.Result),
		}

	case *External:
		if len(args) != 1 {
			return nil, nil, &token.CompileError{
				Kind: token.TypeError,
				Line: line,
				Msg:  fmt.Sprintf("Wrong number of arguments (required: 1, actual: %d).", len(args)),
			}
		}
		_, shape, err := innerType(args[0])
		if err != nil {
			return nil, nil, err
		}
		if shape == nil {
			return NewReal(), f, nil
		}
		return NewStream(shape...), f, nil
	}

	return nil, nil, &token.CompileError{
		Kind: token.TypeError,
		Line: line,
		Msg:  "Callee not a function.",
	}
}

func equalShape(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// block checks "expression_block" nodes: local statements followed by
// the result expression.
func (c *Checker) block(root *ast.Node, sc *Scope) (Type, error) {
	if root.Kind != ast.ExpressionBlock || len(root.Elems) != 2 {
		return nil, &token.CompileError{Kind: token.TypeError, Line: root.Line, Msg: "malformed expression block"}
	}
	stmts, expr := root.Elems[0], root.Elems[1]

	if stmts != nil {
		for _, stmt := range stmts.Elems {
			if err := c.stmt(stmt, stmts, sc); err != nil {
				return nil, err
			}
		}
	}

	t, err := c.expr(expr, sc)
	if err != nil {
		return nil, err
	}
	root.Sem = t
	return t, nil
}

func (c *Checker) stmt(root, list *ast.Node, sc *Scope) error {
	id, params, expr := root.Elems[0], root.Elems[1], root.Elems[2]

	var result Type
	if params != nil {
		f := &Func{
			Name:      id.Ident,
			Statement: root,
			List:      list,
			Scope:     sc,
		}
		for _, p := range params.Elems {
			f.Params = append(f.Params, p.Ident)
		}
		result = f
	} else {
		var err error
		result, err = c.block(expr, sc)
		if err != nil {
			return err
		}
	}

	root.Sem = result
	sc.Bind(id.Ident, result)
	return nil
}

func (c *Checker) expr(root *ast.Node, sc *Scope) (Type, error) {
	var t Type
	var err error

	switch root.Kind {
	case ast.IntegerNum:
		t = NewConstInt(root.Int)
	case ast.RealNum:
		t = NewConstReal(root.Real)
	case ast.Identifier:
		t, _, err = c.identifier(root, sc)
	case ast.Negate:
		t, err = c.negate(root, sc)
	case ast.Add, ast.Subtract, ast.Multiply, ast.Divide, ast.Raise,
		ast.Lesser, ast.Greater, ast.LesserOrEqual, ast.GreaterOrEqual,
		ast.Equal, ast.NotEqual:
		t, err = c.binop(root, sc)
	case ast.Range:
		t, err = c.rangeExpr(root, sc)
	case ast.HashExpression:
		t, err = c.extent(root, sc)
	case ast.TransposeExpression:
		t, err = c.transpose(root, sc)
	case ast.SliceExpression:
		t, err = c.slice(root, sc)
	case ast.CallExpression:
		t, err = c.call(root, sc)
	case ast.ForExpression:
		t, err = c.iteration(root, sc)
	case ast.ReduceExpression:
		t, err = c.reduction(root, sc)
	default:
		err = typeErrorf(root.Line, "Unsupported expression.")
	}

	if err != nil {
		return nil, err
	}
	root.Sem = t
	return t, nil
}

func (c *Checker) identifier(root *ast.Node, sc *Scope) (Type, *Scope, error) {
	id := root.Ident
	if t, frame, ok := sc.Lookup(id); ok {
		return t, frame, nil
	}
	if sym, ok := c.env[id]; ok {
		t, err := c.symbolType(sym)
		if err != nil {
			return nil, nil, err
		}
		c.root.Bind(id, t)
		return t, c.root, nil
	}
	return nil, nil, typeErrorf(root.Line, "Name not in scope: '%s'.", id)
}

func (c *Checker) negate(root *ast.Node, sc *Scope) (Type, error) {
	operand, err := c.expr(root.Elems[0], sc)
	if err != nil {
		return nil, err
	}
	switch op := operand.(type) {
	case *Integer:
		result := NewInt()
		if op.HasConst {
			result = NewConstInt(-op.Const)
		}
		return result, nil
	case *Real:
		result := NewReal()
		if op.HasConst {
			result = NewConstReal(-op.Const)
		}
		return result, nil
	case *Range:
		if !op.IsConstant() {
			return nil, typeErrorf(root.Line, "Non-constant range used where constant range required.")
		}
		return NewStream(op.ConstSize()), nil
	case *Stream:
		return op, nil
	}
	return nil, typeErrorf(root.Line, "Unexpected expression type.")
}

func isComparison(k ast.Kind) bool {
	switch k {
	case ast.Lesser, ast.Greater, ast.LesserOrEqual, ast.GreaterOrEqual,
		ast.Equal, ast.NotEqual:
		return true
	}
	return false
}

func (c *Checker) binop(root *ast.Node, sc *Scope) (Type, error) {
	lhs, err := c.expr(root.Elems[0], sc)
	if err != nil {
		return nil, err
	}
	rhs, err := c.expr(root.Elems[1], sc)
	if err != nil {
		return nil, err
	}

	if root.Kind == ast.Raise {
		result, instance, err := c.applyFunction(c.pow, []Type{lhs, rhs}, c.root, root.Line)
		if err != nil {
			return nil, locate(err, root.Line)
		}
		root.Sem = instance
		return result, nil
	}

	lhsInner, lhsSize, lerr := innerType(lhs)
	if lerr != nil {
		c.report(located(lerr, root.Line))
	}
	rhsInner, rhsSize, rerr := innerType(rhs)
	if rerr != nil {
		c.report(located(rerr, root.Line))
	}
	if lerr != nil || rerr != nil {
		return nil, errAbort
	}

	if len(lhsSize) == 0 && len(rhsSize) == 0 {
		if isComparison(root.Kind) {
			return &Boolean{}, nil
		}
		if lhsInner.Kind() == BoolKind || rhsInner.Kind() == BoolKind {
			return nil, typeErrorf(root.Line, "Invalid operand type.")
		}
		li, lok := lhsInner.(*Integer)
		ri, rok := rhsInner.(*Integer)
		if lok && rok {
			if li.HasConst && ri.HasConst {
				if v, ok := foldInt(root.Kind, li.Const, ri.Const); ok {
					return NewConstInt(v), nil
				}
			}
			return NewInt(), nil
		}
		return NewReal(), nil
	}

	if len(lhsSize) > 0 && len(rhsSize) > 0 && !equalShape(lhsSize, rhsSize) {
		return nil, typeErrorf(root.Line, "Binary operator (%s): Operand size mismatch.", root.Kind)
	}

	if len(lhsSize) > 0 {
		return NewStream(lhsSize...), nil
	}
	return NewStream(rhsSize...), nil
}

// foldInt folds the constant integer operators that feed constant
// contexts (range bounds, iteration parameters). Division is left to
// run time to keep rounding in one place.
func foldInt(kind ast.Kind, a, b int64) (int64, bool) {
	switch kind {
	case ast.Add:
		return a + b, true
	case ast.Subtract:
		return a - b, true
	case ast.Multiply:
		return a * b, true
	}
	return 0, false
}

func located(err error, line int) *token.CompileError {
	ce := &token.CompileError{}
	if errors.As(err, &ce) {
		if ce.Line == 0 {
			ce.Line = line
		}
		return ce
	}
	return &token.CompileError{Kind: token.TypeError, Line: line, Msg: err.Error()}
}

func locate(err error, line int) error {
	if err == nil {
		return nil
	}
	return located(err, line)
}

func (c *Checker) rangeExpr(root *ast.Node, sc *Scope) (Type, error) {
	startNode, endNode := root.Elems[0], root.Elems[1]
	r := &Range{}

	abort := false
	if startNode != nil {
		t, err := c.expr(startNode, sc)
		if err != nil {
			return nil, err
		}
		if i, ok := t.(*Integer); ok {
			r.Start = i
		} else {
			c.report(token.NewTypeError(startNode.Line, "Range start not an integer."))
			abort = true
		}
	}
	if endNode != nil {
		t, err := c.expr(endNode, sc)
		if err != nil {
			return nil, err
		}
		if i, ok := t.(*Integer); ok {
			r.End = i
		} else {
			c.report(token.NewTypeError(endNode.Line, "Range end not an integer."))
			abort = true
		}
	}

	if abort {
		return nil, errAbort
	}
	return r, nil
}

func (c *Checker) extent(root *ast.Node, sc *Scope) (Type, error) {
	objectNode, dimNode := root.Elems[0], root.Elems[1]

	objectType, err := c.expr(objectNode, sc)
	if err != nil {
		return nil, err
	}
	s, ok := objectType.(*Stream)
	if !ok {
		return nil, typeErrorf(objectNode.Line, "Extent object not a stream.")
	}

	dim := int64(1)
	if dimNode != nil {
		dimType, err := c.expr(dimNode, sc)
		if err != nil {
			return nil, err
		}
		d, ok := dimType.(*Integer)
		if !ok {
			return nil, typeErrorf(dimNode.Line, "Dimension not an integer.")
		}
		if !d.HasConst {
			return nil, typeErrorf(dimNode.Line, "Dimension not a constant.")
		}
		dim = d.Const
	}

	if dim < 1 || dim > int64(s.Rank()) {
		return nil, typeErrorf(objectNode.Line, "Dimension %d out of bounds.", dim)
	}
	size := s.Size[dim-1]
	if size == Infinite {
		return nil, typeErrorf(root.Line, "Extent in requested dimension is infinite.")
	}
	return NewConstInt(size), nil
}

func (c *Checker) transpose(root *ast.Node, sc *Scope) (Type, error) {
	objectNode, dimsNode := root.Elems[0], root.Elems[1]

	objectType, err := c.expr(objectNode, sc)
	if err != nil {
		return nil, err
	}
	object, ok := objectType.(*Stream)
	if !ok {
		return nil, typeErrorf(objectNode.Line, "Transpose object not a stream.")
	}

	if len(dimsNode.Elems) > object.Rank() {
		return nil, typeErrorf(root.Line, "Transposition has too many dimensions.")
	}

	selected := make([]bool, object.Rank())
	size := make([]int64, 0, object.Rank())

	for _, dimNode := range dimsNode.Elems {
		dim := dimNode.Int
		if dim < 1 || dim > int64(object.Rank()) {
			return nil, typeErrorf(dimNode.Line, "Dimension selector element out of bounds.")
		}
		if selected[dim-1] {
			return nil, typeErrorf(dimNode.Line, "Duplicate dimension selector element.")
		}
		size = append(size, object.Size[dim-1])
		selected[dim-1] = true
	}
	for dim, sel := range selected {
		if !sel {
			size = append(size, object.Size[dim])
		}
	}

	return NewStream(size...), nil
}

func (c *Checker) slice(root *ast.Node, sc *Scope) (Type, error) {
	objectNode, rangesNode := root.Elems[0], root.Elems[1]

	objectType, err := c.expr(objectNode, sc)
	if err != nil {
		return nil, err
	}
	source, ok := objectType.(*Stream)
	if !ok {
		return nil, typeErrorf(objectNode.Line, "Slice object not a stream.")
	}

	if len(rangesNode.Elems) > source.Rank() {
		return nil, typeErrorf(rangesNode.Line, "Too many slice dimensions.")
	}

	result := NewStream(append([]int64(nil), source.Size...)...)
	for dim, rangeNode := range rangesNode.Elems {
		if source.Size[dim] == Infinite {
			return nil, typeErrorf(rangeNode.Line, "Can not slice an infinite dimension.")
		}

		selector, err := c.expr(rangeNode, sc)
		if err != nil {
			return nil, err
		}
		switch sel := selector.(type) {
		case *Integer:
			if !sel.HasConst {
				return nil, typeErrorf(rangeNode.Line, "Non-constant slice index not supported.")
			}
			if sel.Const < 1 || sel.Const > source.Size[dim] {
				return nil, typeErrorf(rangeNode.Line, "Invalid slice index: out of bounds.")
			}
			result.Size[dim] = 1
		case *Range:
			if sel.Start == nil {
				sel.Start = NewConstInt(1)
			}
			if sel.End == nil {
				sel.End = NewConstInt(source.Size[dim])
			}
			if !sel.IsConstant() {
				return nil, typeErrorf(rangeNode.Line, "Non-constant slice size not supported.")
			}
			start, end := sel.ConstStart(), sel.ConstEnd()
			size := end - start + 1
			if size < 1 {
				return nil, typeErrorf(rangeNode.Line, "Invalid slice range: size less than 1.")
			}
			if start < 1 || end > source.Size[dim] {
				return nil, typeErrorf(rangeNode.Line, "Invalid slice range: out of bounds.")
			}
			result.Size[dim] = size
		default:
			return nil, typeErrorf(rangeNode.Line, "Invalid type of slice selector.")
		}
	}

	return result.Reduced(), nil
}

func (c *Checker) call(root *ast.Node, sc *Scope) (Type, error) {
	funcNode, argsNode := root.Elems[0], root.Elems[1]

	if funcNode.Kind != ast.Identifier {
		return nil, typeErrorf(root.Line, "Function call object not a function.")
	}

	funcType, funcScope, err := c.identifier(funcNode, sc)
	if err != nil {
		return nil, err
	}
	switch funcType.(type) {
	case *Func, *BuiltinGroup, *External:
	default:
		return nil, typeErrorf(root.Line,
			"Function call object not a function: '%s'.", funcNode.Ident)
	}

	argTypes := make([]Type, len(argsNode.Elems))
	for i, argNode := range argsNode.Elems {
		argTypes[i], err = c.expr(argNode, sc)
		if err != nil {
			return nil, err
		}
	}

	result, instance, err := c.applyFunction(funcType, argTypes, funcScope, root.Line)
	if err != nil {
		ce := &token.CompileError{}
		if errors.As(err, &ce) && ce.Kind == token.TypeError {
			name := funcNode.Ident
			if f, ok := funcType.(*Func); ok {
				name = f.Name
			}
			return nil, &token.CompileError{
				Kind: token.TypeError,
				Line: root.Line,
				Msg:  fmt.Sprintf("In function call to '%s': %s", name, ce.Msg),
			}
		}
		return nil, err
	}

	funcNode.Sem = instance
	if f, ok := instance.(*Func); ok {
		funcNode.Ident = f.Name
	}

	return result, nil
}

func (c *Checker) iteration(root *ast.Node, sc *Scope) (Type, error) {
	iteratorList, body := root.Elems[0], root.Elems[1]

	iterators := make([]*Iterator, 0, len(iteratorList.Elems))
	for _, e := range iteratorList.Elems {
		it, err := c.iterator(e, sc)
		if err != nil {
			return nil, err
		}
		iterators = append(iterators, it)
	}
	if len(iterators) == 0 {
		return nil, typeErrorf(root.Line, "Iteration without iterators.")
	}

	count := int64(0)
	for i, it := range iterators {
		if i == 0 {
			count = it.Count
		} else if it.Count != count {
			return nil, typeErrorf(root.Line, "Iterations with differing counts.")
		}
	}

	iterScope := NewScope(sc)
	for _, it := range iterators {
		iterScope.Bind(it.ID, it.Value)
	}
	resultType, err := c.block(body, iterScope)
	if err != nil {
		return nil, err
	}

	size := []int64{count}
	switch result := resultType.(type) {
	case *Stream:
		size = append(size, result.Size...)
	case *Integer, *Real:
	default:
		return nil, typeErrorf(body.Line, "Unsupported iteration result type.")
	}

	return NewStream(size...).Reduced(), nil
}

func (c *Checker) iterator(root *ast.Node, sc *Scope) (*Iterator, error) {
	idNode := root.Elems[0]
	sizeNode := root.Elems[1]
	hopNode := root.Elems[2]
	domainNode := root.Elems[3]

	it := &Iterator{Size: 1, Hop: 1}
	if idNode != nil {
		it.ID = idNode.Ident
	}

	if sizeNode != nil {
		v, err := c.constIntParam(sizeNode, sc, "Iteration size")
		if err != nil {
			return nil, err
		}
		if v < 1 {
			return nil, typeErrorf(sizeNode.Line, "Invalid iteration size.")
		}
		it.Size = v
	}
	if hopNode != nil {
		v, err := c.constIntParam(hopNode, sc, "Iteration hop")
		if err != nil {
			return nil, err
		}
		if v < 1 {
			return nil, typeErrorf(hopNode.Line, "Invalid hop size.")
		}
		it.Hop = v
	}

	domainType, err := c.expr(domainNode, sc)
	if err != nil {
		return nil, err
	}
	it.Domain = domainNode

	var domainSize int64
	switch domain := domainType.(type) {
	case *Stream:
		if domain.Rank() == 0 {
			return nil, typeErrorf(domainNode.Line, "Unsupported iteration domain type.")
		}
		domainSize = domain.Size[0]

		operand := NewStream(append([]int64(nil), domain.Size...)...)
		operand.Size[0] = it.Size
		it.Value = operand.Reduced()
	case *Range:
		if !domain.IsConstant() {
			return nil, typeErrorf(domainNode.Line,
				"Non-constant range not supported as iteration domain.")
		}
		domainSize = domain.ConstSize()

		if it.Size > 1 {
			it.Value = &Range{Start: NewInt(), End: NewInt()}
		} else {
			it.Value = NewInt()
		}
	default:
		return nil, typeErrorf(root.Line, "Unsupported iteration domain type.")
	}

	if domainSize == Infinite {
		it.Count = Infinite
	} else {
		iterable := domainSize - it.Size
		if iterable < 0 {
			return nil, typeErrorf(root.Line, "Iteration size larger than stream size.")
		}
		if iterable%it.Hop != 0 {
			return nil, typeErrorf(root.Line, "Iteration does not cover stream size.")
		}
		it.Count = iterable/it.Hop + 1
	}

	root.Sem = it
	return it, nil
}

func (c *Checker) constIntParam(node *ast.Node, sc *Scope, what string) (int64, error) {
	t, err := c.expr(node, sc)
	if err != nil {
		return 0, err
	}
	i, ok := t.(*Integer)
	if !ok {
		return 0, typeErrorf(node.Line, "%s not an integer.", what)
	}
	if !i.HasConst {
		return 0, typeErrorf(node.Line, "%s not a constant.", what)
	}
	return i.Const, nil
}

func (c *Checker) reduction(root *ast.Node, sc *Scope) (Type, error) {
	id1Node := root.Elems[0]
	id2Node := root.Elems[1]
	domainNode := root.Elems[2]
	bodyNode := root.Elems[3]

	domainType, err := c.expr(domainNode, sc)
	if err != nil {
		return nil, err
	}
	domain, ok := domainType.(*Stream)
	if !ok {
		return nil, typeErrorf(root.Line, "Invalid reduction domain type.")
	}
	if domain.Rank() > 1 {
		return nil, typeErrorf(root.Line,
			"Reduction of streams with more than 1 dimension not supported.")
	}

	reductionScope := NewScope(sc)
	reductionScope.Bind(id1Node.Ident, NewReal())
	reductionScope.Bind(id2Node.Ident, NewReal())

	resultType, err := c.block(bodyNode, reductionScope)
	if err != nil {
		return nil, err
	}
	if resultType.Kind() != RealKind {
		return nil, typeErrorf(root.Line, "Reduction result type must be a real number.")
	}

	return NewReal(), nil
}
