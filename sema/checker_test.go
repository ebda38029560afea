package sema

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arrplang/arrp/ast"
)

func exprSymbol(t *testing.T, env ast.Environment, name string, expr *ast.Node) *ast.Symbol {
	t.Helper()
	stmt := ast.NewStatement(expr.Line, name, nil, ast.NewBlock(nil, expr))
	require.NoError(t, env.AddSymbol(stmt))
	return env[name]
}

func funcSymbol(t *testing.T, env ast.Environment, name string, params []string, expr *ast.Node) *ast.Symbol {
	t.Helper()
	stmt := ast.NewStatement(expr.Line, name, params, ast.NewBlock(nil, expr))
	require.NoError(t, env.AddSymbol(stmt))
	return env[name]
}

func call(line int, name string, args ...*ast.Node) *ast.Node {
	return ast.NewList(ast.CallExpression, line,
		ast.NewIdent(line, name),
		ast.NewList(ast.StatementList, line, args...))
}

func rangeNode(line int, start, end int64) *ast.Node {
	return ast.NewList(ast.Range, line, ast.NewInt(line, start), ast.NewInt(line, end))
}

func check(t *testing.T, env ast.Environment, sym *ast.Symbol, args ...Type) (Type, error) {
	t.Helper()
	return NewChecker(env, NewSession()).Check(sym, args)
}

func TestOverloadResolutionAbs(t *testing.T) {
	// abs(3) resolves to the integer overload.
	env := make(ast.Environment)
	sym := exprSymbol(t, env, "a", call(1, "abs", ast.NewInt(1, 3)))
	typ, err := check(t, env, sym)
	require.NoError(t, err)
	require.Equal(t, IntKind, typ.Kind())

	// abs(3.0) resolves to the real overload.
	env = make(ast.Environment)
	sym = exprSymbol(t, env, "b", call(1, "abs", ast.NewReal(1, 3.0)))
	typ, err = check(t, env, sym)
	require.NoError(t, err)
	require.Equal(t, RealKind, typ.Kind())
}

func TestOverloadResolutionRejects(t *testing.T) {
	// A boolean argument matches no overload.
	env := make(ast.Environment)
	cmp := ast.NewList(ast.Lesser, 1, ast.NewInt(1, 1), ast.NewInt(1, 2))
	sym := exprSymbol(t, env, "a", call(1, "abs", cmp))
	_, err := check(t, env, sym)
	require.Error(t, err)
	require.Contains(t, err.Error(), "Invalid arguments")

	// Wrong arity.
	env = make(ast.Environment)
	sym = exprSymbol(t, env, "b", call(1, "abs", ast.NewInt(1, 1), ast.NewInt(1, 2)))
	_, err = check(t, env, sym)
	require.Error(t, err)
}

func TestOverloadResolutionAmbiguous(t *testing.T) {
	overloads := []Signature{
		{Params: []Kind{RealKind, IntKind}, Result: RealKind},
		{Params: []Kind{IntKind, RealKind}, Result: RealKind},
	}
	// (int, int) promotes into both candidates.
	_, err := overloadResolution(overloads, []Kind{IntKind, IntKind})
	require.Error(t, err)
	require.Contains(t, err.Error(), "Ambiguous")

	// A perfect match wins over a promotion.
	sig, err := overloadResolution([]Signature{
		{Params: []Kind{RealKind}, Result: RealKind},
		{Params: []Kind{IntKind}, Result: IntKind},
	}, []Kind{IntKind})
	require.NoError(t, err)
	require.Equal(t, IntKind, sig.Result)
}

func TestPromotionPicksSingleCandidate(t *testing.T) {
	env := make(ast.Environment)
	sym := exprSymbol(t, env, "m", call(1, "max", ast.NewInt(1, 3), ast.NewReal(1, 4.0)))
	typ, err := check(t, env, sym)
	require.NoError(t, err)
	require.Equal(t, RealKind, typ.Kind())
}

func TestSliceShape(t *testing.T) {
	env := make(ast.Environment)
	slice := ast.NewList(ast.SliceExpression, 2,
		ast.NewIdent(2, "x"),
		ast.NewList(ast.StatementList, 2, rangeNode(2, 3, 7), ast.NewInt(2, 2)))
	sym := funcSymbol(t, env, "f", []string{"x"}, slice)

	typ, err := check(t, env, sym, NewStream(10, 4))
	require.NoError(t, err)
	s, ok := typ.(*Stream)
	require.True(t, ok)
	require.Equal(t, []int64{5}, s.Size)
}

func TestSliceOutOfBounds(t *testing.T) {
	env := make(ast.Environment)
	slice := ast.NewList(ast.SliceExpression, 2,
		ast.NewIdent(2, "x"),
		ast.NewList(ast.StatementList, 2, rangeNode(2, 3, 7), ast.NewInt(2, 5)))
	sym := funcSymbol(t, env, "f", []string{"x"}, slice)

	_, err := check(t, env, sym, NewStream(10, 4))
	require.Error(t, err)
	require.Contains(t, err.Error(), "out of bounds")
}

func TestSliceInfiniteDimension(t *testing.T) {
	env := make(ast.Environment)
	slice := ast.NewList(ast.SliceExpression, 2,
		ast.NewIdent(2, "x"),
		ast.NewList(ast.StatementList, 2, rangeNode(2, 1, 2)))
	sym := funcSymbol(t, env, "f", []string{"x"}, slice)

	_, err := check(t, env, sym, NewStream(Infinite))
	require.Error(t, err)
	require.Contains(t, err.Error(), "infinite")
}

func TestBinopBroadcastAndMismatch(t *testing.T) {
	env := make(ast.Environment)
	sum := ast.NewList(ast.Add, 1, ast.NewIdent(1, "x"), ast.NewReal(1, 1.0))
	sym := funcSymbol(t, env, "f", []string{"x"}, sum)
	typ, err := check(t, env, sym, NewStream(8))
	require.NoError(t, err)
	require.Equal(t, []int64{8}, typ.(*Stream).Size)

	env = make(ast.Environment)
	sum = ast.NewList(ast.Add, 1, ast.NewIdent(1, "x"), ast.NewIdent(1, "y"))
	sym = funcSymbol(t, env, "g", []string{"x", "y"}, sum)
	_, err = check(t, env, sym, NewStream(8), NewStream(9))
	require.Error(t, err)
	require.Contains(t, err.Error(), "size mismatch")
}

func TestExtent(t *testing.T) {
	env := make(ast.Environment)
	hash := ast.NewList(ast.HashExpression, 1, ast.NewIdent(1, "x"), ast.NewInt(1, 2))
	sym := funcSymbol(t, env, "f", []string{"x"}, hash)
	typ, err := check(t, env, sym, NewStream(Infinite, 16))
	require.NoError(t, err)
	i := typ.(*Integer)
	require.True(t, i.HasConst)
	require.Equal(t, int64(16), i.Const)

	// The infinite dimension has no extent.
	env = make(ast.Environment)
	hash = ast.NewList(ast.HashExpression, 1, ast.NewIdent(1, "x"), ast.NewInt(1, 1))
	sym = funcSymbol(t, env, "g", []string{"x"}, hash)
	_, err = check(t, env, sym, NewStream(Infinite, 16))
	require.Error(t, err)
}

func TestTranspose(t *testing.T) {
	env := make(ast.Environment)
	tr := ast.NewList(ast.TransposeExpression, 1,
		ast.NewIdent(1, "x"),
		ast.NewList(ast.StatementList, 1, ast.NewInt(1, 3)))
	sym := funcSymbol(t, env, "f", []string{"x"}, tr)
	typ, err := check(t, env, sym, NewStream(2, 3, 4))
	require.NoError(t, err)
	require.Equal(t, []int64{4, 2, 3}, typ.(*Stream).Size)
}

func forExpr(line int, id string, size, hop int64, domain, body *ast.Node) *ast.Node {
	var sizeNode, hopNode *ast.Node
	if size > 0 {
		sizeNode = ast.NewInt(line, size)
	}
	if hop > 0 {
		hopNode = ast.NewInt(line, hop)
	}
	iter := ast.NewList(ast.ForIteration, line, ast.NewIdent(line, id), sizeNode, hopNode, domain)
	return ast.NewList(ast.ForExpression, line,
		ast.NewList(ast.ForIterationList, line, iter),
		ast.NewBlock(nil, body))
}

func TestIterationCoverage(t *testing.T) {
	// (10 - 3) % 2 != 0: the hops do not cover the stream.
	env := make(ast.Environment)
	body := ast.NewList(ast.SliceExpression, 1,
		ast.NewIdent(1, "w"),
		ast.NewList(ast.StatementList, 1, ast.NewInt(1, 1)))
	sym := funcSymbol(t, env, "f", []string{"x"},
		forExpr(1, "w", 3, 2, ast.NewIdent(1, "x"), body))
	_, err := check(t, env, sym, NewStream(10))
	require.Error(t, err)
	require.Contains(t, err.Error(), "Iteration does not cover stream size")

	// (11 - 3) / 2 + 1 = 5 windows.
	env = make(ast.Environment)
	body = ast.NewList(ast.SliceExpression, 1,
		ast.NewIdent(1, "w"),
		ast.NewList(ast.StatementList, 1, ast.NewInt(1, 1)))
	sym = funcSymbol(t, env, "g", []string{"x"},
		forExpr(1, "w", 3, 2, ast.NewIdent(1, "x"), body))
	typ, err := check(t, env, sym, NewStream(11))
	require.NoError(t, err)
	require.Equal(t, []int64{5}, typ.(*Stream).Size)
}

func TestIterationInfiniteDomain(t *testing.T) {
	env := make(ast.Environment)
	body := ast.NewList(ast.SliceExpression, 1,
		ast.NewIdent(1, "w"),
		ast.NewList(ast.StatementList, 1, ast.NewInt(1, 1)))
	sym := funcSymbol(t, env, "f", []string{"x"},
		forExpr(1, "w", 2, 2, ast.NewIdent(1, "x"), body))
	typ, err := check(t, env, sym, NewStream(Infinite))
	require.NoError(t, err)
	require.Equal(t, []int64{Infinite}, typ.(*Stream).Size)
}

func TestRangeRequiresIntegerEnds(t *testing.T) {
	env := make(ast.Environment)
	r := ast.NewList(ast.Range, 1, ast.NewReal(1, 1.5), ast.NewInt(1, 4))
	neg := ast.NewList(ast.Negate, 1, r)
	sym := exprSymbol(t, env, "a", neg)
	_, err := check(t, env, sym)
	require.Error(t, err)
	require.Contains(t, err.Error(), "Range start not an integer")
}

func TestNegateFoldsConstants(t *testing.T) {
	env := make(ast.Environment)
	sym := exprSymbol(t, env, "a", ast.NewList(ast.Negate, 1, ast.NewInt(1, 7)))
	typ, err := check(t, env, sym)
	require.NoError(t, err)
	i := typ.(*Integer)
	require.True(t, i.HasConst)
	require.Equal(t, int64(-7), i.Const)
}

func TestReductionRules(t *testing.T) {
	env := make(ast.Environment)
	body := ast.NewList(ast.Add, 1, ast.NewIdent(1, "a"), ast.NewIdent(1, "b"))
	red := ast.NewList(ast.ReduceExpression, 1,
		ast.NewIdent(1, "a"), ast.NewIdent(1, "b"),
		ast.NewIdent(1, "x"),
		ast.NewBlock(nil, body))
	sym := funcSymbol(t, env, "f", []string{"x"}, red)
	typ, err := check(t, env, sym, NewStream(16))
	require.NoError(t, err)
	require.Equal(t, RealKind, typ.Kind())

	// Multi-dimensional domains are not reducible.
	env = make(ast.Environment)
	red = ast.NewList(ast.ReduceExpression, 1,
		ast.NewIdent(1, "a"), ast.NewIdent(1, "b"),
		ast.NewIdent(1, "x"),
		ast.NewBlock(nil, body.Clone()))
	sym = funcSymbol(t, env, "g", []string{"x"}, red)
	_, err = check(t, env, sym, NewStream(16, 2))
	require.Error(t, err)
}

func TestMonomorphization(t *testing.T) {
	env := make(ast.Environment)
	double := ast.NewList(ast.Multiply, 1, ast.NewIdent(1, "a"), ast.NewInt(1, 2))
	funcSymbol(t, env, "f", []string{"a"}, double)

	callInt := call(2, "f", ast.NewInt(2, 3))
	callReal := call(3, "f", ast.NewReal(3, 4.0))
	sum := ast.NewList(ast.Add, 2, callInt, callReal)
	sym := exprSymbol(t, env, "main", sum)

	typ, err := check(t, env, sym)
	require.NoError(t, err)
	require.Equal(t, RealKind, typ.Kind())

	// One instance per call site, registered under fresh names.
	require.Contains(t, env, "f$1")
	require.Contains(t, env, "f$2")
	require.NotEqual(t, "f", callInt.Elems[0].Ident)

	// Re-checking the expanded program adds no clones and keeps types.
	before := len(env)
	sym.Source.Sem = nil
	typ2, err := NewChecker(env, NewSession()).Check(sym, nil)
	require.NoError(t, err)
	require.Equal(t, typ.Kind(), typ2.Kind())
	require.Equal(t, before, len(env))
}

func TestNameNotInScope(t *testing.T) {
	env := make(ast.Environment)
	sym := exprSymbol(t, env, "a", ast.NewIdent(1, "nope"))
	_, err := check(t, env, sym)
	require.Error(t, err)
	require.Contains(t, err.Error(), "Name not in scope")
}

func TestErrorsCarryLine(t *testing.T) {
	env := make(ast.Environment)
	sym := exprSymbol(t, env, "a", ast.NewIdent(7, "nope"))
	checker := NewChecker(env, NewSession())
	_, err := checker.Check(sym, nil)
	require.Error(t, err)
	require.Len(t, checker.Errors, 1)
	require.Equal(t, 7, checker.Errors[0].Line)
}
