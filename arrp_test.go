package arrp

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/arrplang/arrp/arrptest"
	"github.com/arrplang/arrp/ast"
	"github.com/arrplang/arrp/codegen"
	"github.com/arrplang/arrp/polyhedral"
	"github.com/arrplang/arrp/schedule"
)

func addFunc(t *testing.T, env ast.Environment, name string, params []string, expr *ast.Node) {
	t.Helper()
	stmt := ast.NewStatement(expr.Line, name, params, ast.NewBlock(nil, expr))
	require.NoError(t, env.AddSymbol(stmt))
}

func addExpr(t *testing.T, env ast.Environment, name string, expr *ast.Node) {
	t.Helper()
	stmt := ast.NewStatement(expr.Line, name, nil, ast.NewBlock(nil, expr))
	require.NoError(t, env.AddSymbol(stmt))
}

func TestCompileIdentityStream(t *testing.T) {
	// E1: out[t] = in[t] over an infinite real32 stream.
	env := make(ast.Environment)
	addFunc(t, env, "out", []string{"x"}, ast.NewIdent(1, "x"))

	result, err := Compile(env, Options{
		Target: "out",
		Inputs: []polyhedral.Input{
			{Name: "in", Type: polyhedral.Real32Type, Size: []int64{polyhedral.Infinite}},
		},
		KernelFileName: "out.cpp",
	})
	require.NoError(t, err)

	in := result.Model.Inputs[0]
	require.Equal(t, int64(1), in.Producer.SteadyCount)
	require.Equal(t, int64(0), in.Producer.InitCount)
	require.Equal(t, int64(1), in.BufferSize[0])
	require.False(t, result.Schedule.Buffers["in"].HasPhase)

	want := &codegen.Report{
		Inputs: []codegen.Channel{
			{Name: "in", IsStream: true, Type: "real32", Size: 1, PeriodCount: 1},
		},
		Outputs: []codegen.Channel{
			{Name: "in", IsStream: true, Type: "real32", Size: 1, PeriodCount: 1},
		},
		Kernel: codegen.KernelInfo{FileName: "out.cpp", Namespace: "out"},
	}
	require.Empty(t, cmp.Diff(want, result.Report))
}

func window(line int, id string, size, hop int64, domain, body *ast.Node) *ast.Node {
	iter := ast.NewList(ast.ForIteration, line,
		ast.NewIdent(line, id), ast.NewInt(line, size), ast.NewInt(line, hop), domain)
	return ast.NewList(ast.ForExpression, line,
		ast.NewList(ast.ForIterationList, line, iter),
		ast.NewBlock(nil, body))
}

func sliceIdx(line int, id string, i int64) *ast.Node {
	return ast.NewList(ast.SliceExpression, line,
		ast.NewIdent(line, id),
		ast.NewList(ast.StatementList, line, ast.NewInt(line, i)))
}

func TestCompileDownsample(t *testing.T) {
	// E3: out[t] = in[2t] + in[2t+1].
	env := make(ast.Environment)
	body := ast.NewList(ast.Add, 1, sliceIdx(1, "w", 1), sliceIdx(1, "w", 2))
	addFunc(t, env, "out", []string{"x"}, window(1, "w", 2, 2, ast.NewIdent(1, "x"), body))

	result, err := Compile(env, Options{
		Target: "out",
		Inputs: []polyhedral.Input{
			{Name: "in", Type: polyhedral.Real64Type, Size: []int64{polyhedral.Infinite}},
		},
	})
	require.NoError(t, err)

	in := result.Model.Inputs[0]
	require.Equal(t, int64(2), in.Producer.SteadyCount)
	require.Equal(t, int64(1), result.Model.Output.Producer.SteadyCount)
	require.Equal(t, int64(2), in.BufferSize[0])
	require.Equal(t, int64(2), result.Report.Inputs[0].PeriodCount)

	src := codegen.Print(result.Module)
	require.Contains(t, src, "void initialize(double in0[], state* s)")
	require.Contains(t, src, "void process(double in0[], state* s)")
}

func TestFiniteRoundTrip(t *testing.T) {
	// A finite program has an initialize phase only; the reference
	// evaluation of its model matches the expected integer values exactly.
	env := make(ast.Environment)
	sum := ast.NewList(ast.Add, 1,
		ast.NewList(ast.Range, 1, ast.NewInt(1, 1), ast.NewInt(1, 4)),
		ast.NewList(ast.Range, 1, ast.NewInt(1, 1), ast.NewInt(1, 4)))
	addExpr(t, env, "main", sum)

	result, err := Compile(env, Options{Target: "main"})
	require.NoError(t, err)

	period, ok := result.Schedule.Period.(*schedule.Block)
	require.True(t, ok)
	require.Empty(t, period.Nodes)

	expected, err := arrptest.Parse(strings.NewReader(`##? [4] int
##? ( 2, 4, 6, 8 )
`))
	require.NoError(t, err)

	data, err := arrptest.EvalFinite(result.Model)
	require.NoError(t, err)
	require.Equal(t, expected.Data, data[result.Model.Output.Name])
}

func TestCompileReduction(t *testing.T) {
	// The reduction seeds with the first element, then folds.
	env := make(ast.Environment)
	body := ast.NewList(ast.Add, 1, ast.NewIdent(1, "a"), ast.NewIdent(1, "b"))
	red := ast.NewList(ast.ReduceExpression, 1,
		ast.NewIdent(1, "a"), ast.NewIdent(1, "b"),
		ast.NewList(ast.Add, 1,
			ast.NewList(ast.Range, 1, ast.NewInt(1, 1), ast.NewInt(1, 4)),
			ast.NewInt(1, 0)),
		ast.NewBlock(nil, body))
	addExpr(t, env, "main", red)

	result, err := Compile(env, Options{Target: "main"})
	require.NoError(t, err)

	data, err := arrptest.EvalFinite(result.Model)
	require.NoError(t, err)
	require.Equal(t, []float64{10}, data[result.Model.Output.Name])

	// The generated code materializes the conditional's both arms.
	src := codegen.Print(result.Module)
	require.Contains(t, src, "else")
}

func TestCompileExternalCall(t *testing.T) {
	// out[t] = f(&in[t]) for a host-supplied f.
	env := make(ast.Environment)
	callF := ast.NewList(ast.CallExpression, 1,
		ast.NewIdent(1, "f"),
		ast.NewList(ast.StatementList, 1, ast.NewIdent(1, "x")))
	addFunc(t, env, "out", []string{"x"}, callF)

	result, err := Compile(env, Options{
		Target:    "out",
		Externals: []string{"f"},
		Inputs: []polyhedral.Input{
			{Name: "in", Type: polyhedral.Real64Type, Size: []int64{polyhedral.Infinite}},
		},
	})
	require.NoError(t, err)

	out := result.Model.Output.Producer
	ec, ok := out.Expr.(*polyhedral.ExternalCall)
	require.True(t, ok)
	require.Equal(t, "f", ec.Name)

	src := codegen.Print(result.Module)
	require.Contains(t, src, "f(&")
}

func TestCompileMissingTarget(t *testing.T) {
	_, err := Compile(make(ast.Environment), Options{Target: "nope"})
	require.Error(t, err)
}
