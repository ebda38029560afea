package codegen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arrplang/arrp/dataflow"
	"github.com/arrplang/arrp/polyhedral"
	"github.com/arrplang/arrp/schedule"
)

func streamStatement(name string) (*polyhedral.Statement, *polyhedral.Array) {
	arr := &polyhedral.Array{
		Name:       name,
		Type:       polyhedral.Real64Type,
		Size:       []int64{polyhedral.Infinite},
		IsInfinite: true,
	}
	stmt := &polyhedral.Statement{
		Name:      "S_" + name,
		Domain:    []int64{polyhedral.Infinite},
		Dimension: -1,
		Write:     polyhedral.AccessRelation{Array: arr, Matrix: polyhedral.Identity(1)},
	}
	arr.Producer = stmt
	return stmt, arr
}

func accessStream(arr *polyhedral.Array, coef, offset int64) *polyhedral.ArrayRead {
	m := polyhedral.NewAffineMatrix(1, 1)
	m.Coef[0][0] = coef
	m.Const[0] = offset
	return &polyhedral.ArrayRead{Array: arr, Matrix: m}
}

func compile(t *testing.T, model *polyhedral.Model) (*schedule.Schedule, string) {
	t.Helper()
	graph, err := dataflow.Analyze(model)
	require.NoError(t, err)
	sched, err := schedule.Run(model, graph, schedule.Options{})
	require.NoError(t, err)
	module, err := Generate("kernel", model, sched)
	require.NoError(t, err)
	return sched, Print(module)
}

func delayModel() *polyhedral.Model {
	arg := &polyhedral.Array{
		Name: "in0",
		Type: polyhedral.Real64Type,
		Size: []int64{polyhedral.Infinite},
		Arg:  true,
	}
	in, inArr := streamStatement("in")
	in.Expr = &polyhedral.ExternalCall{
		Name:   "in",
		Source: polyhedral.AccessRelation{Array: arg, Matrix: polyhedral.Identity(1)},
	}
	out, outArr := streamStatement("out")
	out.Expr = accessStream(inArr, 1, -2)

	return &polyhedral.Model{
		Statements: []*polyhedral.Statement{in, out},
		Arrays:     []*polyhedral.Array{inArr, outArr},
		Inputs:     []*polyhedral.Array{inArr},
		Output:     outArr,
	}
}

func TestKernelSurface(t *testing.T) {
	_, src := compile(t, delayModel())

	require.Contains(t, src, "namespace kernel {")
	require.Contains(t, src, "inline int remainder(int x, int y)")
	require.Contains(t, src, "inline double remainder(double x, double y)")
	require.Contains(t, src, "struct state {")
	require.Contains(t, src, "void input(int, double*);")
	require.Contains(t, src, "void output(double*);")
	require.Contains(t, src, "double* get_output(state* s)")
	require.Contains(t, src, "void initialize(double in0[], state* s)")
	require.Contains(t, src, "void process(double in0[], state* s)")
}

func TestDelayKernelPhases(t *testing.T) {
	sched, src := compile(t, delayModel())

	// A delay of two on a unit-rate stream needs a rotating phase.
	require.True(t, sched.Buffers["in"].HasPhase)
	require.Contains(t, src, "int in_ph = 0;")
	require.Contains(t, src, "s->in_ph")

	// The buffer wrap uses the floor-remainder helper.
	require.Contains(t, src, "remainder(")
}

func TestConditionalArms(t *testing.T) {
	// Both arms assign the temporary; the else branch assigns the
	// false value.
	arr := &polyhedral.Array{Name: "r", Type: polyhedral.IntType, Size: []int64{1}}
	stmt := &polyhedral.Statement{
		Name:      "S_0",
		Domain:    []int64{1},
		Dimension: -1,
		Expr: &polyhedral.Primitive{
			Op: polyhedral.Conditional,
			Operands: []polyhedral.Expr{
				&polyhedral.Primitive{
					Op:       polyhedral.CompareEq,
					Operands: []polyhedral.Expr{&polyhedral.IteratorRead{}, &polyhedral.ConstInt{}},
					Type:     polyhedral.BoolType,
				},
				&polyhedral.ConstInt{Value: 11},
				&polyhedral.ConstInt{Value: 22},
			},
			Type: polyhedral.IntType,
		},
		Write: polyhedral.AccessRelation{Array: arr, Matrix: polyhedral.Identity(1)},
	}
	arr.Producer = stmt
	model := &polyhedral.Model{
		Statements: []*polyhedral.Statement{stmt},
		Arrays:     []*polyhedral.Array{arr},
		Output:     arr,
	}

	_, src := compile(t, model)
	thenPos := strings.Index(src, "t0 = 11;")
	elsePos := strings.Index(src, "t0 = 22;")
	require.Greater(t, thenPos, 0)
	require.Greater(t, elsePos, thenPos)
	require.Contains(t, src, "else")
}

func TestDividePromotesIntegers(t *testing.T) {
	arr := &polyhedral.Array{Name: "r", Type: polyhedral.Real64Type, Size: []int64{1}}
	stmt := &polyhedral.Statement{
		Name:      "S_0",
		Domain:    []int64{1},
		Dimension: -1,
		Expr: &polyhedral.Primitive{
			Op:       polyhedral.Divide,
			Operands: []polyhedral.Expr{&polyhedral.ConstInt{Value: 1}, &polyhedral.ConstInt{Value: 3}},
			Type:     polyhedral.Real64Type,
		},
		Write: polyhedral.AccessRelation{Array: arr, Matrix: polyhedral.Identity(1)},
	}
	arr.Producer = stmt
	model := &polyhedral.Model{
		Statements: []*polyhedral.Statement{stmt},
		Arrays:     []*polyhedral.Array{arr},
		Output:     arr,
	}

	_, src := compile(t, model)
	require.Contains(t, src, "(double)")
}

func TestReport(t *testing.T) {
	model := delayModel()
	_, err := dataflow.Analyze(model)
	require.NoError(t, err)
	_, err = schedule.Run(model, nil, schedule.Options{})
	require.NoError(t, err)

	report := BuildReport(model, "kernel.cpp", "kernel")
	require.Len(t, report.Inputs, 1)
	require.Equal(t, "in", report.Inputs[0].Name)
	require.True(t, report.Inputs[0].IsStream)
	require.Equal(t, "real64", report.Inputs[0].Type)
	require.Equal(t, int64(1), report.Inputs[0].PeriodCount)

	require.Len(t, report.Outputs, 1)
	require.Equal(t, "out", report.Outputs[0].Name)
	require.Equal(t, "kernel.cpp", report.Kernel.FileName)
	require.Equal(t, "kernel", report.Kernel.Namespace)
}
