package arrptest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arrplang/arrp/polyhedral"
)

func TestParseExpectation(t *testing.T) {
	src := `
out = something
##? [2,3] int
##? ( (1,2,3), (4,5,6) )
`
	e, err := Parse(strings.NewReader(src))
	require.NoError(t, err)
	require.Equal(t, []int64{2, 3}, e.Size)
	require.Equal(t, IntElem, e.Type)
	require.Equal(t, []float64{1, 2, 3, 4, 5, 6}, e.Data)
}

func TestParseInfiniteDimension(t *testing.T) {
	src := `##? [~] real32
##? ( 1.5, -2.25 )
`
	e, err := Parse(strings.NewReader(src))
	require.NoError(t, err)
	require.Equal(t, []int64{-1}, e.Size)
	require.Equal(t, Float32Elem, e.Type)
	require.Equal(t, []float64{1.5, -2.25}, e.Data)
}

func TestParseRejectsWrongArity(t *testing.T) {
	src := `##? [2] int
##? ( 1, 2, 3 )
`
	_, err := Parse(strings.NewReader(src))
	require.Error(t, err)

	src = `##? [3] int
##? ( (1), (2), (3) )
`
	_, err = Parse(strings.NewReader(src))
	require.Error(t, err)
}

func finiteStatement(name string, domain []int64, expr polyhedral.Expr) (*polyhedral.Statement, *polyhedral.Array) {
	arr := &polyhedral.Array{
		Name: name,
		Type: polyhedral.Real64Type,
		Size: append([]int64(nil), domain...),
	}
	stmt := &polyhedral.Statement{
		Name:      "S_" + name,
		Domain:    domain,
		Dimension: -1,
		Expr:      expr,
		Write:     polyhedral.AccessRelation{Array: arr, Matrix: polyhedral.Identity(len(domain))},
	}
	arr.Producer = stmt
	return stmt, arr
}

func TestEvalFloorRemainder(t *testing.T) {
	cases := []struct {
		x, y polyhedral.Expr
		want float64
	}{
		{&polyhedral.ConstInt{Value: -1}, &polyhedral.ConstInt{Value: 4}, 3},
		{&polyhedral.ConstInt{Value: 1}, &polyhedral.ConstInt{Value: -4}, -3},
		{&polyhedral.ConstReal{Value: -7.5}, &polyhedral.ConstReal{Value: 2.0}, 0.5},
	}
	for _, c := range cases {
		stmt, arr := finiteStatement("r", []int64{1}, &polyhedral.Primitive{
			Op:       polyhedral.Modulo,
			Operands: []polyhedral.Expr{c.x, c.y},
			Type:     polyhedral.Real64Type,
		})
		model := &polyhedral.Model{
			Statements: []*polyhedral.Statement{stmt},
			Arrays:     []*polyhedral.Array{arr},
			Output:     arr,
		}
		data, err := EvalFinite(model)
		require.NoError(t, err)
		require.Equal(t, c.want, data["r"][0])
	}
}

func TestEvalFiniteChain(t *testing.T) {
	// iota[i] = 1 + i; double[i] = iota[i] * 2
	iota, iotaArr := finiteStatement("iota", []int64{4}, &polyhedral.Primitive{
		Op:       polyhedral.Add,
		Operands: []polyhedral.Expr{&polyhedral.ConstInt{Value: 1}, &polyhedral.IteratorRead{}},
		Type:     polyhedral.IntType,
	})
	double, doubleArr := finiteStatement("double", []int64{4}, &polyhedral.Primitive{
		Op: polyhedral.Multiply,
		Operands: []polyhedral.Expr{
			&polyhedral.ArrayRead{Array: iotaArr, Matrix: polyhedral.Identity(1)},
			&polyhedral.ConstInt{Value: 2},
		},
		Type: polyhedral.IntType,
	})
	model := &polyhedral.Model{
		Statements: []*polyhedral.Statement{iota, double},
		Arrays:     []*polyhedral.Array{iotaArr, doubleArr},
		Output:     doubleArr,
	}

	data, err := EvalFinite(model)
	require.NoError(t, err)
	require.Equal(t, []float64{2, 4, 6, 8}, data["double"])
}

func TestEvalRejectsInfinite(t *testing.T) {
	stmt, arr := finiteStatement("s", []int64{polyhedral.Infinite}, &polyhedral.ConstReal{})
	arr.IsInfinite = true
	model := &polyhedral.Model{
		Statements: []*polyhedral.Statement{stmt},
		Arrays:     []*polyhedral.Array{arr},
		Output:     arr,
	}
	_, err := EvalFinite(model)
	require.Error(t, err)
}
