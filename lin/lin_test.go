package lin

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNullspaceBalancedChain(t *testing.T) {
	// A 2:1 downsampler chain: r0 - 2*r1 = 0, r1 - r2 = 0.
	m := NewMatrix(2, 3)
	m.SetInt(0, 0, 1)
	m.SetInt(0, 1, -2)
	m.SetInt(1, 1, 1)
	m.SetInt(1, 2, -1)

	null := m.Nullspace()
	require.Equal(t, 1, null.Cols)

	steady, err := null.PrimitiveColumn(0)
	require.NoError(t, err)
	require.Equal(t, []int64{2, 1, 1}, steady)
}

func TestNullspaceUnbalanced(t *testing.T) {
	// Two disconnected rate islands leave a 2-dimensional nullspace.
	m := NewMatrix(2, 4)
	m.SetInt(0, 0, 1)
	m.SetInt(0, 1, -1)
	m.SetInt(1, 2, 1)
	m.SetInt(1, 3, -1)

	null := m.Nullspace()
	require.Equal(t, 2, null.Cols)
}

func TestPrimitiveColumnScalesRationals(t *testing.T) {
	// Fractional entries scale to the smallest integer vector.
	m := NewMatrix(2, 1)
	m.At(0, 0).SetFrac64(1, 2)
	m.At(1, 0).SetFrac64(3, 2)

	v, err := m.PrimitiveColumn(0)
	require.NoError(t, err)
	require.Equal(t, []int64{1, 3}, v)
}

func TestPrimitiveColumnMixedSigns(t *testing.T) {
	m := NewMatrix(2, 1)
	m.SetInt(0, 0, 1)
	m.SetInt(1, 0, -1)
	_, err := m.PrimitiveColumn(0)
	require.Error(t, err)
}

func TestLeastNonNegativeDelay(t *testing.T) {
	// A delay by two: the consumer must run two iterations ahead, and
	// the producer follows.
	cons := []Constraint{
		{X: 0, CoefX: 1, Y: 1, CoefY: 1, Const: 0}, // i0 >= i1
		{X: 1, CoefX: 1, Y: -1, Const: 2},          // i1 >= 2
	}
	x, err := LeastNonNegative(2, cons)
	require.NoError(t, err)
	require.Equal(t, []int64{2, 2}, x)
}

func TestLeastNonNegativeIsMinimal(t *testing.T) {
	// 2*i0 >= 3*i1 + 1, i1 >= 1  ->  i1 = 1, i0 = ceil(4/2) = 2.
	cons := []Constraint{
		{X: 0, CoefX: 2, Y: 1, CoefY: 3, Const: 1},
		{X: 1, CoefX: 1, Y: -1, Const: 1},
	}
	x, err := LeastNonNegative(2, cons)
	require.NoError(t, err)
	require.Equal(t, []int64{2, 1}, x)
}

func TestLeastNonNegativeDiverges(t *testing.T) {
	// A gaining cycle has no finite least solution.
	cons := []Constraint{
		{X: 0, CoefX: 1, Y: 1, CoefY: 1, Const: 1},
		{X: 1, CoefX: 1, Y: 0, CoefY: 1, Const: 1},
	}
	_, err := LeastNonNegative(2, cons)
	require.Error(t, err)
}

func TestCeilDiv(t *testing.T) {
	require.Equal(t, int64(2), CeilDiv(int64(3), int64(2)))
	require.Equal(t, int64(1), CeilDiv(int64(2), int64(2)))
	require.Equal(t, int64(-1), CeilDiv(int64(-3), int64(2)))
	require.Equal(t, int64(0), CeilDiv(int64(-1), int64(2)))
}
