// Package lin provides the exact integer linear algebra used by the
// dataflow and scheduling stages: rational matrices with Gauss-Jordan
// elimination, integer nullspace extraction, and a least-fixpoint
// solver for monotone integer constraint systems.
package lin

import (
	"fmt"
	"math/big"
)

// Matrix is a dense matrix of arbitrary-precision rationals.
type Matrix struct {
	Rows, Cols int
	a          []*big.Rat
}

func NewMatrix(rows, cols int) *Matrix {
	m := &Matrix{Rows: rows, Cols: cols, a: make([]*big.Rat, rows*cols)}
	for i := range m.a {
		m.a[i] = new(big.Rat)
	}
	return m
}

func (m *Matrix) At(r, c int) *big.Rat { return m.a[r*m.Cols+c] }

func (m *Matrix) Set(r, c int, v *big.Rat) { m.a[r*m.Cols+c].Set(v) }

func (m *Matrix) SetInt(r, c int, v int64) { m.a[r*m.Cols+c].SetInt64(v) }

func (m *Matrix) Clone() *Matrix {
	cp := NewMatrix(m.Rows, m.Cols)
	for i, v := range m.a {
		cp.a[i].Set(v)
	}
	return cp
}

func (m *Matrix) String() string {
	s := ""
	for r := 0; r < m.Rows; r++ {
		for c := 0; c < m.Cols; c++ {
			s += m.At(r, c).RatString() + " "
		}
		s += "\n"
	}
	return s
}

// rref reduces m in place to reduced row echelon form and returns the
// pivot column of each pivot row.
func (m *Matrix) rref() []int {
	var pivots []int
	row := 0
	for col := 0; col < m.Cols && row < m.Rows; col++ {
		// Find a non-zero pivot at or below row.
		pivot := -1
		for r := row; r < m.Rows; r++ {
			if m.At(r, col).Sign() != 0 {
				pivot = r
				break
			}
		}
		if pivot < 0 {
			continue
		}
		if pivot != row {
			for c := 0; c < m.Cols; c++ {
				i, j := pivot*m.Cols+c, row*m.Cols+c
				m.a[i], m.a[j] = m.a[j], m.a[i]
			}
		}
		inv := new(big.Rat).Inv(m.At(row, col))
		for c := 0; c < m.Cols; c++ {
			m.At(row, c).Mul(m.At(row, c), inv)
		}
		for r := 0; r < m.Rows; r++ {
			if r == row || m.At(r, col).Sign() == 0 {
				continue
			}
			factor := new(big.Rat).Set(m.At(r, col))
			for c := 0; c < m.Cols; c++ {
				t := new(big.Rat).Mul(factor, m.At(row, c))
				m.At(r, c).Sub(m.At(r, c), t)
			}
		}
		pivots = append(pivots, col)
		row++
	}
	return pivots
}

// Nullspace returns a basis of the right nullspace of m, one basis
// vector per column of the result.
func (m *Matrix) Nullspace() *Matrix {
	red := m.Clone()
	pivots := red.rref()

	isPivot := make([]bool, m.Cols)
	for _, p := range pivots {
		isPivot[p] = true
	}
	var free []int
	for c := 0; c < m.Cols; c++ {
		if !isPivot[c] {
			free = append(free, c)
		}
	}

	basis := NewMatrix(m.Cols, len(free))
	for k, fc := range free {
		basis.SetInt(fc, k, 1)
		for r, pc := range pivots {
			v := new(big.Rat).Neg(red.At(r, fc))
			basis.Set(pc, k, v)
		}
	}
	return basis
}

// PrimitiveColumn scales column k of m to the smallest integer vector
// with positive entries. It fails if entries have mixed signs or the
// column is zero.
func (m *Matrix) PrimitiveColumn(k int) ([]int64, error) {
	// Common denominator.
	lcm := big.NewInt(1)
	for r := 0; r < m.Rows; r++ {
		d := m.At(r, k).Denom()
		g := new(big.Int).GCD(nil, nil, lcm, d)
		lcm.Div(new(big.Int).Mul(lcm, d), g)
	}

	ints := make([]*big.Int, m.Rows)
	for r := 0; r < m.Rows; r++ {
		v := new(big.Rat).Mul(m.At(r, k), new(big.Rat).SetInt(lcm))
		ints[r] = v.Num()
	}

	// Common factor.
	gcd := new(big.Int)
	for _, v := range ints {
		gcd.GCD(nil, nil, gcd, new(big.Int).Abs(v))
	}
	if gcd.Sign() == 0 {
		return nil, fmt.Errorf("zero nullspace vector")
	}

	sign := 0
	out := make([]int64, m.Rows)
	for r, v := range ints {
		q := new(big.Int).Div(v, gcd)
		if q.Sign() != 0 {
			if sign == 0 {
				sign = q.Sign()
			} else if q.Sign() != sign {
				return nil, fmt.Errorf("nullspace vector has mixed signs")
			}
		}
		if !q.IsInt64() {
			return nil, fmt.Errorf("nullspace entry out of range")
		}
		out[r] = q.Int64()
	}
	if sign < 0 {
		for r := range out {
			out[r] = -out[r]
		}
	}
	return out, nil
}
