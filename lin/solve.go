package lin

import (
	"fmt"

	"golang.org/x/exp/constraints"
)

// CeilDiv rounds a/b towards positive infinity. b must be positive.
func CeilDiv[T constraints.Signed](a, b T) T {
	q := a / b
	if a%b > 0 {
		q++
	}
	return q
}

// Constraint is one row of a monotone integer system:
//
//	CoefX * x[X] >= CoefY * x[Y] + Const
//
// with CoefX > 0 and CoefY >= 0. Y may be -1 for a plain lower bound
// on x[X].
type Constraint struct {
	X     int
	CoefX int64
	Y     int
	CoefY int64
	Const int64
}

// maxSweeps bounds the fixpoint iteration. Convergent systems produced
// by the dataflow stage settle within a few sweeps; hitting the bound
// means the system has no finite least solution.
const maxSweeps = 1000

// LeastNonNegative computes the least non-negative integer point
// satisfying all constraints, by monotone fixpoint iteration from
// zero. Because every step only raises variables to their forced
// minimum, the result is component-wise minimal, hence both the
// minimum-cost and the lexicographically smallest solution.
func LeastNonNegative(n int, cons []Constraint) ([]int64, error) {
	for _, con := range cons {
		if con.CoefX <= 0 || con.CoefY < 0 {
			return nil, fmt.Errorf("non-monotone constraint: %+v", con)
		}
	}

	x := make([]int64, n)
	for sweep := 0; sweep < maxSweeps; sweep++ {
		changed := false
		for _, con := range cons {
			rhs := con.Const
			if con.Y >= 0 {
				rhs += con.CoefY * x[con.Y]
			}
			need := CeilDiv(rhs, con.CoefX)
			if need > x[con.X] {
				x[con.X] = need
				changed = true
			}
		}
		if !changed {
			return x, nil
		}
	}
	return nil, fmt.Errorf("constraint system has no finite least solution")
}
