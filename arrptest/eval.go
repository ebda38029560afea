package arrptest

import (
	"fmt"
	"math"

	"github.com/arrplang/arrp/polyhedral"
)

// EvalFinite evaluates a model containing only finite statements and
// returns the dense contents of every array, row-major. It is the
// reference against which generated kernels are checked.
func EvalFinite(model *polyhedral.Model) (map[string][]float64, error) {
	data := make(map[string][]float64)

	for _, a := range model.Arrays {
		flat := int64(1)
		for _, d := range a.Size {
			if d == polyhedral.Infinite {
				return nil, fmt.Errorf("array '%s' is infinite", a.Name)
			}
			flat *= d
		}
		data[a.Name] = make([]float64, flat)
	}

	for _, stmt := range model.Statements {
		if stmt.IsInfinite() {
			return nil, fmt.Errorf("statement %s is infinite", stmt.Name)
		}
		if err := evalStatement(stmt, data); err != nil {
			return nil, err
		}
	}
	return data, nil
}

func evalStatement(stmt *polyhedral.Statement, data map[string][]float64) error {
	index := make([]int64, len(stmt.Domain))
	for {
		v, err := evalExpr(stmt.Expr, index, data)
		if err != nil {
			return err
		}
		target := stmt.Write.Matrix.Apply(index)
		data[stmt.Write.Array.Name][flatten(target, stmt.Write.Array.Size)] = v

		if !increment(index, stmt.Domain) {
			return nil
		}
	}
}

func flatten(index, size []int64) int64 {
	var flat int64
	for d := range index {
		flat = flat*size[d] + index[d]
	}
	return flat
}

func increment(index, domain []int64) bool {
	for d := len(index) - 1; d >= 0; d-- {
		index[d]++
		if index[d] < domain[d] {
			return true
		}
		index[d] = 0
	}
	return false
}

func evalExpr(expr polyhedral.Expr, index []int64, data map[string][]float64) (float64, error) {
	switch e := expr.(type) {
	case *polyhedral.ConstInt:
		return float64(e.Value), nil
	case *polyhedral.ConstReal:
		return e.Value, nil
	case *polyhedral.ConstBool:
		if e.Value {
			return 1, nil
		}
		return 0, nil
	case *polyhedral.IteratorRead:
		return float64(index[e.Index]), nil
	case *polyhedral.ArrayRead:
		target := e.Matrix.Apply(index)
		return data[e.Array.Name][flatten(target, e.Array.Size)], nil
	case *polyhedral.Primitive:
		return evalPrimitive(e, index, data)
	}
	return 0, fmt.Errorf("unsupported expression %T", expr)
}

func evalPrimitive(e *polyhedral.Primitive, index []int64, data map[string][]float64) (float64, error) {
	if e.Op == polyhedral.Conditional {
		c, err := evalExpr(e.Operands[0], index, data)
		if err != nil {
			return 0, err
		}
		if c != 0 {
			return evalExpr(e.Operands[1], index, data)
		}
		return evalExpr(e.Operands[2], index, data)
	}

	ops := make([]float64, len(e.Operands))
	for i, operand := range e.Operands {
		v, err := evalExpr(operand, index, data)
		if err != nil {
			return 0, err
		}
		ops[i] = v
	}

	b2f := func(b bool) float64 {
		if b {
			return 1
		}
		return 0
	}

	switch e.Op {
	case polyhedral.Add:
		return ops[0] + ops[1], nil
	case polyhedral.Subtract:
		return ops[0] - ops[1], nil
	case polyhedral.Multiply:
		return ops[0] * ops[1], nil
	case polyhedral.Divide:
		return ops[0] / ops[1], nil
	case polyhedral.DivideInteger:
		return math.Trunc(ops[0] / ops[1]), nil
	case polyhedral.Modulo:
		return ops[0] - math.Floor(ops[0]/ops[1])*ops[1], nil
	case polyhedral.Raise:
		return math.Pow(ops[0], ops[1]), nil
	case polyhedral.Negate:
		if e.Type == polyhedral.BoolType {
			return b2f(ops[0] == 0), nil
		}
		return -ops[0], nil
	case polyhedral.CompareEq:
		return b2f(ops[0] == ops[1]), nil
	case polyhedral.CompareNeq:
		return b2f(ops[0] != ops[1]), nil
	case polyhedral.CompareL:
		return b2f(ops[0] < ops[1]), nil
	case polyhedral.CompareLeq:
		return b2f(ops[0] <= ops[1]), nil
	case polyhedral.CompareG:
		return b2f(ops[0] > ops[1]), nil
	case polyhedral.CompareGeq:
		return b2f(ops[0] >= ops[1]), nil
	case polyhedral.LogicAnd:
		return b2f(ops[0] != 0 && ops[1] != 0), nil
	case polyhedral.LogicOr:
		return b2f(ops[0] != 0 || ops[1] != 0), nil
	case polyhedral.LogicNeg:
		return b2f(ops[0] == 0), nil
	case polyhedral.Abs:
		return math.Abs(ops[0]), nil
	case polyhedral.Max:
		return math.Max(ops[0], ops[1]), nil
	case polyhedral.Min:
		return math.Min(ops[0], ops[1]), nil
	case polyhedral.Floor:
		return math.Floor(ops[0]), nil
	case polyhedral.Ceil:
		return math.Ceil(ops[0]), nil
	case polyhedral.Log:
		return math.Log(ops[0]), nil
	case polyhedral.Log2:
		return math.Log2(ops[0]), nil
	case polyhedral.Log10:
		return math.Log10(ops[0]), nil
	case polyhedral.Exp:
		return math.Exp(ops[0]), nil
	case polyhedral.Exp2:
		return math.Exp2(ops[0]), nil
	case polyhedral.Sqrt:
		return math.Sqrt(ops[0]), nil
	case polyhedral.Sin:
		return math.Sin(ops[0]), nil
	case polyhedral.Cos:
		return math.Cos(ops[0]), nil
	case polyhedral.Tan:
		return math.Tan(ops[0]), nil
	case polyhedral.Asin:
		return math.Asin(ops[0]), nil
	case polyhedral.Acos:
		return math.Acos(ops[0]), nil
	case polyhedral.Atan:
		return math.Atan(ops[0]), nil
	}
	return 0, fmt.Errorf("unsupported primitive %s", e.Op)
}
