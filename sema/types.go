package sema

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/arrplang/arrp/ast"
)

// Infinite marks a stream dimension without an upper bound. At most one
// dimension of a stream is infinite and it must be the outermost.
const Infinite int64 = -1

type Kind int

const (
	BoolKind Kind = iota
	IntKind
	RealKind
	RangeKind
	StreamKind
	IteratorKind
	FuncKind
	BuiltinGroupKind
	BuiltinKind
	ExternalKind
)

var kindNames = [...]string{
	BoolKind:         "boolean",
	IntKind:          "integer",
	RealKind:         "real",
	RangeKind:        "range",
	StreamKind:       "stream",
	IteratorKind:     "iterator",
	FuncKind:         "function",
	BuiltinGroupKind: "builtin",
	BuiltinKind:      "builtin instance",
	ExternalKind:     "external function",
}

func (k Kind) String() string {
	if 0 <= int(k) && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Type is the interface for all semantic types.
type Type interface {
	Kind() Kind
	String() string
}

// Boolean is the type of comparison results.
type Boolean struct{}

func (b *Boolean) Kind() Kind     { return BoolKind }
func (b *Boolean) String() string { return "boolean" }

// Integer is a scalar integer, possibly known at compile time.
type Integer struct {
	HasConst bool
	Const    int64
}

func NewInt() *Integer             { return &Integer{} }
func NewConstInt(v int64) *Integer { return &Integer{HasConst: true, Const: v} }

func (i *Integer) Kind() Kind { return IntKind }
func (i *Integer) String() string {
	if i.HasConst {
		return fmt.Sprintf("integer(%d)", i.Const)
	}
	return "integer"
}

// Real is a scalar real, possibly known at compile time.
type Real struct {
	HasConst bool
	Const    float64
}

func NewReal() *Real               { return &Real{} }
func NewConstReal(v float64) *Real { return &Real{HasConst: true, Const: v} }

func (r *Real) Kind() Kind { return RealKind }
func (r *Real) String() string {
	if r.HasConst {
		return fmt.Sprintf("real(%g)", r.Const)
	}
	return "real"
}

// Range is an integer interval. Start or End may be nil when the range
// is open on that side; open ends are clamped by the consuming context
// (slicing). Both ends inclusive.
type Range struct {
	Start *Integer
	End   *Integer
}

func (r *Range) Kind() Kind { return RangeKind }
func (r *Range) String() string {
	s, e := "", ""
	if r.Start != nil {
		s = r.Start.String()
	}
	if r.End != nil {
		e = r.End.String()
	}
	return s + ".." + e
}

// IsConstant reports whether both ends are compile-time constants.
func (r *Range) IsConstant() bool {
	return r.Start != nil && r.Start.HasConst && r.End != nil && r.End.HasConst
}

func (r *Range) ConstStart() int64 { return r.Start.Const }
func (r *Range) ConstEnd() int64   { return r.End.Const }

// ConstSize is the element count of a constant range.
func (r *Range) ConstSize() int64 { return r.End.Const - r.Start.Const + 1 }

// Stream is a multi-dimensional array of reals, one dimension possibly
// Infinite.
type Stream struct {
	Size []int64
}

func NewStream(size ...int64) *Stream { return &Stream{Size: size} }

func (s *Stream) Kind() Kind { return StreamKind }
func (s *Stream) String() string {
	dims := make([]string, len(s.Size))
	for i, d := range s.Size {
		if d == Infinite {
			dims[i] = "~"
		} else {
			dims[i] = strconv.FormatInt(d, 10)
		}
	}
	return "stream[" + strings.Join(dims, ",") + "]"
}

func (s *Stream) Rank() int { return len(s.Size) }

// Reduced drops size-1 dimensions. A stream with no dimensions left
// reduces to a real scalar.
func (s *Stream) Reduced() Type {
	var size []int64
	for _, d := range s.Size {
		if d != 1 {
			size = append(size, d)
		}
	}
	if len(size) == 0 {
		return NewReal()
	}
	return &Stream{Size: size}
}

// Iterator is the value bound to a for-iteration variable.
type Iterator struct {
	ID     string
	Size   int64
	Hop    int64
	Count  int64 // Infinite when the domain is infinite
	Value  Type  // per-iteration value type
	Domain *ast.Node
}

func (it *Iterator) Kind() Kind { return IteratorKind }
func (it *Iterator) String() string {
	return fmt.Sprintf("iterator(%s: %d every %d)", it.ID, it.Size, it.Hop)
}

// Func is a user-defined function. Scope is the scope it was defined
// in; monomorphized instances of functions applied outside the root
// scope are appended to List, the statement list that owns them.
type Func struct {
	Name      string
	Params    []string
	Statement *ast.Node
	List      *ast.Node
	Scope     *Scope

	// Instantiated marks a monomorphized instance; applying one again
	// re-checks its body without producing another clone.
	Instantiated bool
}

func (f *Func) Kind() Kind { return FuncKind }
func (f *Func) String() string {
	return fmt.Sprintf("%s(%s)", f.Name, strings.Join(f.Params, ", "))
}

// Signature is one overload of a builtin function, over scalar tags.
type Signature struct {
	Params []Kind
	Result Kind
}

// BuiltinGroup is an overloaded builtin function.
type BuiltinGroup struct {
	Name      string
	Overloads []Signature
}

func (g *BuiltinGroup) Kind() Kind     { return BuiltinGroupKind }
func (g *BuiltinGroup) String() string { return "builtin " + g.Name }

// Builtin is a resolved overload, attached to the call site.
type Builtin struct {
	Name string
	Sig  Signature
}

func (b *Builtin) Kind() Kind     { return BuiltinKind }
func (b *Builtin) String() string { return "builtin " + b.Name }

// External is a host-supplied function: it consumes one cell window of
// its argument per call and returns a real scalar.
type External struct {
	Name string
}

func (e *External) Kind() Kind     { return ExternalKind }
func (e *External) String() string { return "external " + e.Name }

// ShapeOf returns the dimension list of a type used as data: streams
// yield their size, constant ranges their element count, scalars an
// empty shape.
func ShapeOf(t Type) []int64 {
	switch t := t.(type) {
	case *Stream:
		return t.Size
	case *Range:
		if t.IsConstant() {
			return []int64{t.ConstSize()}
		}
	}
	return nil
}
