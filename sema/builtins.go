package sema

// Builtin function groups bound into the root scope when a checker is
// created. Overload resolution over these is in checker.go.

var unaryRealNames = []string{
	"log", "log2", "log10",
	"exp", "exp2",
	"sqrt",
	"sin", "cos", "tan",
	"asin", "acos", "atan",
}

var roundingNames = []string{"ceil", "floor"}

var binaryNumericNames = []string{"max", "pow"}

func bindBuiltins(scope *Scope) {
	for _, name := range unaryRealNames {
		scope.Bind(name, &BuiltinGroup{
			Name:      name,
			Overloads: []Signature{{Params: []Kind{RealKind}, Result: RealKind}},
		})
	}
	for _, name := range roundingNames {
		scope.Bind(name, &BuiltinGroup{
			Name:      name,
			Overloads: []Signature{{Params: []Kind{RealKind}, Result: IntKind}},
		})
	}
	scope.Bind("abs", &BuiltinGroup{
		Name: "abs",
		Overloads: []Signature{
			{Params: []Kind{IntKind}, Result: IntKind},
			{Params: []Kind{RealKind}, Result: RealKind},
		},
	})
	for _, name := range binaryNumericNames {
		scope.Bind(name, &BuiltinGroup{
			Name: name,
			Overloads: []Signature{
				{Params: []Kind{IntKind, IntKind}, Result: IntKind},
				{Params: []Kind{RealKind, RealKind}, Result: RealKind},
			},
		})
	}
}
