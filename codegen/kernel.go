package codegen

import (
	"fmt"

	"github.com/arrplang/arrp/polyhedral"
	"github.com/arrplang/arrp/schedule"
)

const stateTypeName = "state"

// Generate assembles the kernel module: the floor-remainder helpers,
// the state struct, the host extern declarations, get_output, and the
// initialize and process entry points.
func Generate(namespace string, model *polyhedral.Model, sched *schedule.Schedule) (*Module, error) {
	m := &Module{
		Includes:  []string{"cmath", "algorithm"},
		Namespace: namespace,
	}

	addRemainderFuncs(m)
	m.Decls = append(m.Decls, stateTypeDef(model, sched))
	m.Decls = append(m.Decls, hostInputDecl(), hostOutputDecl())
	m.Decls = append(m.Decls, outputGetter(model, sched))

	lw := NewLowerer(model, sched)

	init := &FuncDef{
		Name:   "initialize",
		Result: VoidType,
		Params: kernelParams(model),
		Body:   &BlockStmt{},
	}
	b := newBuilder(&init.Body.Stmts)
	declareStackBuffers(model, sched, b)
	if err := lw.genNode(sched.Init, b); err != nil {
		return nil, err
	}
	advancePhases(model, sched, b, true)
	m.Decls = append(m.Decls, init)

	process := &FuncDef{
		Name:   "process",
		Result: VoidType,
		Params: kernelParams(model),
		Body:   &BlockStmt{},
	}
	lw.setInPeriod(true)
	b = newBuilder(&process.Body.Stmts)
	declareStackBuffers(model, sched, b)
	if err := lw.genNode(sched.Period, b); err != nil {
		return nil, err
	}
	advancePhases(model, sched, b, false)
	m.Decls = append(m.Decls, process)

	return m, nil
}

// kernelParams lists the input channels followed by the state
// pointer. Parameters are named positionally so they never collide
// with buffer names.
func kernelParams(model *polyhedral.Model) []Param {
	var params []Param
	for i, in := range model.Inputs {
		dims := make([]int64, len(in.Size))
		for i, d := range in.Size {
			if d == polyhedral.Infinite {
				dims[i] = 0
			} else {
				dims[i] = d
			}
		}
		params = append(params, Param{
			Type: typeFor(in.Type),
			Name: fmt.Sprintf("in%d", i),
			Dims: dims,
		})
	}
	params = append(params, Param{
		Type: &PointerType{Elem: &BasicType{Name: stateTypeName}},
		Name: "s",
	})
	return params
}

func bufferField(a *polyhedral.Array) Field {
	if len(a.BufferSize) == 1 && a.BufferSize[0] == 1 {
		return Field{Type: typeFor(a.Type), Name: a.Name}
	}
	return Field{Type: typeFor(a.Type), Name: a.Name, Dims: a.BufferSize}
}

func stateTypeDef(model *polyhedral.Model, sched *schedule.Schedule) *StructDef {
	def := &StructDef{Name: stateTypeName}
	for _, a := range model.Arrays {
		if sched.Buffers[a.Name].OnStack {
			continue
		}
		def.Fields = append(def.Fields, bufferField(a))
	}
	for _, a := range model.Arrays {
		if !sched.Buffers[a.Name].HasPhase {
			continue
		}
		def.Fields = append(def.Fields, Field{
			Type: IntCType,
			Name: a.Name + "_ph",
			Init: &IntLit{Value: 0},
		})
	}
	return def
}

func declareStackBuffers(model *polyhedral.Model, sched *schedule.Schedule, b *builder) {
	for _, a := range model.Arrays {
		if !sched.Buffers[a.Name].OnStack {
			continue
		}
		if len(a.BufferSize) == 1 && a.BufferSize[0] == 1 {
			b.add(&VarDecl{Type: typeFor(a.Type), Name: a.Name})
		} else {
			b.add(&VarDecl{Type: typeFor(a.Type), Name: a.Name, Dims: a.BufferSize})
		}
	}
}

// advancePhases rotates each phased buffer: by the period offset after
// initialization, by the period after every steady iteration.
func advancePhases(model *polyhedral.Model, sched *schedule.Schedule, b *builder, init bool) {
	for _, a := range model.Arrays {
		info := sched.Buffers[a.Name]
		if info == nil || !info.HasPhase {
			continue
		}
		offset := a.Period
		if init {
			offset = a.PeriodOffset
		}
		phase := &Member{Base: &ID{Name: "s"}, Name: a.Name + "_ph", Pointer: true}
		next := &Binop{Op: "+", L: phase, R: &IntLit{Value: offset}}
		wrapped := &Call{Name: "remainder", Args: []Expr{next, &IntLit{Value: a.BufferSize[0]}}}
		b.add(&ExprStmt{Expr: &Binop{Op: "=", L: phase, R: wrapped}})
	}
}

// addRemainderFuncs defines the floor-remainder helpers: non-negative
// results for positive divisors so wrapped buffer indices stay valid
// for negative offsets at initialization.
func addRemainderFuncs(m *Module) {
	{
		f := &FuncDef{
			Name:   "remainder",
			Result: IntCType,
			Params: []Param{{Type: IntCType, Name: "x"}, {Type: IntCType, Name: "y"}},
			Inline: true,
			Body:   &BlockStmt{},
		}
		x, y, r := &ID{Name: "x"}, &ID{Name: "y"}, &ID{Name: "m"}
		f.Body.Stmts = append(f.Body.Stmts,
			&VarDecl{Type: IntCType, Name: "m", Init: &Binop{Op: "%", L: x, R: y}})

		zero := &IntLit{Value: 0}
		notZero := &Binop{Op: "!=", L: r, R: zero}
		signDiffers := &Binop{Op: "!=",
			L: &Binop{Op: "<", L: r, R: zero},
			R: &Binop{Op: "<", L: y, R: zero}}
		correct := &Binop{Op: "&&", L: notZero, R: signDiffers}

		then := &BlockStmt{Stmts: []Stmt{
			&ReturnStmt{Value: &Binop{Op: "+", L: r, R: y}},
		}}
		f.Body.Stmts = append(f.Body.Stmts,
			&IfStmt{Cond: correct, Then: then},
			&ReturnStmt{Value: r})
		m.Decls = append(m.Decls, f)
	}
	{
		f := &FuncDef{
			Name:   "remainder",
			Result: DoubleType,
			Params: []Param{{Type: DoubleType, Name: "x"}, {Type: DoubleType, Name: "y"}},
			Inline: true,
			Body:   &BlockStmt{},
		}
		x, y := &ID{Name: "x"}, &ID{Name: "y"}
		q := &Call{Name: "floor", Args: []Expr{&Binop{Op: "/", L: x, R: y}}}
		f.Body.Stmts = append(f.Body.Stmts, &ReturnStmt{
			Value: &Binop{Op: "-", L: x, R: &Binop{Op: "*", L: q, R: y}},
		})
		m.Decls = append(m.Decls, f)
	}
}

func hostInputDecl() *FuncDecl {
	return &FuncDecl{
		Name:   "input",
		Result: VoidType,
		Params: []Param{
			{Type: IntCType, Name: ""},
			{Type: &PointerType{Elem: DoubleType}, Name: ""},
		},
	}
}

func hostOutputDecl() *FuncDecl {
	return &FuncDecl{
		Name:   "output",
		Result: VoidType,
		Params: []Param{
			{Type: &PointerType{Elem: DoubleType}, Name: ""},
		},
	}
}

// outputGetter returns a pointer to the output buffer inside the
// state.
func outputGetter(model *polyhedral.Model, sched *schedule.Schedule) *FuncDef {
	out := model.Output
	resultType := &PointerType{Elem: typeFor(out.Type)}

	f := &FuncDef{
		Name:   "get_output",
		Result: resultType,
		Params: []Param{{
			Type: &PointerType{Elem: &BasicType{Name: stateTypeName}},
			Name: "s",
		}},
		Body: &BlockStmt{},
	}

	var access Expr = &Member{Base: &ID{Name: "s"}, Name: out.Name, Pointer: true}
	if len(out.BufferSize) == 1 && out.BufferSize[0] == 1 {
		access = &Unop{Op: "&", Operand: access}
	} else {
		access = &Cast{Type: resultType, Operand: access}
	}
	f.Body.Stmts = append(f.Body.Stmts, &ReturnStmt{Value: access})
	return f
}
