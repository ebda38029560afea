package codegen

import (
	"fmt"
	"strconv"
	"strings"
)

// Printer renders a Module as C++ source text.
type Printer struct {
	out    strings.Builder
	indent int
}

// Print returns the C++ source for a module.
func Print(m *Module) string {
	p := &Printer{}
	p.module(m)
	return p.out.String()
}

func (p *Printer) line(format string, args ...any) {
	p.out.WriteString(strings.Repeat("    ", p.indent))
	fmt.Fprintf(&p.out, format, args...)
	p.out.WriteByte('\n')
}

func (p *Printer) blank() { p.out.WriteByte('\n') }

func (p *Printer) module(m *Module) {
	for _, inc := range m.Includes {
		p.line("#include <%s>", inc)
	}
	p.blank()
	p.line("using namespace std;")
	p.blank()
	p.line("namespace %s {", m.Namespace)
	p.blank()
	for _, d := range m.Decls {
		p.decl(d)
		p.blank()
	}
	p.line("} // namespace %s", m.Namespace)
}

func (p *Printer) decl(d Decl) {
	switch d := d.(type) {
	case *StructDef:
		p.line("struct %s {", d.Name)
		p.indent++
		for _, f := range d.Fields {
			decl := declarator(f.Type, f.Name, f.Dims)
			if f.Init != nil {
				p.line("%s = %s;", decl, p.expr(f.Init))
			} else {
				p.line("%s;", decl)
			}
		}
		p.indent--
		p.line("};")

	case *FuncDecl:
		p.line("%s;", signature(d.Name, d.Result, d.Params, false))

	case *FuncDef:
		p.line("%s", signature(d.Name, d.Result, d.Params, d.Inline))
		p.block(d.Body)
	}
}

func signature(name string, result Type, params []Param, inline bool) string {
	var b strings.Builder
	if inline {
		b.WriteString("inline ")
	}
	b.WriteString(typeName(result))
	b.WriteByte(' ')
	b.WriteString(name)
	b.WriteByte('(')
	for i, param := range params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(declarator(param.Type, param.Name, param.Dims))
	}
	b.WriteByte(')')
	return b.String()
}

func typeName(t Type) string {
	switch t := t.(type) {
	case *BasicType:
		return t.Name
	case *PointerType:
		return typeName(t.Elem) + "*"
	}
	return "void"
}

// declarator renders "type name[d0][d1]"; a 0 dimension is unbounded.
func declarator(t Type, name string, dims []int64) string {
	s := typeName(t)
	if name != "" {
		s += " " + name
	}
	for _, d := range dims {
		if d == 0 {
			s += "[]"
		} else {
			s += "[" + strconv.FormatInt(d, 10) + "]"
		}
	}
	return s
}

func (p *Printer) block(b *BlockStmt) {
	p.line("{")
	p.indent++
	for _, s := range b.Stmts {
		p.stmt(s)
	}
	p.indent--
	p.line("}")
}

func (p *Printer) stmt(s Stmt) {
	switch s := s.(type) {
	case *ExprStmt:
		p.line("%s;", p.expr(s.Expr))

	case *VarDecl:
		decl := declarator(s.Type, s.Name, s.Dims)
		if s.Init != nil {
			p.line("%s = %s;", decl, p.expr(s.Init))
		} else {
			p.line("%s;", decl)
		}

	case *BlockStmt:
		p.block(s)

	case *ForStmt:
		step := "++" + s.Var
		if s.Step != 1 {
			step = fmt.Sprintf("%s += %d", s.Var, s.Step)
		}
		p.line("for (int %s = %d; %s < %d; %s)", s.Var, s.Lower, s.Var, s.Upper, step)
		p.block(s.Body)

	case *IfStmt:
		p.line("if (%s)", p.expr(s.Cond))
		p.block(s.Then)
		if s.Else != nil {
			p.line("else")
			p.block(s.Else)
		}

	case *ReturnStmt:
		if s.Value != nil {
			p.line("return %s;", p.expr(s.Value))
		} else {
			p.line("return;")
		}
	}
}

func (p *Printer) expr(e Expr) string {
	switch e := e.(type) {
	case *ID:
		return e.Name
	case *IntLit:
		return strconv.FormatInt(e.Value, 10)
	case *RealLit:
		s := strconv.FormatFloat(e.Value, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		return s
	case *BoolLit:
		if e.Value {
			return "true"
		}
		return "false"
	case *Unop:
		return e.Op + p.operand(e.Operand)
	case *Binop:
		if e.Op == "=" {
			return p.expr(e.L) + " = " + p.expr(e.R)
		}
		return p.operand(e.L) + " " + e.Op + " " + p.operand(e.R)
	case *Call:
		args := make([]string, len(e.Args))
		for i, a := range e.Args {
			args[i] = p.expr(a)
		}
		return e.Name + "(" + strings.Join(args, ", ") + ")"
	case *Cast:
		return "(" + typeName(e.Type) + ")" + p.operand(e.Operand)
	case *ArrayAccess:
		s := p.operand(e.Base)
		for _, ix := range e.Index {
			s += "[" + p.expr(ix) + "]"
		}
		return s
	case *Member:
		op := "."
		if e.Pointer {
			op = "->"
		}
		return p.operand(e.Base) + op + e.Name
	}
	return ""
}

// operand parenthesizes compound subexpressions.
func (p *Printer) operand(e Expr) string {
	switch e.(type) {
	case *Binop, *Cast, *Unop:
		return "(" + p.expr(e) + ")"
	}
	return p.expr(e)
}
