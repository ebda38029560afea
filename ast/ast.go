package ast

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind tags every node of the input tree. The parser producing these
// trees lives outside this module; the compiler only consumes them.
type Kind int

const (
	Program Kind = iota
	StatementList
	Statement
	Identifier
	IntegerNum
	RealNum
	ExpressionBlock
	CallExpression

	Add
	Subtract
	Multiply
	Divide
	Raise
	Negate

	Lesser
	Greater
	LesserOrEqual
	GreaterOrEqual
	Equal
	NotEqual

	Range
	HashExpression
	TransposeExpression
	SliceExpression
	ForExpression
	ForIterationList
	ForIteration
	ReduceExpression
)

var kindNames = [...]string{
	Program:             "program",
	StatementList:       "statement_list",
	Statement:           "statement",
	Identifier:          "identifier",
	IntegerNum:          "integer_num",
	RealNum:             "real_num",
	ExpressionBlock:     "expression_block",
	CallExpression:      "call_expression",
	Add:                 "add",
	Subtract:            "subtract",
	Multiply:            "multiply",
	Divide:              "divide",
	Raise:               "raise",
	Negate:              "negate",
	Lesser:              "lesser",
	Greater:             "greater",
	LesserOrEqual:       "lesser_or_equal",
	GreaterOrEqual:      "greater_or_equal",
	Equal:               "equal",
	NotEqual:            "not_equal",
	Range:               "range",
	HashExpression:      "hash_expression",
	TransposeExpression: "transpose_expression",
	SliceExpression:     "slice_expression",
	ForExpression:       "for_expression",
	ForIterationList:    "for_iteration_list",
	ForIteration:        "for_iteration",
	ReduceExpression:    "reduce_expression",
}

func (k Kind) String() string {
	if 0 <= int(k) && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Type is the semantic annotation attached to nodes by the checker.
// Declared here as a minimal interface so the tree does not depend on
// the checker package.
type Type interface {
	String() string
}

// Node is a uniform tree node: leaves carry one of the value fields,
// lists carry Elems. A nil *Node marks an omitted optional element
// (e.g. an open range end).
type Node struct {
	Kind Kind
	Line int

	// Leaf payloads.
	Ident string
	Int   int64
	Real  float64

	Elems []*Node

	// Sem is filled in by the type checker.
	Sem Type
}

func (n *Node) String() string {
	switch n.Kind {
	case Identifier:
		return n.Ident
	case IntegerNum:
		return strconv.FormatInt(n.Int, 10)
	case RealNum:
		return strconv.FormatFloat(n.Real, 'g', -1, 64)
	}
	var out strings.Builder
	out.WriteString(n.Kind.String())
	out.WriteByte('(')
	for i, e := range n.Elems {
		if i > 0 {
			out.WriteString(", ")
		}
		if e == nil {
			out.WriteByte('_')
		} else {
			out.WriteString(e.String())
		}
	}
	out.WriteByte(')')
	return out.String()
}

// Clone deep-copies the subtree. Semantic annotations are not carried
// over; a clone is re-checked from scratch.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	cp := &Node{
		Kind:  n.Kind,
		Line:  n.Line,
		Ident: n.Ident,
		Int:   n.Int,
		Real:  n.Real,
	}
	if n.Elems != nil {
		cp.Elems = make([]*Node, len(n.Elems))
		for i, e := range n.Elems {
			cp.Elems[i] = e.Clone()
		}
	}
	return cp
}

// Leaf and list constructors. The external parser builds trees through
// these; tests and the driver use them directly.

func NewIdent(line int, name string) *Node {
	return &Node{Kind: Identifier, Line: line, Ident: name}
}

func NewInt(line int, v int64) *Node {
	return &Node{Kind: IntegerNum, Line: line, Int: v}
}

func NewReal(line int, v float64) *Node {
	return &Node{Kind: RealNum, Line: line, Real: v}
}

func NewList(kind Kind, line int, elems ...*Node) *Node {
	return &Node{Kind: kind, Line: line, Elems: elems}
}

// NewBlock wraps an expression with an optional local statement list,
// as produced for every expression context.
func NewBlock(stmts *Node, expr *Node) *Node {
	return &Node{Kind: ExpressionBlock, Line: expr.Line, Elems: []*Node{stmts, expr}}
}

// NewStatement builds "id(params) = block". params may be nil for a
// plain value binding.
func NewStatement(line int, id string, params []string, block *Node) *Node {
	var paramList *Node
	if params != nil {
		paramList = &Node{Kind: StatementList, Line: line}
		for _, p := range params {
			paramList.Elems = append(paramList.Elems, NewIdent(line, p))
		}
	}
	return NewList(Statement, line, NewIdent(line, id), paramList, block)
}

// SymbolKind distinguishes plain top-level expressions from functions.
type SymbolKind int

const (
	ExpressionSymbol SymbolKind = iota
	FunctionSymbol
)

// Symbol is one top-level binding of the environment handed to the
// compiler together with the tree.
type Symbol struct {
	Kind   SymbolKind
	Name   string
	Params []string
	Source *Node
}

// Environment maps top-level names to their symbols.
type Environment map[string]*Symbol

// AddSymbol registers a statement node as a symbol. It mirrors what the
// parser does for every top-level statement.
func (env Environment) AddSymbol(stmt *Node) error {
	if stmt.Kind != Statement || len(stmt.Elems) != 3 {
		return fmt.Errorf("not a statement node: %s", stmt.Kind)
	}
	name := stmt.Elems[0].Ident
	sym := &Symbol{Name: name, Source: stmt}
	if params := stmt.Elems[1]; params != nil {
		sym.Kind = FunctionSymbol
		for _, p := range params.Elems {
			sym.Params = append(sym.Params, p.Ident)
		}
	} else {
		sym.Kind = ExpressionSymbol
	}
	env[name] = sym
	return nil
}
