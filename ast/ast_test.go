package ast

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCloneIsDeep(t *testing.T) {
	expr := NewList(Add, 1, NewIdent(1, "x"), NewInt(1, 2))
	stmt := NewStatement(1, "f", []string{"x"}, NewBlock(nil, expr))

	cp := stmt.Clone()
	cp.Elems[0].Ident = "g"
	cp.Elems[2].Elems[1].Elems[1].Int = 7

	require.Equal(t, "f", stmt.Elems[0].Ident)
	require.Equal(t, int64(2), stmt.Elems[2].Elems[1].Elems[1].Int)
}

func TestCloneDropsAnnotations(t *testing.T) {
	n := NewInt(1, 3)
	n.Sem = fakeType("integer")
	require.Nil(t, n.Clone().Sem)
}

type fakeType string

func (f fakeType) String() string { return string(f) }

func TestAddSymbol(t *testing.T) {
	env := make(Environment)

	value := NewStatement(1, "x", nil, NewBlock(nil, NewInt(1, 3)))
	require.NoError(t, env.AddSymbol(value))
	require.Equal(t, ExpressionSymbol, env["x"].Kind)

	fn := NewStatement(2, "f", []string{"a", "b"}, NewBlock(nil, NewIdent(2, "a")))
	require.NoError(t, env.AddSymbol(fn))
	require.Equal(t, FunctionSymbol, env["f"].Kind)
	require.Equal(t, []string{"a", "b"}, env["f"].Params)
}

func TestUnmarshalProgram(t *testing.T) {
	data := []byte(`[
	  {"kind": "statement", "line": 1, "elems": [
	    {"kind": "identifier", "ident": "x"},
	    null,
	    {"kind": "expression_block", "elems": [
	      null,
	      {"kind": "add", "line": 1, "elems": [
	        {"kind": "integer_num", "int": 1},
	        {"kind": "real_num", "real": 2.5}
	      ]}
	    ]}
	  ]}
	]`)

	env, err := UnmarshalProgram(data)
	require.NoError(t, err)
	require.Contains(t, env, "x")

	expr := env["x"].Source.Elems[2].Elems[1]
	require.Equal(t, Add, expr.Kind)
	require.Equal(t, int64(1), expr.Elems[0].Int)
	require.Equal(t, 2.5, expr.Elems[1].Real)
}

func TestUnmarshalRejectsUnknownKind(t *testing.T) {
	_, err := UnmarshalNode([]byte(`{"kind": "frobnicate"}`))
	require.Error(t, err)
}
