package ast

import (
	"encoding/json"
	"fmt"
)

// The external parser hands trees to the compiler as JSON. Leaves
// carry one value field; lists carry elems. A null element marks an
// omitted optional slot.

var kindsByName = func() map[string]Kind {
	m := make(map[string]Kind, len(kindNames))
	for k, name := range kindNames {
		m[name] = Kind(k)
	}
	return m
}()

type jsonNode struct {
	Kind  string      `json:"kind"`
	Line  int         `json:"line,omitempty"`
	Ident string      `json:"ident,omitempty"`
	Int   *int64      `json:"int,omitempty"`
	Real  *float64    `json:"real,omitempty"`
	Elems []*jsonNode `json:"elems,omitempty"`
}

func (jn *jsonNode) node() (*Node, error) {
	if jn == nil {
		return nil, nil
	}
	kind, ok := kindsByName[jn.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown node kind %q", jn.Kind)
	}
	n := &Node{Kind: kind, Line: jn.Line, Ident: jn.Ident}
	if jn.Int != nil {
		n.Int = *jn.Int
	}
	if jn.Real != nil {
		n.Real = *jn.Real
	}
	if jn.Elems != nil {
		n.Elems = make([]*Node, len(jn.Elems))
		for i, e := range jn.Elems {
			var err error
			n.Elems[i], err = e.node()
			if err != nil {
				return nil, err
			}
		}
	}
	return n, nil
}

// UnmarshalNode decodes one JSON-encoded tree.
func UnmarshalNode(data []byte) (*Node, error) {
	var jn jsonNode
	if err := json.Unmarshal(data, &jn); err != nil {
		return nil, err
	}
	return jn.node()
}

// UnmarshalProgram decodes a list of top-level statement nodes into an
// environment.
func UnmarshalProgram(data []byte) (Environment, error) {
	var jns []*jsonNode
	if err := json.Unmarshal(data, &jns); err != nil {
		return nil, err
	}
	env := make(Environment)
	for _, jn := range jns {
		n, err := jn.node()
		if err != nil {
			return nil, err
		}
		if err := env.AddSymbol(n); err != nil {
			return nil, err
		}
	}
	return env, nil
}
