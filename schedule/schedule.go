// Package schedule orders the statements of the polyhedral model into
// a two-level schedule (period index x intra-period position), derives
// the loop-nest AST for the initialization and periodic phases, and
// computes buffer sizes, placement and phase flags.
package schedule

import (
	"fmt"

	"github.com/arrplang/arrp/dataflow"
	"github.com/arrplang/arrp/polyhedral"
	"github.com/arrplang/arrp/token"
)

// Node is the loop-nest AST handed to the imperative lowerer.
type Node interface{ schedNode() }

// Block sequences its children.
type Block struct {
	Nodes []Node
}

// For iterates Var from Lower while below Upper, advancing by Step.
// Loop variables are numbered by nesting depth within one statement's
// nest.
type For struct {
	Var   int
	Lower int64
	Upper int64
	Step  int64
	Body  Node
}

// If guards its body by an affine condition on a loop variable.
type If struct {
	Var   int
	Below int64
	Body  Node
}

// IndexExpr is one component of a statement call's index vector: a
// loop variable plus a constant offset.
type IndexExpr struct {
	Var    int
	Offset int64
}

// StmtCall invokes one statement of the model at an index vector.
type StmtCall struct {
	Stmt  *polyhedral.Statement
	Index []IndexExpr
}

func (*Block) schedNode()    {}
func (*For) schedNode()      {}
func (*If) schedNode()       {}
func (*StmtCall) schedNode() {}

// BufferInfo is the per-array result of buffer analysis.
type BufferInfo struct {
	Size     int64
	OnStack  bool
	HasPhase bool
}

// Options configure the scheduler.
type Options struct {
	// StackBudget is the byte budget for stack-resident buffers.
	StackBudget int64
}

// DefaultStackBudget matches the generated kernels' default stack
// allowance.
const DefaultStackBudget int64 = 1024

// Schedule is the scheduler's output, consumed read-only by the
// lowerer.
type Schedule struct {
	Model *polyhedral.Model
	Order []*polyhedral.Statement

	Init   Node
	Period Node

	Buffers map[string]*BufferInfo

	// TimeRank is the dimensionality of the shared time space:
	// period, statement position, then intra-statement coordinates.
	TimeRank int
	// Times maps each statement's dataflow domain (period index
	// prepended for infinite statements) into the time space.
	Times map[*polyhedral.Statement]polyhedral.AffineMatrix
}

func scheduleErrorf(format string, args ...any) error {
	return &token.CompileError{Kind: token.ScheduleError, Msg: fmt.Sprintf(format, args...)}
}

// Run schedules an analyzed model.
func Run(model *polyhedral.Model, graph *dataflow.Graph, opts Options) (*Schedule, error) {
	if opts.StackBudget <= 0 {
		opts.StackBudget = DefaultStackBudget
	}

	order, err := topoOrder(model)
	if err != nil {
		return nil, err
	}

	s := &Schedule{
		Model:   model,
		Order:   order,
		Buffers: make(map[string]*BufferInfo),
		Times:   make(map[*polyhedral.Statement]polyhedral.AffineMatrix),
	}

	s.buildTimeMaps()
	s.Init = s.initPhase()
	s.Period = s.periodicPhase()

	if err := s.sizeBuffers(); err != nil {
		return nil, err
	}
	s.placeBuffers(opts.StackBudget)

	return s, nil
}

// topoOrder sorts statements so every producer precedes its consumers.
// Self-dependencies (accumulators) are ignored. Ties keep source
// order.
func topoOrder(model *polyhedral.Model) ([]*polyhedral.Statement, error) {
	producers := func(stmt *polyhedral.Statement) []*polyhedral.Statement {
		var deps []*polyhedral.Statement
		for _, read := range polyhedral.Reads(stmt.Expr) {
			p := read.Array.Producer
			if p != nil && p != stmt {
				deps = append(deps, p)
			}
		}
		return deps
	}

	done := make(map[*polyhedral.Statement]bool)
	visiting := make(map[*polyhedral.Statement]bool)
	var order []*polyhedral.Statement

	var visit func(stmt *polyhedral.Statement) error
	visit = func(stmt *polyhedral.Statement) error {
		if done[stmt] {
			return nil
		}
		if visiting[stmt] {
			return scheduleErrorf("no legal schedule: dependency cycle through %s", stmt.Name)
		}
		visiting[stmt] = true
		for _, dep := range producers(stmt) {
			if err := visit(dep); err != nil {
				return err
			}
		}
		visiting[stmt] = false
		done[stmt] = true
		order = append(order, stmt)
		return nil
	}

	for _, stmt := range model.Statements {
		if err := visit(stmt); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// buildTimeMaps embeds every statement into the shared time space
// (period, position, intra coordinates). Infinite statements map their
// dataflow domain (period prepended); finite statements are pinned to
// period 0.
func (s *Schedule) buildTimeMaps() {
	maxRank := 0
	for _, stmt := range s.Order {
		if r := len(stmt.Domain); r > maxRank {
			maxRank = r
		}
	}
	s.TimeRank = 2 + maxRank

	for pos, stmt := range s.Order {
		rank := len(stmt.Domain)
		if stmt.Dimension >= 0 {
			m := polyhedral.NewAffineMatrix(rank+1, s.TimeRank)
			m.Coef[0][0] = 1 // period
			m.Const[1] = int64(pos)
			for d := 0; d < rank; d++ {
				m.Coef[2+d][1+d] = 1
			}
			s.Times[stmt] = m
		} else {
			m := polyhedral.NewAffineMatrix(rank, s.TimeRank)
			m.Const[1] = int64(pos)
			for d := 0; d < rank; d++ {
				m.Coef[2+d][d] = 1
			}
			s.Times[stmt] = m
		}
	}
}

// nest wraps a statement call into its loop nest. bounds[d] gives the
// iteration count of domain dimension d.
func nest(stmt *polyhedral.Statement, bounds []int64) Node {
	index := make([]IndexExpr, len(bounds))
	for d := range bounds {
		index[d] = IndexExpr{Var: d}
	}
	var node Node = &StmtCall{Stmt: stmt, Index: index}
	for d := len(bounds) - 1; d >= 0; d-- {
		node = &For{Var: d, Lower: 0, Upper: bounds[d], Step: 1, Body: node}
	}
	return node
}

// initPhase schedules finite statements over their full domains and
// infinite statements over their initialization slice.
func (s *Schedule) initPhase() Node {
	block := &Block{}
	for _, stmt := range s.Order {
		bounds := append([]int64(nil), stmt.Domain...)
		if stmt.Dimension >= 0 {
			if stmt.InitCount == 0 {
				continue
			}
			bounds[stmt.Dimension] = stmt.InitCount
		}
		block.Nodes = append(block.Nodes, nest(stmt, bounds))
	}
	return block
}

// periodicPhase schedules one steady period: each infinite statement
// over its intra-period slice.
func (s *Schedule) periodicPhase() Node {
	block := &Block{}
	for _, stmt := range s.Order {
		if stmt.Dimension < 0 {
			continue
		}
		bounds := append([]int64(nil), stmt.Domain...)
		bounds[stmt.Dimension] = stmt.SteadyCount
		block.Nodes = append(block.Nodes, nest(stmt, bounds))
	}
	return block
}
