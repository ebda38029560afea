// Package dataflow analyzes the streaming dimension of the polyhedral
// model: it extracts producer-consumer edges with push/pop/peek rates,
// balances them into steady-state counts (integer nullspace of the
// flow matrix) and computes the minimal initialization counts that
// prime the buffers.
package dataflow

import (
	"fmt"
	"strings"

	"github.com/arrplang/arrp/lin"
	"github.com/arrplang/arrp/polyhedral"
	"github.com/arrplang/arrp/token"
)

// Edge is one producer-consumer dependency along the streaming
// dimension.
type Edge struct {
	Source *polyhedral.Statement
	Sink   *polyhedral.Statement

	// Push tokens are produced per source iteration, Pop consumed per
	// sink iteration; Peek is the furthest source index touched by one
	// sink iteration.
	Push int64
	Pop  int64
	Peek int64

	// MinIndex is the lowest source index touched by the sink's first
	// steady iteration offset; negative values force the sink to run
	// ahead during initialization so steady-state reads never precede
	// the stream start.
	MinIndex int64
}

func (e *Edge) String() string {
	return fmt.Sprintf("%s %d -> %d/%d %s", e.Source.Name, e.Push, e.Peek, e.Pop, e.Sink.Name)
}

// Graph is the dataflow view of a model.
type Graph struct {
	Edges []*Edge

	// Involved statements in source-insertion order.
	Statements []*polyhedral.Statement
}

func polyErrorf(format string, args ...any) error {
	return &token.CompileError{Kind: token.PolyhedralError, Msg: fmt.Sprintf(format, args...)}
}

// Analyze detects streaming dimensions, builds the edge set and
// computes steady and initialization counts for every infinite
// statement of the model.
func Analyze(model *polyhedral.Model) (*Graph, error) {
	var infinite []*polyhedral.Statement
	var invalid []string

	for _, stmt := range model.Statements {
		dims := infiniteDimensions(stmt)
		switch len(dims) {
		case 0:
			stmt.Dimension = -1
		case 1:
			stmt.Dimension = dims[0]
			infinite = append(infinite, stmt)
		default:
			invalid = append(invalid, stmt.Name)
		}
	}

	if len(invalid) > 0 {
		return nil, polyErrorf("statements infinite in more than 1 dimension: %s",
			strings.Join(invalid, ", "))
	}

	g := &Graph{}
	for _, sink := range infinite {
		if err := g.addEdges(sink); err != nil {
			return nil, err
		}
	}

	if err := g.computeCounts(); err != nil {
		return nil, err
	}

	// Statements outside the balanced component run once per period.
	for _, stmt := range infinite {
		if stmt.SteadyCount == 0 {
			stmt.SteadyCount = 1
		}
	}
	return g, nil
}

func infiniteDimensions(stmt *polyhedral.Statement) []int {
	var dims []int
	for d, extent := range stmt.Domain {
		if extent == polyhedral.Infinite {
			dims = append(dims, d)
		}
	}
	return dims
}

// addEdges extracts one edge per streaming array read of the sink.
// Reads of finite arrays carry no flow and become plain scheduling
// dependencies.
func (g *Graph) addEdges(sink *polyhedral.Statement) error {
	for _, read := range polyhedral.Reads(sink.Expr) {
		source := read.Array.Producer
		if source == nil || !read.Array.IsInfinite {
			continue
		}

		sourceFlowDim := -1
		for outDim := 0; outDim < read.Matrix.OutDim; outDim++ {
			if read.Matrix.Coef[outDim][sink.Dimension] != 0 {
				sourceFlowDim = outDim
				break
			}
		}
		if sourceFlowDim < 0 {
			return polyErrorf("sink flow dimension does not map to any source dimension")
		}
		if sourceFlowDim != source.Dimension {
			return polyErrorf("sink flow dimension does not map to source flow dimension")
		}

		pop := read.Matrix.Coef[sourceFlowDim][sink.Dimension]
		if pop < 0 {
			return polyErrorf("negative flow rate in access of '%s'", read.Array.Name)
		}

		// Furthest source index touched by one sink iteration: apply
		// the access to the sink extents with the flow coordinate
		// zeroed.
		bounds := append([]int64(nil), sink.Domain...)
		bounds[sink.Dimension] = 0
		peek := read.Matrix.Apply(bounds)[sourceFlowDim]
		if peek < 1 {
			peek = 1
		}

		g.Edges = append(g.Edges, &Edge{
			Source:   source,
			Sink:     sink,
			Push:     1,
			Pop:      pop,
			Peek:     peek,
			MinIndex: read.Matrix.Const[sourceFlowDim],
		})
		g.addStatement(source)
		g.addStatement(sink)
	}
	return nil
}

func (g *Graph) addStatement(stmt *polyhedral.Statement) {
	for _, s := range g.Statements {
		if s == stmt {
			return
		}
	}
	g.Statements = append(g.Statements, stmt)
}

func (g *Graph) indexOf(stmt *polyhedral.Statement) int {
	for i, s := range g.Statements {
		if s == stmt {
			return i
		}
	}
	return -1
}

// computeCounts solves the rate balance F*r = 0 for the primitive
// positive steady vector, then the minimum initialization counts.
func (g *Graph) computeCounts() error {
	if len(g.Edges) == 0 {
		return nil
	}

	n := len(g.Statements)
	flow := lin.NewMatrix(len(g.Edges), n)
	for row, e := range g.Edges {
		src, snk := g.indexOf(e.Source), g.indexOf(e.Sink)
		flow.SetInt(row, src, flow.At(row, src).Num().Int64()+e.Push)
		flow.SetInt(row, snk, flow.At(row, snk).Num().Int64()-e.Pop)
	}

	null := flow.Nullspace()
	if null.Cols != 1 {
		return polyErrorf("dataflow graph is unbalanced")
	}
	steady, err := null.PrimitiveColumn(0)
	if err != nil {
		return polyErrorf("dataflow graph is unbalanced: %v", err)
	}

	// Initialization: push*i_src - pop*i_snk + (push*r_src - pop*r_snk
	// - peek + pop) >= 0 for every edge, plus pop*i_snk >= -minIndex
	// so steady-state reads stay within the produced stream.
	var cons []lin.Constraint
	for _, e := range g.Edges {
		src, snk := g.indexOf(e.Source), g.indexOf(e.Sink)
		slack := e.Push*steady[src] - e.Pop*steady[snk] - e.Peek + e.Pop
		cons = append(cons, lin.Constraint{
			X: src, CoefX: e.Push,
			Y: snk, CoefY: e.Pop,
			Const: -slack,
		})
		if e.MinIndex < 0 {
			cons = append(cons, lin.Constraint{
				X: snk, CoefX: e.Pop,
				Y: -1, Const: -e.MinIndex,
			})
		}
	}

	init, err := lin.LeastNonNegative(n, cons)
	if err != nil {
		return &token.CompileError{Kind: token.ScheduleError,
			Msg: fmt.Sprintf("no viable initialization counts: %v", err)}
	}

	for i, stmt := range g.Statements {
		stmt.SteadyCount = steady[i]
		stmt.InitCount = init[i]
	}
	return nil
}
