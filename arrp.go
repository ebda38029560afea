// Package arrp compiles stream programs to imperative kernels. The
// pipeline is strictly forward: type and size checking, polyhedral
// model construction, dataflow rate analysis, scheduling with buffer
// sizing, and imperative lowering. Each stage consumes the immutable
// output of the previous one.
package arrp

import (
	"fmt"

	"github.com/arrplang/arrp/ast"
	"github.com/arrplang/arrp/codegen"
	"github.com/arrplang/arrp/dataflow"
	"github.com/arrplang/arrp/polyhedral"
	"github.com/arrplang/arrp/schedule"
	"github.com/arrplang/arrp/sema"
)

// Options select the compilation target and its channel declarations.
type Options struct {
	// Target is the top-level symbol to compile. Function symbols take
	// one input channel per parameter.
	Target string

	// Inputs declare the kernel's argument channels, one per target
	// parameter.
	Inputs []polyhedral.Input

	// Externals are host-supplied functions callable from the program.
	Externals []string

	// Namespace of the generated kernel; defaults to the target name.
	Namespace string

	// KernelFileName recorded in the report.
	KernelFileName string

	// StackBudget in bytes for stack-resident buffers; zero selects
	// the default.
	StackBudget int64
}

// Result carries every stage's output.
type Result struct {
	Type     sema.Type
	Model    *polyhedral.Model
	Graph    *dataflow.Graph
	Schedule *schedule.Schedule
	Module   *codegen.Module
	Report   *codegen.Report
}

// Compile runs the full pipeline over an environment of top-level
// symbols.
func Compile(env ast.Environment, opts Options) (*Result, error) {
	sym, ok := env[opts.Target]
	if !ok {
		return nil, fmt.Errorf("no top-level symbol '%s'", opts.Target)
	}
	if opts.Namespace == "" {
		opts.Namespace = opts.Target
	}

	session := sema.NewSession()
	checker := sema.NewChecker(env, session)
	for _, name := range opts.Externals {
		checker.RootScope().Bind(name, &sema.External{Name: name})
	}

	argTypes := make([]sema.Type, len(opts.Inputs))
	for i, in := range opts.Inputs {
		argTypes[i] = sema.NewStream(in.Size...)
	}

	resultType, err := checker.Check(sym, argTypes)
	if err != nil {
		return nil, err
	}

	model, err := polyhedral.Build(env, sym, checker.Instance, opts.Inputs)
	if err != nil {
		return nil, err
	}

	graph, err := dataflow.Analyze(model)
	if err != nil {
		return nil, err
	}

	sched, err := schedule.Run(model, graph, schedule.Options{StackBudget: opts.StackBudget})
	if err != nil {
		return nil, err
	}

	module, err := codegen.Generate(opts.Namespace, model, sched)
	if err != nil {
		return nil, err
	}

	report := codegen.BuildReport(model, opts.KernelFileName, opts.Namespace)

	return &Result{
		Type:     resultType,
		Model:    model,
		Graph:    graph,
		Schedule: sched,
		Module:   module,
		Report:   report,
	}, nil
}
