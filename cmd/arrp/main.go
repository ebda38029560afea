package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
	"github.com/xyproto/env/v2"

	"github.com/arrplang/arrp"
	"github.com/arrplang/arrp/ast"
	"github.com/arrplang/arrp/codegen"
	"github.com/arrplang/arrp/polyhedral"
)

// Build-time variables injected via linker flags (ldflags).
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// programFile is what the external parser hands us: the top-level
// statements plus the compilation target and its channel declarations.
type programFile struct {
	Symbols json.RawMessage `json:"symbols"`
	Target  string          `json:"target"`
	Inputs  []channelDecl   `json:"inputs"`
}

type channelDecl struct {
	Name string  `json:"name"`
	Type string  `json:"type"`
	Size []int64 `json:"size"`
}

func primTypeFor(name string) (polyhedral.PrimType, error) {
	switch name {
	case "bool":
		return polyhedral.BoolType, nil
	case "integer", "int":
		return polyhedral.IntType, nil
	case "real32":
		return polyhedral.Real32Type, nil
	case "", "real64":
		return polyhedral.Real64Type, nil
	}
	return 0, fmt.Errorf("invalid channel type %q", name)
}

func main() {
	var (
		output    string
		report    string
		namespace string
		stackSize int64
	)

	root := &cobra.Command{
		Use:   "arrp <program.json>",
		Short: "Compile a stream program to an imperative C++ kernel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return compile(args[0], output, report, namespace, stackSize)
		},
		SilenceUsage: true,
	}

	root.Flags().StringVarP(&output, "output", "o", "kernel.cpp", "kernel output file")
	root.Flags().StringVar(&report, "report", "report.json", "channel report output file")
	root.Flags().StringVar(&namespace, "namespace", "", "kernel namespace (defaults to target)")
	root.Flags().Int64Var(&stackSize, "stack-size",
		int64(env.Int("ARRP_STACK_SIZE", 0)), "stack budget for buffers in bytes")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("arrp %s (%s/%s)\n", Version, runtime.GOOS, runtime.GOARCH)
			if Commit != "unknown" {
				fmt.Printf("  commit: %s\n", Commit)
			}
			if BuildDate != "unknown" {
				fmt.Printf("  built:  %s\n", BuildDate)
			}
		},
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func compile(programPath, output, reportPath, namespace string, budget int64) error {
	data, err := os.ReadFile(programPath)
	if err != nil {
		return err
	}

	var prog programFile
	if err := json.Unmarshal(data, &prog); err != nil {
		return fmt.Errorf("%s: %w", programPath, err)
	}
	env, err := ast.UnmarshalProgram(prog.Symbols)
	if err != nil {
		return fmt.Errorf("%s: %w", programPath, err)
	}

	opts := arrp.Options{
		Target:         prog.Target,
		Namespace:      namespace,
		KernelFileName: filepath.Base(output),
		StackBudget:    budget,
	}
	for _, ch := range prog.Inputs {
		t, err := primTypeFor(ch.Type)
		if err != nil {
			return err
		}
		opts.Inputs = append(opts.Inputs, polyhedral.Input{
			Name: ch.Name,
			Type: t,
			Size: ch.Size,
		})
	}

	result, err := arrp.Compile(env, opts)
	if err != nil {
		return err
	}

	// Serialize concurrent invocations writing the same output.
	lock := flock.New(output + ".lock")
	if err := lock.Lock(); err != nil {
		return err
	}
	defer lock.Unlock()

	if err := os.WriteFile(output, []byte(codegen.Print(result.Module)), 0o644); err != nil {
		return err
	}
	reportData, err := json.MarshalIndent(result.Report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(reportPath, append(reportData, '\n'), 0o644)
}
