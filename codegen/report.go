package codegen

import (
	"github.com/arrplang/arrp/polyhedral"
)

// Channel describes one input or output of the generated kernel for
// the downstream I/O generators.
type Channel struct {
	Name        string  `json:"name"`
	IsStream    bool    `json:"is_stream"`
	Type        string  `json:"type"`
	Dimensions  []int64 `json:"dimensions"`
	Size        int64   `json:"size"`
	PeriodCount int64   `json:"period_count"`
}

// KernelInfo locates the generated kernel source.
type KernelInfo struct {
	FileName  string `json:"filename"`
	Namespace string `json:"namespace"`
}

// Report is the compiler's JSON-facing description of the kernel.
type Report struct {
	Inputs  []Channel  `json:"inputs"`
	Outputs []Channel  `json:"outputs"`
	Kernel  KernelInfo `json:"cpp"`
}

func channelFor(a *polyhedral.Array) Channel {
	ch := Channel{
		Name:     a.Name,
		IsStream: a.IsInfinite,
		Type:     a.Type.String(),
		Size:     1,
	}
	for _, d := range a.Size {
		if d == polyhedral.Infinite {
			continue
		}
		ch.Dimensions = append(ch.Dimensions, d)
		ch.Size *= d
	}
	if a.IsInfinite {
		ch.PeriodCount = a.Period
	}
	return ch
}

// BuildReport describes the kernel's channels from the scheduled
// model.
func BuildReport(model *polyhedral.Model, fileName, namespace string) *Report {
	r := &Report{
		Kernel: KernelInfo{FileName: fileName, Namespace: namespace},
	}
	for _, in := range model.Inputs {
		r.Inputs = append(r.Inputs, channelFor(in))
	}
	r.Outputs = append(r.Outputs, channelFor(model.Output))
	return r
}
