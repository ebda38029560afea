package schedule

import (
	"sort"

	"github.com/arrplang/arrp/polyhedral"
)

// evalPeriods is how many steady periods the live-distance evaluation
// covers. The schedule repeats with period one, so distances close
// after two periods; the margin guards rotated phases.
const evalPeriods = 4

// sizeBuffers computes, per producing array, the minimum ring-buffer
// size such that no live value is overwritten before it is consumed.
// Non-streaming dimensions take the domain extent; the streaming
// dimension takes the maximum live distance observed over the
// initialization phase and enough steady periods for the recurrence to
// close, plus one.
func (s *Schedule) sizeBuffers() error {
	type liveState struct {
		maxWritten  int64
		hasWrite    bool
		maxDistance int64
		hasRead     bool
	}
	live := make(map[*polyhedral.Array]*liveState)

	for _, a := range s.Model.Arrays {
		a.BufferSize = append([]int64(nil), a.Size...)
		if a.Producer != nil && a.Producer.Dimension >= 0 {
			a.Period = a.Producer.SteadyCount
			a.PeriodOffset = a.Producer.InitCount
		}
		if a.IsInfinite {
			live[a] = &liveState{}
		}
	}

	// One statement occurrence: reads first, then the write.
	runStep := func(stmt *polyhedral.Statement, global int64, periodStart func(*polyhedral.Array) int64) {
		for _, read := range polyhedral.Reads(stmt.Expr) {
			src := read.Array
			if src.Arg || !src.IsInfinite {
				if !src.Arg && periodStart != nil {
					src.InterPeriodDep = true
				}
				continue
			}
			st := live[src]
			if !st.hasWrite {
				continue
			}
			r := evalRow(read.Matrix, 0, stmt, global, false)
			if r < 0 {
				// Initialization reads before the stream start wrap
				// into unprimed cells; they carry no liveness.
				continue
			}
			d := st.maxWritten - r + 1
			if !st.hasRead || d > st.maxDistance {
				st.maxDistance = d
				st.hasRead = true
			}
			if periodStart != nil && r < periodStart(src) {
				src.InterPeriodDep = true
			}
		}

		if stmt.Dimension >= 0 && !stmt.Write.Array.Arg && stmt.Write.Array.IsInfinite {
			st := live[stmt.Write.Array]
			w := evalRow(stmt.Write.Matrix, 0, stmt, global, true)
			if !st.hasWrite || w > st.maxWritten {
				st.maxWritten = w
				st.hasWrite = true
			}
		}
	}

	// Initialization slice.
	for _, stmt := range s.Order {
		if stmt.Dimension < 0 {
			// Finite statements run whole; their streams do not move.
			continue
		}
		for j := int64(0); j < stmt.InitCount; j++ {
			runStep(stmt, j, nil)
		}
	}

	// Steady periods.
	for p := int64(0); p < evalPeriods; p++ {
		periodStart := func(a *polyhedral.Array) int64 {
			if a.Producer == nil {
				return 0
			}
			return a.Producer.InitCount + p*a.Producer.SteadyCount
		}
		for _, stmt := range s.Order {
			if stmt.Dimension < 0 {
				continue
			}
			base := stmt.InitCount + p*stmt.SteadyCount
			for j := int64(0); j < stmt.SteadyCount; j++ {
				runStep(stmt, base+j, periodStart)
			}
		}
	}

	for _, a := range s.Model.Arrays {
		if !a.IsInfinite {
			continue
		}
		st := live[a]
		size := a.Period
		if st.hasRead {
			size = st.maxDistance
		}
		if size < 1 {
			size = 1
		}
		a.BufferSize[0] = size
	}
	return nil
}

// evalRow evaluates one output row of an access relation at a global
// streaming coordinate, extremizing over the statement's finite
// dimensions.
func evalRow(m polyhedral.AffineMatrix, row int, stmt *polyhedral.Statement, global int64, maximize bool) int64 {
	v := m.Const[row]
	for d, coef := range m.Coef[row] {
		if coef == 0 {
			continue
		}
		if d == stmt.Dimension {
			v += coef * global
			continue
		}
		extent := stmt.Domain[d] - 1
		if (coef > 0) == maximize {
			v += coef * extent
		}
	}
	return v
}

// placeBuffers lays arrays out on the stack in ascending size order
// until the byte budget is exhausted. Arrays with an inter-period
// dependency and the output array always live in the state struct.
func (s *Schedule) placeBuffers(budget int64) {
	var onStack []*polyhedral.Array

	for _, a := range s.Model.Arrays {
		flat := int64(1)
		for _, d := range a.BufferSize {
			flat *= d
		}
		info := &BufferInfo{Size: flat}
		if a.IsInfinite {
			info.HasPhase = a.Period%a.BufferSize[0] != 0
		}
		s.Buffers[a.Name] = info

		if a.InterPeriodDep || a == s.Model.Output {
			continue
		}
		onStack = append(onStack, a)
	}

	sort.SliceStable(onStack, func(i, j int) bool {
		return s.Buffers[onStack[i].Name].Size < s.Buffers[onStack[j].Name].Size
	})

	var used int64
	for _, a := range onStack {
		bytes := s.Buffers[a.Name].Size * a.Type.ByteSize()
		if used+bytes < budget {
			s.Buffers[a.Name].OnStack = true
			used += bytes
		}
	}
}
