package vm

import (
	"cmp"
	"fmt"
	"io"
	"slices"

	"github.com/chazu/vine/pkg/bytecode"
)

// Profiler counts executed instructions by opcode and calls by target.
// It is attached with Config.Profile and read after the machine halts.
type Profiler struct {
	ops   [256]uint64
	calls map[int]uint64 // call target offset -> count
}

// NewProfiler creates an empty profiler.
func NewProfiler() *Profiler {
	return &Profiler{calls: make(map[int]uint64)}
}

func (p *Profiler) recordInstruction(op bytecode.Opcode) { p.ops[op]++ }

func (p *Profiler) recordCall(target int) { p.calls[target]++ }

// OpCount is the number of times an opcode was executed.
type OpCount struct {
	Op    bytecode.Opcode
	Count uint64
}

// CallCount is the number of times a function was called. Name is empty
// for call targets that are labels rather than functions.
type CallCount struct {
	Name   string
	Offset int
	Count  uint64
}

// Instructions returns executed opcodes, most frequent first.
func (p *Profiler) Instructions() []OpCount {
	var out []OpCount
	for op, n := range p.ops {
		if n > 0 {
			out = append(out, OpCount{Op: bytecode.Opcode(op), Count: n})
		}
	}
	slices.SortStableFunc(out, func(a, b OpCount) int { return cmp.Compare(b.Count, a.Count) })
	return out
}

// Calls returns call targets, most frequent first, named from prog.
func (p *Profiler) Calls(prog *bytecode.Program) []CallCount {
	out := make([]CallCount, 0, len(p.calls))
	for off, n := range p.calls {
		c := CallCount{Offset: off, Count: n}
		if fn, ok := prog.FunctionAt(off); ok {
			c.Name = fn.Name
		}
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b CallCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Offset, b.Offset)
	})
	return out
}

// Total returns the number of instructions recorded.
func (p *Profiler) Total() uint64 {
	var n uint64
	for _, c := range p.ops {
		n += c
	}
	return n
}

// Report writes the top n opcodes and call targets to w. A non-positive n
// writes everything.
func (p *Profiler) Report(w io.Writer, prog *bytecode.Program, n int) {
	ops := p.Instructions()
	if n > 0 && len(ops) > n {
		ops = ops[:n]
	}
	total := p.Total()
	fmt.Fprintf(w, "instructions: %d\n", total)
	for _, c := range ops {
		fmt.Fprintf(w, "  %-16s %10d  %5.1f%%\n", c.Op, c.Count, 100*float64(c.Count)/float64(total))
	}

	calls := p.Calls(prog)
	if len(calls) == 0 {
		return
	}
	if n > 0 && len(calls) > n {
		calls = calls[:n]
	}
	fmt.Fprintf(w, "calls:\n")
	for _, c := range calls {
		name := c.Name
		if name == "" {
			name = fmt.Sprintf("0x%04X", c.Offset)
		}
		fmt.Fprintf(w, "  %-16s %10d\n", name, c.Count)
	}
}
