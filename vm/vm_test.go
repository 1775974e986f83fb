package vm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/chazu/vine/host"
	"github.com/chazu/vine/pkg/asm"
	"github.com/chazu/vine/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func assemble(t *testing.T, src string) *bytecode.Program {
	t.Helper()
	p, err := asm.Assemble(src)
	if err != nil {
		t.Fatalf("Assemble: %v\n%s", err, src)
	}
	return p
}

// load assembles src and loads it against h, or an in-memory host when h
// is nil.
func load(t *testing.T, src string, h host.Host, cfg Config) *Machine {
	t.Helper()
	if h == nil {
		h = host.NewMemory(nil, "")
	}
	m, err := Load(assemble(t, src), h, cfg)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return m
}

// run loads src with the default configuration and runs it to a halt.
func run(t *testing.T, src string) (*Machine, error) {
	t.Helper()
	m := load(t, src, nil, DefaultConfig())
	return m, m.Run(context.Background())
}

// mustRun is run for programs that are expected to halt normally.
func mustRun(t *testing.T, src string) *Machine {
	t.Helper()
	m, err := run(t, src)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return m
}

func expectFault(t *testing.T, err error, want error) *Fault {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("Run error = %v, want %v", err, want)
	}
	var f *Fault
	if !errors.As(err, &f) {
		t.Fatalf("Run error %T is not a *Fault", err)
	}
	return f
}

// ---------------------------------------------------------------------------
// Programs
// ---------------------------------------------------------------------------

func TestAddProgram(t *testing.T) {
	m := mustRun(t, `
required math registers
fn entry
    load_a 20
    load_b 3
    add
    ret
`)
	if m.A() != Int(23) {
		t.Errorf("A = %s, want 23", m.Format(m.A()))
	}
	if !m.Halted() || m.Fault() != nil {
		t.Errorf("Halted = %v, Fault = %v", m.Halted(), m.Fault())
	}
	if m.ExitStatus() != 23 {
		t.Errorf("ExitStatus = %d, want 23", m.ExitStatus())
	}
}

func TestLoadMissingEssentialFeature(t *testing.T) {
	p := assemble(t, `
required math registers
fn entry
    load_a 20
    load_b 3
    add
    ret
`)
	h := host.NewMemory(nil, "")
	h.Supported = bytecode.AllFeatures &^ bytecode.NewFeatureSet(bytecode.FeatureRegisters)

	m, err := Load(p, h, DefaultConfig())
	if !errors.Is(err, bytecode.ErrMissingFeature) {
		t.Fatalf("Load error = %v, want ErrMissingFeature", err)
	}
	if m != nil {
		t.Error("Load returned a machine alongside an error")
	}
	if !strings.Contains(err.Error(), "registers") {
		t.Errorf("error %q does not name the missing feature", err)
	}
}

func TestLoadRejectsBadTableIndex(t *testing.T) {
	p := assemble(t, `
required objects
type Point x y
fn entry
    alloc Point
    ret
`)
	p.Types = nil
	if _, err := Load(p, host.NewMemory(nil, ""), DefaultConfig()); !errors.Is(err, bytecode.ErrMalformed) {
		t.Errorf("Load error = %v, want ErrMalformed", err)
	}
}

// iterativeFib leaves fib(n) in R. The stack holds the remaining count
// under fib(k+1); R holds fib(k).
const iterativeFib = `
required control_flow registers stack math
fn entry
    load_a %d
    push_a
    load_r0
    load_a1
    push_a
.loop
    swap
    top_into_a
    jz .done
    dec
    swap_a
    swap
    top_into_a
    copy_rb
    copy_ar
    add
    swap_a
    jmp .loop
.done
    ret
`

func TestFibonacciIterative(t *testing.T) {
	want := uint64(0)
	next := uint64(1)
	for n := 0; n <= 93; n++ {
		m := mustRun(t, fmt.Sprintf(iterativeFib, n))
		if m.R() != Int(want) {
			t.Errorf("fib(%d) = %s, want %d", n, m.Format(m.R()), want)
		}
		want, next = next, want+next
	}
}

const recursiveFib = `
required control_flow registers stack math
entry main

fn main
    load_a %d
    push_a
    calln 1 fib
    ret

fn fib
    top_into_a
    load_b 2
    lt
    jz .recurse
    top_into_r
    ret
.recurse
    top_into_a
    dec
    push_a
    calln 1 fib
    pop
    push_r
    swap
    top_into_a
    load_b 2
    sub
    push_a
    calln 1 fib
    pop
    pop
    top_into_a
    copy_rb
    add
    copy_ar
    ret
`

func TestFibonacciRecursive(t *testing.T) {
	tests := []struct {
		n    int
		want uint64
	}{
		{0, 0}, {1, 1}, {2, 1}, {10, 55}, {20, 6765},
	}
	for _, tt := range tests {
		m := mustRun(t, fmt.Sprintf(recursiveFib, tt.n))
		if m.R() != Int(tt.want) {
			t.Errorf("fib(%d) = %s, want %d", tt.n, m.Format(m.R()), tt.want)
		}
		if m.Depth() != 0 {
			t.Errorf("fib(%d): depth %d after halt", tt.n, m.Depth())
		}
	}
}

// ---------------------------------------------------------------------------
// Frames
// ---------------------------------------------------------------------------

func TestFrameIsolation(t *testing.T) {
	for k := 0; k <= 4; k++ {
		t.Run(fmt.Sprintf("k=%d", k), func(t *testing.T) {
			var src strings.Builder
			src.WriteString("required control_flow registers stack\nfn entry\n")
			for i := 0; i < k; i++ {
				fmt.Fprintf(&src, "    load_a %d\n    push_a\n", 100+i)
			}
			fmt.Fprintf(&src, "    calln %d callee\n    ret\nfn callee\n", k)
			for i := 0; i <= k; i++ {
				src.WriteString("    pop\n")
			}
			src.WriteString("    ret\n")

			m, err := run(t, src.String())
			expectFault(t, err, ErrStackUnderflow)

			slots := m.Stack().Slots()
			if len(slots) != k {
				t.Fatalf("stack height = %d, want the caller's %d slots", len(slots), k)
			}
			for i, v := range slots {
				if v != Int(uint64(100+i)) {
					t.Errorf("caller slot %d = %s, want %d", i, m.Format(v), 100+i)
				}
			}
			if m.Depth() != 1 {
				t.Errorf("Depth = %d, want 1", m.Depth())
			}
		})
	}
}

func TestCallnCopiesArguments(t *testing.T) {
	m := mustRun(t, `
required control_flow registers stack math
fn entry
    load_a 7
    push_a
    load_a 5
    push_a
    calln 2 sub2
    frame_size
    ret
fn sub2
    pop_into_b
    pop_into_a
    sub
    copy_ar
    load_a 99
    push_a
    ret
`)
	if m.R() != Int(2) {
		t.Errorf("R = %s, want 2", m.Format(m.R()))
	}
	// The callee's extra push is dropped on return; the caller keeps its
	// own two slots.
	if m.A() != Int(2) {
		t.Errorf("caller frame size = %s, want 2", m.Format(m.A()))
	}
}

func TestCallnUnderflow(t *testing.T) {
	_, err := run(t, `
required control_flow registers stack
fn entry
    push_a
    calln 2 callee
    ret
fn callee
    ret
`)
	expectFault(t, err, ErrStackUnderflow)
}

func TestSwapNeedsTwoSlotsInFrame(t *testing.T) {
	_, err := run(t, `
required stack
fn entry
    push_a
    swap
    ret
`)
	expectFault(t, err, ErrStackUnderflow)

	// The caller's slot is not a swap partner.
	m, err := run(t, `
required control_flow stack registers
fn entry
    load_a 1
    push_a
    call callee
    ret
fn callee
    load_a 2
    push_a
    swap
    ret
`)
	expectFault(t, err, ErrStackUnderflow)
	if m.Stack().Slots()[0] != Int(1) {
		t.Errorf("caller slot changed to %s", m.Format(m.Stack().Slots()[0]))
	}
}

func TestRegisterSwapLeavesStateOnFault(t *testing.T) {
	for _, reg := range []string{"a", "b", "r"} {
		t.Run(reg, func(t *testing.T) {
			m, err := run(t, `
required control_flow stack registers
fn entry
    load_a 1
    push_a
    load_a 7
    load_b 7
    load_r 7
    call callee
    ret
fn callee
    swap_`+reg+`
    ret
`)
			expectFault(t, err, ErrStackUnderflow)
			if m.Stack().Slots()[0] != Int(1) {
				t.Errorf("caller slot changed to %s", m.Format(m.Stack().Slots()[0]))
			}
			if m.A() != Int(7) || m.B() != Int(7) || m.R() != Int(7) {
				t.Errorf("A, B, R = %s, %s, %s; want 7, 7, 7", m.Format(m.A()), m.Format(m.B()), m.Format(m.R()))
			}
		})
	}
}

func TestEmptyFrameOperations(t *testing.T) {
	for _, op := range []string{"pop", "pop_into_a", "top_into_b", "swap_r", "duplicate"} {
		t.Run(op, func(t *testing.T) {
			_, err := run(t, "required stack\nfn entry\n    "+op+"\n    ret\n")
			expectFault(t, err, ErrStackUnderflow)
		})
	}

	m := mustRun(t, `
required stack registers
fn entry
    load_a 9
    frame_size
    clear
    ret
`)
	if m.A() != Int(0) {
		t.Errorf("frame_size on empty frame = %s, want 0", m.Format(m.A()))
	}
}

func TestStackRegisterOps(t *testing.T) {
	m := mustRun(t, `
required stack registers control_flow
fn entry
    load_a 1
    push_a
    duplicate
    load_b 2
    swap_b
    load_r 3
    push_r
    frame_size
    swap_ab
    top_into_r
    call done
fn done
    ret
`)
	// Stack is [1, 2, 3]; B held 1 after swap_b, then A and B swapped.
	if m.A() != Int(1) || m.B() != Int(3) || m.R() != Int(3) {
		t.Errorf("A, B, R = %s, %s, %s; want 1, 3, 3", m.Format(m.A()), m.Format(m.B()), m.Format(m.R()))
	}
}

func TestReturnAtOutermostFrameHalts(t *testing.T) {
	m := mustRun(t, `
required registers
fn entry
    load_r 5
    retz
    load_a 1
`)
	if m.R() != Int(0) {
		t.Errorf("R = %s, want 0 after retz", m.Format(m.R()))
	}
	if m.A() != Int(0) {
		t.Error("instructions after the outermost return executed")
	}
}

func TestCallDepthOverflow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxCallDepth = 8
	m := load(t, "required control_flow\nfn entry\n    call entry\n", nil, cfg)
	err := m.Run(context.Background())
	expectFault(t, err, ErrStackOverflow)
	if m.Depth() != 8 {
		t.Errorf("Depth = %d, want 8", m.Depth())
	}
}

func TestStackOverflow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StackSize = 4
	m := load(t, `
required control_flow stack
fn entry
.again
    push_a
    jmp .again
`, nil, cfg)
	expectFault(t, m.Run(context.Background()), ErrStackOverflow)
	if m.Stack().Height() != 4 {
		t.Errorf("Height = %d, want 4", m.Stack().Height())
	}
}

// ---------------------------------------------------------------------------
// Faults and dispatch
// ---------------------------------------------------------------------------

func TestFaults(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want error
	}{
		{"unreachable", "fn entry\n    unreachable\n", ErrUnreachable},
		{"illegal", "fn entry\n    byte 0xFF\n", ErrIllegalInstruction},
		{"overrun", "fn entry\n    noop\n", ErrCodeOverrun},
		{"undeclared feature", "required registers\nfn entry\n    add\n    ret\n", ErrUnsupportedInstruction},
		{"div by zero", "required math registers\nfn entry\n    load_a 1\n    load_b0\n    div\n    ret\n", ErrDivideByZero},
		{"rem by zero", "required math registers\nfn entry\n    load_a 1\n    load_b0\n    rem\n    ret\n", ErrDivideByZero},
		{"float div by zero", "required math registers\nfn entry\n    load_af 1.5\n    load_bf 0\n    div\n    ret\n", ErrDivideByZero},
		{"bitwise on float", "required math registers\nfn entry\n    load_af 1.5\n    load_b 1\n    and\n    ret\n", ErrTypeMismatch},
		{"math on composite", "required math objects\ntype P x\nfn entry\n    alloc P\n    add\n    ret\n", ErrTypeMismatch},
		{"clz on float", "required math registers\nfn entry\n    load_af 2\n    clz\n    ret\n", ErrTypeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := run(t, tt.src)
			f := expectFault(t, err, tt.want)
			if !m.Halted() || m.Fault() != f {
				t.Errorf("machine not halted on fault")
			}
			if step := m.Step(); step != f {
				t.Errorf("Step after fault = %v, want the same fault", step)
			}
		})
	}
}

func TestFaultKeepsState(t *testing.T) {
	m, err := run(t, `
required math registers
fn entry
    load_a 7
    load_b0
    load_r 3
    div
    ret
`)
	f := expectFault(t, err, ErrDivideByZero)
	if f.IP != 19 || f.Op != bytecode.OpDiv {
		t.Errorf("fault at 0x%04X (%s), want 0x0013 (div)", f.IP, f.Op)
	}
	if m.A() != Int(7) || m.R() != Int(3) {
		t.Errorf("registers changed by faulting instruction: A=%s R=%s", m.Format(m.A()), m.Format(m.R()))
	}
	if m.ExitStatus() != 2 {
		t.Errorf("ExitStatus = %d, want 2", m.ExitStatus())
	}
	if !IsFault(err) {
		t.Error("IsFault = false")
	}
}

func TestUnavailableOptionalFeature(t *testing.T) {
	p := assemble(t, `
required registers control_flow
optional std_io
fn entry
    load_a 1
    jz .skip
    out_write
.skip
    ret
`)
	h := host.NewMemory(nil, "")
	h.Supported = bytecode.AllFeatures &^ bytecode.NewFeatureSet(bytecode.FeatureStdIO)
	m, err := Load(p, h, DefaultConfig())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Enabled().Has(bytecode.FeatureStdIO) {
		t.Error("std_io enabled on a host without it")
	}
	expectFault(t, m.Run(context.Background()), ErrUnsupportedInstruction)
}

func TestRunCanceled(t *testing.T) {
	const loop = "required control_flow\nfn entry\n.l\n    jmp .l\n"

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := load(t, loop, nil, DefaultConfig())
	expectFault(t, m.Run(ctx), ErrCanceled)
	if m.Steps() != 0 {
		t.Errorf("Steps = %d, want 0 with a canceled context", m.Steps())
	}

	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	m = load(t, loop, nil, DefaultConfig())
	expectFault(t, m.Run(ctx), ErrCanceled)
}

func TestStep(t *testing.T) {
	m := load(t, `
required registers math
fn entry
    load_a 2
    load_b 3
    mul
    ret
`, nil, DefaultConfig())
	for i := 0; i < 3; i++ {
		if err := m.Step(); err != nil {
			t.Fatalf("Step %d: %v", i, err)
		}
	}
	if m.Halted() || m.A() != Int(6) || m.IP() != 19 {
		t.Errorf("after 3 steps: halted=%v A=%s IP=%d", m.Halted(), m.Format(m.A()), m.IP())
	}
	if err := m.Step(); err != nil || !m.Halted() {
		t.Errorf("ret: err=%v halted=%v", err, m.Halted())
	}
}

func TestTraceDoesNotChangeResults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Trace = true
	m := load(t, fmt.Sprintf(iterativeFib, 12), nil, cfg)
	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if m.R() != Int(144) {
		t.Errorf("R = %s, want 144", m.Format(m.R()))
	}
}

// ---------------------------------------------------------------------------
// Derived instructions
// ---------------------------------------------------------------------------

const derivedProgram = `
required control_flow registers stack math
fn entry
    load_a 41
    load_b 5
    inc
    push_a
    load_a 10
    dec
    push_a
    pop_into_r
    pop_into_b
    call helper
    ret
fn helper
    load_r 99
    retz
`

func TestDerivedInstructionsMatchExpansion(t *testing.T) {
	sources := []string{derivedProgram, fmt.Sprintf(iterativeFib, 30), fmt.Sprintf(recursiveFib, 12)}
	for i, src := range sources {
		p := assemble(t, src)
		native, err := Load(p, host.NewMemory(nil, ""), DefaultConfig())
		if err != nil {
			t.Fatalf("source %d: Load: %v", i, err)
		}
		if err := native.Run(context.Background()); err != nil {
			t.Fatalf("source %d: native Run: %v", i, err)
		}

		expanded, err := bytecode.Expand(p)
		if err != nil {
			t.Fatalf("source %d: Expand: %v", i, err)
		}
		if bytecode.HasDerived(expanded) {
			t.Fatalf("source %d: expansion left derived instructions", i)
		}
		cfg := DefaultConfig()
		cfg.Derived = false
		prim, err := Load(expanded, host.NewMemory(nil, ""), cfg)
		if err != nil {
			t.Fatalf("source %d: Load expanded: %v", i, err)
		}
		if err := prim.Run(context.Background()); err != nil {
			t.Fatalf("source %d: expanded Run: %v", i, err)
		}

		if native.A() != prim.A() || native.B() != prim.B() || native.R() != prim.R() {
			t.Errorf("source %d: native A,B,R = %s,%s,%s; expanded = %s,%s,%s", i,
				native.Format(native.A()), native.Format(native.B()), native.Format(native.R()),
				prim.Format(prim.A()), prim.Format(prim.B()), prim.Format(prim.R()))
		}
	}

	m := mustRun(t, derivedProgram)
	if m.A() != Int(9) || m.B() != Int(42) || m.R() != Int(0) {
		t.Errorf("A, B, R = %s, %s, %s; want 9, 42, 0", m.Format(m.A()), m.Format(m.B()), m.Format(m.R()))
	}
}

func TestDerivedDisabledWithoutExpansion(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Derived = false
	m := load(t, derivedProgram, nil, cfg)
	f := expectFault(t, m.Run(context.Background()), ErrUnsupportedInstruction)
	if f.Op != bytecode.OpInc {
		t.Errorf("fault on %s, want inc", f.Op)
	}
}

func TestExpandedIncNeedsStackSlot(t *testing.T) {
	const src = `
required registers stack math
fn entry
    load_a 5
    push_a
    push_a
    inc
    dec
    inc
    ret
`
	cfg := DefaultConfig()
	cfg.StackSize = 2
	native := load(t, src, nil, cfg)
	if err := native.Run(context.Background()); err != nil {
		t.Fatalf("native Run: %v", err)
	}
	if native.A() != Int(6) {
		t.Errorf("native A = %s, want 6", native.Format(native.A()))
	}

	expanded, err := bytecode.Expand(assemble(t, src))
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	cfg.Derived = false
	prim, err := Load(expanded, host.NewMemory(nil, ""), cfg)
	if err != nil {
		t.Fatalf("Load expanded: %v", err)
	}
	f := expectFault(t, prim.Run(context.Background()), ErrStackOverflow)
	if f.Op != bytecode.OpPushB {
		t.Errorf("fault on %s, want push_b", f.Op)
	}
	if prim.A() != Int(5) {
		t.Errorf("expanded A = %s, want 5", prim.Format(prim.A()))
	}
}

func TestIncDecFloat(t *testing.T) {
	m := mustRun(t, `
required registers math
fn entry
    load_af 1.5
    inc
    inc
    dec
    ret
`)
	if m.A() != Float(2.5) {
		t.Errorf("A = %s, want 2.5", m.Format(m.A()))
	}
}

func TestJnzLoop(t *testing.T) {
	m := mustRun(t, `
required control_flow registers math
fn entry
    load_a 5
.loop
    dec
    jnz .loop
    jerr .bad
    load_b 7
    ret
.bad
    unreachable
`)
	if m.A() != Int(0) || m.B() != Int(7) {
		t.Errorf("A = %s, B = %s; want 0 and 7", m.Format(m.A()), m.Format(m.B()))
	}
	// load, five dec/jnz pairs, jerr, load, ret
	if m.Steps() != 14 {
		t.Errorf("Steps = %d, want 14", m.Steps())
	}
}
