package vm

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/chazu/vine/pkg/bytecode"
)

// handler executes one instruction. operands are the immediate bytes that
// follow the opcode; m.ip already points past them.
type handler func(m *Machine, operands []byte) error

// dispatchTable maps every opcode byte to its handler. A nil entry means
// the instruction is undefined or not enabled.
type dispatchTable [256]handler

// instructionSet holds a handler for every defined opcode.
var instructionSet = func() *dispatchTable {
	t := new(dispatchTable)
	registerCoreHandlers(t)
	registerControlFlowHandlers(t)
	registerRegisterHandlers(t)
	registerStackHandlers(t)
	registerMathHandlers(t)
	registerObjectHandlers(t)
	registerStringHandlers(t)
	registerIOHandlers(t)
	return t
}()

// buildDispatch selects the handlers a machine may run: core instructions
// and those of the enabled features, less derived instructions when they
// are not dispatched natively.
func buildDispatch(enabled bytecode.FeatureSet, derived bool) dispatchTable {
	var t dispatchTable
	for _, op := range bytecode.AllOpcodes() {
		if !op.Enabled(enabled) {
			continue
		}
		if op.IsDerived() && !derived {
			continue
		}
		t[op] = instructionSet[op]
	}
	return t
}

// ---------------------------------------------------------------------------
// Operand decoding
// ---------------------------------------------------------------------------

func operandU32(operands []byte) uint32 { return binary.LittleEndian.Uint32(operands) }

func operandU64(operands []byte) uint64 { return binary.LittleEndian.Uint64(operands) }

func operandF64(operands []byte) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(operands))
}

// ---------------------------------------------------------------------------
// Core
// ---------------------------------------------------------------------------

func registerCoreHandlers(t *dispatchTable) {
	t[bytecode.OpUnreachable] = func(m *Machine, _ []byte) error { return ErrUnreachable }
	t[bytecode.OpNoop] = func(m *Machine, _ []byte) error { return nil }
	t[bytecode.OpRet] = func(m *Machine, _ []byte) error { return m.ret() }
	t[bytecode.OpRetz] = func(m *Machine, _ []byte) error {
		m.r = Int(0)
		return m.ret()
	}
}

// ret leaves the current frame. Returning from the outermost frame halts
// the machine.
func (m *Machine) ret() error {
	m.stack.Truncate(m.base)
	if len(m.frames) == 0 {
		return m.halt(nil, m.ip, bytecode.OpRet)
	}
	f := m.frames[len(m.frames)-1]
	m.frames = m.frames[:len(m.frames)-1]
	m.ip = f.ret
	m.base = f.base
	return nil
}

// ---------------------------------------------------------------------------
// Control flow
// ---------------------------------------------------------------------------

func registerControlFlowHandlers(t *dispatchTable) {
	t[bytecode.OpJmp] = func(m *Machine, operands []byte) error {
		m.ip = int(operandU32(operands))
		return nil
	}
	t[bytecode.OpJz] = func(m *Machine, operands []byte) error {
		if m.a.Payload == 0 {
			m.ip = int(operandU32(operands))
		}
		return nil
	}
	t[bytecode.OpJnz] = func(m *Machine, operands []byte) error {
		if m.a.Payload != 0 {
			m.ip = int(operandU32(operands))
		}
		return nil
	}
	t[bytecode.OpJerr] = func(m *Machine, operands []byte) error {
		if m.a.IsError() {
			m.ip = int(operandU32(operands))
		}
		return nil
	}
	t[bytecode.OpCall] = func(m *Machine, operands []byte) error {
		return m.call(0, int(operandU32(operands)))
	}
	t[bytecode.OpCallN] = func(m *Machine, operands []byte) error {
		return m.call(int(operands[0]), int(operandU32(operands[1:])))
	}
}

// call enters the function at target. The new frame starts at the current
// stack height and receives copies of the caller's top argc slots.
func (m *Machine) call(argc, target int) error {
	if len(m.frames) >= m.cfg.MaxCallDepth {
		return fmt.Errorf("%w: call depth %d", ErrStackOverflow, m.cfg.MaxCallDepth)
	}
	base := m.stack.Height()
	if err := m.stack.CopyArgs(m.base, argc); err != nil {
		return err
	}
	m.frames = append(m.frames, frame{ret: m.ip, base: m.base})
	m.base = base
	m.ip = target
	if m.profiler != nil {
		m.profiler.recordCall(target)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Registers
// ---------------------------------------------------------------------------

func registerRegisterHandlers(t *dispatchTable) {
	loads := []struct {
		zero, one, imm, immf bytecode.Opcode
		reg                  func(m *Machine) *Value
	}{
		{bytecode.OpLoadA0, bytecode.OpLoadA1, bytecode.OpLoadA, bytecode.OpLoadAF, func(m *Machine) *Value { return &m.a }},
		{bytecode.OpLoadB0, bytecode.OpLoadB1, bytecode.OpLoadB, bytecode.OpLoadBF, func(m *Machine) *Value { return &m.b }},
		{bytecode.OpLoadR0, bytecode.OpLoadR1, bytecode.OpLoadR, bytecode.OpLoadRF, func(m *Machine) *Value { return &m.r }},
	}
	for _, l := range loads {
		reg := l.reg
		t[l.zero] = func(m *Machine, _ []byte) error {
			*reg(m) = Int(0)
			return nil
		}
		t[l.one] = func(m *Machine, _ []byte) error {
			*reg(m) = Int(1)
			return nil
		}
		t[l.imm] = func(m *Machine, operands []byte) error {
			*reg(m) = Int(operandU64(operands))
			return nil
		}
		t[l.immf] = func(m *Machine, operands []byte) error {
			*reg(m) = Float(operandF64(operands))
			return nil
		}
	}

	t[bytecode.OpSwapAB] = func(m *Machine, _ []byte) error {
		m.a, m.b = m.b, m.a
		return nil
	}
	t[bytecode.OpSwapAR] = func(m *Machine, _ []byte) error {
		m.a, m.r = m.r, m.a
		return nil
	}
	t[bytecode.OpSwapBR] = func(m *Machine, _ []byte) error {
		m.b, m.r = m.r, m.b
		return nil
	}
	t[bytecode.OpCopyAB] = func(m *Machine, _ []byte) error { m.b = m.a; return nil }
	t[bytecode.OpCopyAR] = func(m *Machine, _ []byte) error { m.r = m.a; return nil }
	t[bytecode.OpCopyBA] = func(m *Machine, _ []byte) error { m.a = m.b; return nil }
	t[bytecode.OpCopyBR] = func(m *Machine, _ []byte) error { m.r = m.b; return nil }
	t[bytecode.OpCopyRA] = func(m *Machine, _ []byte) error { m.a = m.r; return nil }
	t[bytecode.OpCopyRB] = func(m *Machine, _ []byte) error { m.b = m.r; return nil }
}

// ---------------------------------------------------------------------------
// Stack
// ---------------------------------------------------------------------------

func registerStackHandlers(t *dispatchTable) {
	regs := []struct {
		push, popInto, topInto, swap bytecode.Opcode
		reg                          func(m *Machine) *Value
	}{
		{bytecode.OpPushA, bytecode.OpPopIntoA, bytecode.OpTopIntoA, bytecode.OpSwapA, func(m *Machine) *Value { return &m.a }},
		{bytecode.OpPushB, bytecode.OpPopIntoB, bytecode.OpTopIntoB, bytecode.OpSwapB, func(m *Machine) *Value { return &m.b }},
		{bytecode.OpPushR, bytecode.OpPopIntoR, bytecode.OpTopIntoR, bytecode.OpSwapR, func(m *Machine) *Value { return &m.r }},
	}
	for _, r := range regs {
		reg := r.reg
		t[r.push] = func(m *Machine, _ []byte) error {
			return m.stack.Push(*reg(m))
		}
		t[r.popInto] = func(m *Machine, _ []byte) error {
			v, err := m.stack.Pop(m.base)
			if err != nil {
				return err
			}
			*reg(m) = v
			return nil
		}
		t[r.topInto] = func(m *Machine, _ []byte) error {
			v, err := m.stack.Top(m.base)
			if err != nil {
				return err
			}
			*reg(m) = v
			return nil
		}
		t[r.swap] = func(m *Machine, _ []byte) error {
			v, err := m.stack.Top(m.base)
			if err != nil {
				return err
			}
			if err := m.stack.SetTop(m.base, *reg(m)); err != nil {
				return err
			}
			*reg(m) = v
			return nil
		}
	}

	t[bytecode.OpPop] = func(m *Machine, _ []byte) error {
		_, err := m.stack.Pop(m.base)
		return err
	}
	t[bytecode.OpSwap] = func(m *Machine, _ []byte) error {
		return m.stack.Swap(m.base)
	}
	t[bytecode.OpDuplicate] = func(m *Machine, _ []byte) error {
		v, err := m.stack.Top(m.base)
		if err != nil {
			return err
		}
		return m.stack.Push(v)
	}
	t[bytecode.OpFrameSize] = func(m *Machine, _ []byte) error {
		m.a = Int(uint64(m.stack.FrameSize(m.base)))
		return nil
	}
	t[bytecode.OpClear] = func(m *Machine, _ []byte) error {
		m.stack.Truncate(m.base)
		return nil
	}
}
