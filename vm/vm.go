package vm

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/chazu/vine/host"
	"github.com/chazu/vine/pkg/bytecode"
)

// DefaultMaxCallDepth bounds nested calls.
const DefaultMaxCallDepth = 256

// cancelCheckInterval is how many instructions run between context checks.
const cancelCheckInterval = 1024

// Config holds machine limits and options.
type Config struct {
	StackSize    int  // operand stack slots; 0 means DefaultStackSize
	MaxCallDepth int  // nested calls; 0 means DefaultMaxCallDepth
	HeapLimit    int  // live heap cells; 0 means unlimited
	Derived      bool // dispatch derived instructions natively
	Trace        bool // log every instruction at debug level
	Profile      bool // count instructions and calls; see Machine.Profiler
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		StackSize:    DefaultStackSize,
		MaxCallDepth: DefaultMaxCallDepth,
		Derived:      true,
	}
}

// frame is the saved state of a caller.
type frame struct {
	ret  int // offset to resume at
	base int // caller's stack base
}

// Machine executes one program. It is not safe for concurrent use.
type Machine struct {
	ID string

	prog    *bytecode.Program
	code    []byte
	types   []*TypeInfo
	host    host.Host
	cfg     Config
	enabled bytecode.FeatureSet
	table   dispatchTable

	a, b, r Value
	stack   *Stack
	frames  []frame
	base    int
	ip      int
	heap    *Heap

	halted bool
	fault  *Fault
	steps  uint64

	profiler *Profiler
	log      commonlog.Logger
}

// Load prepares a machine to run p against h. Loading fails, with no
// machine created, if p is malformed or h lacks one of p's essential
// features.
func Load(p *bytecode.Program, h host.Host, cfg Config) (*Machine, error) {
	log := commonlog.GetLogger("vine.vm")

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("load program: %w", err)
	}
	enabled, unavailable, err := bytecode.Negotiate(p, h.Features())
	if err != nil {
		return nil, fmt.Errorf("load program: %w", err)
	}
	if err := checkOperands(p); err != nil {
		return nil, fmt.Errorf("load program: %w", err)
	}

	if cfg.StackSize <= 0 {
		cfg.StackSize = DefaultStackSize
	}
	if cfg.MaxCallDepth <= 0 {
		cfg.MaxCallDepth = DefaultMaxCallDepth
	}

	m := &Machine{
		ID:      uuid.New().String(),
		prog:    p,
		code:    p.Code,
		host:    h,
		cfg:     cfg,
		enabled: enabled,
		stack:   NewStack(cfg.StackSize),
		frames:  make([]frame, 0, 16),
		ip:      p.EntryOffset(),
		heap:    NewHeap(cfg.HeapLimit),
		log:     log,
	}
	m.types = make([]*TypeInfo, len(p.Types))
	for i, t := range p.Types {
		m.types[i] = &TypeInfo{Name: t.Name, Fields: t.Fields}
	}
	m.table = buildDispatch(enabled, cfg.Derived)
	if cfg.Profile {
		m.profiler = NewProfiler()
	}

	if unavailable != 0 {
		log.Noticef("machine %s: host lacks optional features: %s", m.ID, unavailable)
	}
	if !cfg.Derived && bytecode.HasDerived(p) {
		log.Warningf("machine %s: derived instructions disabled but present in program", m.ID)
	}
	log.Infof("machine %s: loaded %d bytes, %d functions, features: %s", m.ID, len(p.Code), len(p.Functions), enabled)
	return m, nil
}

// checkOperands verifies that every type and string index in the code
// names a table entry.
func checkOperands(p *bytecode.Program) error {
	return p.Walk(func(offset int, op bytecode.Opcode, operands []byte) error {
		switch bytecode.GetOpcodeInfo(op).Format {
		case bytecode.OperandType:
			if i := binary.LittleEndian.Uint32(operands); int(i) >= len(p.Types) {
				return fmt.Errorf("%w: %s at 0x%04X names type %d of %d", bytecode.ErrMalformed, op, offset, i, len(p.Types))
			}
		case bytecode.OperandString:
			if i := binary.LittleEndian.Uint32(operands); int(i) >= len(p.Strings) {
				return fmt.Errorf("%w: %s at 0x%04X names string %d of %d", bytecode.ErrMalformed, op, offset, i, len(p.Strings))
			}
		}
		return nil
	})
}

// ---------------------------------------------------------------------------
// Execution
// ---------------------------------------------------------------------------

// Run executes until the program returns from its entry function or
// faults. The context is checked periodically; cancellation halts the
// machine with a canceled fault.
func (m *Machine) Run(ctx context.Context) error {
	for !m.halted {
		if m.steps%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return m.halt(fmt.Errorf("%w: %v", ErrCanceled, err), m.ip, 0)
			}
		}
		if err := m.Step(); err != nil {
			return err
		}
	}
	if m.fault != nil {
		return m.fault
	}
	return nil
}

// Step executes a single instruction. Stepping a halted machine does
// nothing and returns the fault that halted it, if any.
func (m *Machine) Step() error {
	if m.halted {
		if m.fault != nil {
			return m.fault
		}
		return nil
	}
	m.steps++

	ip := m.ip
	if ip >= len(m.code) {
		return m.halt(fmt.Errorf("%w: at 0x%04X", ErrCodeOverrun, ip), ip, 0)
	}
	op := bytecode.Opcode(m.code[ip])
	end := ip + op.InstructionLen()
	if end > len(m.code) {
		return m.halt(fmt.Errorf("%w: %s operands truncated", ErrCodeOverrun, op), ip, op)
	}
	operands := m.code[ip+1 : end]
	m.ip = end

	handler := m.table[op]
	if handler == nil {
		if op.Defined() {
			return m.halt(fmt.Errorf("%w: %s", ErrUnsupportedInstruction, op), ip, op)
		}
		return m.halt(fmt.Errorf("%w: byte 0x%02X", ErrIllegalInstruction, byte(op)), ip, op)
	}
	if m.cfg.Trace {
		m.log.Debugf("machine %s: %04X %-12s A=%s B=%s R=%s sp=%d", m.ID, ip, op, m.Format(m.a), m.Format(m.b), m.Format(m.r), m.stack.Height())
	}
	if m.profiler != nil {
		m.profiler.recordInstruction(op)
	}
	if err := handler(m, operands); err != nil {
		return m.halt(err, ip, op)
	}
	return nil
}

// halt stops the machine. A nil err is a normal halt.
func (m *Machine) halt(err error, ip int, op bytecode.Opcode) error {
	m.halted = true
	if err == nil {
		m.log.Debugf("machine %s: halted after %d instructions", m.ID, m.steps)
		return nil
	}
	m.fault = newFault(err, ip, op)
	m.log.Errorf("machine %s: %s", m.ID, m.fault)
	return m.fault
}

// Halted reports whether the machine has stopped.
func (m *Machine) Halted() bool { return m.halted }

// Fault returns the fault that halted the machine, or nil.
func (m *Machine) Fault() *Fault { return m.fault }

// IP returns the offset of the next instruction.
func (m *Machine) IP() int { return m.ip }

// Steps returns the number of instructions executed.
func (m *Machine) Steps() uint64 { return m.steps }

func (m *Machine) A() Value { return m.a }
func (m *Machine) B() Value { return m.b }
func (m *Machine) R() Value { return m.r }

func (m *Machine) SetA(v Value) { m.a = v }
func (m *Machine) SetB(v Value) { m.b = v }
func (m *Machine) SetR(v Value) { m.r = v }

// Profiler returns the profile of this run, or nil when profiling is off.
func (m *Machine) Profiler() *Profiler { return m.profiler }

// Program returns the loaded program.
func (m *Machine) Program() *bytecode.Program { return m.prog }

// Stack returns the operand stack.
func (m *Machine) Stack() *Stack { return m.stack }

// Heap returns the machine's heap.
func (m *Machine) Heap() *Heap { return m.heap }

// Depth returns the number of active calls below the current frame.
func (m *Machine) Depth() int { return len(m.frames) }

// Enabled returns the negotiated feature set.
func (m *Machine) Enabled() bytecode.FeatureSet { return m.enabled }

// Types returns the program's composite types in table order.
func (m *Machine) Types() []*TypeInfo { return m.types }

// ExitStatus maps the machine's final state to a process exit status: the
// low byte of A after a normal halt, 2 after a fault.
func (m *Machine) ExitStatus() int {
	if m.fault != nil {
		return 2
	}
	return int(m.a.Payload & 0xFF)
}

// IsFault reports whether err is a machine fault.
func IsFault(err error) bool {
	var f *Fault
	return errors.As(err, &f)
}
