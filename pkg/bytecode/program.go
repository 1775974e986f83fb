package bytecode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ProgramVersion is the current program format version.
// Increment when making incompatible changes to the format.
const ProgramVersion uint16 = 1

// ErrMalformed is returned for programs whose layout is inconsistent.
var ErrMalformed = errors.New("malformed program")

// Function names a code offset. Calls and the entry point refer to
// functions by offset; names exist for the assembler and disassembler.
type Function struct {
	Name   string `cbor:"1,keyasint"`
	Offset uint32 `cbor:"2,keyasint"`
}

// TypeDecl declares a composite type by its ordered field names.
type TypeDecl struct {
	Name   string   `cbor:"1,keyasint"`
	Fields []string `cbor:"2,keyasint,omitempty"`
}

// StringConst is an entry in the string table.
type StringConst struct {
	Name  string `cbor:"1,keyasint,omitempty"`
	Value string `cbor:"2,keyasint"`
}

// Program is a loadable unit of bytecode: a single code section holding
// every function, plus the tables instructions index into.
type Program struct {
	Version   uint16        `cbor:"1,keyasint"`
	Essential FeatureSet    `cbor:"2,keyasint"`
	Optional  FeatureSet    `cbor:"3,keyasint"`
	Entry     uint32        `cbor:"4,keyasint"`
	Functions []Function    `cbor:"5,keyasint"`
	Types     []TypeDecl    `cbor:"6,keyasint,omitempty"`
	Strings   []StringConst `cbor:"7,keyasint,omitempty"`
	Code      []byte        `cbor:"8,keyasint"`
}

// EntryOffset returns the code offset execution starts at.
func (p *Program) EntryOffset() int {
	return int(p.Functions[p.Entry].Offset)
}

// FunctionAt returns the function starting at offset.
func (p *Program) FunctionAt(offset int) (Function, bool) {
	for _, fn := range p.Functions {
		if int(fn.Offset) == offset {
			return fn, true
		}
	}
	return Function{}, false
}

// Walk calls fn for every instruction in the code section in order.
// Undefined opcodes are reported with no operands so the machine can
// fault on them when reached.
func (p *Program) Walk(fn func(offset int, op Opcode, operands []byte) error) error {
	for offset := 0; offset < len(p.Code); {
		op := Opcode(p.Code[offset])
		end := offset + op.InstructionLen()
		if end > len(p.Code) {
			return fmt.Errorf("%w: truncated %s at 0x%04X", ErrMalformed, op, offset)
		}
		if err := fn(offset, op, p.Code[offset+1:end]); err != nil {
			return err
		}
		offset = end
	}
	return nil
}

// Uses returns the features the code section's instructions belong to.
func (p *Program) Uses() FeatureSet {
	var fs FeatureSet
	p.Walk(func(_ int, op Opcode, _ []byte) error {
		if info, ok := opcodeInfoTable[op]; ok && !info.Core {
			fs = fs.With(info.Feature)
		}
		return nil
	})
	return fs
}

// Validate checks the structural consistency of the program: version,
// entry point, function offsets and jump targets.
func (p *Program) Validate() error {
	if p.Version == 0 || p.Version > ProgramVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrMalformed, p.Version)
	}
	if len(p.Functions) == 0 {
		return fmt.Errorf("%w: no functions", ErrMalformed)
	}
	if int(p.Entry) >= len(p.Functions) {
		return fmt.Errorf("%w: entry function %d out of range", ErrMalformed, p.Entry)
	}
	for _, fn := range p.Functions {
		if int(fn.Offset) >= len(p.Code) {
			return fmt.Errorf("%w: function %q starts past end of code", ErrMalformed, fn.Name)
		}
	}
	for i, t := range p.Types {
		if t.Name == "" {
			return fmt.Errorf("%w: type %d has no name", ErrMalformed, i)
		}
	}
	return p.Walk(func(offset int, op Opcode, operands []byte) error {
		if at := GetOpcodeInfo(op).Format.TargetOffset(); at >= 0 {
			target := binary.LittleEndian.Uint32(operands[at:])
			if int(target) >= len(p.Code) {
				return fmt.Errorf("%w: %s at 0x%04X targets 0x%04X past end of code", ErrMalformed, op, offset, target)
			}
		}
		return nil
	})
}

// Builder assembles a Program instruction by instruction.
type Builder struct {
	p        *Program
	entrySet bool
}

// NewBuilder creates a builder for an empty program with the current version.
func NewBuilder() *Builder {
	return &Builder{p: &Program{
		Version: ProgramVersion,
		Code:    make([]byte, 0, 64),
	}}
}

// Require declares features as essential.
func (b *Builder) Require(fs ...Feature) {
	b.p.Essential |= NewFeatureSet(fs...)
}

// Allow declares features as optional.
func (b *Builder) Allow(fs ...Feature) {
	b.p.Optional |= NewFeatureSet(fs...)
}

// Function starts a new function at the current offset and returns its index.
func (b *Builder) Function(name string) uint32 {
	b.p.Functions = append(b.p.Functions, Function{Name: name, Offset: uint32(len(b.p.Code))})
	return uint32(len(b.p.Functions) - 1)
}

// SetEntry selects the entry function by index.
func (b *Builder) SetEntry(index uint32) {
	b.p.Entry = index
	b.entrySet = true
}

// Type declares a composite type and returns its index.
func (b *Builder) Type(name string, fields ...string) uint32 {
	b.p.Types = append(b.p.Types, TypeDecl{Name: name, Fields: fields})
	return uint32(len(b.p.Types) - 1)
}

// String adds an unnamed string constant and returns its index.
// If the value already exists, returns the existing index.
func (b *Builder) String(value string) uint32 {
	for i, s := range b.p.Strings {
		if s.Value == value {
			return uint32(i)
		}
	}
	return b.NamedString("", value)
}

// NamedString adds a named string constant and returns its index.
func (b *Builder) NamedString(name, value string) uint32 {
	b.p.Strings = append(b.p.Strings, StringConst{Name: name, Value: value})
	return uint32(len(b.p.Strings) - 1)
}

// Emit appends a single-byte opcode to the code section.
func (b *Builder) Emit(op Opcode) int {
	offset := len(b.p.Code)
	b.p.Code = append(b.p.Code, byte(op))
	return offset
}

// EmitWithOperand appends an opcode with raw operand bytes.
func (b *Builder) EmitWithOperand(op Opcode, operands ...byte) int {
	offset := b.Emit(op)
	b.p.Code = append(b.p.Code, operands...)
	return offset
}

// EmitU64 appends an opcode with an integer immediate.
func (b *Builder) EmitU64(op Opcode, v uint64) int {
	offset := b.Emit(op)
	b.p.Code = binary.LittleEndian.AppendUint64(b.p.Code, v)
	return offset
}

// EmitF64 appends an opcode with a float immediate.
func (b *Builder) EmitF64(op Opcode, f float64) int {
	return b.EmitU64(op, math.Float64bits(f))
}

// EmitU32 appends an opcode with a table index or code offset.
func (b *Builder) EmitU32(op Opcode, v uint32) int {
	offset := b.Emit(op)
	b.p.Code = binary.LittleEndian.AppendUint32(b.p.Code, v)
	return offset
}

// EmitCallN appends a calln instruction.
func (b *Builder) EmitCallN(argc uint8, target uint32) int {
	offset := b.EmitWithOperand(OpCallN, argc)
	b.p.Code = binary.LittleEndian.AppendUint32(b.p.Code, target)
	return offset
}

// EmitJump emits a jump or call with a placeholder target.
// Returns the offset of the placeholder for later patching.
func (b *Builder) EmitJump(op Opcode) int {
	return b.EmitU32(op, 0xFFFFFFFF) + 1
}

// PatchJump patches a placeholder to target the current position.
func (b *Builder) PatchJump(placeholder int) {
	b.PatchJumpTo(placeholder, len(b.p.Code))
}

// PatchJumpTo patches a placeholder to target a specific offset.
func (b *Builder) PatchJumpTo(placeholder, target int) {
	b.PatchU32(placeholder, uint32(target))
}

// PatchU32 overwrites the four operand bytes at pos.
func (b *Builder) PatchU32(pos int, v uint32) {
	binary.LittleEndian.PutUint32(b.p.Code[pos:], v)
}

// CurrentOffset returns the current offset in the code section.
func (b *Builder) CurrentOffset() int {
	return len(b.p.Code)
}

// Program validates and returns the built program. Unless SetEntry was
// called, the entry point is the function named "entry", or the first
// function if there is none.
func (b *Builder) Program() (*Program, error) {
	if !b.entrySet {
		for i, fn := range b.p.Functions {
			if fn.Name == "entry" {
				b.p.Entry = uint32(i)
				break
			}
		}
	}
	if err := b.p.Validate(); err != nil {
		return nil, err
	}
	return b.p, nil
}
