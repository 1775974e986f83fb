package bytecode

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Disassemble returns the program in assembly form. Assembling the output
// yields the same program for any program whose function table is in
// offset order, which includes everything the assembler produces.
func Disassemble(p *Program) string {
	d := newDisassembler(p)
	var sb strings.Builder

	// Header
	sb.WriteString(fmt.Sprintf("; vine bytecode v%d\n", p.Version))
	if p.Essential != 0 {
		sb.WriteString("required " + p.Essential.String() + "\n")
	}
	if p.Optional != 0 {
		sb.WriteString("optional " + p.Optional.String() + "\n")
	}
	if int(p.Entry) < len(p.Functions) {
		if name := d.functionName(int(p.Entry)); name != "entry" {
			sb.WriteString("entry " + name + "\n")
		}
	}

	// Tables
	for _, t := range p.Types {
		sb.WriteString("type " + t.Name)
		for _, f := range t.Fields {
			sb.WriteString(" " + f)
		}
		sb.WriteString("\n")
	}
	for _, s := range p.Strings {
		if s.Name != "" {
			sb.WriteString(fmt.Sprintf("string %s %s\n", s.Name, strconv.Quote(s.Value)))
		} else {
			sb.WriteString(fmt.Sprintf("string %s\n", strconv.Quote(s.Value)))
		}
	}

	// Code section
	offset := 0
	for offset < len(p.Code) {
		for _, i := range d.starts[offset] {
			sb.WriteString("\nfn " + d.functionName(i) + "\n")
		}
		if d.labels[offset] {
			sb.WriteString(labelName(offset) + "\n")
		}
		line, n := d.instruction(offset)
		sb.WriteString("    " + line + "\n")
		offset += n
	}

	return sb.String()
}

// DisassembleInstruction formats the instruction at offset and returns its
// length. Targets are rendered as hex offsets.
func DisassembleInstruction(p *Program, offset int) (string, int) {
	if offset >= len(p.Code) {
		return "<end of code>", 0
	}
	op := Opcode(p.Code[offset])
	n := op.InstructionLen()
	if !op.Defined() || offset+n > len(p.Code) {
		return fmt.Sprintf("byte 0x%02X", byte(op)), 1
	}
	operands := p.Code[offset+1 : offset+n]
	switch GetOpcodeInfo(op).Format {
	case OperandTarget:
		return fmt.Sprintf("%s 0x%04X", op, binary.LittleEndian.Uint32(operands)), n
	case OperandCall:
		return fmt.Sprintf("%s %d 0x%04X", op, operands[0], binary.LittleEndian.Uint32(operands[1:])), n
	}
	return formatImmediate(p, op, operands), n
}

type disassembler struct {
	p      *Program
	starts map[int][]int // code offset -> function indices
	labels map[int]bool  // jump targets that are not function starts
}

func newDisassembler(p *Program) *disassembler {
	d := &disassembler{
		p:      p,
		starts: make(map[int][]int),
		labels: make(map[int]bool),
	}
	for i, fn := range p.Functions {
		d.starts[int(fn.Offset)] = append(d.starts[int(fn.Offset)], i)
	}
	for _, idx := range d.starts {
		sort.Ints(idx)
	}
	p.Walk(func(_ int, op Opcode, operands []byte) error {
		if at := GetOpcodeInfo(op).Format.TargetOffset(); at >= 0 {
			target := int(binary.LittleEndian.Uint32(operands[at:]))
			if _, ok := d.starts[target]; !ok {
				d.labels[target] = true
			}
		}
		return nil
	})
	return d
}

func (d *disassembler) functionName(i int) string {
	if name := d.p.Functions[i].Name; name != "" {
		return name
	}
	return fmt.Sprintf("f%d", i)
}

func labelName(offset int) string {
	return fmt.Sprintf(".L%04X", offset)
}

func (d *disassembler) target(t uint32) string {
	if idx, ok := d.starts[int(t)]; ok {
		return d.functionName(idx[0])
	}
	return labelName(int(t))
}

// instruction disassembles a single instruction at the given offset.
// Returns the formatted string and the instruction length.
func (d *disassembler) instruction(offset int) (string, int) {
	op := Opcode(d.p.Code[offset])
	n := op.InstructionLen()
	if !op.Defined() || offset+n > len(d.p.Code) {
		return fmt.Sprintf("byte 0x%02X", byte(op)), 1
	}
	operands := d.p.Code[offset+1 : offset+n]

	switch GetOpcodeInfo(op).Format {
	case OperandTarget:
		return fmt.Sprintf("%s %s", op, d.target(binary.LittleEndian.Uint32(operands))), n
	case OperandCall:
		return fmt.Sprintf("%s %d %s", op, operands[0], d.target(binary.LittleEndian.Uint32(operands[1:]))), n
	}
	return formatImmediate(d.p, op, operands), n
}

func formatImmediate(p *Program, op Opcode, operands []byte) string {
	switch GetOpcodeInfo(op).Format {
	case OperandU64:
		return fmt.Sprintf("%s %d", op, binary.LittleEndian.Uint64(operands))
	case OperandF64:
		f := math.Float64frombits(binary.LittleEndian.Uint64(operands))
		return fmt.Sprintf("%s %s", op, strconv.FormatFloat(f, 'g', -1, 64))
	case OperandType:
		idx := binary.LittleEndian.Uint32(operands)
		if int(idx) < len(p.Types) {
			return fmt.Sprintf("%s %s", op, p.Types[idx].Name)
		}
		return fmt.Sprintf("%s %d", op, idx)
	case OperandString:
		idx := binary.LittleEndian.Uint32(operands)
		if int(idx) < len(p.Strings) && p.Strings[idx].Name != "" {
			return fmt.Sprintf("%s %s", op, p.Strings[idx].Name)
		}
		return fmt.Sprintf("%s %d", op, idx)
	case OperandField:
		return fmt.Sprintf("%s %d", op, binary.LittleEndian.Uint32(operands))
	}
	return op.String()
}
