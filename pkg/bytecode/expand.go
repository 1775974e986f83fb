package bytecode

import (
	"encoding/binary"
	"fmt"
)

// Expand returns a copy of p with every derived instruction replaced by
// its primitive sequence. Jump targets, call targets and function offsets
// are relocated. Features an expansion relies on become essential when the
// derived instruction is core or of an essential feature, and optional
// otherwise.
func Expand(p *Program) (*Program, error) {
	// First pass: map every instruction boundary to its new offset.
	remap := make(map[int]int, len(p.Code))
	size := 0
	var essential, optional FeatureSet
	err := p.Walk(func(offset int, op Opcode, _ []byte) error {
		remap[offset] = size
		derived := GetOpcodeInfo(op)
		if len(derived.Expansion) == 0 {
			size += op.InstructionLen()
			return nil
		}
		needed := derived.Core || p.Essential.Has(derived.Feature)
		for _, e := range derived.Expansion {
			if info := GetOpcodeInfo(e); !info.Core {
				if needed {
					essential = essential.With(info.Feature)
				} else {
					optional = optional.With(info.Feature)
				}
			}
			size += e.InstructionLen()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	remap[len(p.Code)] = size

	// Second pass: emit, relocating absolute offsets.
	code := make([]byte, 0, size)
	err = p.Walk(func(offset int, op Opcode, operands []byte) error {
		info := GetOpcodeInfo(op)
		if len(info.Expansion) > 0 {
			for _, e := range info.Expansion {
				code = append(code, byte(e))
			}
			return nil
		}
		start := len(code)
		code = append(code, byte(op))
		code = append(code, operands...)
		if at := info.Format.TargetOffset(); at >= 0 {
			old := int(binary.LittleEndian.Uint32(operands[at:]))
			target, ok := remap[old]
			if !ok {
				return fmt.Errorf("%w: %s at 0x%04X targets 0x%04X, not an instruction boundary", ErrMalformed, op, offset, old)
			}
			binary.LittleEndian.PutUint32(code[start+1+at:], uint32(target))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := *p
	out.Code = code
	out.Essential |= essential
	out.Optional = (out.Optional | optional) &^ out.Essential
	out.Functions = make([]Function, len(p.Functions))
	for i, fn := range p.Functions {
		off, ok := remap[int(fn.Offset)]
		if !ok {
			return nil, fmt.Errorf("%w: function %q does not start on an instruction boundary", ErrMalformed, fn.Name)
		}
		out.Functions[i] = Function{Name: fn.Name, Offset: uint32(off)}
	}
	return &out, nil
}

// HasDerived reports whether the code contains any derived instruction.
func HasDerived(p *Program) bool {
	found := false
	p.Walk(func(_ int, op Opcode, _ []byte) error {
		if op.IsDerived() {
			found = true
		}
		return nil
	})
	return found
}
