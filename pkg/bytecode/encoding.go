package bytecode

import (
	"bytes"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ProgramMagic prefixes every encoded program.
var ProgramMagic = []byte{'V', 'I', 'N', 'E'}

// cborEncMode uses canonical options so equal programs encode to equal bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bytecode: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Encode serializes a program: the magic bytes followed by the CBOR body.
func Encode(p *Program) ([]byte, error) {
	body, err := cborEncMode.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("bytecode: marshal program: %w", err)
	}
	out := make([]byte, 0, len(ProgramMagic)+len(body))
	out = append(out, ProgramMagic...)
	return append(out, body...), nil
}

// Decode parses and validates an encoded program.
func Decode(data []byte) (*Program, error) {
	if len(data) < len(ProgramMagic) {
		return nil, fmt.Errorf("%w: need at least %d bytes, got %d", ErrMalformed, len(ProgramMagic), len(data))
	}
	if !bytes.Equal(data[:len(ProgramMagic)], ProgramMagic) {
		return nil, fmt.Errorf("%w: invalid magic: expected %q, got %q", ErrMalformed, ProgramMagic, data[:len(ProgramMagic)])
	}
	var p Program
	if err := cbor.Unmarshal(data[len(ProgramMagic):], &p); err != nil {
		return nil, fmt.Errorf("bytecode: unmarshal program: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}
