// Package asm assembles the textual form of Vine bytecode.
//
// A source file is a sequence of lines. Each line holds one directive or
// one instruction; ';' starts a comment.
//
//	required math registers      ; essential features
//	optional std_io              ; optional features
//	entry main                   ; entry function (default: "entry")
//	type Point x y               ; composite type with ordered fields
//	string greeting "hello"      ; named string constant
//	string "anonymous"           ; unnamed string constant
//	fn main                      ; start a function
//	.loop                        ; label
//	    jnz .loop                ; instruction with operands
//	byte 0xFF                    ; raw byte
//
// Labels and function names share one program-wide namespace. Jump and
// call operands name either. Type operands name a type or give its index;
// string operands name a constant, give its index or are a quoted literal.
package asm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/chazu/vine/pkg/bytecode"
)

// Error reports a problem at a source line.
type Error struct {
	Line int
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("asm: line %d: %s", e.Line, e.Msg)
}

type symbolKind uint8

const (
	symTarget symbolKind = iota
	symType
	symString
)

// fixup is an unresolved u32 operand.
type fixup struct {
	pos  int
	kind symbolKind
	name string
	line int
}

type assembler struct {
	b         *bytecode.Builder
	targets   map[string]int    // labels and functions -> code offset
	functions map[string]uint32 // function name -> index
	types     map[string]uint32
	strings   map[string]uint32
	fixups    []fixup
	entry     string
	entryLine int
	line      int
}

// Assemble parses src and returns the validated program.
func Assemble(src string) (*bytecode.Program, error) {
	a := &assembler{
		b:         bytecode.NewBuilder(),
		targets:   make(map[string]int),
		functions: make(map[string]uint32),
		types:     make(map[string]uint32),
		strings:   make(map[string]uint32),
	}
	for i, raw := range strings.Split(src, "\n") {
		a.line = i + 1
		toks, err := tokenize(raw)
		if err != nil {
			return nil, a.errorf("%v", err)
		}
		if len(toks) == 0 {
			continue
		}
		if err := a.statement(toks); err != nil {
			return nil, err
		}
	}
	if err := a.resolve(); err != nil {
		return nil, err
	}
	p, err := a.b.Program()
	if err != nil {
		return nil, fmt.Errorf("asm: %w", err)
	}
	return p, nil
}

func (a *assembler) errorf(format string, args ...any) error {
	return &Error{Line: a.line, Msg: fmt.Sprintf(format, args...)}
}

func (a *assembler) statement(toks []string) error {
	head, args := toks[0], toks[1:]

	if strings.HasPrefix(head, ".") {
		if len(args) != 0 {
			return a.errorf("unexpected tokens after label %s", head)
		}
		return a.define(head, a.b.CurrentOffset())
	}

	switch head {
	case "required", "optional":
		fs, err := bytecode.ParseFeatureSet(args)
		if err != nil {
			return a.errorf("%v", err)
		}
		if head == "required" {
			a.b.Require(fs.Features()...)
		} else {
			a.b.Allow(fs.Features()...)
		}
		return nil

	case "entry":
		if len(args) != 1 {
			return a.errorf("entry takes one function name")
		}
		a.entry, a.entryLine = args[0], a.line
		return nil

	case "fn":
		if len(args) != 1 {
			return a.errorf("fn takes one name")
		}
		if err := a.define(args[0], a.b.CurrentOffset()); err != nil {
			return err
		}
		a.functions[args[0]] = a.b.Function(args[0])
		return nil

	case "type":
		if len(args) == 0 {
			return a.errorf("type needs a name")
		}
		if _, dup := a.types[args[0]]; dup {
			return a.errorf("type %s redeclared", args[0])
		}
		a.types[args[0]] = a.b.Type(args[0], args[1:]...)
		return nil

	case "string":
		return a.stringDecl(args)

	case "byte":
		if len(args) != 1 {
			return a.errorf("byte takes one value")
		}
		v, err := strconv.ParseUint(args[0], 0, 8)
		if err != nil {
			return a.errorf("bad byte %q", args[0])
		}
		a.b.EmitWithOperand(bytecode.Opcode(v))
		return nil
	}

	return a.instruction(head, args)
}

func (a *assembler) define(name string, offset int) error {
	if _, dup := a.targets[name]; dup {
		return a.errorf("%s redefined", name)
	}
	a.targets[name] = offset
	return nil
}

func (a *assembler) stringDecl(args []string) error {
	switch len(args) {
	case 1:
		v, err := unquote(args[0])
		if err != nil {
			return a.errorf("%v", err)
		}
		a.b.NamedString("", v)
	case 2:
		if _, dup := a.strings[args[0]]; dup {
			return a.errorf("string %s redeclared", args[0])
		}
		v, err := unquote(args[1])
		if err != nil {
			return a.errorf("%v", err)
		}
		a.strings[args[0]] = a.b.NamedString(args[0], v)
	default:
		return a.errorf("string takes an optional name and a quoted value")
	}
	return nil
}

func (a *assembler) instruction(mnemonic string, args []string) error {
	op, ok := bytecode.Lookup(mnemonic)
	if !ok {
		return a.errorf("unknown instruction %q", mnemonic)
	}
	format := bytecode.GetOpcodeInfo(op).Format
	want := 1
	switch format {
	case bytecode.OperandNone:
		want = 0
	case bytecode.OperandCall:
		want = 2
	}
	if len(args) != want {
		return a.errorf("%s takes %d operand(s), got %d", mnemonic, want, len(args))
	}

	switch format {
	case bytecode.OperandNone:
		a.b.Emit(op)

	case bytecode.OperandU64:
		v, err := parseInt(args[0])
		if err != nil {
			return a.errorf("%s: %v", mnemonic, err)
		}
		a.b.EmitU64(op, v)

	case bytecode.OperandF64:
		f, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return a.errorf("%s: bad float %q", mnemonic, args[0])
		}
		a.b.EmitF64(op, f)

	case bytecode.OperandField:
		v, err := strconv.ParseUint(args[0], 0, 32)
		if err != nil {
			return a.errorf("%s: bad field index %q", mnemonic, args[0])
		}
		a.b.EmitU32(op, uint32(v))

	case bytecode.OperandTarget:
		pos := a.b.EmitJump(op)
		a.fixups = append(a.fixups, fixup{pos: pos, kind: symTarget, name: args[0], line: a.line})

	case bytecode.OperandCall:
		argc, err := strconv.ParseUint(args[0], 0, 8)
		if err != nil {
			return a.errorf("%s: bad argument count %q", mnemonic, args[0])
		}
		at := a.b.EmitCallN(uint8(argc), 0xFFFFFFFF)
		a.fixups = append(a.fixups, fixup{pos: at + 2, kind: symTarget, name: args[1], line: a.line})

	case bytecode.OperandType:
		a.indexed(op, symType, args[0])

	case bytecode.OperandString:
		if strings.HasPrefix(args[0], `"`) {
			v, err := unquote(args[0])
			if err != nil {
				return a.errorf("%v", err)
			}
			a.b.EmitU32(op, a.b.String(v))
			return nil
		}
		a.indexed(op, symString, args[0])
	}
	return nil
}

// indexed emits an instruction whose operand is a table index given
// either numerically or by name.
func (a *assembler) indexed(op bytecode.Opcode, kind symbolKind, arg string) {
	if v, err := strconv.ParseUint(arg, 0, 32); err == nil {
		a.b.EmitU32(op, uint32(v))
		return
	}
	pos := a.b.EmitU32(op, 0) + 1
	a.fixups = append(a.fixups, fixup{pos: pos, kind: kind, name: arg, line: a.line})
}

func (a *assembler) resolve() error {
	for _, f := range a.fixups {
		var v uint32
		var ok bool
		switch f.kind {
		case symTarget:
			var off int
			off, ok = a.targets[f.name]
			v = uint32(off)
		case symType:
			v, ok = a.types[f.name]
		case symString:
			v, ok = a.strings[f.name]
		}
		if !ok {
			return &Error{Line: f.line, Msg: fmt.Sprintf("undefined symbol %q", f.name)}
		}
		a.b.PatchU32(f.pos, v)
	}
	if a.entry != "" {
		idx, ok := a.functions[a.entry]
		if !ok {
			return &Error{Line: a.entryLine, Msg: fmt.Sprintf("entry function %q not defined", a.entry)}
		}
		a.b.SetEntry(idx)
	}
	return nil
}

func parseInt(s string) (uint64, error) {
	if strings.HasPrefix(s, "-") {
		v, err := strconv.ParseInt(s, 0, 64)
		if err != nil {
			return 0, fmt.Errorf("bad integer %q", s)
		}
		return uint64(v), nil
	}
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("bad integer %q", s)
	}
	return v, nil
}

func unquote(s string) (string, error) {
	v, err := strconv.Unquote(s)
	if err != nil {
		return "", fmt.Errorf("bad string literal %s", s)
	}
	return v, nil
}

// tokenize splits a line into tokens, keeping quoted strings whole and
// dropping comments.
func tokenize(line string) ([]string, error) {
	var toks []string
	for i := 0; i < len(line); {
		c := line[i]
		switch {
		case c == ' ' || c == '\t' || c == '\r':
			i++
		case c == ';':
			return toks, nil
		case c == '"':
			j := i + 1
			for j < len(line) && line[j] != '"' {
				if line[j] == '\\' {
					j++
				}
				j++
			}
			if j >= len(line) {
				return nil, fmt.Errorf("unterminated string")
			}
			toks = append(toks, line[i:j+1])
			i = j + 1
		default:
			j := i
			for j < len(line) && !strings.ContainsRune(" \t\r;\"", rune(line[j])) {
				j++
			}
			toks = append(toks, line[i:j])
			i = j
		}
	}
	return toks, nil
}
