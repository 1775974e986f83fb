package vm

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Format renders v for output: integers in decimal, floats in the shortest
// form that round-trips, strings verbatim, error values as error(code),
// containers as [e0, e1] and composites as Name{field: value}. A container
// that appears inside itself prints as [...] or Name{...}, and output past
// maxFormatBytes is cut short with "...".
func (m *Machine) Format(v Value) string {
	p := printer{m: m, open: map[uint64]bool{}}
	p.format(v, false, 0)
	return p.sb.String()
}

const (
	// formatDepth bounds nesting.
	formatDepth = 16
	// maxFormatBytes bounds the rendering of wide or heavily shared graphs.
	maxFormatBytes = 64 << 10
)

type printer struct {
	m    *Machine
	sb   strings.Builder
	open map[uint64]bool // handles being printed by an enclosing call
	full bool
}

func (p *printer) write(s string) {
	if p.full {
		return
	}
	if p.sb.Len()+len(s) > maxFormatBytes {
		p.sb.WriteString("...")
		p.full = true
		return
	}
	p.sb.WriteString(s)
}

func (p *printer) format(v Value, quote bool, depth int) {
	if p.full {
		return
	}
	switch v.Type.kind {
	case KindU64:
		p.write(strconv.FormatUint(v.Payload, 10))
		return
	case KindF64:
		p.write(strconv.FormatFloat(math.Float64frombits(v.Payload), 'g', -1, 64))
		return
	case KindError:
		p.write(fmt.Sprintf("error(%s)", v.ErrorCode()))
		return
	case KindDir:
		p.write(fmt.Sprintf("dir#%d", v.Payload))
		return
	case KindString:
		b, err := p.m.heap.Bytes(v)
		switch {
		case err != nil:
			p.write("<invalid str>")
		case quote:
			p.write(strconv.Quote(string(b)))
		default:
			p.write(string(b))
		}
		return
	}

	if depth >= formatDepth {
		p.write("...")
		return
	}

	if v.Type.kind == KindComposite {
		info := v.Type.Info()
		fields, err := p.m.heap.Fields(v)
		if err != nil {
			p.write(fmt.Sprintf("<invalid %s>", info.Name))
			return
		}
		if p.open[v.Payload] {
			p.write(info.Name + "{...}")
			return
		}
		p.open[v.Payload] = true
		defer delete(p.open, v.Payload)
		p.write(info.Name + "{")
		for i, name := range info.Fields {
			if i > 0 {
				p.write(", ")
			}
			p.write(name + ": ")
			p.format(fields[i], true, depth+1)
		}
		p.write("}")
		return
	}

	elems, err := p.m.heap.Elements(v)
	if err != nil {
		p.write(fmt.Sprintf("<invalid %s>", v.Type))
		return
	}
	if p.open[v.Payload] {
		p.write("[...]")
		return
	}
	p.open[v.Payload] = true
	defer delete(p.open, v.Payload)
	p.write("[")
	for i, e := range elems {
		if i > 0 {
			p.write(", ")
		}
		p.format(e, true, depth+1)
	}
	p.write("]")
}
