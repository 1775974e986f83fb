package vm

import (
	"bytes"
	"math"
	"strconv"
	"strings"

	"github.com/chazu/vine/host"
	"github.com/chazu/vine/pkg/bytecode"
)

func registerStringHandlers(t *dispatchTable) {
	t[bytecode.OpStrNew] = func(m *Machine, _ []byte) error {
		return m.setA(m.heap.AllocString(nil))
	}
	t[bytecode.OpStrConst] = func(m *Machine, operands []byte) error {
		s := m.prog.Strings[operandU32(operands)].Value
		return m.setA(m.heap.AllocString([]byte(s)))
	}
	t[bytecode.OpStrCat] = func(m *Machine, _ []byte) error {
		a, b, err := m.stringOperands()
		if err != nil {
			return err
		}
		out := make([]byte, 0, len(a)+len(b))
		return m.setA(m.heap.AllocString(append(append(out, a...), b...)))
	}
	t[bytecode.OpStrEq] = func(m *Machine, _ []byte) error {
		a, b, err := m.stringOperands()
		if err != nil {
			return err
		}
		m.a = Bool(bytes.Equal(a, b))
		return nil
	}
	t[bytecode.OpStrCmp] = func(m *Machine, _ []byte) error {
		a, b, err := m.stringOperands()
		if err != nil {
			return err
		}
		m.a = Int(uint64(int64(bytes.Compare(a, b))))
		return nil
	}
	t[bytecode.OpStrSlice] = func(m *Machine, _ []byte) error {
		s, err := m.heap.Bytes(m.b)
		if err != nil {
			return err
		}
		if !m.a.IsInt() {
			return typeError("A", m.a)
		}
		if !m.r.IsInt() {
			return typeError("R", m.r)
		}
		lo, hi := m.a.Payload, m.r.Payload
		if hi > uint64(len(s)) {
			return indexError(hi, len(s))
		}
		if lo > hi {
			return indexError(lo, int(hi))
		}
		return m.setA(m.heap.AllocString(s[lo:hi]))
	}
	t[bytecode.OpStrFromInt] = func(m *Machine, _ []byte) error {
		if !m.a.IsInt() {
			return typeError("A", m.a)
		}
		return m.setA(m.heap.AllocString(strconv.AppendUint(nil, m.a.Payload, 10)))
	}
	t[bytecode.OpStrFromFloat] = func(m *Machine, _ []byte) error {
		if !m.a.IsNumber() {
			return typeError("A", m.a)
		}
		return m.setA(m.heap.AllocString(strconv.AppendFloat(nil, m.a.AsFloat(), 'g', -1, 64)))
	}
	t[bytecode.OpStrParseInt] = func(m *Machine, _ []byte) error {
		s, err := m.heap.Bytes(m.a)
		if err != nil {
			return err
		}
		n, ok := parseWord(strings.TrimSpace(string(s)))
		if !ok {
			m.a = ErrorValue(host.CodeInvalid)
			return nil
		}
		m.a = Int(n)
		return nil
	}
	t[bytecode.OpStrParseFloat] = func(m *Machine, _ []byte) error {
		s, err := m.heap.Bytes(m.a)
		if err != nil {
			return err
		}
		f, perr := strconv.ParseFloat(strings.TrimSpace(string(s)), 64)
		if perr != nil {
			m.a = ErrorValue(host.CodeInvalid)
			return nil
		}
		m.a = Float(f)
		return nil
	}
	t[bytecode.OpStrFind] = func(m *Machine, _ []byte) error {
		needle, haystack, err := m.stringOperands()
		if err != nil {
			return err
		}
		i := bytes.Index(haystack, needle)
		if i < 0 {
			m.a = Int(math.MaxUint64)
			return nil
		}
		m.a = Int(uint64(i))
		return nil
	}
}

// stringOperands returns the contents of the strings in A and B.
func (m *Machine) stringOperands() (a, b []byte, err error) {
	if a, err = m.heap.Bytes(m.a); err != nil {
		return nil, nil, err
	}
	if b, err = m.heap.Bytes(m.b); err != nil {
		return nil, nil, err
	}
	return a, b, nil
}

// parseWord parses a decimal, 0x, 0o or 0b integer. Negative numbers are
// returned in two's complement.
func parseWord(s string) (uint64, bool) {
	if n, err := strconv.ParseUint(s, 0, 64); err == nil {
		return n, true
	}
	if n, err := strconv.ParseInt(s, 0, 64); err == nil {
		return uint64(n), true
	}
	return 0, false
}
