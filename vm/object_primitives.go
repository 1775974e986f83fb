package vm

import (
	"fmt"

	"github.com/chazu/vine/pkg/bytecode"
)

// maxContainerLen bounds the length given to new_warr and new_sarr.
const maxContainerLen = 1 << 24

func registerObjectHandlers(t *dispatchTable) {
	t[bytecode.OpAlloc] = func(m *Machine, operands []byte) error {
		v, err := m.heap.AllocComposite(m.types[operandU32(operands)])
		if err != nil {
			return err
		}
		m.a = v
		return nil
	}

	for i, op := range []bytecode.Opcode{bytecode.OpProp0, bytecode.OpProp1, bytecode.OpProp2, bytecode.OpProp3} {
		t[op] = func(m *Machine, _ []byte) error { return m.readField(uint64(i)) }
	}
	t[bytecode.OpProp] = func(m *Machine, operands []byte) error {
		return m.readField(uint64(operandU32(operands)))
	}
	for i, op := range []bytecode.Opcode{bytecode.OpStore0, bytecode.OpStore1, bytecode.OpStore2, bytecode.OpStore3} {
		t[op] = func(m *Machine, _ []byte) error { return m.writeField(uint64(i)) }
	}
	t[bytecode.OpStore] = func(m *Machine, operands []byte) error {
		return m.writeField(uint64(operandU32(operands)))
	}

	t[bytecode.OpIs] = func(m *Machine, operands []byte) error {
		m.a = Bool(m.a.Type == Composite(m.types[operandU32(operands)]))
		return nil
	}
	t[bytecode.OpCastEq] = func(m *Machine, operands []byte) error {
		to := m.types[operandU32(operands)]
		if m.a.IsBuiltin() {
			return typeError("A", m.a)
		}
		from := m.a.Type.Info()
		if from.FieldCount() != to.FieldCount() {
			return fmt.Errorf("%w: cannot cast %s (%d fields) to %s (%d fields)",
				ErrTypeMismatch, from.Name, from.FieldCount(), to.Name, to.FieldCount())
		}
		m.a.Type = Composite(to)
		return nil
	}
	t[bytecode.OpTypeEq] = func(m *Machine, _ []byte) error {
		m.a = Bool(SameType(m.a, m.b))
		return nil
	}
	t[bytecode.OpIsBuiltin] = func(m *Machine, _ []byte) error {
		m.a = Bool(m.a.IsBuiltin())
		return nil
	}
	t[bytecode.OpFieldCount] = func(m *Machine, _ []byte) error {
		if m.b.IsBuiltin() {
			return typeError("B", m.b)
		}
		m.a = Int(uint64(m.b.Type.Info().FieldCount()))
		return nil
	}

	t[bytecode.OpNewWArr] = func(m *Machine, _ []byte) error {
		n, err := m.lengthOperand()
		if err != nil {
			return err
		}
		return m.setA(m.heap.AllocWideArray(n))
	}
	t[bytecode.OpNewWVec] = func(m *Machine, _ []byte) error {
		return m.setA(m.heap.AllocWideVector())
	}
	t[bytecode.OpNewSArr] = func(m *Machine, _ []byte) error {
		n, err := m.lengthOperand()
		if err != nil {
			return err
		}
		return m.setA(m.heap.AllocSmallArray(m.b.Type, n))
	}
	t[bytecode.OpNewSVec] = func(m *Machine, _ []byte) error {
		return m.setA(m.heap.AllocSmallVector(m.b.Type))
	}

	t[bytecode.OpLen] = func(m *Machine, _ []byte) error {
		c, err := m.container(m.b)
		if err != nil {
			return err
		}
		m.a = Int(uint64(c.length()))
		return nil
	}
	t[bytecode.OpGet] = func(m *Machine, _ []byte) error {
		c, err := m.container(m.b)
		if err != nil {
			return err
		}
		if !m.a.IsInt() {
			return typeError("A", m.a)
		}
		v, err := c.get(m.a.Payload)
		if err != nil {
			return err
		}
		m.a = v
		return nil
	}
	t[bytecode.OpPut] = func(m *Machine, _ []byte) error {
		c, err := m.container(m.b)
		if err != nil {
			return err
		}
		if !m.a.IsInt() {
			return typeError("A", m.a)
		}
		return c.put(m.a.Payload, m.r)
	}
	t[bytecode.OpVPush] = func(m *Machine, _ []byte) error {
		c, err := m.container(m.b)
		if err != nil {
			return err
		}
		return c.push(m.a)
	}
	t[bytecode.OpVPop] = func(m *Machine, _ []byte) error {
		c, err := m.container(m.b)
		if err != nil {
			return err
		}
		v, err := c.pop()
		if err != nil {
			return err
		}
		m.a = v
		return nil
	}
	t[bytecode.OpVRemove] = func(m *Machine, _ []byte) error {
		c, err := m.container(m.b)
		if err != nil {
			return err
		}
		if !m.a.IsInt() {
			return typeError("A", m.a)
		}
		v, err := c.swapRemove(m.a.Payload)
		if err != nil {
			return err
		}
		m.a = v
		return nil
	}
	t[bytecode.OpVClear] = func(m *Machine, _ []byte) error {
		c, err := m.container(m.b)
		if err != nil {
			return err
		}
		return c.clear()
	}

	t[bytecode.OpGC] = func(m *Machine, _ []byte) error {
		m.Collect()
		return nil
	}
	t[bytecode.OpHeapCount] = func(m *Machine, _ []byte) error {
		m.a = Int(uint64(m.heap.Live()))
		return nil
	}
}

// Collect runs a collection rooted at the registers and the whole operand
// stack and returns the number of cells freed.
func (m *Machine) Collect() int {
	roots := append([]Value{m.a, m.b, m.r}, m.stack.Slots()...)
	freed := m.heap.Collect(roots...)
	m.log.Debugf("machine %s: collected %d cells, %d live", m.ID, freed, m.heap.Live())
	return freed
}

func (m *Machine) setA(v Value, err error) error {
	if err != nil {
		return err
	}
	m.a = v
	return nil
}

// lengthOperand reads a container length from A.
func (m *Machine) lengthOperand() (int, error) {
	if !m.a.IsInt() {
		return 0, typeError("A", m.a)
	}
	if m.a.Payload > maxContainerLen {
		return 0, fmt.Errorf("%w: length %d exceeds %d", ErrIndexOutOfRange, m.a.Payload, maxContainerLen)
	}
	return int(m.a.Payload), nil
}

func (m *Machine) readField(i uint64) error {
	fields, err := m.heap.Fields(m.b)
	if err != nil {
		return err
	}
	if i >= uint64(len(fields)) {
		return indexError(i, len(fields))
	}
	m.a = fields[i]
	return nil
}

func (m *Machine) writeField(i uint64) error {
	fields, err := m.heap.Fields(m.b)
	if err != nil {
		return err
	}
	if i >= uint64(len(fields)) {
		return indexError(i, len(fields))
	}
	fields[i] = m.a
	return nil
}

// ---------------------------------------------------------------------------
// Container access
// ---------------------------------------------------------------------------

// container is a view of a heap cell that supports the element
// instructions. Arrays reject the operations that change length.
type container struct {
	v Value
	c *cell
}

func (m *Machine) container(v Value) (container, error) {
	switch v.Type.kind {
	case KindWideArray, KindWideVector, KindSmallArray, KindSmallVector, KindString:
	default:
		return container{}, typeError("B", v)
	}
	c, err := m.heap.lookup(v)
	if err != nil {
		return container{}, err
	}
	return container{v: v, c: c}, nil
}

func (c container) length() int {
	switch c.c.kind {
	case KindWideArray:
		return len(c.c.values)
	case KindWideVector:
		return c.c.wide.Len()
	case KindSmallArray:
		return len(c.c.words)
	case KindSmallVector:
		return c.c.small.Len()
	default:
		return c.c.bytes.Len()
	}
}

func (c container) get(i uint64) (Value, error) {
	if i >= uint64(c.length()) {
		return Value{}, indexError(i, c.length())
	}
	switch c.c.kind {
	case KindWideArray:
		return c.c.values[i], nil
	case KindWideVector:
		v, _ := c.c.wide.Get(int(i))
		return v, nil
	case KindSmallArray:
		return Value{Type: c.c.elem, Payload: c.c.words[i]}, nil
	case KindSmallVector:
		w, _ := c.c.small.Get(int(i))
		return Value{Type: c.c.elem, Payload: w}, nil
	default:
		b, _ := c.c.bytes.Get(int(i))
		return Int(uint64(b)), nil
	}
}

// checkElem verifies that v may be stored in the container.
func (c container) checkElem(v Value) error {
	switch c.c.kind {
	case KindSmallArray, KindSmallVector:
		if v.Type != c.c.elem {
			return fmt.Errorf("%w: %s element in %s of %s", ErrTypeMismatch, v.Type, c.v.Type, c.c.elem)
		}
	case KindString:
		if !v.IsInt() {
			return fmt.Errorf("%w: %s element in str", ErrTypeMismatch, v.Type)
		}
	}
	return nil
}

func (c container) put(i uint64, v Value) error {
	if i >= uint64(c.length()) {
		return indexError(i, c.length())
	}
	if err := c.checkElem(v); err != nil {
		return err
	}
	switch c.c.kind {
	case KindWideArray:
		c.c.values[i] = v
	case KindWideVector:
		c.c.wide.Set(int(i), v)
	case KindSmallArray:
		c.c.words[i] = v.Payload
	case KindSmallVector:
		c.c.small.Set(int(i), v.Payload)
	default:
		c.c.bytes.Set(int(i), byte(v.Payload))
	}
	return nil
}

func (c container) fixed() error {
	switch c.c.kind {
	case KindWideArray, KindSmallArray:
		return fmt.Errorf("%w: %s has a fixed length", ErrTypeMismatch, c.v.Type)
	}
	return nil
}

func (c container) push(v Value) error {
	if err := c.fixed(); err != nil {
		return err
	}
	if err := c.checkElem(v); err != nil {
		return err
	}
	switch c.c.kind {
	case KindWideVector:
		c.c.wide.Push(v)
	case KindSmallVector:
		c.c.small.Push(v.Payload)
	default:
		c.c.bytes.Push(byte(v.Payload))
	}
	return nil
}

func (c container) pop() (Value, error) {
	if err := c.fixed(); err != nil {
		return Value{}, err
	}
	if c.length() == 0 {
		return Value{}, fmt.Errorf("%w: pop from empty %s", ErrIndexOutOfRange, c.v.Type)
	}
	switch c.c.kind {
	case KindWideVector:
		v, _ := c.c.wide.Pop()
		return v, nil
	case KindSmallVector:
		w, _ := c.c.small.Pop()
		return Value{Type: c.c.elem, Payload: w}, nil
	default:
		b, _ := c.c.bytes.Pop()
		return Int(uint64(b)), nil
	}
}

func (c container) swapRemove(i uint64) (Value, error) {
	if err := c.fixed(); err != nil {
		return Value{}, err
	}
	if i >= uint64(c.length()) {
		return Value{}, indexError(i, c.length())
	}
	switch c.c.kind {
	case KindWideVector:
		v, _ := c.c.wide.SwapRemove(int(i))
		return v, nil
	case KindSmallVector:
		w, _ := c.c.small.SwapRemove(int(i))
		return Value{Type: c.c.elem, Payload: w}, nil
	default:
		b, _ := c.c.bytes.SwapRemove(int(i))
		return Int(uint64(b)), nil
	}
}

func (c container) clear() error {
	if err := c.fixed(); err != nil {
		return err
	}
	switch c.c.kind {
	case KindWideVector:
		c.c.wide.Clear()
	case KindSmallVector:
		c.c.small.Clear()
	default:
		c.c.bytes.Clear()
	}
	return nil
}
