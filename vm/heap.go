package vm

import (
	"fmt"

	"github.com/chazu/vine/host"
	"github.com/chazu/vine/pkg/vec"
	"github.com/tliron/commonlog"
)

// ---------------------------------------------------------------------------
// Heap: arena of cells addressed by handle
// ---------------------------------------------------------------------------

// cell is one heap allocation. Which fields are used depends on kind.
type cell struct {
	kind   Kind
	values []Value          // wide array, composite fields
	wide   *vec.Vec[Value]  // wide vector
	elem   TypeTag          // element type of small containers
	words  []uint64         // small array
	small  *vec.Vec[uint64] // small vector
	bytes  *vec.Vec[byte]   // string
	dir    host.DirCursor   // directory cursor
	closed bool             // dir already closed by the program
	marked bool
}

// Heap owns every container, string, composite instance and directory
// cursor a program creates. A handle is a cell index plus one, so the
// payload 0 never names a cell.
type Heap struct {
	cells *vec.Vec[*cell]
	free  *vec.Vec[uint64]
	live  int
	limit int
	log   commonlog.Logger
}

// NewHeap creates a heap holding at most limit live cells. A limit of zero
// means unlimited.
func NewHeap(limit int) *Heap {
	return &Heap{
		cells: newVec[*cell](),
		free:  newVec[uint64](),
		limit: limit,
		log:   commonlog.GetLogger("vine.heap"),
	}
}

func newVec[T any]() *vec.Vec[T] {
	v, err := vec.New[T]()
	if err != nil {
		panic(err)
	}
	return v
}

// Live returns the number of allocated cells.
func (h *Heap) Live() int { return h.live }

func (h *Heap) alloc(c *cell) (uint64, error) {
	if h.limit > 0 && h.live >= h.limit {
		return 0, fmt.Errorf("%w: limit of %d cells", ErrHeapExhausted, h.limit)
	}
	h.live++
	if handle, ok := h.free.Pop(); ok {
		h.cells.Set(int(handle-1), c)
		return handle, nil
	}
	h.cells.Push(c)
	return uint64(h.cells.Len()), nil
}

// AllocWideArray allocates a fixed array of n zero values.
func (h *Heap) AllocWideArray(n int) (Value, error) {
	handle, err := h.alloc(&cell{kind: KindWideArray, values: make([]Value, n)})
	return Value{Type: WideArray, Payload: handle}, err
}

// AllocWideVector allocates an empty growable vector of values.
func (h *Heap) AllocWideVector() (Value, error) {
	handle, err := h.alloc(&cell{kind: KindWideVector, wide: newVec[Value]()})
	return Value{Type: WideVector, Payload: handle}, err
}

// AllocSmallArray allocates a fixed array of n payload words of type elem.
func (h *Heap) AllocSmallArray(elem TypeTag, n int) (Value, error) {
	handle, err := h.alloc(&cell{kind: KindSmallArray, elem: elem, words: make([]uint64, n)})
	return Value{Type: SmallArray, Payload: handle}, err
}

// AllocSmallVector allocates an empty growable vector of payload words of
// type elem.
func (h *Heap) AllocSmallVector(elem TypeTag) (Value, error) {
	handle, err := h.alloc(&cell{kind: KindSmallVector, elem: elem, small: newVec[uint64]()})
	return Value{Type: SmallVector, Payload: handle}, err
}

// AllocString allocates a string holding a copy of b.
func (h *Heap) AllocString(b []byte) (Value, error) {
	bytes := newVec[byte]()
	bytes.PushAll(b...)
	handle, err := h.alloc(&cell{kind: KindString, bytes: bytes})
	return Value{Type: String, Payload: handle}, err
}

// AllocComposite allocates a zeroed instance of info. Types without
// fields are not allocated: their instances have payload 0.
func (h *Heap) AllocComposite(info *TypeInfo) (Value, error) {
	if info.FieldCount() == 0 {
		return Value{Type: Composite(info)}, nil
	}
	handle, err := h.alloc(&cell{kind: KindComposite, values: make([]Value, info.FieldCount())})
	return Value{Type: Composite(info), Payload: handle}, err
}

// AllocDir stores a directory cursor.
func (h *Heap) AllocDir(d host.DirCursor) (Value, error) {
	handle, err := h.alloc(&cell{kind: KindDir, dir: d})
	return Value{Type: Dir, Payload: handle}, err
}

// lookup returns the cell v refers to.
func (h *Heap) lookup(v Value) (*cell, error) {
	if !v.Type.kind.onHeap() {
		return nil, typeError("operand", v)
	}
	c, ok := h.cells.Get(int(v.Payload) - 1)
	if !ok || c == nil || c.kind != v.Type.kind {
		return nil, fmt.Errorf("%w: %s handle %d", ErrInvalidHandle, v.Type, v.Payload)
	}
	return c, nil
}

// Bytes returns the contents of a string value. The slice aliases the
// heap.
func (h *Heap) Bytes(v Value) ([]byte, error) {
	if v.Type.kind != KindString {
		return nil, typeError("operand", v)
	}
	c, err := h.lookup(v)
	if err != nil {
		return nil, err
	}
	return c.bytes.Slice(), nil
}

// Elements returns the elements of a container value as full values.
func (h *Heap) Elements(v Value) ([]Value, error) {
	c, err := h.lookup(v)
	if err != nil {
		return nil, err
	}
	switch c.kind {
	case KindWideArray:
		return c.values, nil
	case KindWideVector:
		return c.wide.Slice(), nil
	case KindSmallArray, KindSmallVector:
		words := c.words
		if c.kind == KindSmallVector {
			words = c.small.Slice()
		}
		out := make([]Value, len(words))
		for i, w := range words {
			out[i] = Value{Type: c.elem, Payload: w}
		}
		return out, nil
	case KindString:
		b := c.bytes.Slice()
		out := make([]Value, len(b))
		for i, x := range b {
			out[i] = Int(uint64(x))
		}
		return out, nil
	}
	return nil, typeError("operand", v)
}

// Fields returns the field slots of a composite instance.
func (h *Heap) Fields(v Value) ([]Value, error) {
	if v.Type.kind != KindComposite {
		return nil, typeError("operand", v)
	}
	if v.Type.info.FieldCount() == 0 {
		return nil, nil
	}
	c, err := h.lookup(v)
	if err != nil {
		return nil, err
	}
	return c.values, nil
}

// Cursor returns the directory cursor of a dir value.
func (h *Heap) Cursor(v Value) (host.DirCursor, error) {
	if v.Type.kind != KindDir {
		return nil, typeError("operand", v)
	}
	c, err := h.lookup(v)
	if err != nil {
		return nil, err
	}
	return c.dir, nil
}

// CloseCursor closes the directory cursor of a dir value. The cell stays
// allocated until collected, but collection will not close it again. A
// second close reports host.ErrClosed without reaching the cursor.
func (h *Heap) CloseCursor(v Value) error {
	if v.Type.kind != KindDir {
		return typeError("operand", v)
	}
	c, err := h.lookup(v)
	if err != nil {
		return err
	}
	if c.closed {
		return host.ErrClosed
	}
	c.closed = true
	return c.dir.Close()
}

// ---------------------------------------------------------------------------
// Collection
// ---------------------------------------------------------------------------

// Collect frees every cell not reachable from roots and returns the number
// of cells freed. Freed directory cursors the program left open are closed
// and freed handles are reused by later allocations.
func (h *Heap) Collect(roots ...Value) int {
	work := newVec[uint64]()
	mark := func(v Value) {
		if v.Type.kind.onHeap() && v.Payload != 0 {
			work.Push(v.Payload)
		}
	}
	for _, v := range roots {
		mark(v)
	}

	for {
		handle, ok := work.Pop()
		if !ok {
			break
		}
		c, ok := h.cells.Get(int(handle) - 1)
		if !ok || c == nil || c.marked {
			continue
		}
		c.marked = true
		switch c.kind {
		case KindWideArray, KindComposite:
			for _, v := range c.values {
				mark(v)
			}
		case KindWideVector:
			for _, v := range c.wide.Slice() {
				mark(v)
			}
		case KindSmallArray, KindSmallVector:
			if !c.elem.kind.onHeap() {
				break
			}
			words := c.words
			if c.kind == KindSmallVector {
				words = c.small.Slice()
			}
			for _, w := range words {
				mark(Value{Type: c.elem, Payload: w})
			}
		}
	}

	freed := 0
	for i, c := range h.cells.Slice() {
		if c == nil {
			continue
		}
		if c.marked {
			c.marked = false
			continue
		}
		if c.dir != nil && !c.closed {
			if err := c.dir.Close(); err != nil {
				h.log.Debugf("closing collected cursor %d: %s", i+1, err)
			}
		}
		h.cells.Set(i, nil)
		h.free.Push(uint64(i + 1))
		freed++
	}
	h.live -= freed
	return freed
}
