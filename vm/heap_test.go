package vm

import (
	"errors"
	"testing"

	"github.com/chazu/vine/host"
)

func TestHeapHandleReuse(t *testing.T) {
	h := NewHeap(0)
	a, err := h.AllocString([]byte("a"))
	if err != nil {
		t.Fatal(err)
	}
	if a.Payload == 0 {
		t.Fatal("handle 0 allocated")
	}
	if freed := h.Collect(); freed != 1 {
		t.Fatalf("Collect freed %d, want 1", freed)
	}
	if _, err := h.Bytes(a); !errors.Is(err, ErrInvalidHandle) {
		t.Errorf("Bytes of freed string: err = %v, want invalid handle", err)
	}
	b, err := h.AllocWideVector()
	if err != nil {
		t.Fatal(err)
	}
	if b.Payload != a.Payload {
		t.Errorf("freed handle %d not reused, got %d", a.Payload, b.Payload)
	}
	// The reused handle now names a vector, not a string.
	if _, err := h.Bytes(Value{Type: String, Payload: a.Payload}); !errors.Is(err, ErrInvalidHandle) {
		t.Errorf("stale string handle: err = %v, want invalid handle", err)
	}
}

func TestHeapLimit(t *testing.T) {
	h := NewHeap(2)
	for range 2 {
		if _, err := h.AllocWideArray(1); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := h.AllocWideArray(1); !errors.Is(err, ErrHeapExhausted) {
		t.Fatalf("third allocation: err = %v, want heap exhausted", err)
	}
	h.Collect()
	if _, err := h.AllocWideArray(1); err != nil {
		t.Errorf("allocation after collect: %v", err)
	}
}

func TestHeapReachability(t *testing.T) {
	h := NewHeap(0)
	point := &TypeInfo{Name: "Point", Fields: []string{"x", "y"}}

	inner, _ := h.AllocString([]byte("inner"))
	pt, _ := h.AllocComposite(point)
	fields, _ := h.Fields(pt)
	fields[0] = inner
	small, _ := h.AllocSmallVector(Composite(point))
	c, _ := h.lookup(small)
	c.small.Push(pt.Payload)
	root, _ := h.AllocWideArray(1)
	elems, _ := h.Elements(root)
	elems[0] = small
	h.AllocString([]byte("garbage"))

	if freed := h.Collect(root); freed != 1 {
		t.Errorf("Collect freed %d, want 1", freed)
	}
	if h.Live() != 4 {
		t.Errorf("Live = %d, want 4", h.Live())
	}
	if b, err := h.Bytes(inner); err != nil || string(b) != "inner" {
		t.Errorf("string reached through small vector and composite = %q, %v", b, err)
	}
}

type trackedCursor struct {
	closed bool
	closes int
}

func (c *trackedCursor) Step() (string, error) { return "", nil }

func (c *trackedCursor) Close() error {
	c.closes++
	if c.closed {
		return host.ErrClosed
	}
	c.closed = true
	return nil
}

func TestHeapClosesCollectedCursors(t *testing.T) {
	h := NewHeap(0)
	kept, dropped := &trackedCursor{}, &trackedCursor{}
	keep, _ := h.AllocDir(kept)
	h.AllocDir(dropped)
	h.Collect(keep)
	if !dropped.closed {
		t.Error("collected cursor was not closed")
	}
	if kept.closed {
		t.Error("reachable cursor was closed")
	}
}

func TestHeapSkipsClosedCursorsOnCollect(t *testing.T) {
	h := NewHeap(0)
	cur := &trackedCursor{}
	d, err := h.AllocDir(cur)
	if err != nil {
		t.Fatal(err)
	}
	if err := h.CloseCursor(d); err != nil {
		t.Fatalf("CloseCursor: %v", err)
	}
	if err := h.CloseCursor(d); !errors.Is(err, host.ErrClosed) {
		t.Errorf("second CloseCursor = %v, want ErrClosed", err)
	}
	if freed := h.Collect(); freed != 1 {
		t.Fatalf("Collect freed %d, want 1", freed)
	}
	if cur.closes != 1 {
		t.Errorf("cursor closed %d times, want 1", cur.closes)
	}
	if _, err := h.Cursor(d); !errors.Is(err, ErrInvalidHandle) {
		t.Errorf("Cursor after collect = %v, want ErrInvalidHandle", err)
	}
}
