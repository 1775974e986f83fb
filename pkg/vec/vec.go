// Package vec provides a growable vector whose capacity is always a power
// of two. The buffer is reallocated only when the vector grows and is
// never shrunk implicitly.
package vec

import (
	"errors"
	"unsafe"
)

// ErrZeroSize is returned when constructing a vector of a zero-sized type.
var ErrZeroSize = errors.New("vec: element type has zero size")

// Vec is a growable sequence of T.
type Vec[T any] struct {
	buf   []T // len(buf) is the capacity
	count int
}

// New returns an empty vector. Zero-sized element types are rejected.
func New[T any]() (*Vec[T], error) {
	var zero T
	if unsafe.Sizeof(zero) == 0 {
		return nil, ErrZeroSize
	}
	return &Vec[T]{}, nil
}

// WithCapacity returns an empty vector able to hold at least n elements
// without reallocating.
func WithCapacity[T any](n int) (*Vec[T], error) {
	v, err := New[T]()
	if err != nil {
		return nil, err
	}
	v.Grow(n)
	return v, nil
}

// nextPowerOfTwo doubles start (or 1 when start is zero) until it reaches
// target.
func nextPowerOfTwo(target, start int) int {
	if start == 0 {
		start = 1
	}
	for start < target {
		start <<= 1
	}
	return start
}

// Len returns the number of elements.
func (v *Vec[T]) Len() int { return v.count }

// Cap returns the current capacity.
func (v *Vec[T]) Cap() int { return len(v.buf) }

// Grow ensures capacity for at least min elements.
func (v *Vec[T]) Grow(min int) {
	if min <= len(v.buf) {
		return
	}
	buf := make([]T, nextPowerOfTwo(min, len(v.buf)))
	copy(buf, v.buf[:v.count])
	v.buf = buf
}

// Push appends x, growing the buffer first if it is full.
func (v *Vec[T]) Push(x T) {
	if v.count == len(v.buf) {
		v.Grow(v.count + 1)
	}
	v.buf[v.count] = x
	v.count++
}

// PushAll appends xs with at most one reallocation.
func (v *Vec[T]) PushAll(xs ...T) {
	if len(xs) == 0 {
		return
	}
	v.Grow(v.count + len(xs))
	copy(v.buf[v.count:], xs)
	v.count += len(xs)
}

// Pop removes and returns the last element. It reports false when the
// vector is empty.
func (v *Vec[T]) Pop() (T, bool) {
	var zero T
	if v.count == 0 {
		return zero, false
	}
	v.count--
	x := v.buf[v.count]
	v.buf[v.count] = zero
	return x, true
}

// SwapRemove removes element i by moving the last element into its slot.
// Order is not preserved. It reports false when i is out of range.
func (v *Vec[T]) SwapRemove(i int) (T, bool) {
	var zero T
	if i < 0 || i >= v.count {
		return zero, false
	}
	x := v.buf[i]
	last := v.count - 1
	if i != last {
		v.buf[i] = v.buf[last]
	}
	v.buf[last] = zero
	v.count--
	return x, true
}

// Get returns element i.
func (v *Vec[T]) Get(i int) (T, bool) {
	if i < 0 || i >= v.count {
		var zero T
		return zero, false
	}
	return v.buf[i], true
}

// Set replaces element i.
func (v *Vec[T]) Set(i int, x T) bool {
	if i < 0 || i >= v.count {
		return false
	}
	v.buf[i] = x
	return true
}

// Slice returns the live elements. The slice aliases the buffer until the
// next reallocation.
func (v *Vec[T]) Slice() []T { return v.buf[:v.count] }

// Clear removes every element and releases the buffer.
func (v *Vec[T]) Clear() {
	v.buf = nil
	v.count = 0
}
