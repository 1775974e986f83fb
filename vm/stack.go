package vm

import "fmt"

// DefaultStackSize is the operand stack capacity in slots.
const DefaultStackSize = 1024

// Stack is the operand stack. Its capacity is fixed when it is created.
//
// Every operation that reads or removes slots takes the current frame's
// base and refuses to reach below it, so a callee can never observe or
// disturb its caller's slots.
type Stack struct {
	slots []Value
	sp    int // next free slot
}

// NewStack creates a stack of the given capacity.
func NewStack(size int) *Stack {
	return &Stack{slots: make([]Value, size)}
}

// Height returns the number of occupied slots across all frames.
func (s *Stack) Height() int { return s.sp }

// Cap returns the stack capacity.
func (s *Stack) Cap() int { return len(s.slots) }

// FrameSize returns the number of slots at or above base.
func (s *Stack) FrameSize(base int) int { return s.sp - base }

// Push adds v on top of the stack.
func (s *Stack) Push(v Value) error {
	if s.sp >= len(s.slots) {
		return fmt.Errorf("%w: capacity %d", ErrStackOverflow, len(s.slots))
	}
	s.slots[s.sp] = v
	s.sp++
	return nil
}

// Pop removes and returns the top slot of the frame starting at base.
func (s *Stack) Pop(base int) (Value, error) {
	if s.sp <= base {
		return Value{}, ErrStackUnderflow
	}
	s.sp--
	v := s.slots[s.sp]
	s.slots[s.sp] = Value{}
	return v, nil
}

// Top returns the top slot of the frame starting at base.
func (s *Stack) Top(base int) (Value, error) {
	if s.sp <= base {
		return Value{}, ErrStackUnderflow
	}
	return s.slots[s.sp-1], nil
}

// SetTop replaces the top slot of the frame starting at base.
func (s *Stack) SetTop(base int, v Value) error {
	if s.sp <= base {
		return ErrStackUnderflow
	}
	s.slots[s.sp-1] = v
	return nil
}

// Swap exchanges the top two slots of the frame starting at base. The
// frame must hold at least two slots.
func (s *Stack) Swap(base int) error {
	if s.sp-base < 2 {
		return fmt.Errorf("%w: swap needs two slots, frame has %d", ErrStackUnderflow, s.sp-base)
	}
	s.slots[s.sp-1], s.slots[s.sp-2] = s.slots[s.sp-2], s.slots[s.sp-1]
	return nil
}

// Truncate drops every slot at or above base.
func (s *Stack) Truncate(base int) {
	if base >= s.sp {
		return
	}
	clear(s.slots[base:s.sp])
	s.sp = base
}

// CopyArgs pushes copies of the top n slots of the frame starting at base.
// The originals stay where they are.
func (s *Stack) CopyArgs(base, n int) error {
	if s.sp-base < n {
		return fmt.Errorf("%w: %d arguments requested, frame has %d", ErrStackUnderflow, n, s.sp-base)
	}
	if s.sp+n > len(s.slots) {
		return fmt.Errorf("%w: capacity %d", ErrStackOverflow, len(s.slots))
	}
	copy(s.slots[s.sp:s.sp+n], s.slots[s.sp-n:s.sp])
	s.sp += n
	return nil
}

// Slots returns the occupied slots, bottom first. The slice aliases the
// stack.
func (s *Stack) Slots() []Value { return s.slots[:s.sp] }
