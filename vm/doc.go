// Package vm implements the Vine virtual machine.
//
// This package contains:
//   - Tagged value representation and composite type info
//   - Heap of containers, strings and instances addressed by handle
//   - Frame-scoped operand stack
//   - Feature-gated dispatch table and interpreter loop
//   - Instruction handlers for math, objects, strings and host IO
package vm
