// Package bytecode defines the instruction set and program container of
// the Vine virtual machine.
//
// # Architecture Overview
//
//   - Opcodes: single-byte instructions grouped by feature (control flow,
//     registers, stack, math, objects, strings, standard IO, file IO) plus a
//     small core that every machine provides. Immediates are little-endian.
//
//   - Features: a program declares essential and optional feature sets.
//     Negotiate compares them with what a host supports before anything
//     runs; a missing essential feature fails the load.
//
//   - Program: one code section holding every function, a function table,
//     a composite type table and a string table. Programs are encoded as
//     the "VINE" magic followed by canonical CBOR.
//
//   - Builder: emits instructions and patches forward jumps.
//
//   - Expand: rewrites derived instructions (pop_into_a, inc, retz, ...)
//     into primitive sequences for machines configured without them.
//
//   - Disassemble: renders a program in the assembly form accepted by
//     package asm.
package bytecode
