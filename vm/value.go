package vm

import (
	"math"

	"github.com/chazu/vine/host"
)

// Kind is the built-in part of a type tag. Every composite type shares
// KindComposite and is told apart by its TypeInfo.
type Kind uint8

const (
	KindU64 Kind = iota
	KindF64
	KindWideArray
	KindWideVector
	KindSmallArray
	KindSmallVector
	KindString
	KindError
	KindDir
	KindComposite
)

var kindNames = [...]string{
	KindU64:         "u64",
	KindF64:         "f64",
	KindWideArray:   "warr",
	KindWideVector:  "wvec",
	KindSmallArray:  "sarr",
	KindSmallVector: "svec",
	KindString:      "str",
	KindError:       "err",
	KindDir:         "dir",
	KindComposite:   "composite",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "invalid"
}

// onHeap reports whether values of this kind carry a heap handle.
func (k Kind) onHeap() bool {
	switch k {
	case KindWideArray, KindWideVector, KindSmallArray, KindSmallVector, KindString, KindDir, KindComposite:
		return true
	}
	return false
}

// TypeInfo describes a composite type. One is built per declared type when
// a program is loaded and shared by every value of that type.
type TypeInfo struct {
	Name   string
	Fields []string
}

// FieldCount returns the number of fields in an instance.
func (t *TypeInfo) FieldCount() int { return len(t.Fields) }

// TypeTag identifies the type of a Value. Tags are comparable: two values
// have the same type exactly when their tags are ==.
type TypeTag struct {
	kind Kind
	info *TypeInfo
}

// Built-in type tags.
var (
	U64         = TypeTag{kind: KindU64}
	F64         = TypeTag{kind: KindF64}
	WideArray   = TypeTag{kind: KindWideArray}
	WideVector  = TypeTag{kind: KindWideVector}
	SmallArray  = TypeTag{kind: KindSmallArray}
	SmallVector = TypeTag{kind: KindSmallVector}
	String      = TypeTag{kind: KindString}
	Error       = TypeTag{kind: KindError}
	Dir         = TypeTag{kind: KindDir}
)

// Composite returns the tag of a composite type.
func Composite(info *TypeInfo) TypeTag {
	return TypeTag{kind: KindComposite, info: info}
}

func (t TypeTag) Kind() Kind { return t.kind }

// Info returns the type's TypeInfo, or nil for built-in types.
func (t TypeTag) Info() *TypeInfo {
	if t.kind != KindComposite {
		return nil
	}
	return t.info
}

// IsBuiltin reports whether the tag names a built-in type. The kind is
// checked first so a built-in tag never touches a TypeInfo.
func (t TypeTag) IsBuiltin() bool { return t.kind != KindComposite }

func (t TypeTag) String() string {
	if t.kind == KindComposite {
		return t.info.Name
	}
	return t.kind.String()
}

// Value is the unit the machine computes with: a type tag and a 64-bit
// payload interpreted according to it. Heap-backed values hold a handle
// in the payload, so copying a Value aliases the cell it refers to.
//
// The zero Value is the integer 0.
type Value struct {
	Type    TypeTag
	Payload uint64
}

// Int returns an integer value.
func Int(u uint64) Value { return Value{Type: U64, Payload: u} }

// Float returns a float value.
func Float(f float64) Value { return Value{Type: F64, Payload: math.Float64bits(f)} }

// Bool returns integer 1 for true and 0 for false.
func Bool(b bool) Value {
	if b {
		return Int(1)
	}
	return Int(0)
}

// ErrorValue returns a recoverable error value carrying code.
func ErrorValue(code host.ErrorCode) Value {
	return Value{Type: Error, Payload: uint64(code)}
}

// SameType reports whether a and b have the same type. Payloads are never
// inspected.
func SameType(a, b Value) bool { return a.Type == b.Type }

func (v Value) IsBuiltin() bool { return v.Type.IsBuiltin() }

func (v Value) IsInt() bool { return v.Type.kind == KindU64 }

func (v Value) IsFloat() bool { return v.Type.kind == KindF64 }

func (v Value) IsNumber() bool { return v.IsInt() || v.IsFloat() }

func (v Value) IsError() bool { return v.Type.kind == KindError }

// AsFloat returns the payload as a float. Integers are converted.
func (v Value) AsFloat() float64 {
	if v.IsInt() {
		return float64(v.Payload)
	}
	return math.Float64frombits(v.Payload)
}

// ErrorCode returns the code of an error value.
func (v Value) ErrorCode() host.ErrorCode { return host.ErrorCode(v.Payload) }
