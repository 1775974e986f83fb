package vm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chazu/vine/pkg/bytecode"
)

// Sentinel errors for each fault code. A *Fault matches its code's
// sentinel under errors.Is.
var (
	ErrUnreachable            = errors.New("unreachable executed")
	ErrStackOverflow          = errors.New("stack overflow")
	ErrStackUnderflow         = errors.New("stack underflow")
	ErrDivideByZero           = errors.New("divide by zero")
	ErrTypeMismatch           = errors.New("type mismatch")
	ErrIllegalInstruction     = errors.New("illegal instruction")
	ErrUnsupportedInstruction = errors.New("unsupported instruction")
	ErrCodeOverrun            = errors.New("execution ran past end of code")
	ErrIndexOutOfRange        = errors.New("index out of range")
	ErrHeapExhausted          = errors.New("heap exhausted")
	ErrInvalidHandle          = errors.New("invalid heap handle")
	ErrCanceled               = errors.New("execution canceled")
)

// FaultCode classifies a fatal fault.
type FaultCode uint8

const (
	FaultUnreachable FaultCode = iota
	FaultStackOverflow
	FaultStackUnderflow
	FaultDivideByZero
	FaultTypeMismatch
	FaultIllegalInstruction
	FaultUnsupportedInstruction
	FaultCodeOverrun
	FaultIndexOutOfRange
	FaultHeapExhausted
	FaultInvalidHandle
	FaultCanceled
)

var faultSentinels = [...]error{
	FaultUnreachable:            ErrUnreachable,
	FaultStackOverflow:          ErrStackOverflow,
	FaultStackUnderflow:         ErrStackUnderflow,
	FaultDivideByZero:           ErrDivideByZero,
	FaultTypeMismatch:           ErrTypeMismatch,
	FaultIllegalInstruction:     ErrIllegalInstruction,
	FaultUnsupportedInstruction: ErrUnsupportedInstruction,
	FaultCodeOverrun:            ErrCodeOverrun,
	FaultIndexOutOfRange:        ErrIndexOutOfRange,
	FaultHeapExhausted:          ErrHeapExhausted,
	FaultInvalidHandle:          ErrInvalidHandle,
	FaultCanceled:               ErrCanceled,
}

func (c FaultCode) String() string {
	if int(c) < len(faultSentinels) {
		return faultSentinels[c].Error()
	}
	return fmt.Sprintf("fault(%d)", uint8(c))
}

// Fault is a fatal error raised while executing an instruction. The
// machine halts and its registers, stack and heap stay as they were when
// the instruction faulted.
type Fault struct {
	Code   FaultCode
	IP     int             // offset of the faulting instruction
	Op     bytecode.Opcode // the faulting instruction
	Detail string
}

func (f *Fault) Error() string {
	if f.Detail == "" {
		return fmt.Sprintf("fault at 0x%04X (%s): %s", f.IP, f.Op, f.Code)
	}
	return fmt.Sprintf("fault at 0x%04X (%s): %s: %s", f.IP, f.Op, f.Code, f.Detail)
}

func (f *Fault) Unwrap() error { return faultSentinels[f.Code] }

// newFault classifies an error returned by an instruction handler. Handler
// errors wrap one of the sentinels; anything else is treated as a type
// mismatch since the producer handed the machine something it cannot use.
func newFault(err error, ip int, op bytecode.Opcode) *Fault {
	code := FaultTypeMismatch
	for c, s := range faultSentinels {
		if errors.Is(err, s) {
			code = FaultCode(c)
			break
		}
	}
	f := &Fault{Code: code, IP: ip, Op: op}
	if msg := err.Error(); msg != faultSentinels[code].Error() {
		f.Detail = strings.TrimPrefix(msg, faultSentinels[code].Error()+": ")
	}
	return f
}

// typeError reports an operand of the wrong type.
func typeError(what string, v Value) error {
	return fmt.Errorf("%w: %s is %s", ErrTypeMismatch, what, v.Type)
}

// indexError reports an index outside a container or type.
func indexError(i uint64, n int) error {
	return fmt.Errorf("%w: index %d, length %d", ErrIndexOutOfRange, i, n)
}
