package vm

import (
	"math"
	"math/bits"
	"math/rand/v2"

	"github.com/chazu/vine/pkg/bytecode"
)

// Integers are 64-bit words with wrapping arithmetic. neg, abs and sign
// read them as two's complement; comparisons, min, max, div and rem read
// them as unsigned. When one operand is a float the other is converted to
// float, never the reverse.

// binaryMath is a math instruction on A and B with the result in A.
type binaryMath struct {
	ints   func(a, b uint64) (uint64, error) // nil: integers are converted to float
	floats func(a, b float64) (Value, error) // nil: integer-only instruction
}

func registerMathHandlers(t *dispatchTable) {
	for op, fn := range binaryMathOps {
		t[op] = func(m *Machine, _ []byte) error {
			v, err := fn.apply(m.a, m.b)
			if err != nil {
				return err
			}
			m.a = v
			return nil
		}
	}
	for op, fn := range unaryMathOps {
		t[op] = func(m *Machine, _ []byte) error {
			v, err := fn.apply(m.a)
			if err != nil {
				return err
			}
			m.a = v
			return nil
		}
	}

	t[bytecode.OpRand] = func(m *Machine, _ []byte) error {
		m.a = Float(rand.Float64())
		return nil
	}
	t[bytecode.OpInc] = func(m *Machine, _ []byte) error {
		v, err := binaryMathOps[bytecode.OpAdd].apply(m.a, Int(1))
		if err != nil {
			return err
		}
		m.a = v
		return nil
	}
	t[bytecode.OpDec] = func(m *Machine, _ []byte) error {
		v, err := binaryMathOps[bytecode.OpSub].apply(m.a, Int(1))
		if err != nil {
			return err
		}
		m.a = v
		return nil
	}
}

func (op binaryMath) apply(a, b Value) (Value, error) {
	if !a.IsNumber() {
		return Value{}, typeError("A", a)
	}
	if !b.IsNumber() {
		return Value{}, typeError("B", b)
	}
	if a.IsInt() && b.IsInt() && op.ints != nil {
		r, err := op.ints(a.Payload, b.Payload)
		return Int(r), err
	}
	if op.floats == nil {
		if !a.IsInt() {
			return Value{}, typeError("A", a)
		}
		return Value{}, typeError("B", b)
	}
	return op.floats(a.AsFloat(), b.AsFloat())
}

func floatResult(f func(a, b float64) float64) func(a, b float64) (Value, error) {
	return func(a, b float64) (Value, error) { return Float(f(a, b)), nil }
}

func compare(ints func(a, b uint64) bool, floats func(a, b float64) bool) binaryMath {
	return binaryMath{
		ints:   func(a, b uint64) (uint64, error) { return boolWord(ints(a, b)), nil },
		floats: func(a, b float64) (Value, error) { return Bool(floats(a, b)), nil },
	}
}

func boolWord(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

var binaryMathOps = map[bytecode.Opcode]binaryMath{
	bytecode.OpAdd: {
		ints:   func(a, b uint64) (uint64, error) { return a + b, nil },
		floats: floatResult(func(a, b float64) float64 { return a + b }),
	},
	bytecode.OpSub: {
		ints:   func(a, b uint64) (uint64, error) { return a - b, nil },
		floats: floatResult(func(a, b float64) float64 { return a - b }),
	},
	bytecode.OpMul: {
		ints:   func(a, b uint64) (uint64, error) { return a * b, nil },
		floats: floatResult(func(a, b float64) float64 { return a * b }),
	},
	bytecode.OpDiv: {
		ints: func(a, b uint64) (uint64, error) {
			if b == 0 {
				return 0, ErrDivideByZero
			}
			return a / b, nil
		},
		floats: func(a, b float64) (Value, error) {
			if b == 0 {
				return Value{}, ErrDivideByZero
			}
			return Float(a / b), nil
		},
	},
	bytecode.OpRem: {
		ints: func(a, b uint64) (uint64, error) {
			if b == 0 {
				return 0, ErrDivideByZero
			}
			return a % b, nil
		},
		floats: func(a, b float64) (Value, error) {
			if b == 0 {
				return Value{}, ErrDivideByZero
			}
			return Float(math.Mod(a, b)), nil
		},
	},
	bytecode.OpAnd: {ints: func(a, b uint64) (uint64, error) { return a & b, nil }},
	bytecode.OpOr:  {ints: func(a, b uint64) (uint64, error) { return a | b, nil }},
	bytecode.OpXor: {ints: func(a, b uint64) (uint64, error) { return a ^ b, nil }},
	bytecode.OpShl: {ints: func(a, b uint64) (uint64, error) { return shiftLeft(a, int64(b)), nil }},
	bytecode.OpShz: {ints: func(a, b uint64) (uint64, error) { return shiftLeft(a, negate(int64(b))), nil }},
	bytecode.OpShs: {ints: func(a, b uint64) (uint64, error) { return shiftArith(a, int64(b)), nil }},

	bytecode.OpEq: compare(func(a, b uint64) bool { return a == b }, func(a, b float64) bool { return a == b }),
	bytecode.OpNe: compare(func(a, b uint64) bool { return a != b }, func(a, b float64) bool { return a != b }),
	bytecode.OpLt: compare(func(a, b uint64) bool { return a < b }, func(a, b float64) bool { return a < b }),
	bytecode.OpLe: compare(func(a, b uint64) bool { return a <= b }, func(a, b float64) bool { return a <= b }),
	bytecode.OpGt: compare(func(a, b uint64) bool { return a > b }, func(a, b float64) bool { return a > b }),
	bytecode.OpGe: compare(func(a, b uint64) bool { return a >= b }, func(a, b float64) bool { return a >= b }),

	bytecode.OpMin: {
		ints:   func(a, b uint64) (uint64, error) { return min(a, b), nil },
		floats: floatResult(math.Min),
	},
	bytecode.OpMax: {
		ints:   func(a, b uint64) (uint64, error) { return max(a, b), nil },
		floats: floatResult(math.Max),
	},
	bytecode.OpPow: {
		ints:   func(a, b uint64) (uint64, error) { return powWord(a, b), nil },
		floats: floatResult(math.Pow),
	},
	bytecode.OpAtan2: {floats: floatResult(math.Atan2)},
	bytecode.OpHypot: {floats: floatResult(math.Hypot)},
	bytecode.OpLogN: {floats: floatResult(func(a, b float64) float64 { return math.Log(a) / math.Log(b) })},
	bytecode.OpNRoot: {floats: floatResult(func(a, b float64) float64 {
		if a < 0 && math.Mod(b, 2) == 1 {
			return -math.Pow(-a, 1/b)
		}
		return math.Pow(a, 1/b)
	})},
}

// negate returns -n, saturating at the most negative shift amount.
func negate(n int64) int64 {
	if n == math.MinInt64 {
		return math.MaxInt64
	}
	return -n
}

// shiftLeft shifts a left by n bits, or right zero-filling when n is
// negative. Shifts of 64 or more clear every bit.
func shiftLeft(a uint64, n int64) uint64 {
	switch {
	case n >= 64 || n <= -64:
		return 0
	case n >= 0:
		return a << uint(n)
	default:
		return a >> uint(-n)
	}
}

// shiftArith shifts a right by n bits replicating bit 63, or left when n
// is negative.
func shiftArith(a uint64, n int64) uint64 {
	if n < 0 {
		return shiftLeft(a, negate(n))
	}
	if n >= 64 {
		n = 63
	}
	return uint64(int64(a) >> uint(n))
}

// powWord raises a to the b-th power with wrapping multiplication.
func powWord(a, b uint64) uint64 {
	result := uint64(1)
	for b > 0 {
		if b&1 == 1 {
			result *= a
		}
		a *= a
		b >>= 1
	}
	return result
}

// ---------------------------------------------------------------------------
// Unary math
// ---------------------------------------------------------------------------

// unaryMath is a math instruction on A.
type unaryMath struct {
	ints   func(a uint64) uint64 // nil: integers are converted to float
	floats func(a float64) Value // nil: integer-only instruction
}

func (op unaryMath) apply(a Value) (Value, error) {
	if !a.IsNumber() {
		return Value{}, typeError("A", a)
	}
	if a.IsInt() && op.ints != nil {
		return Int(op.ints(a.Payload)), nil
	}
	if op.floats == nil {
		return Value{}, typeError("A", a)
	}
	return op.floats(a.AsFloat()), nil
}

func float1(f func(float64) float64) func(float64) Value {
	return func(a float64) Value { return Float(f(a)) }
}

func identity(a uint64) uint64 { return a }

var unaryMathOps = map[bytecode.Opcode]unaryMath{
	bytecode.OpNeg: {
		ints:   func(a uint64) uint64 { return -a },
		floats: float1(func(a float64) float64 { return -a }),
	},
	bytecode.OpNot: {ints: func(a uint64) uint64 { return ^a }},
	bytecode.OpAbs: {
		ints: func(a uint64) uint64 {
			if int64(a) < 0 {
				return -a
			}
			return a
		},
		floats: float1(math.Abs),
	},
	bytecode.OpSign: {
		ints: func(a uint64) uint64 {
			switch {
			case int64(a) < 0:
				return math.MaxUint64
			case a == 0:
				return 0
			}
			return 1
		},
		floats: float1(func(a float64) float64 {
			switch {
			case a > 0:
				return 1
			case a < 0:
				return -1
			}
			return a
		}),
	},
	bytecode.OpClz:    {ints: func(a uint64) uint64 { return uint64(bits.LeadingZeros64(a)) }},
	bytecode.OpPopcnt: {ints: func(a uint64) uint64 { return uint64(bits.OnesCount64(a)) }},

	bytecode.OpSqrt:  {floats: float1(math.Sqrt)},
	bytecode.OpCbrt:  {floats: float1(math.Cbrt)},
	bytecode.OpExp:   {floats: float1(math.Exp)},
	bytecode.OpLn:    {floats: float1(math.Log)},
	bytecode.OpLog2:  {floats: float1(math.Log2)},
	bytecode.OpLog10: {floats: float1(math.Log10)},
	bytecode.OpSin:   {floats: float1(math.Sin)},
	bytecode.OpCos:   {floats: float1(math.Cos)},
	bytecode.OpTan:   {floats: float1(math.Tan)},
	bytecode.OpAsin:  {floats: float1(math.Asin)},
	bytecode.OpAcos:  {floats: float1(math.Acos)},
	bytecode.OpAtan:  {floats: float1(math.Atan)},
	bytecode.OpSinh:  {floats: float1(math.Sinh)},
	bytecode.OpCosh:  {floats: float1(math.Cosh)},
	bytecode.OpTanh:  {floats: float1(math.Tanh)},
	bytecode.OpAsinh: {floats: float1(math.Asinh)},
	bytecode.OpAcosh: {floats: float1(math.Acosh)},
	bytecode.OpAtanh: {floats: float1(math.Atanh)},

	bytecode.OpFloor: {ints: identity, floats: float1(math.Floor)},
	bytecode.OpCeil:  {ints: identity, floats: float1(math.Ceil)},
	bytecode.OpRound: {ints: identity, floats: float1(math.Round)},
	bytecode.OpTrunc: {ints: identity, floats: float1(math.Trunc)},

	bytecode.OpItof: {floats: float1(func(a float64) float64 { return a })},
	bytecode.OpFtoi: {ints: identity, floats: func(a float64) Value { return Int(floatToWord(a)) }},
}

// floatToWord truncates f toward zero. Negative results are two's
// complement; out of range values saturate and NaN becomes 0.
func floatToWord(f float64) uint64 {
	switch {
	case math.IsNaN(f):
		return 0
	case f >= math.MaxUint64:
		return math.MaxUint64
	case f >= 0:
		return uint64(f)
	case f <= math.MinInt64:
		return 1 << 63
	}
	return uint64(int64(f))
}
