package vm

import (
	"math"
	"testing"
)

func word(n int64) Value { return Int(uint64(n)) }

func TestBinaryMath(t *testing.T) {
	tests := []struct {
		name string
		a, b string // load instructions for A and B
		op   string
		want Value
	}{
		{"add", "load_a 20", "load_b 3", "add", Int(23)},
		{"sub wraps", "load_a 3", "load_b 5", "sub", word(-2)},
		{"mul wraps", "load_a 0x8000000000000000", "load_b 2", "mul", Int(0)},
		{"div", "load_a 7", "load_b 2", "div", Int(3)},
		{"div unsigned", "load_a -2", "load_b 2", "div", Int(math.MaxInt64)},
		{"rem", "load_a 7", "load_b 2", "rem", Int(1)},
		{"float rem", "load_af 7.5", "load_b 2", "rem", Float(1.5)},
		{"mixed add", "load_a 1", "load_bf 0.5", "add", Float(1.5)},
		{"mixed div", "load_af 1", "load_b 4", "div", Float(0.25)},
		{"and", "load_a 0b1100", "load_b 0b1010", "and", Int(0b1000)},
		{"or", "load_a 0b1100", "load_b 0b1010", "or", Int(0b1110)},
		{"xor", "load_a 0b1100", "load_b 0b1010", "xor", Int(0b0110)},

		{"shl", "load_a 1", "load_b 3", "shl", Int(8)},
		{"shl negative", "load_a 16", "load_b -2", "shl", Int(4)},
		{"shl saturates", "load_a 1", "load_b 64", "shl", Int(0)},
		{"shz zero fills", "load_a 0x80", "load_b 1", "shz", Int(0x40)},
		{"shz top bit", "load_a -1", "load_b 1", "shz", Int(math.MaxInt64)},
		{"shz negative", "load_a 1", "load_b -4", "shz", Int(16)},
		{"shs replicates", "load_a 0x8000000000000000", "load_b 1", "shs", Int(0xC000000000000000)},
		{"shs positive", "load_a 0x80", "load_b 1", "shs", Int(0x40)},
		{"shs saturates", "load_a -8", "load_b 200", "shs", word(-1)},
		{"shs negative", "load_a 3", "load_b -1", "shs", Int(6)},

		{"eq", "load_a 4", "load_b 4", "eq", Int(1)},
		{"eq mixed", "load_a 1", "load_bf 1", "eq", Int(1)},
		{"ne", "load_a 4", "load_b 5", "ne", Int(1)},
		{"lt unsigned", "load_a -1", "load_b 1", "lt", Int(0)},
		{"lt mixed", "load_a 1", "load_bf 1.5", "lt", Int(1)},
		{"le", "load_a 2", "load_b 2", "le", Int(1)},
		{"gt", "load_af -1", "load_bf -2", "gt", Int(1)},
		{"ge", "load_a 1", "load_b 2", "ge", Int(0)},
		{"min", "load_a 9", "load_b 4", "min", Int(4)},
		{"max float", "load_af 1.5", "load_b 1", "max", Float(1.5)},
		{"pow", "load_a 3", "load_b 4", "pow", Int(81)},
		{"pow wraps", "load_a 2", "load_b 64", "pow", Int(0)},
		{"pow float", "load_a 2", "load_bf 0.5", "pow", Float(math.Pow(2, 0.5))},
		{"hypot", "load_a 3", "load_b 4", "hypot", Float(5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := mustRun(t, "required math registers\nfn entry\n    "+tt.a+"\n    "+tt.b+"\n    "+tt.op+"\n    ret\n")
			if m.A() != tt.want {
				t.Errorf("A = %s (%s), want %s (%s)", m.Format(m.A()), m.A().Type, m.Format(tt.want), tt.want.Type)
			}
		})
	}
}

func TestUnaryMath(t *testing.T) {
	tests := []struct {
		name string
		a    string
		op   string
		want Value
	}{
		{"neg", "load_a 5", "neg", word(-5)},
		{"neg float", "load_af 2.5", "neg", Float(-2.5)},
		{"not", "load_a 0", "not", Int(math.MaxUint64)},
		{"abs", "load_a -5", "abs", Int(5)},
		{"abs float", "load_af -0.5", "abs", Float(0.5)},
		{"sign negative", "load_a -3", "sign", word(-1)},
		{"sign zero", "load_a 0", "sign", Int(0)},
		{"sign float", "load_af -7", "sign", Float(-1)},
		{"clz", "load_a 1", "clz", Int(63)},
		{"clz zero", "load_a 0", "clz", Int(64)},
		{"popcnt", "load_a 0xFF", "popcnt", Int(8)},
		{"sqrt of int", "load_a 16", "sqrt", Float(4)},
		{"floor", "load_af 2.7", "floor", Float(2)},
		{"floor int", "load_a 3", "floor", Int(3)},
		{"ceil", "load_af 2.1", "ceil", Float(3)},
		{"round", "load_af -2.5", "round", Float(-3)},
		{"trunc", "load_af -2.7", "trunc", Float(-2)},
		{"itof", "load_a 3", "itof", Float(3)},
		{"ftoi", "load_af -2.5", "ftoi", word(-2)},
		{"ftoi large", "load_af 1e30", "ftoi", Int(math.MaxUint64)},
		{"ftoi nan", "load_af NaN", "ftoi", Int(0)},
		{"ftoi int", "load_a 7", "ftoi", Int(7)},
		{"inc", "load_a -1", "inc", Int(0)},
		{"dec", "load_a 0", "dec", word(-1)},
		{"exp", "load_a 0", "exp", Float(1)},
		{"log2", "load_a 8", "log2", Float(3)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := mustRun(t, "required math registers\nfn entry\n    "+tt.a+"\n    "+tt.op+"\n    ret\n")
			if m.A() != tt.want {
				t.Errorf("A = %s (%s), want %s (%s)", m.Format(m.A()), m.A().Type, m.Format(tt.want), tt.want.Type)
			}
		})
	}
}

func TestMathFaults(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{"rem by zero", "load_a 1\n    load_b0\n    rem", ErrDivideByZero},
		{"mixed div by zero", "load_af 1\n    load_b0\n    div", ErrDivideByZero},
		{"shift float", "load_a 1\n    load_bf 1\n    shl", ErrTypeMismatch},
		{"not float", "load_af 1\n    not", ErrTypeMismatch},
		{"add string", "load_a 1\n    load_b 1\n    str_new\n    add", ErrTypeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, "required math registers strings\nfn entry\n    "+tt.body+"\n    ret\n")
			expectFault(t, err, tt.want)
		})
	}
}

func TestRand(t *testing.T) {
	for range 20 {
		m := mustRun(t, "required math\nfn entry\n    rand\n    ret\n")
		f := m.A().AsFloat()
		if !m.A().IsFloat() || f < 0 || f >= 1 {
			t.Fatalf("rand = %s, want a float in [0, 1)", m.Format(m.A()))
		}
	}
}
