package vm

import (
	"math"
	"testing"
)

const stringHeader = "required strings registers control_flow\nfn entry\n    "

func TestStringInstructions(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"new", "str_new", ""},
		{"cat", `str_const "world"
    copy_ab
    str_const "hello, "
    str_cat`, "hello, world"},
		{"slice", `str_const "hello"
    copy_ab
    load_r 4
    load_a 1
    str_slice`, "ell"},
		{"empty slice", `str_const "hello"
    copy_ab
    load_r 5
    load_a 5
    str_slice`, ""},
		{"from int", "load_a 1234\n    str_from_int", "1234"},
		{"from int unsigned", "load_a -1\n    str_from_int", "18446744073709551615"},
		{"from float", "load_af 0.5\n    str_from_float", "0.5"},
		{"from float int", "load_a 3\n    str_from_float", "3"},
		{"parse int invalid", `str_const "abc"
    str_parse_int`, "error(invalid)"},
		{"parse float invalid", `str_const "1.2.3"
    str_parse_float`, "error(invalid)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := mustRun(t, stringHeader+tt.body+"\n    ret\n")
			if got := m.Format(m.A()); got != tt.want {
				t.Errorf("A = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStringQueries(t *testing.T) {
	tests := []struct {
		name string
		body string
		want Value
	}{
		{"eq", `str_const "abc"
    copy_ab
    str_const "abc"
    str_eq`, Int(1)},
		{"not eq", `str_const "abc"
    copy_ab
    str_const "ab"
    str_eq`, Int(0)},
		{"cmp less", `str_const "abd"
    copy_ab
    str_const "abc"
    str_cmp`, Int(math.MaxUint64)},
		{"cmp greater", `str_const "abc"
    copy_ab
    str_const "b"
    str_cmp`, Int(1)},
		{"cmp equal", `str_const "x"
    copy_ab
    str_const "x"
    str_cmp`, Int(0)},
		{"find", `str_const "hello"
    copy_ab
    str_const "l"
    str_find`, Int(2)},
		{"find missing", `str_const "hello"
    copy_ab
    str_const "z"
    str_find`, Int(math.MaxUint64)},
		{"parse int", `str_const " 42 "
    str_parse_int`, Int(42)},
		{"parse negative int", `str_const "-5"
    str_parse_int`, Int(uint64(math.MaxUint64 - 4))},
		{"parse hex", `str_const "0xff"
    str_parse_int`, Int(255)},
		{"parse float", `str_const "2.5"
    str_parse_float`, Float(2.5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := mustRun(t, stringHeader+tt.body+"\n    ret\n")
			if m.A() != tt.want {
				t.Errorf("A = %s, want %s", m.Format(m.A()), m.Format(tt.want))
			}
		})
	}
}

func TestStringFaults(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{"cat int", "load_a 1\n    copy_ab\n    str_cat", ErrTypeMismatch},
		{"from int float", "load_af 1\n    str_from_int", ErrTypeMismatch},
		{"parse int of int", "load_a 1\n    str_parse_int", ErrTypeMismatch},
		{"slice past end", "str_const \"abc\"\n    copy_ab\n    load_r 4\n    load_a 0\n    str_slice", ErrIndexOutOfRange},
		{"slice reversed", "str_const \"abc\"\n    copy_ab\n    load_r 1\n    load_a 2\n    str_slice", ErrIndexOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, stringHeader+tt.body+"\n    ret\n")
			expectFault(t, err, tt.want)
		})
	}
}
