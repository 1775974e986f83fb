package vm

import (
	"context"
	"testing"

	"github.com/chazu/vine/host"
)

const ioHeader = `
required control_flow registers stack math strings std_io file_io objects
string path "/f.txt"
fn entry
`

func runOn(t *testing.T, h host.Host, body string) *Machine {
	t.Helper()
	m := load(t, ioHeader+body, h, DefaultConfig())
	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return m
}

func TestStdout(t *testing.T) {
	h := host.NewMemory(nil, "")
	runOn(t, h, `
    str_const "hi"
    out_writeln
    load_a 7
    out_write
    load_af 1.5
    err_writeln
    ret
`)
	if got := h.Stdout.String(); got != "hi\n7" {
		t.Errorf("stdout = %q, want %q", got, "hi\n7")
	}
	if got := h.Stderr.String(); got != "1.5\n" {
		t.Errorf("stderr = %q, want %q", got, "1.5\n")
	}
}

func TestReadLinesUntilEnd(t *testing.T) {
	h := host.NewMemory(nil, "first\r\nsecond\n")
	m := runOn(t, h, `
    load_r0
.loop
    in_readline
    jerr .done
    push_a
    copy_ra
    inc
    copy_ar
    jmp .loop
.done
    ret
`)
	if m.R() != Int(2) {
		t.Errorf("lines read = %s, want 2", m.Format(m.R()))
	}
	if got := m.Format(m.A()); got != "error(end)" {
		t.Errorf("A = %s, want error(end)", got)
	}
	slots := m.Stack().Slots()
	if len(slots) != 2 || m.Format(slots[0]) != "first" || m.Format(slots[1]) != "second" {
		t.Errorf("lines = %v", slots)
	}
}

func TestReadAll(t *testing.T) {
	h := host.NewMemory(nil, "a\nb")
	m := runOn(t, h, `
    in_readall
    copy_ab
    in_readall
    ret
`)
	if got := m.Format(m.B()); got != "a\nb" {
		t.Errorf("first readall = %q", got)
	}
	if got := m.Format(m.A()); got != "error(end)" {
		t.Errorf("readall at end = %s, want error(end)", got)
	}
}

func TestArgs(t *testing.T) {
	h := host.NewMemory([]string{"x", "yz"}, "")
	m := runOn(t, h, `
    args
    copy_ab
    len
    ret
`)
	if m.A() != Int(2) {
		t.Errorf("len(args) = %s, want 2", m.Format(m.A()))
	}
	if got := m.Format(m.B()); got != `["x", "yz"]` {
		t.Errorf("args = %s", got)
	}
}

func TestFileWriteRead(t *testing.T) {
	h := host.NewMemory(nil, "")
	m := runOn(t, h, `
    str_const "data"
    copy_ab
    str_const path
    file_write
    file_append
    file_read
    push_a
    str_const path
    file_size
    copy_ar
    str_const path
    file_exists
    ret
`)
	if m.A() != Int(1) {
		t.Errorf("file_exists = %s, want 1", m.Format(m.A()))
	}
	if m.R() != Int(8) {
		t.Errorf("file_size = %s, want 8", m.Format(m.R()))
	}
	if got := m.Format(m.Stack().Slots()[0]); got != "datadata" {
		t.Errorf("file_read = %q, want datadata", got)
	}
	data, err := h.ReadFile("/f.txt")
	if err != nil || string(data) != "datadata" {
		t.Errorf("host file = %q, %v", data, err)
	}
}

func TestFileErrorsDoNotHalt(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"read missing", `str_const "/missing"
    file_read`, "error(not_found)"},
		{"size missing", `str_const "/missing"
    file_size`, "error(not_found)"},
		{"create existing", `str_const "/d"
    dir_create
    file_create`, "error(exists)"},
		{"read directory", `str_const "/d"
    dir_create
    file_read`, "error(is_dir)"},
		{"open file as dir", `str_const "data"
    copy_ab
    str_const path
    file_write
    dir_open`, "error(not_dir)"},
		{"write under missing dir", `str_const "x"
    copy_ab
    str_const "/no/such/file"
    file_write`, "error(not_found)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := runOn(t, host.NewMemory(nil, ""), tt.body+"\n    load_r 99\n    ret\n")
			if got := m.Format(m.A()); got != tt.want {
				t.Errorf("A = %s, want %s", got, tt.want)
			}
			if m.R() != Int(99) {
				t.Errorf("program stopped before the instruction after the failure")
			}
		})
	}
}

func TestFileIOFaultsOnBadOperands(t *testing.T) {
	m := load(t, ioHeader+"    load_a 1\n    file_read\n    ret\n", nil, DefaultConfig())
	expectFault(t, m.Run(context.Background()), ErrTypeMismatch)

	m = load(t, ioHeader+"    load_b 1\n    dir_step\n    ret\n", nil, DefaultConfig())
	expectFault(t, m.Run(context.Background()), ErrTypeMismatch)
}

func TestDirectoryCursor(t *testing.T) {
	h := host.NewMemory(nil, "")
	h.AddFile("/d/b", nil)
	h.AddFile("/d/a", []byte("x"))
	m := runOn(t, h, `
    str_const "/d"
    dir_open
    copy_ab
    dir_step
    push_a
    dir_step
    push_a
    dir_step
    copy_ar
    dir_close
    dir_step
    ret
`)
	slots := m.Stack().Slots()
	if len(slots) != 2 || m.Format(slots[0]) != "a" || m.Format(slots[1]) != "b" {
		t.Errorf("entries = %v", slots)
	}
	if got := m.Format(m.R()); got != "error(end)" {
		t.Errorf("step past last entry = %s, want error(end)", got)
	}
	if got := m.Format(m.A()); got != "error(invalid)" {
		t.Errorf("step after close = %s, want error(invalid)", got)
	}
}

func TestClosedDirectoryNotClosedAgainByCollect(t *testing.T) {
	h := host.NewMemory(nil, "")
	h.AddFile("/d/a", nil)
	m := runOn(t, h, `
    str_const "/d"
    dir_open
    copy_ab
    dir_close
    dir_close
    copy_ab
    gc
    copy_ar
    heap_count
    ret
`)
	if got := m.Format(m.R()); got != "error(invalid)" {
		t.Errorf("second close = %s, want error(invalid)", got)
	}
	if got := m.Format(m.A()); got != "0" {
		t.Errorf("live cells after gc = %s, want 0", got)
	}
}

func TestFileMetadata(t *testing.T) {
	h := host.NewMemory(nil, "")
	h.AddFile("/tmp/scratch", []byte("abc"))
	m := runOn(t, h, `
    str_const "/tmp/scratch"
    file_mark_temp
    file_temporary
    push_a
    str_const "/tmp/copy"
    copy_ab
    str_const "/tmp/scratch"
    file_copy
    str_const "/tmp/kept"
    copy_ab
    str_const "/tmp/scratch"
    file_move
    is_file
    push_a
    str_const "/tmp/kept"
    is_file
    push_a
    str_const "/tmp"
    is_dir
    ret
`)
	want := []Value{Int(1), Int(0), Int(1)}
	slots := m.Stack().Slots()
	if len(slots) != len(want) {
		t.Fatalf("slots = %v, want %v", slots, want)
	}
	for i, w := range want {
		if slots[i] != w {
			t.Errorf("slot %d = %s, want %s", i, m.Format(slots[i]), m.Format(w))
		}
	}
	if m.A() != Int(1) {
		t.Errorf("is_dir = %s, want 1", m.Format(m.A()))
	}
	for _, p := range []string{"/tmp/copy", "/tmp/kept"} {
		if data, err := h.ReadFile(p); err != nil || string(data) != "abc" {
			t.Errorf("%s = %q, %v", p, data, err)
		}
	}
	if fi, err := h.Stat("/tmp/kept"); err != nil || !fi.Temporary {
		t.Errorf("moved file lost its temporary mark: %+v, %v", fi, err)
	}
}
