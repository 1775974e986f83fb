package vm

import (
	"github.com/chazu/vine/host"
	"github.com/chazu/vine/pkg/bytecode"
)

// Host failures never fault. The failing instruction leaves an error
// value in A and the program decides what to do with it. Instructions
// that produce nothing leave A unchanged when they succeed.

func registerIOHandlers(t *dispatchTable) {
	registerStdIOHandlers(t)
	registerFileIOHandlers(t)
}

// hostError stores the classification of err in A.
func (m *Machine) hostError(op bytecode.Opcode, err error) {
	code := host.Classify(err)
	m.log.Debugf("machine %s: %s failed (%s): %v", m.ID, op, code, err)
	m.a = ErrorValue(code)
}

// ---------------------------------------------------------------------------
// Standard IO
// ---------------------------------------------------------------------------

func registerStdIOHandlers(t *dispatchTable) {
	t[bytecode.OpArgs] = func(m *Machine, _ []byte) error {
		args := m.host.Args()
		arr, err := m.heap.AllocWideArray(len(args))
		if err != nil {
			return err
		}
		elems, _ := m.heap.Elements(arr)
		for i, a := range args {
			s, err := m.heap.AllocString([]byte(a))
			if err != nil {
				return err
			}
			elems[i] = s
		}
		m.a = arr
		return nil
	}

	writers := []struct {
		op      bytecode.Opcode
		stream  host.Stream
		newline bool
	}{
		{bytecode.OpOutWrite, host.Stdout, false},
		{bytecode.OpOutWriteln, host.Stdout, true},
		{bytecode.OpErrWrite, host.Stderr, false},
		{bytecode.OpErrWriteln, host.Stderr, true},
	}
	for _, w := range writers {
		t[w.op] = func(m *Machine, _ []byte) error {
			out := []byte(m.Format(m.a))
			if w.newline {
				out = append(out, '\n')
			}
			if err := m.host.Write(w.stream, out); err != nil {
				m.hostError(w.op, err)
			}
			return nil
		}
	}

	t[bytecode.OpInReadLine] = func(m *Machine, _ []byte) error {
		return m.readInto(bytecode.OpInReadLine, m.host.ReadLine)
	}
	t[bytecode.OpInReadAll] = func(m *Machine, _ []byte) error {
		return m.readInto(bytecode.OpInReadAll, m.host.ReadAll)
	}
}

// readInto stores the result of read in A as a string, or an error value.
func (m *Machine) readInto(op bytecode.Opcode, read func() ([]byte, error)) error {
	data, err := read()
	if err != nil {
		m.hostError(op, err)
		return nil
	}
	return m.setA(m.heap.AllocString(data))
}

// ---------------------------------------------------------------------------
// File IO
// ---------------------------------------------------------------------------

func registerFileIOHandlers(t *dispatchTable) {
	predicates := map[bytecode.Opcode]func(h host.Host, path string) bool{
		bytecode.OpFileExists: host.Host.Exists,
		bytecode.OpIsFile:     host.Host.IsFile,
		bytecode.OpIsDir:      host.Host.IsDir,
	}
	for op, pred := range predicates {
		t[op] = func(m *Machine, _ []byte) error {
			path, err := m.path()
			if err != nil {
				return err
			}
			m.a = Bool(pred(m.host, path))
			return nil
		}
	}

	t[bytecode.OpFileRead] = func(m *Machine, _ []byte) error {
		path, err := m.path()
		if err != nil {
			return err
		}
		return m.readInto(bytecode.OpFileRead, func() ([]byte, error) { return m.host.ReadFile(path) })
	}

	writes := map[bytecode.Opcode]func(h host.Host, path string, data []byte) error{
		bytecode.OpFileWrite:  host.Host.WriteFile,
		bytecode.OpFileAppend: host.Host.AppendFile,
	}
	for op, write := range writes {
		t[op] = func(m *Machine, _ []byte) error {
			path, err := m.path()
			if err != nil {
				return err
			}
			data, err := m.heap.Bytes(m.b)
			if err != nil {
				return err
			}
			if err := write(m.host, path, data); err != nil {
				m.hostError(op, err)
			}
			return nil
		}
	}

	pathOps := map[bytecode.Opcode]func(h host.Host, path string) error{
		bytecode.OpFileCreate:   host.Host.CreateFile,
		bytecode.OpDirCreate:    host.Host.CreateDir,
		bytecode.OpFileDelete:   host.Host.Delete,
		bytecode.OpFileMarkTemp: func(h host.Host, path string) error { return h.SetTemporary(path, true) },
		bytecode.OpFileMarkPerm: func(h host.Host, path string) error { return h.SetTemporary(path, false) },
	}
	for op, do := range pathOps {
		t[op] = func(m *Machine, _ []byte) error {
			path, err := m.path()
			if err != nil {
				return err
			}
			if err := do(m.host, path); err != nil {
				m.hostError(op, err)
			}
			return nil
		}
	}

	transfers := map[bytecode.Opcode]func(h host.Host, from, to string) error{
		bytecode.OpFileMove: host.Host.Move,
		bytecode.OpFileCopy: host.Host.Copy,
	}
	for op, transfer := range transfers {
		t[op] = func(m *Machine, _ []byte) error {
			from, err := m.path()
			if err != nil {
				return err
			}
			to, err := m.heap.Bytes(m.b)
			if err != nil {
				return err
			}
			if err := transfer(m.host, from, string(to)); err != nil {
				m.hostError(op, err)
			}
			return nil
		}
	}

	stats := map[bytecode.Opcode]func(fi host.FileInfo) Value{
		bytecode.OpFileSize:      func(fi host.FileInfo) Value { return Int(uint64(fi.Size)) },
		bytecode.OpFileCreated:   func(fi host.FileInfo) Value { return Int(uint64(fi.Created.UnixNano())) },
		bytecode.OpFileModified:  func(fi host.FileInfo) Value { return Int(uint64(fi.Modified.UnixNano())) },
		bytecode.OpFileHidden:    func(fi host.FileInfo) Value { return Bool(fi.Hidden) },
		bytecode.OpFileTemporary: func(fi host.FileInfo) Value { return Bool(fi.Temporary) },
	}
	for op, field := range stats {
		t[op] = func(m *Machine, _ []byte) error {
			path, err := m.path()
			if err != nil {
				return err
			}
			fi, err := m.host.Stat(path)
			if err != nil {
				m.hostError(op, err)
				return nil
			}
			m.a = field(fi)
			return nil
		}
	}

	t[bytecode.OpDirOpen] = func(m *Machine, _ []byte) error {
		path, err := m.path()
		if err != nil {
			return err
		}
		cur, err := m.host.OpenDir(path)
		if err != nil {
			m.hostError(bytecode.OpDirOpen, err)
			return nil
		}
		return m.setA(m.heap.AllocDir(cur))
	}
	t[bytecode.OpDirStep] = func(m *Machine, _ []byte) error {
		cur, err := m.heap.Cursor(m.b)
		if err != nil {
			return err
		}
		return m.readInto(bytecode.OpDirStep, func() ([]byte, error) {
			name, err := cur.Step()
			return []byte(name), err
		})
	}
	t[bytecode.OpDirClose] = func(m *Machine, _ []byte) error {
		if _, err := m.heap.Cursor(m.b); err != nil {
			return err
		}
		if err := m.heap.CloseCursor(m.b); err != nil {
			m.hostError(bytecode.OpDirClose, err)
		}
		return nil
	}
}

// path returns the string in A as a filesystem path.
func (m *Machine) path() (string, error) {
	b, err := m.heap.Bytes(m.a)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
