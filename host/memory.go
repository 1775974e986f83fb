package host

import (
	"bufio"
	"bytes"
	"io"
	"io/fs"
	"path"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/chazu/vine/pkg/bytecode"
)

// Memory is a host whose filesystem and streams live in memory. Paths are
// slash-separated; relative paths are resolved against "/".
type Memory struct {
	Argv      []string
	Supported bytecode.FeatureSet
	Stdout    bytes.Buffer
	Stderr    bytes.Buffer
	// Clock stamps created and modified times.
	Clock func() time.Time

	in    *bufio.Reader
	nodes map[string]*memNode
}

type memNode struct {
	data      []byte
	dir       bool
	created   time.Time
	modified  time.Time
	temporary bool
}

// NewMemory creates an in-memory host with every feature, an empty root
// directory and stdin as standard input.
func NewMemory(args []string, stdin string) *Memory {
	m := &Memory{
		Argv:      args,
		Supported: bytecode.AllFeatures,
		Clock:     time.Now,
		in:        bufio.NewReader(strings.NewReader(stdin)),
		nodes:     make(map[string]*memNode),
	}
	now := m.Clock()
	m.nodes["/"] = &memNode{dir: true, created: now, modified: now}
	return m
}

func clean(p string) string {
	return path.Clean("/" + p)
}

func (m *Memory) lookup(op, p string) (*memNode, error) {
	n, ok := m.nodes[clean(p)]
	if !ok {
		return nil, &fs.PathError{Op: op, Path: p, Err: fs.ErrNotExist}
	}
	return n, nil
}

// parentDir checks that the parent of p exists and is a directory.
func (m *Memory) parentDir(op, p string) error {
	parent, ok := m.nodes[path.Dir(clean(p))]
	if !ok {
		return &fs.PathError{Op: op, Path: p, Err: fs.ErrNotExist}
	}
	if !parent.dir {
		return &fs.PathError{Op: op, Path: p, Err: ErrNotDirectory}
	}
	return nil
}

// AddFile creates or replaces a file, creating parent directories.
func (m *Memory) AddFile(p string, data []byte) {
	now := m.Clock()
	dir := path.Dir(clean(p))
	for d := dir; ; d = path.Dir(d) {
		if _, ok := m.nodes[d]; !ok {
			m.nodes[d] = &memNode{dir: true, created: now, modified: now}
		}
		if d == "/" {
			break
		}
	}
	m.nodes[clean(p)] = &memNode{data: append([]byte(nil), data...), created: now, modified: now}
}

func (m *Memory) Features() bytecode.FeatureSet { return m.Supported }

func (m *Memory) Args() []string { return m.Argv }

func (m *Memory) Write(s Stream, p []byte) error {
	if s == Stderr {
		_, err := m.Stderr.Write(p)
		return err
	}
	_, err := m.Stdout.Write(p)
	return err
}

func (m *Memory) ReadLine() ([]byte, error) { return readLine(m.in) }

func (m *Memory) ReadAll() ([]byte, error) { return readAll(m.in) }

func (m *Memory) Exists(p string) bool {
	_, ok := m.nodes[clean(p)]
	return ok
}

func (m *Memory) IsFile(p string) bool {
	n, ok := m.nodes[clean(p)]
	return ok && !n.dir
}

func (m *Memory) IsDir(p string) bool {
	n, ok := m.nodes[clean(p)]
	return ok && n.dir
}

func (m *Memory) ReadFile(p string) ([]byte, error) {
	n, err := m.lookup("open", p)
	if err != nil {
		return nil, err
	}
	if n.dir {
		return nil, &fs.PathError{Op: "read", Path: p, Err: ErrIsDirectory}
	}
	return append([]byte(nil), n.data...), nil
}

func (m *Memory) write(op, p string, data []byte, appendData bool) error {
	if n, ok := m.nodes[clean(p)]; ok {
		if n.dir {
			return &fs.PathError{Op: op, Path: p, Err: ErrIsDirectory}
		}
		if appendData {
			n.data = append(n.data, data...)
		} else {
			n.data = append([]byte(nil), data...)
		}
		n.modified = m.Clock()
		return nil
	}
	if err := m.parentDir(op, p); err != nil {
		return err
	}
	now := m.Clock()
	m.nodes[clean(p)] = &memNode{data: append([]byte(nil), data...), created: now, modified: now}
	return nil
}

func (m *Memory) WriteFile(p string, data []byte) error { return m.write("write", p, data, false) }

func (m *Memory) AppendFile(p string, data []byte) error { return m.write("append", p, data, true) }

func (m *Memory) CreateFile(p string) error {
	if m.Exists(p) {
		return &fs.PathError{Op: "create", Path: p, Err: fs.ErrExist}
	}
	return m.write("create", p, nil, false)
}

func (m *Memory) CreateDir(p string) error {
	if m.Exists(p) {
		return &fs.PathError{Op: "mkdir", Path: p, Err: fs.ErrExist}
	}
	if err := m.parentDir("mkdir", p); err != nil {
		return err
	}
	now := m.Clock()
	m.nodes[clean(p)] = &memNode{dir: true, created: now, modified: now}
	return nil
}

func (m *Memory) children(dir string) []string {
	prefix := dir + "/"
	if dir == "/" {
		prefix = "/"
	}
	var names []string
	for k := range m.nodes {
		if k != dir && strings.HasPrefix(k, prefix) && !strings.Contains(k[len(prefix):], "/") {
			names = append(names, k[len(prefix):])
		}
	}
	sort.Strings(names)
	return names
}

func (m *Memory) Delete(p string) error {
	n, err := m.lookup("remove", p)
	if err != nil {
		return err
	}
	if clean(p) == "/" {
		return &fs.PathError{Op: "remove", Path: p, Err: fs.ErrPermission}
	}
	if n.dir && len(m.children(clean(p))) > 0 {
		return &fs.PathError{Op: "remove", Path: p, Err: syscall.ENOTEMPTY}
	}
	delete(m.nodes, clean(p))
	return nil
}

func (m *Memory) Move(from, to string) error {
	n, err := m.lookup("rename", from)
	if err != nil {
		return err
	}
	if err := m.parentDir("rename", to); err != nil {
		return err
	}
	src, dst := clean(from), clean(to)
	if n.dir {
		if strings.HasPrefix(dst, src+"/") {
			return &fs.PathError{Op: "rename", Path: to, Err: fs.ErrInvalid}
		}
		var moved []string
		for k := range m.nodes {
			if strings.HasPrefix(k, src+"/") {
				moved = append(moved, k)
			}
		}
		for _, k := range moved {
			m.nodes[dst+k[len(src):]] = m.nodes[k]
			delete(m.nodes, k)
		}
	}
	delete(m.nodes, src)
	m.nodes[dst] = n
	return nil
}

func (m *Memory) Copy(from, to string) error {
	n, err := m.lookup("copy", from)
	if err != nil {
		return err
	}
	if n.dir {
		return &fs.PathError{Op: "copy", Path: from, Err: ErrIsDirectory}
	}
	return m.write("copy", to, n.data, false)
}

func (m *Memory) Stat(p string) (FileInfo, error) {
	n, err := m.lookup("stat", p)
	if err != nil {
		return FileInfo{}, err
	}
	return FileInfo{
		Size:      int64(len(n.data)),
		Created:   n.created,
		Modified:  n.modified,
		Dir:       n.dir,
		Hidden:    strings.HasPrefix(path.Base(clean(p)), "."),
		Temporary: n.temporary,
	}, nil
}

func (m *Memory) SetTemporary(p string, temporary bool) error {
	n, err := m.lookup("settemp", p)
	if err != nil {
		return err
	}
	n.temporary = temporary
	return nil
}

func (m *Memory) OpenDir(p string) (DirCursor, error) {
	n, err := m.lookup("opendir", p)
	if err != nil {
		return nil, err
	}
	if !n.dir {
		return nil, &fs.PathError{Op: "opendir", Path: p, Err: ErrNotDirectory}
	}
	return &memCursor{names: m.children(clean(p))}, nil
}

type memCursor struct {
	names  []string
	closed bool
}

func (c *memCursor) Step() (string, error) {
	if c.closed {
		return "", ErrClosed
	}
	if len(c.names) == 0 {
		return "", io.EOF
	}
	name := c.names[0]
	c.names = c.names[1:]
	return name, nil
}

func (c *memCursor) Close() error {
	if c.closed {
		return ErrClosed
	}
	c.closed = true
	return nil
}
