package host

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/tliron/commonlog"

	"github.com/chazu/vine/pkg/bytecode"
)

// OS is a host backed by the process's standard streams and the real
// filesystem.
type OS struct {
	args     []string
	features bytecode.FeatureSet
	in       *bufio.Reader
	out      io.Writer
	err      io.Writer
	log      commonlog.Logger
}

// NewOS creates a host serving the given feature set. Programs see args as
// their arguments.
func NewOS(args []string, features bytecode.FeatureSet) *OS {
	return &OS{
		args:     args,
		features: features,
		in:       bufio.NewReader(os.Stdin),
		out:      os.Stdout,
		err:      os.Stderr,
		log:      commonlog.GetLogger("vine.host"),
	}
}

// WithStreams replaces the standard streams, for embedding.
func (h *OS) WithStreams(in io.Reader, out, err io.Writer) *OS {
	h.in = bufio.NewReader(in)
	h.out = out
	h.err = err
	return h
}

func (h *OS) Features() bytecode.FeatureSet { return h.features }

func (h *OS) Args() []string { return h.args }

func (h *OS) Write(s Stream, p []byte) error {
	w := h.out
	if s == Stderr {
		w = h.err
	}
	_, err := w.Write(p)
	return err
}

func (h *OS) ReadLine() ([]byte, error) {
	return readLine(h.in)
}

func (h *OS) ReadAll() ([]byte, error) {
	return readAll(h.in)
}

func readLine(r *bufio.Reader) ([]byte, error) {
	line, err := r.ReadBytes('\n')
	if len(line) == 0 && err != nil {
		return nil, err
	}
	line = bytes.TrimSuffix(line, []byte("\n"))
	return bytes.TrimSuffix(line, []byte("\r")), nil
}

func readAll(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, io.EOF
	}
	return data, nil
}

func (h *OS) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (h *OS) IsFile(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}

func (h *OS) IsDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}

func (h *OS) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func (h *OS) WriteFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0o644)
}

func (h *OS) AppendFile(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (h *OS) CreateFile(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}

func (h *OS) CreateDir(path string) error {
	return os.Mkdir(path, 0o755)
}

func (h *OS) Delete(path string) error {
	return os.Remove(path)
}

func (h *OS) Move(from, to string) error {
	return os.Rename(from, to)
}

func (h *OS) Copy(from, to string) error {
	src, err := os.Open(from)
	if err != nil {
		return err
	}
	defer src.Close()

	fi, err := src.Stat()
	if err != nil {
		return err
	}
	if fi.IsDir() {
		return &fs.PathError{Op: "copy", Path: from, Err: ErrIsDirectory}
	}

	dst, err := os.OpenFile(to, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, fi.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("copy %s to %s: %w", from, to, err)
	}
	return dst.Close()
}

func (h *OS) Stat(path string) (FileInfo, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return FileInfo{}, err
	}
	return FileInfo{
		Size:      fi.Size(),
		Created:   birthTime(path, fi),
		Modified:  fi.ModTime(),
		Dir:       fi.IsDir(),
		Hidden:    isHidden(path),
		Temporary: isTemporary(path),
	}, nil
}

func (h *OS) SetTemporary(path string, temporary bool) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	err := setTemporary(path, temporary)
	if err != nil {
		h.log.Debugf("set temporary flag on %s: %v", path, err)
	}
	return err
}

func (h *OS) OpenDir(path string) (DirCursor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if !fi.IsDir() {
		f.Close()
		return nil, &fs.PathError{Op: "opendir", Path: path, Err: ErrNotDirectory}
	}
	return &osCursor{f: f}, nil
}

type osCursor struct {
	f      *os.File
	closed bool
}

func (c *osCursor) Step() (string, error) {
	if c.closed {
		return "", ErrClosed
	}
	entries, err := c.f.ReadDir(1)
	if err != nil {
		return "", err
	}
	return entries[0].Name(), nil
}

func (c *osCursor) Close() error {
	if c.closed {
		return ErrClosed
	}
	c.closed = true
	return c.f.Close()
}
