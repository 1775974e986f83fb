// Package host provides the capabilities a machine reaches outside itself
// for: console streams, program arguments and the filesystem.
//
// Failures are ordinary Go errors. The machine turns them into error
// values with Classify, so a failed read or a missing file never halts a
// program.
package host

import (
	"errors"
	"io"
	"io/fs"
	"syscall"
	"time"

	"github.com/chazu/vine/pkg/bytecode"
)

// Stream selects an output stream.
type Stream uint8

const (
	Stdout Stream = iota
	Stderr
)

var (
	ErrIsDirectory  = errors.New("is a directory")
	ErrNotDirectory = errors.New("not a directory")
	ErrUnsupported  = errors.ErrUnsupported
	ErrClosed       = errors.New("cursor closed")
)

// FileInfo describes a filesystem entry.
type FileInfo struct {
	Size      int64
	Created   time.Time
	Modified  time.Time
	Dir       bool
	Hidden    bool
	Temporary bool
}

// DirCursor iterates the entries of a directory. Step returns io.EOF once
// every entry has been returned.
type DirCursor interface {
	Step() (string, error)
	Close() error
}

// Host is the set of capabilities available to a running program.
type Host interface {
	// Features reports the instruction features this host can serve.
	Features() bytecode.FeatureSet

	Args() []string
	Write(s Stream, p []byte) error
	// ReadLine returns the next line without its terminator, or io.EOF
	// when input is exhausted.
	ReadLine() ([]byte, error)
	ReadAll() ([]byte, error)

	Exists(path string) bool
	IsFile(path string) bool
	IsDir(path string) bool
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte) error
	AppendFile(path string, data []byte) error
	// CreateFile creates an empty file and fails if path exists.
	CreateFile(path string) error
	CreateDir(path string) error
	Delete(path string) error
	Move(from, to string) error
	Copy(from, to string) error
	Stat(path string) (FileInfo, error)
	SetTemporary(path string, temporary bool) error
	OpenDir(path string) (DirCursor, error)
}

// ErrorCode classifies a host failure. Codes are stable: they are the
// payloads of error values seen by programs.
type ErrorCode uint8

const (
	CodeOther ErrorCode = iota
	CodeNotFound
	CodePermission
	CodeExists
	CodeIsDirectory
	CodeNotDirectory
	CodeInvalid
	CodeEnd
	CodeUnsupported
)

var codeNames = [...]string{
	CodeOther:        "io",
	CodeNotFound:     "not_found",
	CodePermission:   "permission",
	CodeExists:       "exists",
	CodeIsDirectory:  "is_dir",
	CodeNotDirectory: "not_dir",
	CodeInvalid:      "invalid",
	CodeEnd:          "end",
	CodeUnsupported:  "unsupported",
}

func (c ErrorCode) String() string {
	if int(c) < len(codeNames) {
		return codeNames[c]
	}
	return "io"
}

// Classify maps an error to its code.
func Classify(err error) ErrorCode {
	switch {
	case errors.Is(err, io.EOF):
		return CodeEnd
	case errors.Is(err, fs.ErrNotExist):
		return CodeNotFound
	case errors.Is(err, fs.ErrPermission):
		return CodePermission
	case errors.Is(err, fs.ErrExist):
		return CodeExists
	case errors.Is(err, ErrIsDirectory), errors.Is(err, syscall.EISDIR):
		return CodeIsDirectory
	case errors.Is(err, ErrNotDirectory), errors.Is(err, syscall.ENOTDIR):
		return CodeNotDirectory
	case errors.Is(err, fs.ErrInvalid), errors.Is(err, ErrClosed):
		return CodeInvalid
	case errors.Is(err, ErrUnsupported):
		return CodeUnsupported
	default:
		return CodeOther
	}
}
