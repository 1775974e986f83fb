//go:build darwin

package host

import (
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

func birthTime(path string, fi fs.FileInfo) time.Time {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return fi.ModTime()
	}
	return time.Unix(st.Birthtimespec.Unix())
}

func isHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}

func isTemporary(string) bool { return false }

func setTemporary(path string, _ bool) error {
	return &fs.PathError{Op: "settemp", Path: path, Err: ErrUnsupported}
}
