//go:build !linux && !windows && !darwin

package host

import (
	"io/fs"
	"path/filepath"
	"strings"
	"time"
)

func birthTime(_ string, fi fs.FileInfo) time.Time {
	return fi.ModTime()
}

func isHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}

func isTemporary(string) bool { return false }

func setTemporary(path string, _ bool) error {
	return &fs.PathError{Op: "settemp", Path: path, Err: ErrUnsupported}
}
