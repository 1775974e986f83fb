//go:build linux

package host

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// tempAttr marks a file as temporary. Linux has no native flag, so an
// extended attribute in the user namespace stands in for one.
const tempAttr = "user.vine.temporary"

func birthTime(path string, fi fs.FileInfo) time.Time {
	var stx unix.Statx_t
	err := unix.Statx(unix.AT_FDCWD, path, unix.AT_STATX_SYNC_AS_STAT, unix.STATX_BTIME, &stx)
	if err != nil || stx.Mask&unix.STATX_BTIME == 0 {
		return fi.ModTime()
	}
	return time.Unix(stx.Btime.Sec, int64(stx.Btime.Nsec))
}

func isHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}

func isTemporary(path string) bool {
	_, err := unix.Getxattr(path, tempAttr, nil)
	return err == nil
}

func setTemporary(path string, temporary bool) error {
	var err error
	if temporary {
		err = unix.Setxattr(path, tempAttr, []byte{1}, 0)
	} else if err = unix.Removexattr(path, tempAttr); errors.Is(err, unix.ENODATA) {
		err = nil
	}
	if err != nil {
		return &fs.PathError{Op: "setxattr", Path: path, Err: err}
	}
	return nil
}
