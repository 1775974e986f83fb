//go:build windows

package host

import (
	"io/fs"
	"syscall"
	"time"

	"golang.org/x/sys/windows"
)

func birthTime(_ string, fi fs.FileInfo) time.Time {
	if d, ok := fi.Sys().(*syscall.Win32FileAttributeData); ok {
		return time.Unix(0, d.CreationTime.Nanoseconds())
	}
	return fi.ModTime()
}

func attributes(path string) (*uint16, uint32, error) {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return nil, 0, err
	}
	attrs, err := windows.GetFileAttributes(p)
	return p, attrs, err
}

func isHidden(path string) bool {
	_, attrs, err := attributes(path)
	return err == nil && attrs&windows.FILE_ATTRIBUTE_HIDDEN != 0
}

func isTemporary(path string) bool {
	_, attrs, err := attributes(path)
	return err == nil && attrs&windows.FILE_ATTRIBUTE_TEMPORARY != 0
}

func setTemporary(path string, temporary bool) error {
	p, attrs, err := attributes(path)
	if err != nil {
		return &fs.PathError{Op: "getattr", Path: path, Err: err}
	}
	if temporary {
		attrs |= windows.FILE_ATTRIBUTE_TEMPORARY
	} else {
		attrs &^= windows.FILE_ATTRIBUTE_TEMPORARY
	}
	if err := windows.SetFileAttributes(p, attrs); err != nil {
		return &fs.PathError{Op: "setattr", Path: path, Err: err}
	}
	return nil
}
