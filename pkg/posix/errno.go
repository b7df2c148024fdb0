package posix

import (
	"errors"
	"io/fs"
	"os"
	"syscall"
)

// Errno is a protocol error code. Positive values are POSIX error numbers.
type Errno int32

// ErrnoUnknown is reported for errors that carry no recognizable code.
const ErrnoUnknown Errno = -1

// Errors implementing this interface choose their own protocol code.
type coder interface {
	Errno() Errno
}

// ToErrno translates err into a protocol error code. Native error numbers map
// to themselves; anything unrecognized maps to ErrnoUnknown. A nil error maps
// to zero.
func ToErrno(err error) Errno {
	if err == nil {
		return 0
	}

	var c coder
	if errors.As(err, &c) {
		return c.Errno()
	}

	var errno syscall.Errno
	if errors.As(err, &errno) && errno != 0 {
		return Errno(errno)
	}

	switch {
	case errors.Is(err, fs.ErrNotExist):
		return Errno(syscall.ENOENT)
	case errors.Is(err, fs.ErrPermission):
		return Errno(syscall.EACCES)
	case errors.Is(err, fs.ErrExist):
		return Errno(syscall.EEXIST)
	case errors.Is(err, os.ErrClosed):
		return Errno(syscall.EBADF)
	}

	return ErrnoUnknown
}

// Syscall returns the code as it goes over the wire. The kernel cannot carry
// ErrnoUnknown, so it becomes EIO.
func (e Errno) Syscall() syscall.Errno {
	if e <= 0 {
		return syscall.EIO
	}

	return syscall.Errno(e)
}

func (e Errno) String() string {
	if e == ErrnoUnknown {
		return "unknown error"
	}

	return syscall.Errno(e).Error()
}
