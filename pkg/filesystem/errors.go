package filesystem

import (
	"fmt"
	"syscall"

	"github.com/JakWai01/hookfs/pkg/posix"
	"github.com/jacobsa/fuse/fuseops"
)

type notSupportedError struct{}

func (notSupportedError) Error() string {
	return "operation not supported"
}

func (notSupportedError) Errno() posix.Errno {
	return posix.Errno(syscall.ENOSYS)
}

// ErrNotSupported is returned by every primitive this filesystem does not
// implement.
var ErrNotSupported error = notSupportedError{}

type UnknownInodeError struct {
	Inode fuseops.InodeID
}

func (e *UnknownInodeError) Error() string {
	return fmt.Sprintf("unknown inode %v", e.Inode)
}

func (e *UnknownInodeError) Errno() posix.Errno {
	return posix.Errno(syscall.ESTALE)
}

type InvalidHandleError struct {
	Handle fuseops.HandleID
}

func (e *InvalidHandleError) Error() string {
	return fmt.Sprintf("invalid handle %v", e.Handle)
}

func (e *InvalidHandleError) Errno() posix.Errno {
	return posix.Errno(syscall.EBADF)
}

type InvalidNameError struct {
	Name string
}

func (e *InvalidNameError) Error() string {
	return fmt.Sprintf("invalid entry name %q", e.Name)
}

func (e *InvalidNameError) Errno() posix.Errno {
	return posix.Errno(syscall.EINVAL)
}
