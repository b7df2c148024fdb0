package posix

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// The kernel always sets its own O_LARGEFILE bit, which x/sys reports as zero
// on 64-bit targets.
const kernelLargeFile = 0x8000

const knownOpenFlags = unix.O_ACCMODE |
	unix.O_CREAT |
	unix.O_EXCL |
	unix.O_NOCTTY |
	unix.O_TRUNC |
	unix.O_APPEND |
	unix.O_NONBLOCK |
	unix.O_DSYNC |
	unix.O_SYNC |
	unix.O_ASYNC |
	unix.O_DIRECT |
	unix.O_LARGEFILE |
	unix.O_DIRECTORY |
	unix.O_NOFOLLOW |
	unix.O_NOATIME |
	unix.O_CLOEXEC |
	unix.O_PATH |
	unix.O_TMPFILE

type InvalidFlagsError struct {
	Flags   uint32
	Unknown uint32
}

func (e *InvalidFlagsError) Error() string {
	return fmt.Sprintf("invalid open flags %#x (unknown bits %#x)", e.Flags, e.Unknown)
}

func (e *InvalidFlagsError) Errno() Errno {
	return Errno(syscall.EINVAL)
}

// SanitizeOpenFlags prepares kernel open flags for a native open. O_APPEND is
// dropped because the kernel already translated append offsets, and the
// kernel's large-file bit is dropped as well.
func SanitizeOpenFlags(flags uint32) (int, error) {
	filtered := flags &^ uint32(unix.O_APPEND|kernelLargeFile)

	if unknown := filtered &^ uint32(knownOpenFlags); unknown != 0 {
		return 0, &InvalidFlagsError{Flags: flags, Unknown: unknown}
	}

	return int(filtered), nil
}
