package posix

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToErrno(t *testing.T) {
	t.Parallel()

	_, statErr := os.Stat(filepath.Join(t.TempDir(), "missing"))

	tests := []struct {
		name string
		err  error
		want Errno
	}{
		{"nil", nil, 0},
		{"errno", syscall.EACCES, Errno(syscall.EACCES)},
		{"path error", statErr, Errno(syscall.ENOENT)},
		{"wrapped errno", fmt.Errorf("read: %w", syscall.EISDIR), Errno(syscall.EISDIR)},
		{"not exist", &fs.PathError{Op: "open", Path: "x", Err: fs.ErrNotExist}, Errno(syscall.ENOENT)},
		{"permission", fs.ErrPermission, Errno(syscall.EACCES)},
		{"exist", fs.ErrExist, Errno(syscall.EEXIST)},
		{"closed", os.ErrClosed, Errno(syscall.EBADF)},
		{"invalid flags", &InvalidFlagsError{Flags: 1 << 31}, Errno(syscall.EINVAL)},
		{"unknown", errors.New("boom"), ErrnoUnknown},
		{"zero errno", syscall.Errno(0), ErrnoUnknown},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ToErrno(tt.err))
		})
	}
}

func TestErrnoSyscall(t *testing.T) {
	t.Parallel()

	assert.Equal(t, syscall.ENOENT, Errno(syscall.ENOENT).Syscall())
	assert.Equal(t, syscall.EIO, ErrnoUnknown.Syscall())
	assert.Equal(t, "unknown error", ErrnoUnknown.String())
}
