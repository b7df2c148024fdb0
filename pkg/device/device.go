package device

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"
)

const (
	DefaultPath = "/dev/fuse"

	nodeMode = 0o666
)

// LockPath is held while a node is checked and created so that concurrent
// bootstraps do not race on mknod.
var LockPath = filepath.Join(os.TempDir(), "hookfs-device.lock")

type MismatchError struct {
	Path string
	Mode uint32
	Rdev uint64
	Want uint64
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s exists with mode %#o and device %#x, expected a character device %#x", e.Path, e.Mode, e.Rdev, e.Want)
}

// ReadDev returns the device number of the special file at path.
func ReadDev(path string) (uint64, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return 0, &os.PathError{Op: "stat", Path: path, Err: err}
	}

	return uint64(st.Rdev), nil
}

// MakeNode creates a character device at path with mode 0666 and device
// number dev.
func MakeNode(path string, dev uint64) error {
	if err := unix.Mknod(path, unix.S_IFCHR|nodeMode, int(dev)); err != nil {
		return &os.PathError{Op: "mknod", Path: path, Err: err}
	}

	// mknod honours the umask
	if err := unix.Chmod(path, nodeMode); err != nil {
		return &os.PathError{Op: "chmod", Path: path, Err: err}
	}

	return nil
}

// Ensure makes sure a character device with number dev exists at path. An
// existing node with the right identity is left alone; anything else at path
// is reported as a *MismatchError.
func Ensure(path string, dev uint64) error {
	lock := flock.New(LockPath)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("could not lock %s: %w", LockPath, err)
	}
	defer lock.Unlock()

	var st unix.Stat_t
	err := unix.Stat(path, &st)

	switch {
	case err == nil:
		if st.Mode&unix.S_IFMT != unix.S_IFCHR || uint64(st.Rdev) != dev {
			return &MismatchError{Path: path, Mode: uint32(st.Mode), Rdev: uint64(st.Rdev), Want: dev}
		}

		return nil
	case errors.Is(err, unix.ENOENT):
		return MakeNode(path, dev)
	}

	return &os.PathError{Op: "stat", Path: path, Err: err}
}
