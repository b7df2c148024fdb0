package posix

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// ErrNoNativeStat is returned when a backend hands out file info that does not
// carry a native stat record, e.g. an in-memory afero filesystem.
var ErrNoNativeStat = errors.New("file info carries no native stat record")

// FileType is the file type of an inode as seen by the kernel. The zero value
// is not a valid type.
type FileType uint8

const (
	BlockDevice FileType = iota + 1
	CharDevice
	Directory
	NamedPipe
	Symlink
	RegularFile
	Socket
)

func (t FileType) String() string {
	switch t {
	case BlockDevice:
		return "block-device"
	case CharDevice:
		return "char-device"
	case Directory:
		return "directory"
	case NamedPipe:
		return "named-pipe"
	case Symlink:
		return "symlink"
	case RegularFile:
		return "regular-file"
	case Socket:
		return "socket"
	}

	return fmt.Sprintf("FileType(%d)", uint8(t))
}

type UnsupportedFileTypeError struct {
	Mode uint32
}

func (e *UnsupportedFileTypeError) Error() string {
	return fmt.Sprintf("unsupported file type %#o", e.Mode&unix.S_IFMT)
}

func (e *UnsupportedFileTypeError) Errno() Errno {
	return Errno(syscall.EOPNOTSUPP)
}

// Attributes is the translated view of a native stat record.
//
// Rdev and Nlink are truncated to 32 bits and Perm keeps the low nine
// permission bits only; setuid, setgid and sticky are dropped.
type Attributes struct {
	Inode  uint64
	Size   uint64
	Blocks uint64

	Atime time.Time
	Mtime time.Time
	Ctime time.Time

	Type  FileType
	Perm  uint16
	Nlink uint32

	Uid  uint32
	Gid  uint32
	Rdev uint32
}

// FileTypeOf returns the file type encoded in the S_IFMT bits of mode.
func FileTypeOf(mode uint32) (FileType, bool) {
	switch mode & unix.S_IFMT {
	case unix.S_IFBLK:
		return BlockDevice, true
	case unix.S_IFCHR:
		return CharDevice, true
	case unix.S_IFDIR:
		return Directory, true
	case unix.S_IFIFO:
		return NamedPipe, true
	case unix.S_IFLNK:
		return Symlink, true
	case unix.S_IFREG:
		return RegularFile, true
	case unix.S_IFSOCK:
		return Socket, true
	}

	return 0, false
}

// ToAttributes converts a native stat record. It fails with an
// *UnsupportedFileTypeError if the type bits are outside the known set.
func ToAttributes(st *syscall.Stat_t) (Attributes, error) {
	typ, ok := FileTypeOf(uint32(st.Mode))
	if !ok {
		return Attributes{}, &UnsupportedFileTypeError{Mode: uint32(st.Mode)}
	}

	return Attributes{
		Inode:  st.Ino,
		Size:   uint64(st.Size),
		Blocks: uint64(st.Blocks),
		Atime:  time.Unix(st.Atim.Unix()),
		Mtime:  time.Unix(st.Mtim.Unix()),
		Ctime:  time.Unix(st.Ctim.Unix()),
		Type:   typ,
		Perm:   uint16(st.Mode & 0o777),
		Nlink:  uint32(st.Nlink),
		Uid:    st.Uid,
		Gid:    st.Gid,
		Rdev:   uint32(st.Rdev),
	}, nil
}

// FromFileInfo converts the native stat record behind info.
func FromFileInfo(info os.FileInfo) (Attributes, error) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok || st == nil {
		return Attributes{}, ErrNoNativeStat
	}

	return ToAttributes(st)
}

// FileMode encodes the type and permission bits the way package os does.
func (a Attributes) FileMode() os.FileMode {
	mode := os.FileMode(a.Perm)

	switch a.Type {
	case BlockDevice:
		mode |= os.ModeDevice
	case CharDevice:
		mode |= os.ModeDevice | os.ModeCharDevice
	case Directory:
		mode |= os.ModeDir
	case NamedPipe:
		mode |= os.ModeNamedPipe
	case Symlink:
		mode |= os.ModeSymlink
	case Socket:
		mode |= os.ModeSocket
	}

	return mode
}
