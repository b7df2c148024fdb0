package posix

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestFileTypeOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		mode uint32
		want FileType
	}{
		{unix.S_IFBLK | 0o660, BlockDevice},
		{unix.S_IFCHR | 0o666, CharDevice},
		{unix.S_IFDIR | 0o755, Directory},
		{unix.S_IFIFO | 0o644, NamedPipe},
		{unix.S_IFLNK | 0o777, Symlink},
		{unix.S_IFREG | 0o644, RegularFile},
		{unix.S_IFSOCK | 0o755, Socket},
	}

	for _, tt := range tests {
		got, ok := FileTypeOf(tt.mode)
		require.True(t, ok, "mode %#o", tt.mode)
		assert.Equal(t, tt.want, got)
	}
}

func TestToAttributesRejectsUnknownType(t *testing.T) {
	t.Parallel()

	for _, mode := range []uint32{0, 0o644, unix.S_IFMT, 0o030000} {
		_, err := ToAttributes(&syscall.Stat_t{Mode: mode})

		var unsupported *UnsupportedFileTypeError
		require.ErrorAs(t, err, &unsupported, "mode %#o", mode)
		assert.Equal(t, Errno(syscall.EOPNOTSUPP), ToErrno(err))
	}
}

func TestToAttributesTruncation(t *testing.T) {
	t.Parallel()

	st := &syscall.Stat_t{
		Ino:    42,
		Size:   10,
		Blocks: 8,
		Mode:   unix.S_IFREG | unix.S_ISUID | unix.S_ISVTX | 0o754,
		Uid:    1000,
		Gid:    100,
	}
	st.Nlink = 3
	st.Rdev = 1<<32 + 7
	st.Mtim.Sec = 1700000000
	st.Mtim.Nsec = 5

	attrs, err := ToAttributes(st)
	require.NoError(t, err)

	assert.Equal(t, uint64(42), attrs.Inode)
	assert.Equal(t, uint64(10), attrs.Size)
	assert.Equal(t, uint64(8), attrs.Blocks)
	assert.Equal(t, RegularFile, attrs.Type)
	assert.Equal(t, uint16(0o754), attrs.Perm)
	assert.Equal(t, uint32(3), attrs.Nlink)
	assert.Equal(t, uint32(7), attrs.Rdev)
	assert.Equal(t, uint32(1000), attrs.Uid)
	assert.Equal(t, uint32(100), attrs.Gid)
	assert.True(t, attrs.Mtime.Equal(time.Unix(1700000000, 5)))
	assert.Equal(t, os.FileMode(0o754), attrs.FileMode())
}

func TestFromFileInfo(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	name := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(name, []byte("0123456789"), 0o640))
	require.NoError(t, unix.Mkfifo(filepath.Join(dir, "p"), 0o600))

	info, err := os.Stat(name)
	require.NoError(t, err)

	attrs, err := FromFileInfo(info)
	require.NoError(t, err)
	assert.Equal(t, RegularFile, attrs.Type)
	assert.Equal(t, uint64(10), attrs.Size)
	assert.Equal(t, uint16(0o640), attrs.Perm)
	assert.Equal(t, info.Sys().(*syscall.Stat_t).Ino, attrs.Inode)

	info, err = os.Stat(dir)
	require.NoError(t, err)
	attrs, err = FromFileInfo(info)
	require.NoError(t, err)
	assert.Equal(t, Directory, attrs.Type)
	assert.True(t, attrs.FileMode().IsDir())

	info, err = os.Stat(filepath.Join(dir, "p"))
	require.NoError(t, err)
	attrs, err = FromFileInfo(info)
	require.NoError(t, err)
	assert.Equal(t, NamedPipe, attrs.Type)
	assert.Equal(t, os.ModeNamedPipe, attrs.FileMode().Type())
}

type bareInfo struct{ os.FileInfo }

func (bareInfo) Sys() interface{} { return nil }

func TestFromFileInfoWithoutStat(t *testing.T) {
	t.Parallel()

	_, err := FromFileInfo(bareInfo{})
	assert.ErrorIs(t, err, ErrNoNativeStat)
	assert.Equal(t, ErrnoUnknown, ToErrno(err))
}
