package filesystem

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/JakWai01/hookfs/internal/logging"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/timeutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func newTestServer(t *testing.T, workers int64, hook Hook) (*fileSystem, *HookFS, string) {
	t.Helper()

	original := t.TempDir()

	var clock timeutil.SimulatedClock
	clock.SetTime(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))

	hfs, err := NewHookFS(t.TempDir(), original, logging.NewJSONLogger(0), afero.NewOsFs(), &clock)
	require.NoError(t, err)
	t.Cleanup(hfs.Destroy)

	return newFileSystem(hfs, logging.NewJSONLogger(0), workers, hook), hfs, original
}

func TestServerLookupOpenRead(t *testing.T) {
	s, _, original := newTestServer(t, 4, nil)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(filepath.Join(original, "f"), []byte("0123456789"), 0o640))

	lookup := &fuseops.LookUpInodeOp{Parent: fuseops.RootInodeID, Name: "f"}
	require.NoError(t, s.LookUpInode(ctx, lookup))
	assert.Equal(t, uint64(10), lookup.Entry.Attributes.Size)
	assert.Equal(t, os.FileMode(0o640), lookup.Entry.Attributes.Mode)
	assert.Equal(t, fuseops.GenerationNumber(0), lookup.Entry.Generation)
	assert.Equal(t, lookup.Entry.AttributesExpiration, lookup.Entry.EntryExpiration)

	attrs := &fuseops.GetInodeAttributesOp{Inode: lookup.Entry.Child}
	require.NoError(t, s.GetInodeAttributes(ctx, attrs))
	assert.Equal(t, lookup.Entry.Attributes.Size, attrs.Attributes.Size)
	assert.Equal(t, lookup.Entry.Attributes.Mode, attrs.Attributes.Mode)

	open := &fuseops.OpenFileOp{Inode: lookup.Entry.Child}
	require.NoError(t, s.OpenFile(ctx, open))
	assert.Equal(t, fuseops.HandleID(0), open.Handle)

	read := &fuseops.ReadFileOp{Inode: lookup.Entry.Child, Handle: open.Handle, Offset: 0, Dst: make([]byte, 20)}
	require.NoError(t, s.ReadFile(ctx, read))
	assert.Equal(t, 10, read.BytesRead)
	assert.Equal(t, []byte("0123456789"), read.Dst[:read.BytesRead])

	read = &fuseops.ReadFileOp{Inode: lookup.Entry.Child, Handle: open.Handle, Offset: 10, Dst: make([]byte, 5)}
	require.NoError(t, s.ReadFile(ctx, read))
	assert.Equal(t, 0, read.BytesRead)

	require.NoError(t, s.ReleaseFileHandle(ctx, &fuseops.ReleaseFileHandleOp{Handle: open.Handle}))
	require.NoError(t, s.ReleaseFileHandle(ctx, &fuseops.ReleaseFileHandleOp{Handle: open.Handle}))
}

func TestServerErrnos(t *testing.T) {
	s, _, _ := newTestServer(t, 4, nil)
	ctx := context.Background()

	err := s.LookUpInode(ctx, &fuseops.LookUpInodeOp{Parent: fuseops.RootInodeID, Name: "missing"})
	assert.Equal(t, syscall.ENOENT, err)

	err = s.GetInodeAttributes(ctx, &fuseops.GetInodeAttributesOp{Inode: 987654321})
	assert.Equal(t, syscall.ESTALE, err)

	err = s.ReadFile(ctx, &fuseops.ReadFileOp{Handle: 5, Dst: make([]byte, 1)})
	assert.Equal(t, syscall.EBADF, err)

	err = s.MkDir(ctx, &fuseops.MkDirOp{Parent: fuseops.RootInodeID, Name: "d"})
	assert.Equal(t, syscall.ENOSYS, err)

	err = s.WriteFile(ctx, &fuseops.WriteFileOp{Data: []byte("x")})
	assert.Equal(t, syscall.ENOSYS, err)

	err = s.ReadDir(ctx, &fuseops.ReadDirOp{Inode: fuseops.RootInodeID, Dst: make([]byte, 128)})
	assert.Equal(t, syscall.ENOSYS, err)

	err = s.GetXattr(ctx, &fuseops.GetXattrOp{Inode: fuseops.RootInodeID, Name: "user.a"})
	assert.Equal(t, syscall.ENOSYS, err)
}

func TestServerDirectoryHandles(t *testing.T) {
	s, _, _ := newTestServer(t, 4, nil)
	ctx := context.Background()

	attrs := &fuseops.GetInodeAttributesOp{Inode: fuseops.RootInodeID}
	require.NoError(t, s.GetInodeAttributes(ctx, attrs))
	assert.True(t, attrs.Attributes.Mode.IsDir())

	open := &fuseops.OpenDirOp{Inode: fuseops.RootInodeID}
	require.NoError(t, s.OpenDir(ctx, open))
	assert.Equal(t, fuseops.HandleID(0), open.Handle)

	require.NoError(t, s.ReleaseDirHandle(ctx, &fuseops.ReleaseDirHandleOp{Handle: open.Handle}))

	statfs := &fuseops.StatFSOp{}
	require.NoError(t, s.StatFS(ctx, statfs))
	assert.Equal(t, uint32(512), statfs.BlockSize)
	assert.Equal(t, uint32(512), statfs.IoSize)
	assert.Zero(t, statfs.Blocks)
	assert.Zero(t, statfs.BlocksFree)
	assert.Zero(t, statfs.Inodes)
}

type recordingHook struct {
	mu     sync.Mutex
	before []string
	fail   map[string]error
}

func (h *recordingHook) Before(ctx context.Context, op string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.before = append(h.before, op)

	return h.fail[op]
}

func (h *recordingHook) After(ctx context.Context, op string, err error) error {
	return err
}

func TestServerHookShortCircuits(t *testing.T) {
	hook := &recordingHook{fail: map[string]error{OpOpen: syscall.EIO}}
	s, hfs, original := newTestServer(t, 4, hook)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(filepath.Join(original, "f"), []byte("abc"), 0o644))

	lookup := &fuseops.LookUpInodeOp{Parent: fuseops.RootInodeID, Name: "f"}
	require.NoError(t, s.LookUpInode(ctx, lookup))

	err := s.OpenFile(ctx, &fuseops.OpenFileOp{Inode: lookup.Entry.Child})
	assert.Equal(t, syscall.EIO, err)
	assert.Equal(t, 0, hfs.Stats().OpenFiles)

	assert.Equal(t, []string{OpLookup, OpOpen}, hook.before)
}

type replaceHook struct{ NopHook }

func (replaceHook) After(ctx context.Context, op string, err error) error {
	if op == OpStatFS {
		return errors.New("injected")
	}

	return err
}

func TestServerHookReplacesResult(t *testing.T) {
	s, _, _ := newTestServer(t, 4, replaceHook{})

	// Errors without a code reach the kernel as EIO.
	err := s.StatFS(context.Background(), &fuseops.StatFSOp{})
	assert.Equal(t, syscall.EIO, err)
}

type blockingFS struct {
	NotImplemented

	running int32
	peak    int32
	release chan struct{}
}

func (fs *blockingFS) StatFS(ctx context.Context, ino fuseops.InodeID) (*StatFS, error) {
	n := atomic.AddInt32(&fs.running, 1)
	defer atomic.AddInt32(&fs.running, -1)

	for {
		peak := atomic.LoadInt32(&fs.peak)
		if n <= peak || atomic.CompareAndSwapInt32(&fs.peak, peak, n) {
			break
		}
	}

	<-fs.release

	return &StatFS{}, nil
}

func TestServerBoundsWorkers(t *testing.T) {
	fs := &blockingFS{release: make(chan struct{})}
	s := newFileSystem(fs, logging.NewJSONLogger(0), 2, nil)

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.StatFS(context.Background(), &fuseops.StatFSOp{}))
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(fs.release)
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&fs.peak), int32(2))
}

func TestServerCanceledWhileQueued(t *testing.T) {
	fs := &blockingFS{release: make(chan struct{})}
	s := newFileSystem(fs, logging.NewJSONLogger(0), 1, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, s.StatFS(context.Background(), &fuseops.StatFSOp{}))
	}()

	for atomic.LoadInt32(&fs.running) == 0 {
		time.Sleep(time.Millisecond)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Equal(t, syscall.EINTR, s.StatFS(ctx, &fuseops.StatFSOp{}))

	close(fs.release)
	<-done
}

func TestServerOpenPassesFlags(t *testing.T) {
	s, hfs, original := newTestServer(t, 4, nil)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(filepath.Join(original, "f"), []byte("abc"), 0o644))

	lookup := &fuseops.LookUpInodeOp{Parent: fuseops.RootInodeID, Name: "f"}
	require.NoError(t, s.LookUpInode(ctx, lookup))

	opened, err := hfs.Open(ctx, lookup.Entry.Child, unix.O_RDONLY|unix.O_NOATIME)
	if errors.Is(err, syscall.EPERM) {
		t.Skip("O_NOATIME requires file ownership")
	}
	require.NoError(t, err)
	assert.Equal(t, uint32(unix.O_RDONLY|unix.O_NOATIME), opened.Flags)
}

func TestServerLookupDeviceNode(t *testing.T) {
	var st unix.Stat_t
	if err := unix.Stat("/dev/null", &st); err != nil || st.Mode&unix.S_IFMT != unix.S_IFCHR {
		t.Skip("no /dev/null character device")
	}

	hfs, err := NewHookFS(t.TempDir(), "/dev", logging.NewJSONLogger(0), afero.NewOsFs(), timeutil.RealClock())
	require.NoError(t, err)
	t.Cleanup(hfs.Destroy)

	s := newFileSystem(hfs, logging.NewJSONLogger(0), 4, nil)
	ctx := context.Background()

	lookup := &fuseops.LookUpInodeOp{Parent: fuseops.RootInodeID, Name: "null"}
	require.NoError(t, s.LookUpInode(ctx, lookup))
	assert.Equal(t, os.ModeDevice|os.ModeCharDevice, lookup.Entry.Attributes.Mode.Type())
	assert.Equal(t, uint32(st.Rdev), lookup.Entry.Attributes.Rdev)
	assert.Equal(t, uint32(1), unix.Major(uint64(lookup.Entry.Attributes.Rdev)))
	assert.Equal(t, uint32(3), unix.Minor(uint64(lookup.Entry.Attributes.Rdev)))

	attrs := &fuseops.GetInodeAttributesOp{Inode: lookup.Entry.Child}
	require.NoError(t, s.GetInodeAttributes(ctx, attrs))
	assert.Equal(t, uint32(st.Rdev), attrs.Attributes.Rdev)
}
