package internal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/JakWai01/hookfs/internal/logging"
	"github.com/JakWai01/hookfs/pkg/filesystem"
	"github.com/jacobsa/fuse"
	"github.com/jacobsa/timeutil"
	"github.com/spf13/afero"
	"golang.org/x/sys/unix"
)

// TestSetup is an original tree in a temporary directory and a HookFS
// serving it.
type TestSetup struct {
	FS       *filesystem.HookFS
	Clock    timeutil.SimulatedClock
	Original string
	Dir      string
}

func (t *TestSetup) Setup(tb testing.TB, l logging.StructuredLogger) error {
	tb.Helper()

	t.Original = tb.TempDir()
	t.Dir = tb.TempDir()
	t.Clock.SetTime(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))

	var err error
	t.FS, err = filesystem.NewHookFS(t.Dir, t.Original, l, afero.NewOsFs(), &t.Clock)
	if err != nil {
		return fmt.Errorf("NewHookFS: %v", err)
	}

	tb.Cleanup(t.FS.Destroy)

	return nil
}

// Mount serves FS at Dir through the kernel until the test finishes.
func (t *TestSetup) Mount(tb testing.TB, l logging.StructuredLogger) error {
	tb.Helper()

	cfg := &fuse.MountConfig{
		FSName:                  "hookfs",
		Subtype:                 "hookfs",
		ReadOnly:                true,
		DisableWritebackCaching: true,
	}

	mfs, err := fuse.Mount(t.Dir, filesystem.NewServer(t.FS, l, filesystem.DefaultWorkers, nil), cfg)
	if err != nil {
		return fmt.Errorf("Mount: %v", err)
	}

	tb.Cleanup(func() {
		if err := fuse.Unmount(t.Dir); err != nil {
			tb.Logf("Unmount: %v", err)

			return
		}

		if err := mfs.Join(context.Background()); err != nil {
			tb.Logf("Join: %v", err)
		}
	})

	return nil
}

// Path returns the native path of name inside the original tree.
func (t *TestSetup) Path(name string) string {
	return filepath.Join(t.Original, name)
}

func (t *TestSetup) WriteFile(name string, contents []byte) error {
	if err := os.MkdirAll(filepath.Dir(t.Path(name)), 0o755); err != nil {
		return err
	}

	return os.WriteFile(t.Path(name), contents, 0o644)
}

func (t *TestSetup) Mkfifo(name string) error {
	return unix.Mkfifo(t.Path(name), 0o644)
}

// Ino returns the native inode number of name.
func (t *TestSetup) Ino(name string) (uint64, error) {
	var st unix.Stat_t
	if err := unix.Stat(t.Path(name), &st); err != nil {
		return 0, err
	}

	return st.Ino, nil
}
