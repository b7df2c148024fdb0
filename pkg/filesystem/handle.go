package filesystem

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/syncutil"
	"github.com/spf13/afero"
)

// openFile is a native descriptor behind a handle. Its lock serializes the
// seek-then-read sequence so that concurrent reads on one handle never see
// each other's offsets.
type openFile struct {
	mu sync.Mutex

	// nil once closed
	//
	// GUARDED_BY(mu)
	file afero.File
}

func (f *openFile) readAt(offset int64, size int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.file == nil {
		return nil, os.ErrClosed
	}

	if _, err := f.file.Seek(offset, io.SeekStart); err != nil {
		return nil, err
	}

	buf := make([]byte, size)
	n, err := f.file.Read(buf)
	if err == io.EOF {
		err = nil
	}

	return buf[:n], err
}

func (f *openFile) close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.file == nil {
		return nil
	}

	err := f.file.Close()
	f.file = nil

	return err
}

// FileTable hands out handles for open native descriptors. A handle is the
// index of its slot; released slots are reused before the table grows.
type FileTable struct {
	mu syncutil.InvariantMutex

	// INVARIANT: slots[h] == nil for every h in free
	// INVARIANT: len(free) equals the number of nil slots
	//
	// GUARDED_BY(mu)
	slots []*openFile

	// GUARDED_BY(mu)
	free []fuseops.HandleID
}

func NewFileTable() *FileTable {
	t := &FileTable{}
	t.mu = syncutil.NewInvariantMutex(t.checkInvariants)

	return t
}

func (t *FileTable) checkInvariants() {
	empty := 0
	for _, slot := range t.slots {
		if slot == nil {
			empty++
		}
	}

	if empty != len(t.free) {
		panic(fmt.Sprintf("%d empty slots but %d free handles", empty, len(t.free)))
	}

	for _, h := range t.free {
		if int(h) >= len(t.slots) || t.slots[h] != nil {
			panic(fmt.Sprintf("free handle %v is in use", h))
		}
	}
}

// Insert stores file and returns its handle.
func (t *FileTable) Insert(file afero.File) fuseops.HandleID {
	t.mu.Lock()
	defer t.mu.Unlock()

	f := &openFile{file: file}

	if n := len(t.free); n > 0 {
		h := t.free[n-1]
		t.free = t.free[:n-1]
		t.slots[h] = f

		return h
	}

	t.slots = append(t.slots, f)

	return fuseops.HandleID(len(t.slots) - 1)
}

func (t *FileTable) get(h fuseops.HandleID) (*openFile, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if h >= fuseops.HandleID(len(t.slots)) || t.slots[h] == nil {
		return nil, &InvalidHandleError{Handle: h}
	}

	return t.slots[h], nil
}

// remove frees the slot of h and returns what it held.
func (t *FileTable) remove(h fuseops.HandleID) (*openFile, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if h >= fuseops.HandleID(len(t.slots)) || t.slots[h] == nil {
		return nil, false
	}

	f := t.slots[h]
	t.slots[h] = nil
	t.free = append(t.free, h)

	return f, true
}

// drain frees every slot and returns the files that were open.
func (t *FileTable) drain() []*openFile {
	t.mu.Lock()
	defer t.mu.Unlock()

	var files []*openFile
	for _, f := range t.slots {
		if f != nil {
			files = append(files, f)
		}
	}

	t.slots = nil
	t.free = nil

	return files
}

// Len returns the number of handles currently open.
func (t *FileTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.slots) - len(t.free)
}
