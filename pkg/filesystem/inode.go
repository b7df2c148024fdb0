package filesystem

import (
	"fmt"
	"path/filepath"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/syncutil"
)

// InodeTable maps inode IDs handed to the kernel to absolute native paths.
// Entries are only ever added or replaced, never evicted.
type InodeTable struct {
	mu syncutil.InvariantMutex

	// INVARIANT: every path is absolute
	// INVARIANT: no key is zero
	//
	// GUARDED_BY(mu)
	paths map[fuseops.InodeID]string
}

func NewInodeTable() *InodeTable {
	t := &InodeTable{
		paths: make(map[fuseops.InodeID]string),
	}
	t.mu = syncutil.NewInvariantMutex(t.checkInvariants)

	return t
}

func (t *InodeTable) checkInvariants() {
	for id, path := range t.paths {
		if id == 0 {
			panic(fmt.Sprintf("inode zero mapped to %q", path))
		}

		if !filepath.IsAbs(path) {
			panic(fmt.Sprintf("inode %v mapped to relative path %q", id, path))
		}
	}
}

// Insert records path for id. The root inode stays pinned to the path it was
// first registered with.
func (t *InodeTable) Insert(id fuseops.InodeID, path string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.paths[id]; ok && id == fuseops.RootInodeID {
		return
	}

	t.paths[id] = path
}

// Path resolves id, failing with an *UnknownInodeError if it was never
// inserted.
func (t *InodeTable) Path(id fuseops.InodeID) (string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	path, ok := t.paths[id]
	if !ok {
		return "", &UnknownInodeError{Inode: id}
	}

	return path, nil
}

func (t *InodeTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.paths)
}
