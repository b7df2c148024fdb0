package filesystem

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakWai01/hookfs/internal/logging"
	"github.com/JakWai01/hookfs/pkg/posix"
	"github.com/google/uuid"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/timeutil"
	"github.com/spf13/afero"
)

const (
	statFSBlockSize  = 512
	statFSNameLength = 255
)

// HookFS forwards lookups, attribute queries, opens and reads to an original
// directory tree. Everything else is answered with ErrNotSupported.
type HookFS struct {
	NotImplemented

	id         string
	mountpoint string
	original   string

	backend afero.Fs
	clock   timeutil.Clock
	log     logging.StructuredLogger

	inodes *InodeTable
	files  *FileTable
}

var _ FileSystem = &HookFS{}

// NewHookFS creates a filesystem instance serving original at mountpoint. The
// root inode resolves to original.
func NewHookFS(mountpoint string, original string, logger logging.StructuredLogger, backend afero.Fs, clock timeutil.Clock) (*HookFS, error) {
	root, err := filepath.Abs(original)
	if err != nil {
		return nil, fmt.Errorf("could not resolve original path %q: %w", original, err)
	}

	id := uuid.NewString()

	fs := &HookFS{
		id:         id,
		mountpoint: mountpoint,
		original:   root,

		backend: backend,
		clock:   clock,
		log: logger.With(map[string]interface{}{
			"instance": id,
		}),

		inodes: NewInodeTable(),
		files:  NewFileTable(),
	}

	fs.inodes.Insert(fuseops.RootInodeID, root)

	return fs, nil
}

func (fs *HookFS) ID() string {
	return fs.id
}

func (fs *HookFS) Mountpoint() string {
	return fs.mountpoint
}

func (fs *HookFS) Original() string {
	return fs.original
}

type Stats struct {
	Inodes    int
	OpenFiles int
}

func (fs *HookFS) Stats() Stats {
	return Stats{
		Inodes:    fs.inodes.Len(),
		OpenFiles: fs.files.Len(),
	}
}

func (fs *HookFS) stat(path string) (posix.Attributes, error) {
	info, err := fs.backend.Stat(path)
	if err != nil {
		return posix.Attributes{}, err
	}

	return posix.FromFileInfo(info)
}

func validName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsRune(name, '/') {
		return &InvalidNameError{Name: name}
	}

	return nil
}

func (fs *HookFS) Lookup(ctx context.Context, parent fuseops.InodeID, name string) (*Entry, error) {
	if err := validName(name); err != nil {
		return nil, err
	}

	dir, err := fs.inodes.Path(parent)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(dir, name)

	attrs, err := fs.stat(path)
	if err != nil {
		return nil, err
	}

	child := fuseops.InodeID(attrs.Inode)
	fs.inodes.Insert(child, path)

	fs.log.Trace("HookFS.Lookup", map[string]interface{}{
		"parent": parent,
		"path":   path,
		"child":  child,
		"type":   attrs.Type.String(),
	})

	return &Entry{
		Child:      child,
		Attributes: attrs,
		Expiration: fs.clock.Now(),
	}, nil
}

func (fs *HookFS) GetAttr(ctx context.Context, ino fuseops.InodeID) (*AttributesReply, error) {
	path, err := fs.inodes.Path(ino)
	if err != nil {
		return nil, err
	}

	attrs, err := fs.stat(path)
	if err != nil {
		return nil, err
	}

	// The kernel knows the mount root only by the reserved root ID.
	if ino == fuseops.RootInodeID {
		attrs.Inode = uint64(fuseops.RootInodeID)
	}

	return &AttributesReply{
		Attributes: attrs,
		Expiration: fs.clock.Now(),
	}, nil
}

func (fs *HookFS) Open(ctx context.Context, ino fuseops.InodeID, flags uint32) (*Opened, error) {
	native, err := posix.SanitizeOpenFlags(flags)
	if err != nil {
		return nil, err
	}

	path, err := fs.inodes.Path(ino)
	if err != nil {
		return nil, err
	}

	// Permissions only matter on creation, which never happens here.
	file, err := fs.backend.OpenFile(path, native, os.ModePerm)
	if err != nil {
		return nil, err
	}

	handle := fs.files.Insert(file)

	fs.log.Trace("HookFS.Open", map[string]interface{}{
		"inode":  ino,
		"path":   path,
		"flags":  flags,
		"native": native,
		"handle": handle,
	})

	return &Opened{Handle: handle, Flags: flags}, nil
}

// Read returns up to size bytes at offset. A short or empty result at the end
// of the file is not an error.
func (fs *HookFS) Read(ctx context.Context, ino fuseops.InodeID, fh fuseops.HandleID, offset int64, size uint32) ([]byte, error) {
	f, err := fs.files.get(fh)
	if err != nil {
		return nil, err
	}

	return f.readAt(offset, int(size))
}

// Release closes the descriptor behind fh and frees its handle. Unknown
// handles are acknowledged as well.
func (fs *HookFS) Release(ctx context.Context, ino fuseops.InodeID, fh fuseops.HandleID, flags uint32, lockOwner uint64, flush bool) error {
	f, ok := fs.files.remove(fh)
	if !ok {
		fs.log.Trace("HookFS.Release", map[string]interface{}{
			"handle": fh,
			"known":  false,
		})

		return nil
	}

	if err := f.close(); err != nil {
		fs.log.Warn("HookFS.Release", map[string]interface{}{
			"handle": fh,
			"error":  err.Error(),
		})
	}

	return nil
}

// OpenDir hands out the fixed handle zero. Directory listing is not
// supported, so the handle can be opened and released but not read.
func (fs *HookFS) OpenDir(ctx context.Context, ino fuseops.InodeID, flags uint32) (*Opened, error) {
	return &Opened{Handle: 0, Flags: 0}, nil
}

func (fs *HookFS) ReleaseDir(ctx context.Context, ino fuseops.InodeID, fh fuseops.HandleID, flags uint32) error {
	return nil
}

func (fs *HookFS) StatFS(ctx context.Context, ino fuseops.InodeID) (*StatFS, error) {
	return &StatFS{
		BlockSize:  statFSBlockSize,
		NameLength: statFSNameLength,
	}, nil
}

// Destroy closes every descriptor that is still open.
func (fs *HookFS) Destroy() {
	files := fs.files.drain()

	for _, f := range files {
		if err := f.close(); err != nil {
			fs.log.Warn("HookFS.Destroy", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	fs.log.Debug("HookFS.Destroy", map[string]interface{}{
		"closed": len(files),
		"inodes": fs.inodes.Len(),
	})
}
