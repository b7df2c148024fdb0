package filesystem

import (
	"context"
	"time"

	"github.com/JakWai01/hookfs/pkg/posix"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
)

// Names of the primitives, as passed to hooks and used in log records.
const (
	OpLookup      = "lookup"
	OpGetAttr     = "getattr"
	OpSetAttr     = "setattr"
	OpReadLink    = "readlink"
	OpMkNod       = "mknod"
	OpMkDir       = "mkdir"
	OpUnlink      = "unlink"
	OpRmDir       = "rmdir"
	OpSymlink     = "symlink"
	OpRename      = "rename"
	OpLink        = "link"
	OpOpen        = "open"
	OpRead        = "read"
	OpWrite       = "write"
	OpFlush       = "flush"
	OpRelease     = "release"
	OpFsync       = "fsync"
	OpOpenDir     = "opendir"
	OpReadDir     = "readdir"
	OpReleaseDir  = "releasedir"
	OpFsyncDir    = "fsyncdir"
	OpStatFS      = "statfs"
	OpSetXattr    = "setxattr"
	OpGetXattr    = "getxattr"
	OpListXattr   = "listxattr"
	OpRemoveXattr = "removexattr"
	OpAccess      = "access"
	OpCreate      = "create"
	OpGetLock     = "getlk"
	OpSetLock     = "setlk"
	OpBlockMap    = "bmap"
)

// Entry answers a lookup or any other primitive that creates a name.
type Entry struct {
	Child      fuseops.InodeID
	Generation fuseops.GenerationNumber
	Attributes posix.Attributes

	// Expiration bounds how long the kernel may cache both the name and the
	// attributes.
	Expiration time.Time
}

type AttributesReply struct {
	Attributes posix.Attributes
	Expiration time.Time
}

type Opened struct {
	Handle fuseops.HandleID
	Flags  uint32
}

type StatFS struct {
	Blocks          uint64
	BlocksFree      uint64
	BlocksAvailable uint64
	Files           uint64
	FilesFree       uint64
	BlockSize       uint32
	NameLength      uint32
	FragmentSize    uint32
}

type Lock struct {
	Start uint64
	End   uint64
	Type  uint32
	Pid   uint32
}

// FileSystem is the full virtual filesystem operation catalogue, one method
// per primitive. Implementations that do not support a primitive must return
// ErrNotSupported rather than succeed silently.
//
// Must be safe for concurrent access via all methods.
type FileSystem interface {
	Lookup(ctx context.Context, parent fuseops.InodeID, name string) (*Entry, error)
	GetAttr(ctx context.Context, ino fuseops.InodeID) (*AttributesReply, error)
	SetAttr(ctx context.Context, ino fuseops.InodeID, op *fuseops.SetInodeAttributesOp) (*AttributesReply, error)
	ReadLink(ctx context.Context, ino fuseops.InodeID) (string, error)
	MkNod(ctx context.Context, parent fuseops.InodeID, name string, mode uint32, rdev uint32) (*Entry, error)
	MkDir(ctx context.Context, parent fuseops.InodeID, name string, mode uint32) (*Entry, error)
	Unlink(ctx context.Context, parent fuseops.InodeID, name string) error
	RmDir(ctx context.Context, parent fuseops.InodeID, name string) error
	Symlink(ctx context.Context, parent fuseops.InodeID, name string, target string) (*Entry, error)
	Rename(ctx context.Context, parent fuseops.InodeID, name string, newParent fuseops.InodeID, newName string) error
	Link(ctx context.Context, ino fuseops.InodeID, newParent fuseops.InodeID, newName string) (*Entry, error)

	Open(ctx context.Context, ino fuseops.InodeID, flags uint32) (*Opened, error)
	Read(ctx context.Context, ino fuseops.InodeID, fh fuseops.HandleID, offset int64, size uint32) ([]byte, error)
	Write(ctx context.Context, ino fuseops.InodeID, fh fuseops.HandleID, offset int64, data []byte, flags uint32) (uint32, error)
	Flush(ctx context.Context, ino fuseops.InodeID, fh fuseops.HandleID, lockOwner uint64) error
	Release(ctx context.Context, ino fuseops.InodeID, fh fuseops.HandleID, flags uint32, lockOwner uint64, flush bool) error
	Fsync(ctx context.Context, ino fuseops.InodeID, fh fuseops.HandleID, datasync bool) error

	OpenDir(ctx context.Context, ino fuseops.InodeID, flags uint32) (*Opened, error)
	ReadDir(ctx context.Context, ino fuseops.InodeID, fh fuseops.HandleID, offset fuseops.DirOffset) ([]fuseutil.Dirent, error)
	ReleaseDir(ctx context.Context, ino fuseops.InodeID, fh fuseops.HandleID, flags uint32) error
	FsyncDir(ctx context.Context, ino fuseops.InodeID, fh fuseops.HandleID, datasync bool) error

	StatFS(ctx context.Context, ino fuseops.InodeID) (*StatFS, error)

	SetXattr(ctx context.Context, ino fuseops.InodeID, name string, value []byte, flags uint32) error
	GetXattr(ctx context.Context, ino fuseops.InodeID, name string, size uint32) ([]byte, error)
	ListXattr(ctx context.Context, ino fuseops.InodeID, size uint32) ([]byte, error)
	RemoveXattr(ctx context.Context, ino fuseops.InodeID, name string) error

	Access(ctx context.Context, ino fuseops.InodeID, mask uint32) error
	Create(ctx context.Context, parent fuseops.InodeID, name string, mode uint32, flags uint32) (*Entry, *Opened, error)
	GetLock(ctx context.Context, ino fuseops.InodeID, fh fuseops.HandleID, owner uint64, lock Lock) (*Lock, error)
	SetLock(ctx context.Context, ino fuseops.InodeID, fh fuseops.HandleID, owner uint64, lock Lock, sleep bool) error
	BlockMap(ctx context.Context, ino fuseops.InodeID, blockSize uint32, idx uint64) (uint64, error)
}

// NotImplemented answers every primitive with ErrNotSupported. Embed it and
// override the primitives you support.
type NotImplemented struct{}

var _ FileSystem = NotImplemented{}

func (NotImplemented) Lookup(ctx context.Context, parent fuseops.InodeID, name string) (*Entry, error) {
	return nil, ErrNotSupported
}

func (NotImplemented) GetAttr(ctx context.Context, ino fuseops.InodeID) (*AttributesReply, error) {
	return nil, ErrNotSupported
}

func (NotImplemented) SetAttr(ctx context.Context, ino fuseops.InodeID, op *fuseops.SetInodeAttributesOp) (*AttributesReply, error) {
	return nil, ErrNotSupported
}

func (NotImplemented) ReadLink(ctx context.Context, ino fuseops.InodeID) (string, error) {
	return "", ErrNotSupported
}

func (NotImplemented) MkNod(ctx context.Context, parent fuseops.InodeID, name string, mode uint32, rdev uint32) (*Entry, error) {
	return nil, ErrNotSupported
}

func (NotImplemented) MkDir(ctx context.Context, parent fuseops.InodeID, name string, mode uint32) (*Entry, error) {
	return nil, ErrNotSupported
}

func (NotImplemented) Unlink(ctx context.Context, parent fuseops.InodeID, name string) error {
	return ErrNotSupported
}

func (NotImplemented) RmDir(ctx context.Context, parent fuseops.InodeID, name string) error {
	return ErrNotSupported
}

func (NotImplemented) Symlink(ctx context.Context, parent fuseops.InodeID, name string, target string) (*Entry, error) {
	return nil, ErrNotSupported
}

func (NotImplemented) Rename(ctx context.Context, parent fuseops.InodeID, name string, newParent fuseops.InodeID, newName string) error {
	return ErrNotSupported
}

func (NotImplemented) Link(ctx context.Context, ino fuseops.InodeID, newParent fuseops.InodeID, newName string) (*Entry, error) {
	return nil, ErrNotSupported
}

func (NotImplemented) Open(ctx context.Context, ino fuseops.InodeID, flags uint32) (*Opened, error) {
	return nil, ErrNotSupported
}

func (NotImplemented) Read(ctx context.Context, ino fuseops.InodeID, fh fuseops.HandleID, offset int64, size uint32) ([]byte, error) {
	return nil, ErrNotSupported
}

func (NotImplemented) Write(ctx context.Context, ino fuseops.InodeID, fh fuseops.HandleID, offset int64, data []byte, flags uint32) (uint32, error) {
	return 0, ErrNotSupported
}

func (NotImplemented) Flush(ctx context.Context, ino fuseops.InodeID, fh fuseops.HandleID, lockOwner uint64) error {
	return ErrNotSupported
}

func (NotImplemented) Release(ctx context.Context, ino fuseops.InodeID, fh fuseops.HandleID, flags uint32, lockOwner uint64, flush bool) error {
	return ErrNotSupported
}

func (NotImplemented) Fsync(ctx context.Context, ino fuseops.InodeID, fh fuseops.HandleID, datasync bool) error {
	return ErrNotSupported
}

func (NotImplemented) OpenDir(ctx context.Context, ino fuseops.InodeID, flags uint32) (*Opened, error) {
	return nil, ErrNotSupported
}

func (NotImplemented) ReadDir(ctx context.Context, ino fuseops.InodeID, fh fuseops.HandleID, offset fuseops.DirOffset) ([]fuseutil.Dirent, error) {
	return nil, ErrNotSupported
}

func (NotImplemented) ReleaseDir(ctx context.Context, ino fuseops.InodeID, fh fuseops.HandleID, flags uint32) error {
	return ErrNotSupported
}

func (NotImplemented) FsyncDir(ctx context.Context, ino fuseops.InodeID, fh fuseops.HandleID, datasync bool) error {
	return ErrNotSupported
}

func (NotImplemented) StatFS(ctx context.Context, ino fuseops.InodeID) (*StatFS, error) {
	return nil, ErrNotSupported
}

func (NotImplemented) SetXattr(ctx context.Context, ino fuseops.InodeID, name string, value []byte, flags uint32) error {
	return ErrNotSupported
}

func (NotImplemented) GetXattr(ctx context.Context, ino fuseops.InodeID, name string, size uint32) ([]byte, error) {
	return nil, ErrNotSupported
}

func (NotImplemented) ListXattr(ctx context.Context, ino fuseops.InodeID, size uint32) ([]byte, error) {
	return nil, ErrNotSupported
}

func (NotImplemented) RemoveXattr(ctx context.Context, ino fuseops.InodeID, name string) error {
	return ErrNotSupported
}

func (NotImplemented) Access(ctx context.Context, ino fuseops.InodeID, mask uint32) error {
	return ErrNotSupported
}

func (NotImplemented) Create(ctx context.Context, parent fuseops.InodeID, name string, mode uint32, flags uint32) (*Entry, *Opened, error) {
	return nil, nil, ErrNotSupported
}

func (NotImplemented) GetLock(ctx context.Context, ino fuseops.InodeID, fh fuseops.HandleID, owner uint64, lock Lock) (*Lock, error) {
	return nil, ErrNotSupported
}

func (NotImplemented) SetLock(ctx context.Context, ino fuseops.InodeID, fh fuseops.HandleID, owner uint64, lock Lock, sleep bool) error {
	return ErrNotSupported
}

func (NotImplemented) BlockMap(ctx context.Context, ino fuseops.InodeID, blockSize uint32, idx uint64) (uint64, error) {
	return 0, ErrNotSupported
}
