package filesystem

import (
	"context"
	"syscall"

	"github.com/JakWai01/hookfs/internal/logging"
	"github.com/JakWai01/hookfs/pkg/posix"
	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
	"golang.org/x/sync/semaphore"
)

// DefaultWorkers bounds the number of primitives executing at once when no
// explicit limit is configured.
const DefaultWorkers = 16

// fileSystem bridges jacobsa/fuse ops onto a FileSystem. Every op passes
// through call, which bounds concurrency, runs the hook and translates the
// error into exactly one errno.
type fileSystem struct {
	fuseutil.NotImplementedFileSystem

	fs   FileSystem
	hook Hook
	pool *semaphore.Weighted

	log logging.StructuredLogger
}

// NewServer wraps fs into a server that can be handed to fuse.Mount. At most
// workers primitives run concurrently. A nil hook forwards unchanged.
func NewServer(fs FileSystem, logger logging.StructuredLogger, workers int64, hook Hook) fuse.Server {
	return fuseutil.NewFileSystemServer(newFileSystem(fs, logger, workers, hook))
}

func newFileSystem(fs FileSystem, logger logging.StructuredLogger, workers int64, hook Hook) *fileSystem {
	if workers <= 0 {
		workers = DefaultWorkers
	}

	if hook == nil {
		hook = NopHook{}
	}

	return &fileSystem{
		fs:   fs,
		hook: hook,
		pool: semaphore.NewWeighted(workers),
		log:  logger,
	}
}

func (s *fileSystem) call(ctx context.Context, op string, fn func() error) error {
	if err := s.pool.Acquire(ctx, 1); err != nil {
		return syscall.EINTR
	}
	defer s.pool.Release(1)

	err := s.hook.Before(ctx, op)
	if err == nil {
		err = fn()
	}

	if err = s.hook.After(ctx, op, err); err == nil {
		return nil
	}

	errno := posix.ToErrno(err)

	s.log.Trace("FUSE.Error", map[string]interface{}{
		"op":    op,
		"errno": int32(errno),
		"error": err.Error(),
	})

	return errno.Syscall()
}

func inodeAttributes(a posix.Attributes) fuseops.InodeAttributes {
	return fuseops.InodeAttributes{
		Size:  a.Size,
		Nlink: a.Nlink,
		Mode:  a.FileMode(),
		Atime: a.Atime,
		Mtime: a.Mtime,
		Ctime: a.Ctime,
		Uid:   a.Uid,
		Gid:   a.Gid,
		Rdev:  a.Rdev,
	}
}

func fillEntry(dst *fuseops.ChildInodeEntry, e *Entry) {
	dst.Child = e.Child
	dst.Generation = e.Generation
	dst.Attributes = inodeAttributes(e.Attributes)
	dst.AttributesExpiration = e.Expiration
	dst.EntryExpiration = e.Expiration
}

func (s *fileSystem) StatFS(ctx context.Context, op *fuseops.StatFSOp) error {
	s.log.Debug("FUSE.StatFS", nil)

	return s.call(ctx, OpStatFS, func() error {
		st, err := s.fs.StatFS(ctx, fuseops.RootInodeID)
		if err != nil {
			return err
		}

		// The kernel reads IoSize as f_bsize and BlockSize as f_frsize.
		op.IoSize = st.BlockSize
		op.BlockSize = st.FragmentSize
		if op.BlockSize == 0 {
			op.BlockSize = st.BlockSize
		}

		op.Blocks = st.Blocks
		op.BlocksFree = st.BlocksFree
		op.BlocksAvailable = st.BlocksAvailable
		op.Inodes = st.Files
		op.InodesFree = st.FilesFree

		return nil
	})
}

func (s *fileSystem) LookUpInode(ctx context.Context, op *fuseops.LookUpInodeOp) error {
	s.log.Debug("FUSE.LookUpInode", map[string]interface{}{
		"parent":    op.Parent,
		"name":      op.Name,
		"opContext": op.OpContext,
	})

	return s.call(ctx, OpLookup, func() error {
		entry, err := s.fs.Lookup(ctx, op.Parent, op.Name)
		if err != nil {
			return err
		}

		fillEntry(&op.Entry, entry)

		return nil
	})
}

func (s *fileSystem) GetInodeAttributes(ctx context.Context, op *fuseops.GetInodeAttributesOp) error {
	s.log.Debug("FUSE.GetInodeAttributes", map[string]interface{}{
		"inode":     op.Inode,
		"opContext": op.OpContext,
	})

	return s.call(ctx, OpGetAttr, func() error {
		reply, err := s.fs.GetAttr(ctx, op.Inode)
		if err != nil {
			return err
		}

		op.Attributes = inodeAttributes(reply.Attributes)
		op.AttributesExpiration = reply.Expiration

		return nil
	})
}

func (s *fileSystem) SetInodeAttributes(ctx context.Context, op *fuseops.SetInodeAttributesOp) error {
	s.log.Debug("FUSE.SetInodeAttributes", map[string]interface{}{
		"inode":     op.Inode,
		"handle":    op.Handle,
		"size":      op.Size,
		"mode":      op.Mode,
		"opContext": op.OpContext,
	})

	return s.call(ctx, OpSetAttr, func() error {
		reply, err := s.fs.SetAttr(ctx, op.Inode, op)
		if err != nil {
			return err
		}

		op.Attributes = inodeAttributes(reply.Attributes)
		op.AttributesExpiration = reply.Expiration

		return nil
	})
}

// Inode table entries are kept for the lifetime of the mount, so forgetting
// is only acknowledged.
func (s *fileSystem) ForgetInode(ctx context.Context, op *fuseops.ForgetInodeOp) error {
	s.log.Trace("FUSE.ForgetInode", map[string]interface{}{
		"inode": op.Inode,
		"n":     op.N,
	})

	return nil
}

func (s *fileSystem) BatchForget(ctx context.Context, op *fuseops.BatchForgetOp) error {
	s.log.Trace("FUSE.BatchForget", map[string]interface{}{
		"entries": len(op.Entries),
	})

	return nil
}

func (s *fileSystem) MkDir(ctx context.Context, op *fuseops.MkDirOp) error {
	s.log.Debug("FUSE.MkDir", map[string]interface{}{
		"parent":    op.Parent,
		"name":      op.Name,
		"mode":      op.Mode,
		"opContext": op.OpContext,
	})

	return s.call(ctx, OpMkDir, func() error {
		entry, err := s.fs.MkDir(ctx, op.Parent, op.Name, uint32(op.Mode))
		if err != nil {
			return err
		}

		fillEntry(&op.Entry, entry)

		return nil
	})
}

func (s *fileSystem) MkNode(ctx context.Context, op *fuseops.MkNodeOp) error {
	s.log.Debug("FUSE.MkNode", map[string]interface{}{
		"parent":    op.Parent,
		"name":      op.Name,
		"mode":      op.Mode,
		"opContext": op.OpContext,
	})

	return s.call(ctx, OpMkNod, func() error {
		entry, err := s.fs.MkNod(ctx, op.Parent, op.Name, uint32(op.Mode), op.Rdev)
		if err != nil {
			return err
		}

		fillEntry(&op.Entry, entry)

		return nil
	})
}

func (s *fileSystem) CreateFile(ctx context.Context, op *fuseops.CreateFileOp) error {
	s.log.Debug("FUSE.CreateFile", map[string]interface{}{
		"parent":    op.Parent,
		"name":      op.Name,
		"mode":      op.Mode,
		"opContext": op.OpContext,
	})

	return s.call(ctx, OpCreate, func() error {
		entry, opened, err := s.fs.Create(ctx, op.Parent, op.Name, uint32(op.Mode), 0)
		if err != nil {
			return err
		}

		fillEntry(&op.Entry, entry)
		op.Handle = opened.Handle

		return nil
	})
}

func (s *fileSystem) CreateLink(ctx context.Context, op *fuseops.CreateLinkOp) error {
	s.log.Debug("FUSE.CreateLink", map[string]interface{}{
		"parent":    op.Parent,
		"name":      op.Name,
		"target":    op.Target,
		"opContext": op.OpContext,
	})

	return s.call(ctx, OpLink, func() error {
		entry, err := s.fs.Link(ctx, op.Target, op.Parent, op.Name)
		if err != nil {
			return err
		}

		fillEntry(&op.Entry, entry)

		return nil
	})
}

func (s *fileSystem) CreateSymlink(ctx context.Context, op *fuseops.CreateSymlinkOp) error {
	s.log.Debug("FUSE.CreateSymlink", map[string]interface{}{
		"parent":    op.Parent,
		"name":      op.Name,
		"target":    op.Target,
		"opContext": op.OpContext,
	})

	return s.call(ctx, OpSymlink, func() error {
		entry, err := s.fs.Symlink(ctx, op.Parent, op.Name, op.Target)
		if err != nil {
			return err
		}

		fillEntry(&op.Entry, entry)

		return nil
	})
}

func (s *fileSystem) Rename(ctx context.Context, op *fuseops.RenameOp) error {
	s.log.Debug("FUSE.Rename", map[string]interface{}{
		"oldParent": op.OldParent,
		"oldName":   op.OldName,
		"newParent": op.NewParent,
		"newName":   op.NewName,
		"opContext": op.OpContext,
	})

	return s.call(ctx, OpRename, func() error {
		return s.fs.Rename(ctx, op.OldParent, op.OldName, op.NewParent, op.NewName)
	})
}

func (s *fileSystem) RmDir(ctx context.Context, op *fuseops.RmDirOp) error {
	s.log.Debug("FUSE.RmDir", map[string]interface{}{
		"parent":    op.Parent,
		"name":      op.Name,
		"opContext": op.OpContext,
	})

	return s.call(ctx, OpRmDir, func() error {
		return s.fs.RmDir(ctx, op.Parent, op.Name)
	})
}

func (s *fileSystem) Unlink(ctx context.Context, op *fuseops.UnlinkOp) error {
	s.log.Debug("FUSE.Unlink", map[string]interface{}{
		"parent":    op.Parent,
		"name":      op.Name,
		"opContext": op.OpContext,
	})

	return s.call(ctx, OpUnlink, func() error {
		return s.fs.Unlink(ctx, op.Parent, op.Name)
	})
}

func (s *fileSystem) OpenDir(ctx context.Context, op *fuseops.OpenDirOp) error {
	s.log.Debug("FUSE.OpenDir", map[string]interface{}{
		"inode":     op.Inode,
		"opContext": op.OpContext,
	})

	return s.call(ctx, OpOpenDir, func() error {
		opened, err := s.fs.OpenDir(ctx, op.Inode, 0)
		if err != nil {
			return err
		}

		op.Handle = opened.Handle

		return nil
	})
}

func (s *fileSystem) ReadDir(ctx context.Context, op *fuseops.ReadDirOp) error {
	s.log.Debug("FUSE.ReadDir", map[string]interface{}{
		"inode":     op.Inode,
		"handle":    op.Handle,
		"offset":    op.Offset,
		"opContext": op.OpContext,
	})

	return s.call(ctx, OpReadDir, func() error {
		entries, err := s.fs.ReadDir(ctx, op.Inode, op.Handle, op.Offset)
		if err != nil {
			return err
		}

		for _, entry := range entries {
			n := fuseutil.WriteDirent(op.Dst[op.BytesRead:], entry)
			if n == 0 {
				break
			}

			op.BytesRead += n
		}

		return nil
	})
}

func (s *fileSystem) ReleaseDirHandle(ctx context.Context, op *fuseops.ReleaseDirHandleOp) error {
	s.log.Debug("FUSE.ReleaseDirHandle", map[string]interface{}{
		"handle":    op.Handle,
		"opContext": op.OpContext,
	})

	return s.call(ctx, OpReleaseDir, func() error {
		return s.fs.ReleaseDir(ctx, 0, op.Handle, 0)
	})
}

func (s *fileSystem) OpenFile(ctx context.Context, op *fuseops.OpenFileOp) error {
	s.log.Debug("FUSE.OpenFile", map[string]interface{}{
		"inode":     op.Inode,
		"flags":     uint32(op.OpenFlags),
		"opContext": op.OpContext,
	})

	return s.call(ctx, OpOpen, func() error {
		opened, err := s.fs.Open(ctx, op.Inode, uint32(op.OpenFlags))
		if err != nil {
			return err
		}

		op.Handle = opened.Handle

		return nil
	})
}

func (s *fileSystem) ReadFile(ctx context.Context, op *fuseops.ReadFileOp) error {
	s.log.Debug("FUSE.ReadFile", map[string]interface{}{
		"inode":     op.Inode,
		"handle":    op.Handle,
		"offset":    op.Offset,
		"size":      op.Size,
		"opContext": op.OpContext,
	})

	return s.call(ctx, OpRead, func() error {
		size := len(op.Dst)
		if op.Dst == nil {
			size = int(op.Size)
		}

		data, err := s.fs.Read(ctx, op.Inode, op.Handle, op.Offset, uint32(size))
		if err != nil {
			return err
		}

		if op.Dst == nil {
			op.Data = [][]byte{data}
			op.BytesRead = len(data)

			return nil
		}

		op.BytesRead = copy(op.Dst, data)

		return nil
	})
}

func (s *fileSystem) WriteFile(ctx context.Context, op *fuseops.WriteFileOp) error {
	s.log.Debug("FUSE.WriteFile", map[string]interface{}{
		"inode":     op.Inode,
		"handle":    op.Handle,
		"offset":    op.Offset,
		"opContext": op.OpContext,
	})

	return s.call(ctx, OpWrite, func() error {
		_, err := s.fs.Write(ctx, op.Inode, op.Handle, op.Offset, op.Data, 0)

		return err
	})
}

func (s *fileSystem) SyncFile(ctx context.Context, op *fuseops.SyncFileOp) error {
	s.log.Debug("FUSE.SyncFile", map[string]interface{}{
		"inode":     op.Inode,
		"handle":    op.Handle,
		"opContext": op.OpContext,
	})

	return s.call(ctx, OpFsync, func() error {
		return s.fs.Fsync(ctx, op.Inode, op.Handle, false)
	})
}

func (s *fileSystem) FlushFile(ctx context.Context, op *fuseops.FlushFileOp) error {
	s.log.Debug("FUSE.FlushFile", map[string]interface{}{
		"inode":     op.Inode,
		"handle":    op.Handle,
		"opContext": op.OpContext,
	})

	return s.call(ctx, OpFlush, func() error {
		return s.fs.Flush(ctx, op.Inode, op.Handle, 0)
	})
}

func (s *fileSystem) ReleaseFileHandle(ctx context.Context, op *fuseops.ReleaseFileHandleOp) error {
	s.log.Debug("FUSE.ReleaseFileHandle", map[string]interface{}{
		"handle":    op.Handle,
		"opContext": op.OpContext,
	})

	return s.call(ctx, OpRelease, func() error {
		return s.fs.Release(ctx, 0, op.Handle, 0, 0, false)
	})
}

func (s *fileSystem) ReadSymlink(ctx context.Context, op *fuseops.ReadSymlinkOp) error {
	s.log.Debug("FUSE.ReadSymlink", map[string]interface{}{
		"inode":     op.Inode,
		"opContext": op.OpContext,
	})

	return s.call(ctx, OpReadLink, func() error {
		target, err := s.fs.ReadLink(ctx, op.Inode)
		if err != nil {
			return err
		}

		op.Target = target

		return nil
	})
}

func (s *fileSystem) RemoveXattr(ctx context.Context, op *fuseops.RemoveXattrOp) error {
	s.log.Debug("FUSE.RemoveXattr", map[string]interface{}{
		"inode":     op.Inode,
		"name":      op.Name,
		"opContext": op.OpContext,
	})

	return s.call(ctx, OpRemoveXattr, func() error {
		return s.fs.RemoveXattr(ctx, op.Inode, op.Name)
	})
}

func (s *fileSystem) GetXattr(ctx context.Context, op *fuseops.GetXattrOp) error {
	s.log.Debug("FUSE.GetXattr", map[string]interface{}{
		"inode":     op.Inode,
		"name":      op.Name,
		"opContext": op.OpContext,
	})

	return s.call(ctx, OpGetXattr, func() error {
		value, err := s.fs.GetXattr(ctx, op.Inode, op.Name, uint32(len(op.Dst)))
		if err != nil {
			return err
		}

		if len(op.Dst) > 0 && len(value) > len(op.Dst) {
			return syscall.ERANGE
		}

		op.BytesRead = copy(op.Dst, value)
		if len(op.Dst) == 0 {
			op.BytesRead = len(value)
		}

		return nil
	})
}

func (s *fileSystem) ListXattr(ctx context.Context, op *fuseops.ListXattrOp) error {
	s.log.Debug("FUSE.ListXattr", map[string]interface{}{
		"inode":     op.Inode,
		"opContext": op.OpContext,
	})

	return s.call(ctx, OpListXattr, func() error {
		names, err := s.fs.ListXattr(ctx, op.Inode, uint32(len(op.Dst)))
		if err != nil {
			return err
		}

		if len(op.Dst) > 0 && len(names) > len(op.Dst) {
			return syscall.ERANGE
		}

		op.BytesRead = copy(op.Dst, names)
		if len(op.Dst) == 0 {
			op.BytesRead = len(names)
		}

		return nil
	})
}

func (s *fileSystem) SetXattr(ctx context.Context, op *fuseops.SetXattrOp) error {
	s.log.Debug("FUSE.SetXattr", map[string]interface{}{
		"inode":     op.Inode,
		"name":      op.Name,
		"flags":     op.Flags,
		"opContext": op.OpContext,
	})

	return s.call(ctx, OpSetXattr, func() error {
		return s.fs.SetXattr(ctx, op.Inode, op.Name, op.Value, op.Flags)
	})
}

func (s *fileSystem) Destroy() {
	s.log.Debug("FUSE.Destroy", nil)

	if d, ok := s.fs.(interface{ Destroy() }); ok {
		d.Destroy()
	}
}
