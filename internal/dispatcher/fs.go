// Copyright 2026 The driftfs Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package dispatcher implements fuseutil.FileSystem: it is the passthrough
// translation layer between kernel requests and the backing storage
// directory, driving the path registry, handle table, and project-activity
// tracker for every entry point the kernel can send.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
	"golang.org/x/sys/unix"

	"github.com/driftfs/driftfs/internal/activity"
	"github.com/driftfs/driftfs/internal/attrs"
	"github.com/driftfs/driftfs/internal/errmap"
	"github.com/driftfs/driftfs/internal/handles"
	"github.com/driftfs/driftfs/internal/logger"
	"github.com/driftfs/driftfs/internal/pathfs"
)

// attributeTTL is how long the kernel may cache an inode's attributes before
// asking again.
const attributeTTL = 1 * time.Second

// generation is the NFS-style generation number driftfs hands back on every
// entry reply. Inodes are never reused within a single mount's lifetime, so
// a constant generation is sufficient.
const generation fuseops.GenerationNumber = 0

// FileSystem is the dispatcher. It embeds NotImplementedFileSystem so that
// new fuseops methods added upstream default to ENOSYS rather than breaking
// the build.
type FileSystem struct {
	fuseutil.NotImplementedFileSystem

	storageRoot string
	mountPoint  string
	registry    *pathfs.Registry
	handles     *handles.Table
	tracker     *activity.Tracker
	followers   *activity.Followers

	mu sync.Mutex // guards dirHandles; see opendir/releasedir
	// dirHandles maps an open directory handle to the project it was opened
	// under (empty for the mount root), so release can mirror open's counter
	// increment without re-deriving it from a since-renamed path.
	dirHandles map[fuseops.HandleID]string
}

// New returns a dispatcher rooted at storageRoot, the canonicalized backing
// directory, projected at mountPoint (the kernel-visible FUSE mount path —
// used only to compute the prefix a follower watches a process's cwd
// against, never to resolve host paths). tracker and followers are shared
// with the followers' background goroutines; the tracker's lock index is the
// one the HTTP lock surface serves.
func New(storageRoot, mountPoint string, registry *pathfs.Registry, handleTable *handles.Table, tracker *activity.Tracker, followers *activity.Followers) *FileSystem {
	return &FileSystem{
		storageRoot: storageRoot,
		mountPoint:  mountPoint,
		registry:    registry,
		handles:     handleTable,
		tracker:     tracker,
		followers:   followers,
		dirHandles:  make(map[fuseops.HandleID]string),
	}
}

func (fs *FileSystem) hostPath(relPath string) string {
	if relPath == "" {
		return fs.storageRoot
	}
	return filepath.Join(fs.storageRoot, relPath)
}

func join(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "/" + name
}

// projectOf returns relPath's canonical project name: its first path
// component. The mount root itself has no project.
func projectOf(relPath string) string {
	if relPath == "" {
		return ""
	}
	if i := strings.IndexByte(relPath, '/'); i >= 0 {
		return relPath[:i]
	}
	return relPath
}

func (fs *FileSystem) isRoot(id fuseops.InodeID) bool {
	return id == fuseops.RootInodeID
}

// mountPathFor returns the kernel-visible path a follower watching project
// should treat as its mount prefix.
func (fs *FileSystem) mountPathFor(project string) string {
	return filepath.Join(fs.mountPoint, project)
}

// Init is a no-op beyond announcing the mount.
func (fs *FileSystem) Init(ctx context.Context, op *fuseops.InitOp) (err error) {
	logger.Infof("dispatcher: filesystem initialized")
	return nil
}

func (fs *FileSystem) statAttrs(hostPath string) (fuseops.InodeAttributes, error) {
	fi, err := os.Lstat(hostPath)
	if err != nil {
		return fuseops.InodeAttributes{}, err
	}
	return attrs.Convert(fi)
}

// LookUpInode computes the child's path, assigns or reuses its inode,
// schedules a project-activity follower for the calling process, flushes any
// open handles on the resulting inode (so a just-written file is observed
// consistently), then replies with fresh host metadata.
func (fs *FileSystem) LookUpInode(ctx context.Context, op *fuseops.LookUpInodeOp) (err error) {
	parentPath, ok := fs.registry.PathOf(op.Parent)
	if !ok {
		panic(fmt.Sprintf("driftfs: dispatcher: lookup under unregistered parent inode %d", op.Parent))
	}

	childPath := join(parentPath, op.Name)
	childID, _ := fs.registry.LookupOrCreate(childPath)

	if project := projectOf(childPath); project != "" {
		pid := int32(op.OpContext.Pid)
		fs.followers.Start(ctx, pid, project, fs.mountPathFor(project), func() {
			fs.tracker.Inc(ctx, project)
		})
	}

	if err = errmap.To(fs.handles.FlushAllForInode(childID)); err != nil {
		return err
	}

	attrs, err := fs.statAttrs(fs.hostPath(childPath))
	if err != nil {
		return errmap.To(err)
	}

	op.Entry = fuseops.ChildInodeEntry{
		Child:                childID,
		Generation:           generation,
		Attributes:           attrs,
		AttributesExpiration: time.Now().Add(attributeTTL),
		EntryExpiration:      time.Now().Add(attributeTTL),
	}
	return nil
}

// GetInodeAttributes flushes every open handle on the inode, then returns
// fresh host metadata.
func (fs *FileSystem) GetInodeAttributes(ctx context.Context, op *fuseops.GetInodeAttributesOp) (err error) {
	path, ok := fs.registry.PathOf(op.Inode)
	if !ok {
		panic(fmt.Sprintf("driftfs: dispatcher: getattr on unregistered inode %d", op.Inode))
	}

	if err = errmap.To(fs.handles.FlushAllForInode(op.Inode)); err != nil {
		return err
	}

	a, err := fs.statAttrs(fs.hostPath(path))
	if err != nil {
		return errmap.To(err)
	}

	op.Attributes = a
	op.AttributesExpiration = time.Now().Add(attributeTTL)
	return nil
}

// fileTimesFor resolves the "now or a specific instant" choice the kernel
// hands us for atime/mtime into the (atime, mtime) pair os.Chtimes expects,
// keeping the file's current value for whichever one is nil.
func fileTimesFor(atime, mtime *time.Time, fi os.FileInfo) (time.Time, time.Time) {
	at := statAtime(fi)
	mt := fi.ModTime()
	if atime != nil {
		at = *atime
	}
	if mtime != nil {
		mt = *mtime
	}
	return at, mt
}

func statAtime(fi os.FileInfo) time.Time {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return fi.ModTime()
	}
	return time.Unix(int64(st.Atim.Sec), int64(st.Atim.Nsec))
}

// SetInodeAttributes applies any requested times, permission bits, length,
// and ownership through path-based host calls (no file is opened), then
// returns fresh host attributes. Unlike GetInodeAttributes it does not flush
// open handles first.
func (fs *FileSystem) SetInodeAttributes(ctx context.Context, op *fuseops.SetInodeAttributesOp) (err error) {
	path, ok := fs.registry.PathOf(op.Inode)
	if !ok {
		panic(fmt.Sprintf("driftfs: dispatcher: setattr on unregistered inode %d", op.Inode))
	}
	hostPath := fs.hostPath(path)

	if op.Atime != nil || op.Mtime != nil {
		fi, statErr := os.Lstat(hostPath)
		if statErr != nil {
			return errmap.To(statErr)
		}
		at, mt := fileTimesFor(op.Atime, op.Mtime, fi)
		if chErr := os.Chtimes(hostPath, at, mt); chErr != nil {
			return errmap.To(chErr)
		}
	}

	if op.Mode != nil {
		if chErr := os.Chmod(hostPath, op.Mode.Perm()); chErr != nil {
			return errmap.To(chErr)
		}
	}

	if op.Size != nil {
		if trErr := os.Truncate(hostPath, int64(*op.Size)); trErr != nil {
			return errmap.To(trErr)
		}
	}

	if op.Uid != nil || op.Gid != nil {
		uid, gid := -1, -1
		if op.Uid != nil {
			uid = int(*op.Uid)
		}
		if op.Gid != nil {
			gid = int(*op.Gid)
		}
		if chErr := os.Chown(hostPath, uid, gid); chErr != nil {
			return errmap.To(chErr)
		}
	}

	a, err := fs.statAttrs(hostPath)
	if err != nil {
		return errmap.To(err)
	}
	op.Attributes = a
	op.AttributesExpiration = time.Now().Add(attributeTTL)
	return nil
}

// ForgetInode is a no-op: the registry keeps every path/inode pair for the
// life of the mount rather than tracking kernel lookup counts.
func (fs *FileSystem) ForgetInode(ctx context.Context, op *fuseops.ForgetInodeOp) (err error) {
	return nil
}

// MkDir creates the directory at the host level, applies the requested
// mode, and replies as LookUpInode would.
func (fs *FileSystem) MkDir(ctx context.Context, op *fuseops.MkDirOp) (err error) {
	parentPath, ok := fs.registry.PathOf(op.Parent)
	if !ok {
		panic(fmt.Sprintf("driftfs: dispatcher: mkdir under unregistered parent inode %d", op.Parent))
	}
	childPath := join(parentPath, op.Name)
	hostPath := fs.hostPath(childPath)

	if mkErr := os.Mkdir(hostPath, op.Mode.Perm()); mkErr != nil {
		return errmap.To(mkErr)
	}

	childID := fs.registry.Register(childPath)
	a, err := fs.statAttrs(hostPath)
	if err != nil {
		return errmap.To(err)
	}

	op.Entry = fuseops.ChildInodeEntry{
		Child:                childID,
		Generation:           generation,
		Attributes:           a,
		AttributesExpiration: time.Now().Add(attributeTTL),
		EntryExpiration:      time.Now().Add(attributeTTL),
	}
	return nil
}

// classifyOpenFlags translates the OS access-mode bits the kernel sent into
// the flags to pass to os.OpenFile. O_TRUNC is carried through to the host
// open so truncation happens atomically before the handle is ever
// registered. The path-only "search" flag is not supported and is treated
// as a fatal programming error, per the per-operation contract.
func classifyOpenFlags(flags uint32) int {
	if flags&unix.O_PATH != 0 {
		panic("driftfs: dispatcher: open with O_PATH (search-only) is not supported")
	}

	trunc := 0
	if flags&syscall.O_TRUNC != 0 {
		trunc = os.O_TRUNC
	}

	switch flags & syscall.O_ACCMODE {
	case syscall.O_RDONLY:
		return os.O_RDONLY | trunc
	case syscall.O_WRONLY:
		if flags&syscall.O_APPEND != 0 {
			return os.O_WRONLY | os.O_APPEND | trunc
		}
		return os.O_WRONLY | trunc
	case syscall.O_RDWR:
		return os.O_RDWR | trunc
	default:
		panic(fmt.Sprintf("driftfs: dispatcher: unsupported open access mode in flags %#o", flags))
	}
}

func (fs *FileSystem) registerHandle(inode fuseops.InodeID, file *os.File) fuseops.HandleID {
	h := handles.New(file)
	return fs.handles.Insert(inode, h)
}

// OpenFile opens the host file according to the translated access mode,
// registers a handle, and increments the project counter unless inode is
// the mount root.
func (fs *FileSystem) OpenFile(ctx context.Context, op *fuseops.OpenFileOp) (err error) {
	path, ok := fs.registry.PathOf(op.Inode)
	if !ok {
		panic(fmt.Sprintf("driftfs: dispatcher: open on unregistered inode %d", op.Inode))
	}

	hostFlags := classifyOpenFlags(uint32(op.Flags))
	file, openErr := os.OpenFile(fs.hostPath(path), hostFlags, 0)
	if openErr != nil {
		return errmap.To(openErr)
	}

	op.Handle = fs.registerHandle(op.Inode, file)

	if !fs.isRoot(op.Inode) {
		fs.tracker.Inc(ctx, projectOf(path))
	}
	return nil
}

// CreateFile creates the host file (failing if it already exists),
// registers the resulting inode, opens a handle exactly as OpenFile would,
// and increments the project counter.
func (fs *FileSystem) CreateFile(ctx context.Context, op *fuseops.CreateFileOp) (err error) {
	parentPath, ok := fs.registry.PathOf(op.Parent)
	if !ok {
		panic(fmt.Sprintf("driftfs: dispatcher: create under unregistered parent inode %d", op.Parent))
	}
	childPath := join(parentPath, op.Name)
	hostPath := fs.hostPath(childPath)

	hostFlags := classifyOpenFlags(uint32(op.Flags))
	file, openErr := os.OpenFile(hostPath, hostFlags|os.O_CREATE|os.O_EXCL, op.Mode.Perm())
	if openErr != nil {
		return errmap.To(openErr)
	}

	childID := fs.registry.Register(childPath)
	a, statErr := fs.statAttrs(hostPath)
	if statErr != nil {
		file.Close()
		return errmap.To(statErr)
	}

	op.Entry = fuseops.ChildInodeEntry{
		Child:                childID,
		Generation:           generation,
		Attributes:           a,
		AttributesExpiration: time.Now().Add(attributeTTL),
		EntryExpiration:      time.Now().Add(attributeTTL),
	}
	op.Handle = fs.registerHandle(childID, file)

	if project := projectOf(childPath); project != "" {
		fs.tracker.Inc(ctx, project)
	}
	return nil
}

// CreateSymlink creates a host symlink and replies as LookUpInode would.
func (fs *FileSystem) CreateSymlink(ctx context.Context, op *fuseops.CreateSymlinkOp) (err error) {
	parentPath, ok := fs.registry.PathOf(op.Parent)
	if !ok {
		panic(fmt.Sprintf("driftfs: dispatcher: symlink under unregistered parent inode %d", op.Parent))
	}
	childPath := join(parentPath, op.Name)
	hostPath := fs.hostPath(childPath)

	if symErr := os.Symlink(op.Target, hostPath); symErr != nil {
		return errmap.To(symErr)
	}

	childID := fs.registry.Register(childPath)
	a, statErr := fs.statAttrs(hostPath)
	if statErr != nil {
		return errmap.To(statErr)
	}

	op.Entry = fuseops.ChildInodeEntry{
		Child:                childID,
		Generation:           generation,
		Attributes:           a,
		AttributesExpiration: time.Now().Add(attributeTTL),
		EntryExpiration:      time.Now().Add(attributeTTL),
	}
	return nil
}

// ReadSymlink reads the host symlink's target bytes.
func (fs *FileSystem) ReadSymlink(ctx context.Context, op *fuseops.ReadSymlinkOp) (err error) {
	path, ok := fs.registry.PathOf(op.Inode)
	if !ok {
		panic(fmt.Sprintf("driftfs: dispatcher: readlink on unregistered inode %d", op.Inode))
	}

	target, rdErr := os.Readlink(fs.hostPath(path))
	if rdErr != nil {
		return errmap.To(rdErr)
	}
	op.Target = target
	return nil
}

// RmDir removes an empty host directory.
func (fs *FileSystem) RmDir(ctx context.Context, op *fuseops.RmDirOp) (err error) {
	parentPath, ok := fs.registry.PathOf(op.Parent)
	if !ok {
		panic(fmt.Sprintf("driftfs: dispatcher: rmdir under unregistered parent inode %d", op.Parent))
	}
	childPath := join(parentPath, op.Name)

	if rmErr := os.Remove(fs.hostPath(childPath)); rmErr != nil {
		return errmap.To(rmErr)
	}
	fs.registry.Remove(childPath)
	return nil
}

// Unlink removes a host file.
func (fs *FileSystem) Unlink(ctx context.Context, op *fuseops.UnlinkOp) (err error) {
	parentPath, ok := fs.registry.PathOf(op.Parent)
	if !ok {
		panic(fmt.Sprintf("driftfs: dispatcher: unlink under unregistered parent inode %d", op.Parent))
	}
	childPath := join(parentPath, op.Name)

	if rmErr := os.Remove(fs.hostPath(childPath)); rmErr != nil {
		return errmap.To(rmErr)
	}
	fs.registry.Remove(childPath)
	return nil
}

// Rename performs the host's flags-aware rename (supporting the kernel's
// exchange and no-replace bits verbatim), then updates the registry to
// match.
func (fs *FileSystem) Rename(ctx context.Context, op *fuseops.RenameOp) (err error) {
	oldParentPath, ok := fs.registry.PathOf(op.OldParent)
	if !ok {
		panic(fmt.Sprintf("driftfs: dispatcher: rename from unregistered parent inode %d", op.OldParent))
	}
	newParentPath, ok := fs.registry.PathOf(op.NewParent)
	if !ok {
		panic(fmt.Sprintf("driftfs: dispatcher: rename to unregistered parent inode %d", op.NewParent))
	}

	oldPath := join(oldParentPath, op.OldName)
	newPath := join(newParentPath, op.NewName)

	if rnErr := unix.Renameat2(unix.AT_FDCWD, fs.hostPath(oldPath), unix.AT_FDCWD, fs.hostPath(newPath), int(op.Flags)); rnErr != nil {
		return errmap.To(rnErr)
	}

	if fi, statErr := os.Lstat(fs.hostPath(newPath)); statErr == nil && fi.IsDir() {
		fs.registry.RenameSubtree(oldPath, newPath)
	} else {
		fs.registry.Rename(oldPath, newPath)
	}
	return nil
}

// OpenDir registers a directory handle: the host directory is re-listed on
// every ReadDir call, so the handle carries no listing state, only the
// project it was opened under (for ReleaseDirHandle's counter decrement).
func (fs *FileSystem) OpenDir(ctx context.Context, op *fuseops.OpenDirOp) (err error) {
	path, ok := fs.registry.PathOf(op.Inode)
	if !ok {
		panic(fmt.Sprintf("driftfs: dispatcher: opendir on unregistered inode %d", op.Inode))
	}

	project := ""
	if !fs.isRoot(op.Inode) {
		project = projectOf(path)
		fs.tracker.Inc(ctx, project)
	}

	fs.mu.Lock()
	handleID := fuseops.HandleID(fs.registry.Fresh())
	fs.dirHandles[handleID] = project
	fs.mu.Unlock()

	op.Handle = handleID
	return nil
}

// ReadDir lists the host directory, skipping op.Offset entries, converting
// each to a fuseutil.Dirent, and stopping once the reply buffer is full.
func (fs *FileSystem) ReadDir(ctx context.Context, op *fuseops.ReadDirOp) (err error) {
	path, ok := fs.registry.PathOf(op.Inode)
	if !ok {
		panic(fmt.Sprintf("driftfs: dispatcher: readdir on unregistered inode %d", op.Inode))
	}

	entries, rdErr := os.ReadDir(fs.hostPath(path))
	if rdErr != nil {
		return errmap.To(rdErr)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	offset := int(op.Offset)
	for i := offset; i < len(entries); i++ {
		name := entries[i].Name()
		childPath := join(path, name)
		childID := fs.registry.Register(childPath)

		info, infoErr := entries[i].Info()
		if infoErr != nil {
			return errmap.To(infoErr)
		}
		dType, dtErr := attrs.DirentTypeOf(info.Mode())
		if dtErr != nil {
			return errmap.To(dtErr)
		}

		d := fuseutil.Dirent{
			Offset: fuseops.DirOffset(i + 1),
			Inode:  childID,
			Name:   name,
			Type:   dType,
		}

		n := fuseutil.WriteDirent(op.Dst[op.BytesRead:], d)
		if n == 0 {
			break
		}
		op.BytesRead += n
	}
	return nil
}

// ReleaseDirHandle drops the directory handle's bookkeeping and decrements
// the project counter it was opened under (root excepted).
func (fs *FileSystem) ReleaseDirHandle(ctx context.Context, op *fuseops.ReleaseDirHandleOp) (err error) {
	fs.mu.Lock()
	project, ok := fs.dirHandles[op.Handle]
	delete(fs.dirHandles, op.Handle)
	fs.mu.Unlock()

	if ok && project != "" {
		fs.tracker.Dec(ctx, project)
	}
	return nil
}

// ReadFile reads into the kernel-supplied op.Dst buffer at the absolute
// offset op.Offset using positional I/O, per the implementer note preferring
// pread over a cursor.
func (fs *FileSystem) ReadFile(ctx context.Context, op *fuseops.ReadFileOp) (err error) {
	h := fs.handles.Get(op.Handle)
	if h == nil {
		panic(fmt.Sprintf("driftfs: dispatcher: read on unknown handle %d", op.Handle))
	}

	n, rdErr := h.ReadAt(op.Dst, op.Offset)
	if rdErr != nil && !errors.Is(rdErr, io.EOF) {
		return errmap.To(rdErr)
	}
	op.BytesRead = n
	return nil
}

// WriteFile writes op.Data at the absolute offset op.Offset using
// positional I/O. There is no short-write retry.
func (fs *FileSystem) WriteFile(ctx context.Context, op *fuseops.WriteFileOp) (err error) {
	h := fs.handles.Get(op.Handle)
	if h == nil {
		panic(fmt.Sprintf("driftfs: dispatcher: write on unknown handle %d", op.Handle))
	}

	_, wrErr := h.WriteAt(op.Data, op.Offset)
	if wrErr != nil {
		return errmap.To(wrErr)
	}
	return nil
}

// SyncFile flushes and fsyncs the handle's backing file.
func (fs *FileSystem) SyncFile(ctx context.Context, op *fuseops.SyncFileOp) (err error) {
	h := fs.handles.Get(op.Handle)
	if h == nil {
		panic(fmt.Sprintf("driftfs: dispatcher: sync on unknown handle %d", op.Handle))
	}
	if syncErr := h.Sync(); syncErr != nil {
		return errmap.To(syncErr)
	}
	return nil
}

// FlushFile flushes and fsyncs the handle's backing file. It is not a
// reference-counting event: the handle remains valid afterward.
func (fs *FileSystem) FlushFile(ctx context.Context, op *fuseops.FlushFileOp) (err error) {
	h := fs.handles.Get(op.Handle)
	if h == nil {
		panic(fmt.Sprintf("driftfs: dispatcher: flush on unknown handle %d", op.Handle))
	}
	if syncErr := h.Sync(); syncErr != nil {
		return errmap.To(syncErr)
	}
	return nil
}

// ReleaseFileHandle removes the handle from the open-handle table, flushes
// and syncs it, and decrements the project counter unless the inode is the
// mount root.
func (fs *FileSystem) ReleaseFileHandle(ctx context.Context, op *fuseops.ReleaseFileHandleOp) (err error) {
	h := fs.handles.Get(op.Handle)
	if h == nil {
		panic(fmt.Sprintf("driftfs: dispatcher: release on unknown handle %d", op.Handle))
	}

	inode, path, ok := fs.findHandleInode(op.Handle)
	if !ok {
		panic(fmt.Sprintf("driftfs: dispatcher: release on handle %d with no owning inode", op.Handle))
	}

	if syncErr := h.Sync(); syncErr != nil {
		logger.Errorf("dispatcher: release: sync handle %d: %v", op.Handle, syncErr)
	}
	if closeErr := h.Close(); closeErr != nil {
		logger.Errorf("dispatcher: release: close handle %d: %v", op.Handle, closeErr)
	}
	fs.handles.Delete(inode, op.Handle)

	if !fs.isRoot(inode) {
		fs.tracker.Dec(ctx, projectOf(path))
	}
	return nil
}

// findHandleInode recovers the inode and path a handle was opened against.
func (fs *FileSystem) findHandleInode(id fuseops.HandleID) (fuseops.InodeID, string, bool) {
	inode, ok := fs.handles.InodeOf(id)
	if !ok {
		return 0, "", false
	}
	path, ok := fs.registry.PathOf(inode)
	return inode, path, ok
}
