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

// Package pathfs holds the bijection between fuseops.InodeID and the
// backing-storage path it names. Inode IDs are assigned once, on first
// lookup or creation, and kept until the path is removed (unlink/rmdir) or
// the mount ends; kernel lookup counts are not tracked.
package pathfs

import (
	"fmt"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/syncutil"
)

// Registry is the live inode ID <-> relative path bijection for one mount.
//
// INVARIANT: for all k in idByPath, pathByID[idByPath[k]] == k
// INVARIANT: for all k in pathByID, idByPath[pathByID[k]] == k
// INVARIANT: fuseops.RootInodeID is always present and maps to ""
// INVARIANT: for all keys k in pathByID, fuseops.RootInodeID <= k < nextID
type Registry struct {
	mu syncutil.InvariantMutex

	pathByID map[fuseops.InodeID]string   // GUARDED_BY(mu)
	idByPath map[string]fuseops.InodeID   // GUARDED_BY(mu)
	nextID   fuseops.InodeID              // GUARDED_BY(mu)
}

// New returns a registry with only the mount root (the empty relative path)
// registered under fuseops.RootInodeID.
func New() *Registry {
	r := &Registry{
		pathByID: map[fuseops.InodeID]string{fuseops.RootInodeID: ""},
		idByPath: map[string]fuseops.InodeID{"": fuseops.RootInodeID},
		nextID:   fuseops.RootInodeID + 1,
	}
	r.mu = syncutil.NewInvariantMutex(r.checkInvariants)
	return r
}

func (r *Registry) checkInvariants() {
	for id, path := range r.pathByID {
		if got := r.idByPath[path]; got != id {
			panic(fmt.Sprintf("pathfs: pathByID[%d] = %q but idByPath[%q] = %d", id, path, path, got))
		}
		if id < fuseops.RootInodeID || id >= r.nextID {
			panic(fmt.Sprintf("pathfs: illegal inode ID %d (nextID %d)", id, r.nextID))
		}
	}
	if r.pathByID[fuseops.RootInodeID] != "" {
		panic("pathfs: root inode must map to the empty path")
	}
}

// Fresh allocates a brand new inode ID without registering it against any
// path. Used for inodes the registry doesn't itself need to track, such as
// directory handle IDs that happen to share the HandleID space elsewhere.
func (r *Registry) Fresh() fuseops.InodeID {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID
	r.nextID++
	return id
}

// Register assigns a fresh inode ID to path, or returns the one it already
// has if path is already known.
func (r *Registry) Register(path string) fuseops.InodeID {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.idByPath[path]; ok {
		return id
	}

	id := r.nextID
	r.nextID++
	r.pathByID[id] = path
	r.idByPath[path] = id
	return id
}

// LookupOrCreate is Register under the name the dispatcher's LookUpInode
// handler uses: it returns both the ID and whether it was newly created.
func (r *Registry) LookupOrCreate(path string) (id fuseops.InodeID, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.idByPath[path]; ok {
		return id, false
	}

	id = r.nextID
	r.nextID++
	r.pathByID[id] = path
	r.idByPath[path] = id
	return id, true
}

// PathOf returns the path registered for id, and whether it was found.
func (r *Registry) PathOf(id fuseops.InodeID) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	path, ok := r.pathByID[id]
	return path, ok
}

// InodeOf returns the inode ID registered for path, and whether it was
// found.
func (r *Registry) InodeOf(path string) (fuseops.InodeID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.idByPath[path]
	return id, ok
}

// Rename moves the registration for oldPath (if any) to newPath. Any
// pre-existing registration at newPath is evicted, matching POSIX rename's
// clobber semantics; the kernel does its own ForgetInode bookkeeping on the
// clobbered name's prior inode.
func (r *Registry) Rename(oldPath, newPath string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.idByPath[oldPath]
	if !ok {
		return
	}

	if oldID, clobbered := r.idByPath[newPath]; clobbered {
		delete(r.pathByID, oldID)
	}

	delete(r.idByPath, oldPath)
	r.pathByID[id] = newPath
	r.idByPath[newPath] = id
}

// RenameSubtree rewrites every registered path with the prefix oldPrefix to
// carry newPrefix instead. Used when a directory is renamed: every
// descendant's already-allocated inode ID must keep pointing at the same
// entity under its new path, or fuseops.InodeID values the kernel is still
// holding (from earlier LookUpInode replies) would outlive their mapping.
func (r *Registry) RenameSubtree(oldPrefix, newPrefix string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	type move struct {
		id      fuseops.InodeID
		oldPath string
		newPath string
	}
	var moves []move

	for id, path := range r.pathByID {
		if path == oldPrefix || isUnder(path, oldPrefix) {
			moves = append(moves, move{id: id, oldPath: path, newPath: newPrefix + path[len(oldPrefix):]})
		}
	}

	for _, m := range moves {
		delete(r.idByPath, m.oldPath)
		r.pathByID[m.id] = m.newPath
		r.idByPath[m.newPath] = m.id
	}
}

func isUnder(path, prefix string) bool {
	return len(path) > len(prefix) && path[len(prefix)] == '/' && path[:len(prefix)] == prefix
}

// Remove drops path's registration entirely. Used once the host file or
// directory has been unlinked or removed.
func (r *Registry) Remove(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.idByPath[path]
	if !ok {
		return
	}
	delete(r.idByPath, path)
	delete(r.pathByID, id)
}
