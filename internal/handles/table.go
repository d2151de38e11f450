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

package handles

import (
	"sync"

	"github.com/jacobsa/fuse/fuseops"
)

// Table is the set of currently-open file handles, keyed by the HandleID the
// kernel was given back on open/create. It also keeps a reverse index from
// inode to the handles open against it, so a lookup or getattr can flush
// every writer touching a given file without scanning the whole table.
//
// INVARIANT: every id in byInode[inode] is a key in byID.
// INVARIANT: nextID is strictly greater than every key ever handed out.
type Table struct {
	mu sync.Mutex

	byID    map[fuseops.HandleID]*Handle
	byInode map[fuseops.InodeID]map[fuseops.HandleID]struct{}

	nextID fuseops.HandleID
}

// NewTable returns an empty handle table.
func NewTable() *Table {
	return &Table{
		byID:    make(map[fuseops.HandleID]*Handle),
		byInode: make(map[fuseops.InodeID]map[fuseops.HandleID]struct{}),
	}
}

// Insert allocates a fresh HandleID for h, associates it with inode, and
// returns the ID the kernel should be told about.
func (t *Table) Insert(inode fuseops.InodeID, h *Handle) fuseops.HandleID {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextID
	t.nextID++

	t.byID[id] = h
	set, ok := t.byInode[inode]
	if !ok {
		set = make(map[fuseops.HandleID]struct{})
		t.byInode[inode] = set
	}
	set[id] = struct{}{}

	return id
}

// Get returns the handle for id, or nil if it is not open.
func (t *Table) Get(id fuseops.HandleID) *Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.byID[id]
}

// Delete removes id from the table. It is the caller's responsibility to
// Close the handle first. Reports whether id was present.
func (t *Table) Delete(inode fuseops.InodeID, id fuseops.HandleID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.byID[id]; !ok {
		return false
	}
	delete(t.byID, id)

	if set, ok := t.byInode[inode]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(t.byInode, inode)
		}
	}
	return true
}

// FlushAllForInode flushes every open handle against inode, returning the
// first error encountered (if any), after attempting all of them.
func (t *Table) FlushAllForInode(inode fuseops.InodeID) error {
	t.mu.Lock()
	var handlesToFlush []*Handle
	for id := range t.byInode[inode] {
		if h, ok := t.byID[id]; ok {
			handlesToFlush = append(handlesToFlush, h)
		}
	}
	t.mu.Unlock()

	var firstErr error
	for _, h := range handlesToFlush {
		if err := h.Flush(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Count reports how many handles are currently open. Exposed for tests.
func (t *Table) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byID)
}

// InodeOf reports which inode id was opened against, so a release can find
// its way back to the reverse index without the caller having to carry the
// inode alongside every handle.
func (t *Table) InodeOf(id fuseops.HandleID) (fuseops.InodeID, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.byID[id]; !ok {
		return 0, false
	}
	for inode, set := range t.byInode {
		if _, ok := set[id]; ok {
			return inode, true
		}
	}
	return 0, false
}
