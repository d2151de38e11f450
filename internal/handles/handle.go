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

// Package handles tracks open file handles: the underlying *os.File plus an
// advisory cursor offset for callers that use the Seek-based API.
package handles

import (
	"os"
	"sync"
)

// Handle is one open instance of a file. The kernel may hold several
// concurrent handles on the same inode; each gets its own Handle and cursor.
type Handle struct {
	mu sync.Mutex

	file *os.File

	// offset is an advisory cursor maintained for Seek/Read/Write callers.
	// ReadAt/WriteAt never consult it: positional I/O is how driftfs actually
	// serves kernel read/write requests, since the kernel hands every
	// FUSE read/write an explicit offset rather than assuming a shared
	// sequential stream. This field only matters to code that chooses to use
	// the Seek-based API instead.
	offset int64
}

// New wraps file. There is no write buffering: the kernel's WriteFileOp
// always carries an explicit offset, and handles on the same inode may be
// written out of order across concurrent callers, so a sequential
// bufio.Writer has no correct place in the positional write path.
func New(file *os.File) *Handle {
	return &Handle{file: file}
}

// File returns the underlying host file.
func (h *Handle) File() *os.File {
	return h.file
}

// ReadAt reads len(buf) bytes starting at off, bypassing the advisory cursor.
func (h *Handle) ReadAt(buf []byte, off int64) (int, error) {
	return h.file.ReadAt(buf, off)
}

// WriteAt writes buf starting at off, bypassing the advisory cursor.
func (h *Handle) WriteAt(buf []byte, off int64) (int, error) {
	return h.file.WriteAt(buf, off)
}

// Seek repositions the advisory cursor, mirroring os.File.Seek's whence
// semantics, and reports the resulting absolute offset.
func (h *Handle) Seek(offset int64, whence int) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	abs, err := h.file.Seek(offset, whence)
	if err != nil {
		return 0, err
	}
	h.offset = abs
	return abs, nil
}

// Read reads from the advisory cursor, advancing it by the number of bytes
// read.
func (h *Handle) Read(buf []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	n, err := h.file.Read(buf)
	h.offset += int64(n)
	return n, err
}

// Write appends buf at the advisory cursor and advances it.
func (h *Handle) Write(buf []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	n, err := h.file.Write(buf)
	h.offset += int64(n)
	return n, err
}

// Flush asks the host to fsync the file. With no write buffer of its own,
// this is the same guarantee Sync makes; it exists as its own method so a
// caller that only wants "everything I've written is visible on disk" (such
// as Table.FlushAllForInode, ahead of a lookup or getattr reply) doesn't
// need to depend on Sync's name.
func (h *Handle) Flush() error {
	return h.file.Sync()
}

// Sync asks the host to fsync the file.
func (h *Handle) Sync() error {
	return h.file.Sync()
}

// Close closes the underlying host file.
func (h *Handle) Close() error {
	return h.file.Close()
}
