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
	"os"
	"path/filepath"
	"testing"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHandleForTable(t *testing.T) *Handle {
	t.Helper()
	path := filepath.Join(t.TempDir(), "f")
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return New(f)
}

func TestTableInsertGetDelete(t *testing.T) {
	tbl := NewTable()
	h := newHandleForTable(t)

	id := tbl.Insert(fuseops.InodeID(5), h)
	assert.Same(t, h, tbl.Get(id))
	assert.Equal(t, 1, tbl.Count())

	assert.True(t, tbl.Delete(fuseops.InodeID(5), id))
	assert.Nil(t, tbl.Get(id))
	assert.Equal(t, 0, tbl.Count())
}

func TestTableIDsAreMonotonic(t *testing.T) {
	tbl := NewTable()
	h1 := newHandleForTable(t)
	h2 := newHandleForTable(t)

	id1 := tbl.Insert(fuseops.InodeID(1), h1)
	id2 := tbl.Insert(fuseops.InodeID(1), h2)

	assert.Less(t, id1, id2)
}

func TestTableDeleteUnknownIDReturnsFalse(t *testing.T) {
	tbl := NewTable()
	assert.False(t, tbl.Delete(fuseops.InodeID(1), fuseops.HandleID(99)))
}

func TestFlushAllForInodeFlushesEveryHandle(t *testing.T) {
	tbl := NewTable()

	path1 := filepath.Join(t.TempDir(), "a")
	f1, err := os.OpenFile(path1, os.O_RDWR|os.O_CREATE, 0o644)
	require.NoError(t, err)
	t.Cleanup(func() { f1.Close() })
	h1 := New(f1)

	path2 := filepath.Join(t.TempDir(), "b")
	f2, err := os.OpenFile(path2, os.O_RDWR|os.O_CREATE, 0o644)
	require.NoError(t, err)
	t.Cleanup(func() { f2.Close() })
	h2 := New(f2)

	inode := fuseops.InodeID(7)
	tbl.Insert(inode, h1)
	tbl.Insert(inode, h2)

	_, err = h1.Write([]byte("one"))
	require.NoError(t, err)
	_, err = h2.Write([]byte("two"))
	require.NoError(t, err)

	require.NoError(t, tbl.FlushAllForInode(inode))

	raw1, err := os.ReadFile(path1)
	require.NoError(t, err)
	assert.Equal(t, "one", string(raw1))

	raw2, err := os.ReadFile(path2)
	require.NoError(t, err)
	assert.Equal(t, "two", string(raw2))
}
