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

package pathfs

import (
	"testing"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistryHasRoot(t *testing.T) {
	r := New()
	path, ok := r.PathOf(fuseops.RootInodeID)
	require.True(t, ok)
	assert.Equal(t, "", path)
}

func TestRegisterIsIdempotent(t *testing.T) {
	r := New()
	id1 := r.Register("a/b.txt")
	id2 := r.Register("a/b.txt")
	assert.Equal(t, id1, id2)
	assert.NotEqual(t, fuseops.RootInodeID, id1)
}

func TestLookupOrCreateReportsCreated(t *testing.T) {
	r := New()

	id, created := r.LookupOrCreate("x")
	assert.True(t, created)

	id2, created2 := r.LookupOrCreate("x")
	assert.False(t, created2)
	assert.Equal(t, id, id2)
}

func TestInodeOfAndPathOfRoundTrip(t *testing.T) {
	r := New()
	id := r.Register("dir/file")

	path, ok := r.PathOf(id)
	require.True(t, ok)
	assert.Equal(t, "dir/file", path)

	gotID, ok := r.InodeOf("dir/file")
	require.True(t, ok)
	assert.Equal(t, id, gotID)
}

func TestRenameMovesRegistration(t *testing.T) {
	r := New()
	id := r.Register("old")

	r.Rename("old", "new")

	_, ok := r.InodeOf("old")
	assert.False(t, ok)

	gotID, ok := r.InodeOf("new")
	require.True(t, ok)
	assert.Equal(t, id, gotID)
}

func TestRenameClobbersExistingTarget(t *testing.T) {
	r := New()
	r.Register("victim")
	survivorID := r.Register("mover")

	r.Rename("mover", "victim")

	gotID, ok := r.InodeOf("victim")
	require.True(t, ok)
	assert.Equal(t, survivorID, gotID)

	_, ok = r.InodeOf("mover")
	assert.False(t, ok)
}

func TestRenameSubtreeMovesDescendants(t *testing.T) {
	r := New()
	dirID := r.Register("dir")
	childID := r.Register("dir/child")
	grandchildID := r.Register("dir/sub/grandchild")
	unrelatedID := r.Register("dirrelated")

	r.RenameSubtree("dir", "moved")

	gotDir, ok := r.InodeOf("moved")
	require.True(t, ok)
	assert.Equal(t, dirID, gotDir)

	gotChild, ok := r.InodeOf("moved/child")
	require.True(t, ok)
	assert.Equal(t, childID, gotChild)

	gotGrandchild, ok := r.InodeOf("moved/sub/grandchild")
	require.True(t, ok)
	assert.Equal(t, grandchildID, gotGrandchild)

	gotUnrelated, ok := r.InodeOf("dirrelated")
	require.True(t, ok)
	assert.Equal(t, unrelatedID, gotUnrelated)
}

func TestRemoveDropsRegistration(t *testing.T) {
	r := New()
	r.Register("gone")
	r.Remove("gone")

	_, ok := r.InodeOf("gone")
	assert.False(t, ok)
}

func TestFreshAllocatesWithoutRegistering(t *testing.T) {
	r := New()
	id := r.Fresh()
	assert.Greater(t, id, fuseops.RootInodeID)

	id2 := r.Register("something")
	assert.NotEqual(t, id, id2)
}
