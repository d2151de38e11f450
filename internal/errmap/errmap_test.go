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

package errmap

import (
	"os"
	"syscall"
	"testing"

	"github.com/jacobsa/fuse"
	"github.com/stretchr/testify/assert"
)

func TestToNilIsNil(t *testing.T) {
	assert.Nil(t, To(nil))
}

func TestToMapsKnownErrnos(t *testing.T) {
	cases := []struct {
		name string
		errno syscall.Errno
		want  error
	}{
		{"ENOENT", syscall.ENOENT, fuse.ENOENT},
		{"ENAMETOOLONG", syscall.ENAMETOOLONG, fuse.ENAMETOOLONG},
		{"ENOTEMPTY", syscall.ENOTEMPTY, fuse.ENOTEMPTY},
		{"EISDIR", syscall.EISDIR, fuse.EISDIR},
		{"EPERM", syscall.EPERM, fuse.EPERM},
		{"EEXIST", syscall.EEXIST, fuse.EEXIST},
		{"ENOTDIR", syscall.ENOTDIR, fuse.ENOTDIR},
		{"EXDEV", syscall.EXDEV, fuse.EXDEV},
		{"ENOSPC", syscall.ENOSPC, fuse.ENOSPC},
		{"EINVAL", syscall.EINVAL, fuse.EINVAL},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			wrapped := &os.PathError{Op: "stat", Path: "/x", Err: c.errno}
			assert.Equal(t, c.want, To(wrapped))
		})
	}
}

func TestToPanicsOnUnmappedErrno(t *testing.T) {
	wrapped := &os.PathError{Op: "stat", Path: "/x", Err: syscall.EDEADLK}
	assert.Panics(t, func() { To(wrapped) })
}

func TestToPanicsOnNonErrnoError(t *testing.T) {
	assert.Panics(t, func() { To(assert.AnError) })
}
