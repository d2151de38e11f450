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

// Package errmap turns host I/O errors into the kernel errno codes the FUSE
// dispatcher must return. Every dispatcher method that touches the backing
// storage funnels its error through To before handing it back to the fuse
// package.
package errmap

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/jacobsa/fuse"
)

// knownErrnos is the set of host syscall.Errno values driftfs expects to see
// from backing-storage operations. Anything outside this set indicates a
// host error path we haven't accounted for, and To panics rather than
// silently mapping it to something misleading.
var knownErrnos = map[syscall.Errno]error{
	syscall.ENOENT:       fuse.ENOENT,
	syscall.ENAMETOOLONG: fuse.ENAMETOOLONG,
	syscall.ENOTEMPTY:    fuse.ENOTEMPTY,
	syscall.EISDIR:       fuse.EISDIR,
	syscall.EPERM:        fuse.EPERM,
	syscall.EEXIST:       fuse.EEXIST,
	syscall.ENOTDIR:      fuse.ENOTDIR,
	syscall.EXDEV:        fuse.EXDEV,
	syscall.ENOSPC:       fuse.ENOSPC,
	syscall.EINVAL:       fuse.EINVAL,
	syscall.EACCES:       fuse.EPERM,
	syscall.EBADF:        fuse.EIO,
	syscall.EROFS:        fuse.EPERM,
}

// To maps a host error (typically wrapping a *os.PathError or *os.LinkError
// around a syscall.Errno) to the fuse errno the kernel should see. A nil err
// maps to nil. To panics if err doesn't unwrap to one of knownErrnos: such an
// error represents a host condition the dispatcher doesn't yet know how to
// translate, which is a programming error, not a runtime one.
func To(err error) error {
	if err == nil {
		return nil
	}

	var errno syscall.Errno
	if !errors.As(err, &errno) {
		panic(fmt.Sprintf("driftfs: host error with no syscall.Errno: %v", err))
	}

	mapped, ok := knownErrnos[errno]
	if !ok {
		panic(fmt.Sprintf("driftfs: unmapped host errno %v (from %v)", errno, err))
	}
	return mapped
}
