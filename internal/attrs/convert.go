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

// Package attrs converts host filesystem metadata (os.FileInfo backed by a
// syscall.Stat_t) into the fuseops/fuseutil types the kernel expects:
// InodeAttributes for getattr/setattr replies and a DirentType for readdir.
package attrs

import (
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
)

// ErrUnsupportedFileKind is wrapped into the error returned by Convert and
// DirentTypeOf when the host file's mode bits don't match any of the seven
// kinds driftfs understands.
var ErrUnsupportedFileKind = fmt.Errorf("driftfs: unsupported file kind")

// Convert builds the InodeAttributes the kernel should see for a file whose
// host metadata is fi. Size, link count, permission bits, and all four
// timestamps are taken from the underlying stat_t; ctime has no os.FileInfo
// accessor, so it is reconstructed from Stat_t.Ctim directly.
func Convert(fi os.FileInfo) (fuseops.InodeAttributes, error) {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return fuseops.InodeAttributes{}, fmt.Errorf("driftfs: no syscall.Stat_t for %s", fi.Name())
	}

	mode, err := convertMode(fi.Mode())
	if err != nil {
		return fuseops.InodeAttributes{}, fmt.Errorf("%s: %w", fi.Name(), err)
	}

	return fuseops.InodeAttributes{
		Size:   uint64(fi.Size()),
		Nlink:  uint32(st.Nlink),
		Mode:   mode,
		Atime:  statTimeToTime(st.Atim),
		Mtime:  fi.ModTime(),
		Ctime:  statTimeToTime(st.Ctim),
		Crtime: fi.ModTime(),
		Uid:    st.Uid,
		Gid:    st.Gid,
	}, nil
}

// convertMode maps a host os.FileMode onto the os.FileMode vocabulary
// fuseops.InodeAttributes.Mode expects: permission bits plus at most one of
// ModeDir/ModeSymlink/ModeDevice/ModeCharDevice/ModeNamedPipe/ModeSocket.
// os.FileInfo.Mode already uses this vocabulary for everything but device
// files, where Go collapses block and character devices into ModeDevice and
// ModeDevice|ModeCharDevice respectively — which is already what we want.
func convertMode(m os.FileMode) (os.FileMode, error) {
	perm := m.Perm()
	switch {
	case m.IsRegular():
		return perm, nil
	case m&os.ModeDir != 0:
		return perm | os.ModeDir, nil
	case m&os.ModeSymlink != 0:
		return perm | os.ModeSymlink, nil
	case m&os.ModeDevice != 0 && m&os.ModeCharDevice != 0:
		return perm | os.ModeDevice | os.ModeCharDevice, nil
	case m&os.ModeDevice != 0:
		return perm | os.ModeDevice, nil
	case m&os.ModeNamedPipe != 0:
		return perm | os.ModeNamedPipe, nil
	case m&os.ModeSocket != 0:
		return perm | os.ModeSocket, nil
	default:
		return 0, ErrUnsupportedFileKind
	}
}

// DirentTypeOf maps a host os.FileMode onto the fuseutil.DirentType the
// kernel expects in a readdir reply.
func DirentTypeOf(m os.FileMode) (fuseutil.DirentType, error) {
	switch {
	case m.IsRegular():
		return fuseutil.DT_File, nil
	case m&os.ModeDir != 0:
		return fuseutil.DT_Directory, nil
	case m&os.ModeSymlink != 0:
		return fuseutil.DT_Link, nil
	case m&os.ModeDevice != 0 && m&os.ModeCharDevice != 0:
		return fuseutil.DT_Char, nil
	case m&os.ModeDevice != 0:
		return fuseutil.DT_Block, nil
	case m&os.ModeNamedPipe != 0:
		return fuseutil.DT_Fifo, nil
	case m&os.ModeSocket != 0:
		return fuseutil.DT_Socket, nil
	default:
		return fuseutil.DT_Unknown, ErrUnsupportedFileKind
	}
}

func statTimeToTime(ts syscall.Timespec) time.Time {
	return time.Unix(int64(ts.Sec), int64(ts.Nsec))
}
