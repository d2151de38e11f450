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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *os.File {
	t.Helper()
	path := filepath.Join(t.TempDir(), "handle.bin")
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func TestHandleReadAtWriteAtIgnoreCursor(t *testing.T) {
	f := openTemp(t)
	h := New(f)

	n, err := h.WriteAt([]byte("hello"), 10)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	buf := make([]byte, 5)
	n, err = h.ReadAt(buf, 10)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", string(buf))
}

func TestHandleSeekReadWriteCursor(t *testing.T) {
	f := openTemp(t)
	h := New(f)

	n, err := h.Write([]byte("abcdef"))
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	_, err = h.Seek(2, os.SEEK_SET)
	require.NoError(t, err)

	buf := make([]byte, 3)
	n, err = h.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, "cde", string(buf))
}

func TestHandleWriteIsVisibleImmediately(t *testing.T) {
	f := openTemp(t)
	h := New(f)

	_, err := h.Write([]byte("unbuffered"))
	require.NoError(t, err)

	// There is no write buffer sitting between Write and the host file, so a
	// second independent read sees the bytes right away.
	raw, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	assert.Equal(t, "unbuffered", string(raw))
}

func TestHandleWriteAtIsVisibleAcrossConcurrentHandles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "handle.bin")
	f1, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	require.NoError(t, err)
	t.Cleanup(func() { f1.Close() })
	f2, err := os.OpenFile(path, os.O_RDWR, 0o644)
	require.NoError(t, err)
	t.Cleanup(func() { f2.Close() })

	h1 := New(f1)
	h2 := New(f2)

	_, err = h1.WriteAt([]byte("first-"), 0)
	require.NoError(t, err)
	_, err = h2.WriteAt([]byte("second"), 6)
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "first-second", string(raw))
}
