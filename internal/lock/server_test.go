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

package lock

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bodyOf(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	return string(b)
}

func TestServerAcquireAndReleaseProjectLock(t *testing.T) {
	ix := NewIndex()
	ix.RegisterProject("myproj")
	srv := httptest.NewServer(NewServer(ix))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/lock/acquire/alpha/myproj")
	require.NoError(t, err)
	assert.Equal(t, "acquired", bodyOf(t, resp))

	resp, err = http.Get(srv.URL + "/lock/acquire/beta/myproj")
	require.NoError(t, err)
	assert.Equal(t, "fail", bodyOf(t, resp))

	resp, err = http.Get(srv.URL + "/lock/release/alpha/myproj")
	require.NoError(t, err)
	assert.Equal(t, "released", bodyOf(t, resp))
}

func TestServerIndexLockRoutes(t *testing.T) {
	ix := NewIndex()
	srv := httptest.NewServer(NewServer(ix))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/index/lock/acquire/alpha")
	require.NoError(t, err)
	assert.Equal(t, "acquired", bodyOf(t, resp))

	resp, err = http.Get(srv.URL + "/index/lock/release/alpha")
	require.NoError(t, err)
	assert.Equal(t, "released", bodyOf(t, resp))
}

func TestServerAcquireUnknownProjectIsFatal(t *testing.T) {
	ix := NewIndex()
	srv := httptest.NewServer(NewServer(ix))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/lock/acquire/alpha/ghost")
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestServerUnescapesProjectName(t *testing.T) {
	ix := NewIndex()
	ix.RegisterProject("a/b c")
	srv := httptest.NewServer(NewServer(ix))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/lock/acquire/alpha/a/b%20c")
	require.NoError(t, err)
	assert.Equal(t, "acquired", bodyOf(t, resp))

	st, ok := ix.State("a/b c")
	require.True(t, ok)
	assert.Equal(t, SomeoneHasLock, st.State)
}
