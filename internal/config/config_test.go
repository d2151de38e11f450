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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTOML = `
[machine]
name     = "alpha"
mode     = "development"
endpoint = "0.0.0.0:9000"

[network.beta]
command  = "ssh beta true"
endpoint = "10.0.0.2:9000"
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "driftfs.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadParsesMachineAndPeers(t *testing.T) {
	path := writeConfig(t, sampleTOML)

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "alpha", cfg.Machine.Name)
	assert.Equal(t, ModeDevelopment, cfg.Machine.Mode)
	assert.Equal(t, "0.0.0.0:9000", cfg.Machine.Endpoint)
	require.Contains(t, cfg.Network, "beta")
	assert.Equal(t, "10.0.0.2:9000", cfg.Network["beta"].Endpoint)
	assert.Equal(t, "ssh beta true", cfg.Network["beta"].Command)
}

func TestLoadRejectsUnknownMode(t *testing.T) {
	path := writeConfig(t, `
[machine]
name     = "alpha"
mode     = "bogus"
endpoint = "0.0.0.0:9000"
`)

	_, err := Load(path)

	assert.Error(t, err)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))

	assert.Error(t, err)
}
