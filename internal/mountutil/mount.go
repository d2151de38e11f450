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

// Package mountutil canonicalizes the mount/storage directory flags and
// builds the fuse.MountConfig driftfs mounts with.
package mountutil

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/jacobsa/fuse"
)

// Options is the set of mount-time knobs exposed on the command line, kept
// separate from fuse.MountConfig so callers outside this package never need
// to import jacobsa/fuse directly just to construct one.
type Options struct {
	// FSName and Subtype identify the mount in `mount`/`df` output.
	FSName  string
	Subtype string
	// Extra is the set of repeated "-o key=value" / "-o key" flags, exactly
	// as the user supplied them on the command line.
	Extra []string
}

// ResolveDirectory canonicalizes a user-supplied directory flag: it must
// already exist and be a directory, and the returned path is absolute,
// cleaned, and free of symlinks so that later operations (symlink targets,
// logging) are unambiguous regardless of the process's working directory at
// the time of the flag.
func ResolveDirectory(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("mountutil: directory path is required")
	}

	abs, err := resolveAbs(path)
	if err != nil {
		return "", fmt.Errorf("mountutil: resolving %q: %w", path, err)
	}
	abs, err = filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("mountutil: %q: %w", path, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("mountutil: %q: %w", path, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("mountutil: %q is not a directory", path)
	}
	return abs, nil
}

func resolveAbs(path string) (string, error) {
	if strings.HasPrefix(path, "/") {
		return path, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return wd + "/" + path, nil
}

// ParseOptions folds one "-o" flag value into parsedOptions. A flag may
// carry several comma-separated entries ("-o default_permissions,dirsync");
// each entry is either "key=value" or a bare "key" (recorded with an empty
// value, matching how options such as "default_permissions" or "ro" have no
// value of their own).
func ParseOptions(parsedOptions map[string]string, o string) {
	for _, entry := range strings.Split(o, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		key, value, _ := strings.Cut(entry, "=")
		parsedOptions[key] = value
	}
}

// BuildMountConfig builds the fuse.MountConfig driftfs mounts with: its
// Options map starts with default_permissions, dirsync, and sync, and every
// "-o" flag in opts.Extra is folded in on top.
func BuildMountConfig(opts Options) *fuse.MountConfig {
	parsedOptions := map[string]string{"default_permissions": "", "dirsync": "", "sync": ""}
	for _, o := range opts.Extra {
		ParseOptions(parsedOptions, o)
	}

	cfg := &fuse.MountConfig{
		FSName:     opts.FSName,
		Subtype:    opts.Subtype,
		VolumeName: opts.FSName,
		Options:    parsedOptions,
		// The state lookups and directory reads touch (pathfs.Registry,
		// handles.Table) is guarded by those types' own mutexes, so there is
		// no reason to force the kernel to serialize these operations too.
		EnableParallelDirOps: true,
	}

	cfg.ErrorLogger = log.New(os.Stderr, "fuse: ", log.LstdFlags)
	cfg.DebugLogger = log.New(os.Stderr, "fuse_debug: ", log.LstdFlags)

	return cfg
}
