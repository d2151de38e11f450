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

package activity

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/driftfs/driftfs/internal/logger"
)

// PollInterval is how often a follower rechecks its process's working
// directory.
const PollInterval = 1 * time.Second

// maxConsecutiveReadFailures bounds how many back-to-back incomplete reads
// of a process's state a follower tolerates before giving up on it.
const maxConsecutiveReadFailures = 3

// cwdReader is the process-introspection surface a follower depends on, so
// tests can swap in a fake without touching real processes.
type cwdReader interface {
	Cwd(pid int32) (string, error)
	IsRunning(pid int32) (bool, error)
}

type gopsutilReader struct{}

func (gopsutilReader) Cwd(pid int32) (string, error) {
	proc, err := process.NewProcess(pid)
	if err != nil {
		return "", err
	}
	return proc.Cwd()
}

func (gopsutilReader) IsRunning(pid int32) (bool, error) {
	proc, err := process.NewProcess(pid)
	if err != nil {
		return false, err
	}
	return proc.IsRunning()
}

// Followers tracks the set of (pid, project) pairs currently being
// followed, so lookup events against the same project from the same
// process only spawn one background worker.
type Followers struct {
	mu      sync.Mutex
	active  map[followerKey]struct{}
	tracker *Tracker
	reader  cwdReader
}

type followerKey struct {
	pid     int32
	project string
}

// NewFollowers returns a Followers bound to tracker, using the host's real
// process table.
func NewFollowers(tracker *Tracker) *Followers {
	return &Followers{
		active:  make(map[followerKey]struct{}),
		tracker: tracker,
		reader:  gopsutilReader{},
	}
}

// Start spawns a background worker following pid's presence under
// mountPrefix on behalf of project, unless one is already running for this
// (pid, project) pair. If this call is the one that actually starts a new
// follower, onNewFollower (which the caller uses to perform the counter's
// synchronous initial increment) runs before the worker goroutine is
// spawned, so the counter is never observed at its pre-increment value.
// onNewFollower may be nil.
func (f *Followers) Start(ctx context.Context, pid int32, project, mountPrefix string, onNewFollower func()) {
	key := followerKey{pid: pid, project: project}

	f.mu.Lock()
	if _, ok := f.active[key]; ok {
		f.mu.Unlock()
		return
	}
	f.active[key] = struct{}{}
	f.mu.Unlock()

	if onNewFollower != nil {
		onNewFollower()
	}

	go f.run(ctx, key, mountPrefix)
}

func (f *Followers) run(ctx context.Context, key followerKey, mountPrefix string) {
	defer func() {
		f.mu.Lock()
		delete(f.active, key)
		f.mu.Unlock()
		f.tracker.Dec(ctx, key.project)
	}()

	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		running, err := f.reader.IsRunning(key.pid)
		if err != nil || !running {
			return
		}

		cwd, err := f.reader.Cwd(key.pid)
		if err != nil {
			if isRetryable(err) {
				failures++
				if failures >= maxConsecutiveReadFailures {
					logger.Warnf("activity: follower pid=%d project=%s: giving up after %d failed cwd reads: %v",
						key.pid, key.project, failures, err)
					return
				}
				continue
			}
			return
		}
		failures = 0

		if !strings.HasPrefix(cwd, mountPrefix) {
			return
		}
	}
}

func isRetryable(err error) bool {
	return !errors.Is(err, os.ErrPermission) && !errors.Is(err, os.ErrNotExist)
}
