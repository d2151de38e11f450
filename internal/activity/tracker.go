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

// Package activity tracks, per canonical project, how many live references
// the mount currently has open (from opens, creates, directory handles, and
// lookup followers),
// and drives this machine's opportunistic acquisition of that project's
// lock as the count transitions across zero.
package activity

import (
	"context"
	"fmt"
	"sync"

	"github.com/driftfs/driftfs/internal/lock"
	"github.com/driftfs/driftfs/internal/logger"
)

// Broadcaster is the subset of *lock.Broadcaster the tracker needs, kept as
// an interface so tests can stub it out.
type Broadcaster interface {
	Acquire(ctx context.Context, project string)
	Release(ctx context.Context, project string)
}

// Tracker owns one atomic, non-negative counter per canonical project and
// the acquire/release calls that fire when a counter crosses zero.
type Tracker struct {
	mu      sync.Mutex
	counts  map[string]uint64 // GUARDED_BY(mu)
	machine string
	index   *lock.Index
	peers   Broadcaster
}

// New returns a Tracker that reports transitions as coming from machine,
// against ix, broadcasting them to peers.
func New(machine string, ix *lock.Index, peers Broadcaster) *Tracker {
	return &Tracker{
		counts:  make(map[string]uint64),
		machine: machine,
		index:   ix,
		peers:   peers,
	}
}

// Inc increments project's counter. On a 0→1 transition it registers the
// project with the lock index if this is the first time it's been seen,
// then attempts a local lock acquisition and broadcasts it to peers.
func (t *Tracker) Inc(ctx context.Context, project string) {
	t.mu.Lock()
	prior := t.counts[project]
	t.counts[project] = prior + 1
	t.mu.Unlock()

	if prior != 0 {
		return
	}

	t.index.RegisterProject(project)
	res, err := t.index.Acquire(project, t.machine, true)
	if err != nil {
		logger.Errorf("activity: acquire %s: %v", project, err)
		return
	}
	if res == lock.Acquired {
		t.peers.Acquire(ctx, project)
	}
}

// Dec decrements project's counter. On a 1→0 transition it releases the
// project's lock locally and broadcasts the release to peers. Decrementing
// a counter already at 0 is a programming error and panics.
func (t *Tracker) Dec(ctx context.Context, project string) {
	t.mu.Lock()
	cur, ok := t.counts[project]
	if !ok || cur == 0 {
		t.mu.Unlock()
		panic(fmt.Sprintf("driftfs: activity: decrement of project %q already at zero", project))
	}
	cur--
	t.counts[project] = cur
	t.mu.Unlock()

	if cur != 0 {
		return
	}

	res, err := t.index.Release(project, t.machine)
	if err != nil {
		logger.Errorf("activity: release %s: %v", project, err)
		return
	}
	if res == lock.Released {
		t.peers.Release(ctx, project)
	}
}

// Count returns project's current reference count. Exposed for tests and
// diagnostics.
func (t *Tracker) Count(project string) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[project]
}
