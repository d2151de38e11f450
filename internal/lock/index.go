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

// Package lock is the in-memory advisory lock index: per-project lock
// ownership, shared between the filesystem process and its HTTP surface.
package lock

import (
	"fmt"
	"sync"
)

// State is a project's (or the index's) current lock ownership.
type State int

const (
	Nobody State = iota
	WeHaveLock
	SomeoneHasLock
)

func (s State) String() string {
	switch s {
	case Nobody:
		return "nobody"
	case WeHaveLock:
		return "we-have-lock"
	case SomeoneHasLock:
		return "someone-has-lock"
	default:
		return "unknown"
	}
}

// LockState is a project's full lock record: its State, plus the owning
// machine name when State is not Nobody.
type LockState struct {
	State   State
	Machine string
}

// Result is the plain-token outcome of an Acquire or Release call, matching
// the HTTP surface's plain-text response bodies.
type Result int

const (
	Failed Result = iota
	Acquired
	Released
)

func (r Result) String() string {
	switch r {
	case Acquired:
		return "acquired"
	case Released:
		return "released"
	default:
		return "fail"
	}
}

// ErrUnknownProject is returned (wrapped with the project name) when
// Acquire/Release is called against a project the index has never been told
// about. Per the transition table, this is a fatal condition: the caller is
// expected to have registered every project it will ever touch up front.
var ErrUnknownProject = fmt.Errorf("driftfs: unknown project")

// Index is the lock table for every known project plus one slot for the
// index itself (used to serialize index-wide maintenance operations across
// the cluster).
type Index struct {
	mu        sync.Mutex
	projects  map[string]LockState
	indexLock LockState
}

// NewIndex returns an index with no registered projects.
func NewIndex() *Index {
	return &Index{projects: make(map[string]LockState)}
}

// RegisterProject adds project to the index in the Nobody state if it isn't
// already known. Calling it on an already-registered project is a no-op.
func (ix *Index) RegisterProject(project string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if _, ok := ix.projects[project]; !ok {
		ix.projects[project] = LockState{State: Nobody}
	}
}

// Acquire attempts to take project's lock on behalf of machine. local
// distinguishes an in-process caller (this machine's own activity tracker,
// transitioning its own project usage 0→1) from an HTTP-handler-driven call
// (a peer informing us that it has taken the lock): on a successful
// transition out of Nobody, a local acquire records WeHaveLock(machine)
// while a remote one records SomeoneHasLock(machine), so that each
// machine's index always reflects who, from its own point of view, is
// holding each lock.
func (ix *Index) Acquire(project, machine string, local bool) (Result, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	cur, ok := ix.projects[project]
	if !ok {
		return Failed, fmt.Errorf("%w: %s", ErrUnknownProject, project)
	}

	switch cur.State {
	case WeHaveLock:
		return Acquired, nil
	case SomeoneHasLock:
		if cur.Machine == machine {
			return Acquired, nil
		}
		return Failed, nil
	case Nobody:
		next := SomeoneHasLock
		if local {
			next = WeHaveLock
		}
		ix.projects[project] = LockState{State: next, Machine: machine}
		return Acquired, nil
	default:
		panic(fmt.Sprintf("driftfs: lock index: %s has impossible state %v", project, cur.State))
	}
}

// Release attempts to give up project's lock on behalf of machine.
func (ix *Index) Release(project, machine string) (Result, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	cur, ok := ix.projects[project]
	if !ok {
		return Failed, fmt.Errorf("%w: %s", ErrUnknownProject, project)
	}

	switch cur.State {
	case WeHaveLock:
		// Release on a lock we hold always succeeds, regardless of which
		// machine asked: the transition table doesn't parameterize this row
		// on the requester.
		ix.projects[project] = LockState{State: Nobody}
		return Released, nil
	case SomeoneHasLock:
		if cur.Machine != machine {
			return Failed, nil
		}
		ix.projects[project] = LockState{State: Nobody}
		return Released, nil
	case Nobody:
		return Failed, nil
	default:
		panic(fmt.Sprintf("driftfs: lock index: %s has impossible state %v", project, cur.State))
	}
}

// State returns the current LockState for project, and whether it is
// registered at all.
func (ix *Index) State(project string) (LockState, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	s, ok := ix.projects[project]
	return s, ok
}

// AcquireIndexLock is Acquire's analogue for the single global index-lock
// slot described alongside the per-project table.
func (ix *Index) AcquireIndexLock(machine string, local bool) Result {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	cur := ix.indexLock
	switch cur.State {
	case WeHaveLock:
		return Acquired
	case SomeoneHasLock:
		if cur.Machine == machine {
			return Acquired
		}
		return Failed
	case Nobody:
		next := SomeoneHasLock
		if local {
			next = WeHaveLock
		}
		ix.indexLock = LockState{State: next, Machine: machine}
		return Acquired
	default:
		panic(fmt.Sprintf("driftfs: lock index: index lock has impossible state %v", cur.State))
	}
}

// ReleaseIndexLock is Release's analogue for the global index-lock slot.
func (ix *Index) ReleaseIndexLock(machine string) Result {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	cur := ix.indexLock
	switch cur.State {
	case WeHaveLock:
		ix.indexLock = LockState{State: Nobody}
		return Released
	case SomeoneHasLock:
		if cur.Machine != machine {
			return Failed
		}
		ix.indexLock = LockState{State: Nobody}
		return Released
	case Nobody:
		return Failed
	default:
		panic(fmt.Sprintf("driftfs: lock index: index lock has impossible state %v", cur.State))
	}
}
