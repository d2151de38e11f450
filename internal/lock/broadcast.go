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
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/driftfs/driftfs/internal/logger"
)

// Broadcaster tells every configured peer about a lock transition this
// machine just made locally, so each peer's own index records us as
// SomeoneHasLock. Peer calls are best-effort: a peer being unreachable
// never fails the local acquire/release that triggered it, and each peer
// call is cut off after peerTimeout, since the local lock state is already
// authoritative for this machine regardless of whether peers have heard
// about it yet.
type Broadcaster struct {
	machine string
	peers   map[string]string // name -> endpoint
	client  *http.Client
}

// NewBroadcaster returns a Broadcaster that announces transitions as coming
// from machine, to the given name->endpoint peer map.
func NewBroadcaster(machine string, peers map[string]string) *Broadcaster {
	return &Broadcaster{
		machine: machine,
		peers:   peers,
		client:  &http.Client{Timeout: peerTimeout},
	}
}

// peerTimeout bounds each individual peer call.
const peerTimeout = 2 * time.Second

// Acquire tells every peer that this machine has acquired project's lock.
func (b *Broadcaster) Acquire(ctx context.Context, project string) {
	b.fanOut(ctx, "lock", "acquire", project)
}

// Release tells every peer that this machine has released project's lock.
func (b *Broadcaster) Release(ctx context.Context, project string) {
	b.fanOut(ctx, "lock", "release", project)
}

func (b *Broadcaster) fanOut(ctx context.Context, kind, verb, project string) {
	// A plain Group, not WithContext: one peer failing must not cancel the
	// calls still in flight to the others.
	var g errgroup.Group

	for _, endpoint := range b.peers {
		endpoint := endpoint
		g.Go(func() error {
			target := fmt.Sprintf("http://%s/%s/%s/%s/%s",
				endpoint, kind, verb, url.PathEscape(b.machine), url.PathEscape(project))

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
			if err != nil {
				return err
			}
			resp, err := b.client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.Warnf("lock broadcast: %s/%s for %s: %v", kind, verb, project, err)
	}
}
