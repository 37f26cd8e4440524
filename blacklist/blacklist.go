// Copyright 2023-2025 Buf Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package blacklist provides a time-bounded record of endpoints that
// recently failed, so that routers can skip them for a while.
//
// An endpoint is never excluded for good: once its entry is older than
// the blacklist's TTL it becomes eligible again, whether or not it has
// actually recovered. A router that then fails to use it again simply
// blacklists it again. There is no backoff; the TTL is flat.
package blacklist

import (
	"sync"
	"time"

	"github.com/bufbuild/sqlcluster/endpoint"
	"github.com/bufbuild/sqlcluster/internal"
)

// DefaultTTL is how long an endpoint stays blacklisted when no other
// duration is given.
const DefaultTTL = 2 * time.Minute

// Blacklist maps endpoints to the time they last failed. It is safe for
// concurrent use, and is meant to be shared by every caller selecting
// among the same endpoints.
type Blacklist struct {
	ttl   time.Duration
	clock internal.Clock

	mu sync.Mutex
	// +checklocks:mu
	failures map[endpoint.Address]time.Time
}

// New returns an empty blacklist whose entries expire after ttl. If ttl
// is not positive, DefaultTTL is used.
func New(ttl time.Duration) *Blacklist {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Blacklist{
		ttl:      ttl,
		clock:    internal.NewRealClock(),
		failures: map[endpoint.Address]time.Time{},
	}
}

// TTL returns how long entries stay in the blacklist.
func (b *Blacklist) TTL() time.Duration {
	return b.ttl
}

// MarkFailed records that addr failed just now, replacing any earlier
// failure time for it.
func (b *Blacklist) MarkFailed(addr endpoint.Address) {
	now := b.clock.Now()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[addr] = now
}

// Filter returns the candidates that are not currently blacklisted, in
// their original order. Duplicates in candidates are kept.
func (b *Blacklist) Filter(candidates []endpoint.Address) []endpoint.Address {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.purgeLocked()
	live := make([]endpoint.Address, 0, len(candidates))
	for _, addr := range candidates {
		if _, blacklisted := b.failures[addr]; !blacklisted {
			live = append(live, addr)
		}
	}
	return live
}

// Blacklisted returns the set of endpoints that are currently blacklisted.
func (b *Blacklist) Blacklisted() map[endpoint.Address]struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.purgeLocked()
	set := make(map[endpoint.Address]struct{}, len(b.failures))
	for addr := range b.failures {
		set[addr] = struct{}{}
	}
	return set
}

// Len returns the number of endpoints currently blacklisted.
func (b *Blacklist) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.purgeLocked()
	return len(b.failures)
}

// +checklocks:b.mu
func (b *Blacklist) purgeLocked() {
	for addr, failedAt := range b.failures {
		if b.clock.Since(failedAt) > b.ttl {
			delete(b.failures, addr)
		}
	}
}
