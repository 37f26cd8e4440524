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

package internal

import (
	"hash/maphash"
	"math/rand"
	"sync"
)

// NewRand returns a random number generator seeded from the runtime's
// per-process hash seed.
func NewRand() *rand.Rand {
	return rand.New(rand.NewSource(randomSeed())) //nolint:gosec // don't need cryptographic RNG
}

// LockedRand wraps a *rand.Rand so that it can be shared by concurrent
// callers.
type LockedRand struct {
	mu sync.Mutex
	// +checklocks:mu
	rnd *rand.Rand
}

// NewLockedRand returns a LockedRand that draws from the given source. If
// src is nil, a randomly seeded source is used.
func NewLockedRand(src rand.Source) *LockedRand {
	if src == nil {
		return &LockedRand{rnd: NewRand()}
	}
	return &LockedRand{rnd: rand.New(src)} //nolint:gosec // don't need cryptographic RNG
}

// Shuffle pseudo-randomizes the order of n elements using swap.
func (r *LockedRand) Shuffle(n int, swap func(i, j int)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rnd.Shuffle(n, swap)
}

func randomSeed() int64 {
	var hash maphash.Hash
	return int64(hash.Sum64())
}
