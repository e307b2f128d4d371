// Copyright 2025 Google LLC
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

package alloc

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/strqueue/strqueue/internal/logger"
)

// Stats is a snapshot of a Tracker's counters.
type Stats struct {
	Mallocs       uint64
	Frees         uint64
	FailedMallocs uint64
	LiveBlocks    int
	LiveBytes     int
}

// Tracker is an Allocator that accounts for every block it hands out, can be
// told to fail a share of requests, and records misuse of its blocks.
//
// Safe for concurrent access.
type Tracker struct {
	mu sync.Mutex

	// GUARDED_BY(mu)
	rand *rand.Rand

	// Percentage of Malloc calls that fail with ErrOutOfMemory.
	//
	// INVARIANT: 0 <= failPercent <= 100
	//
	// GUARDED_BY(mu)
	failPercent int

	// GUARDED_BY(mu)
	nextID uint64

	// Blocks handed out and not yet freed.
	//
	// INVARIANT: len(live) == stats.LiveBlocks
	//
	// GUARDED_BY(mu)
	live map[*Block]struct{}

	// GUARDED_BY(mu)
	stats Stats

	// Misuse recorded since the last call to Violations.
	//
	// GUARDED_BY(mu)
	violations []error
}

// NewTracker returns a Tracker that never fails. The seed drives failure
// injection once SetFailPercent is called.
func NewTracker(seed int64) *Tracker {
	return &Tracker{
		rand: rand.New(rand.NewSource(seed)),
		live: make(map[*Block]struct{}),
	}
}

// SetFailPercent makes roughly p percent of subsequent Malloc calls fail.
// Values are clamped to [0, 100].
func (t *Tracker) SetFailPercent(p int) {
	p = min(max(p, 0), 100)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.failPercent = p
}

// FailPercent returns the current failure percentage.
func (t *Tracker) FailPercent() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failPercent
}

func (t *Tracker) Malloc(size int) (*Block, error) {
	if size < 0 {
		return nil, errInvalidSize(size)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.failPercent > 0 && t.rand.Intn(100) < t.failPercent {
		t.stats.FailedMallocs++
		logger.Tracef("alloc: injected failure for %d-byte request", size)
		return nil, fmt.Errorf("malloc(%d): %w", size, ErrOutOfMemory)
	}

	t.nextID++
	b := &Block{
		owner: t,
		id:    t.nextID,
		data:  make([]byte, size),
	}
	t.live[b] = struct{}{}
	t.stats.Mallocs++
	t.stats.LiveBlocks++
	t.stats.LiveBytes += size
	return b, nil
}

func (t *Tracker) Free(b *Block) {
	if b == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if b.owner != t {
		t.violations = append(t.violations, fmt.Errorf("free of block %d: %w", b.id, ErrForeignBlock))
		return
	}
	if _, ok := t.live[b]; !ok {
		t.violations = append(t.violations, fmt.Errorf("free of block %d: %w", b.id, ErrDoubleFree))
		return
	}

	delete(t.live, b)
	b.freed.Store(true)
	t.stats.Frees++
	t.stats.LiveBlocks--
	t.stats.LiveBytes -= len(b.data)
}

// Stats returns a snapshot of the tracker's counters.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

// Violations returns the misuse recorded since the previous call and clears
// the record.
func (t *Tracker) Violations() []error {
	t.mu.Lock()
	defer t.mu.Unlock()

	v := t.violations
	t.violations = nil
	return v
}

// CheckLeaks returns an error if any block handed out has not been freed.
func (t *Tracker) CheckLeaks() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stats.LiveBlocks == 0 {
		return nil
	}
	return fmt.Errorf("%d blocks (%d bytes) still allocated", t.stats.LiveBlocks, t.stats.LiveBytes)
}

// Reset forgets all live blocks, counters and violations. The failure
// percentage is kept.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.live = make(map[*Block]struct{})
	t.stats = Stats{}
	t.violations = nil
}

func (t *Tracker) recordViolation(b *Block, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.violations = append(t.violations, fmt.Errorf("block %d: %w", b.id, err))
}

func errInvalidSize(size int) error {
	return fmt.Errorf("malloc: invalid size %d", size)
}
