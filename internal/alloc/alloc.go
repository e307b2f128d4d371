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

// Package alloc hands out tracked blocks of storage to the queue so that the
// pairing of every allocation with exactly one release can be observed.
//
// Go reclaims memory on its own; the blocks here exist for accounting. A block
// obtained from Malloc must be passed to Free exactly once, and must not be
// read after that.
package alloc

import (
	"errors"
	"sync/atomic"
)

var (
	// ErrOutOfMemory is returned by Malloc when storage cannot be obtained.
	ErrOutOfMemory = errors.New("out of memory")

	// ErrDoubleFree is recorded when a block is released twice.
	ErrDoubleFree = errors.New("block freed more than once")

	// ErrForeignBlock is recorded when a block is released to an allocator
	// that did not hand it out.
	ErrForeignBlock = errors.New("block not allocated by this allocator")

	// ErrUseAfterFree is recorded when a released block is read.
	ErrUseAfterFree = errors.New("block used after free")
)

// Allocator obtains and releases blocks of storage.
type Allocator interface {
	// Malloc returns a zeroed block of exactly size bytes, or an error
	// wrapping ErrOutOfMemory.
	Malloc(size int) (*Block, error)

	// Free releases b. Freeing nil is a no-op.
	Free(b *Block)
}

// Block is a single allocation.
type Block struct {
	owner *Tracker
	id    uint64
	data  []byte
	freed atomic.Bool
}

// Bytes returns the block's storage. Reading a released block returns nil
// and, for tracked blocks, records ErrUseAfterFree.
func (b *Block) Bytes() []byte {
	if b.freed.Load() {
		if b.owner != nil {
			b.owner.recordViolation(b, ErrUseAfterFree)
		}
		return nil
	}
	return b.data
}

// Size returns the number of bytes requested when the block was allocated.
func (b *Block) Size() int {
	return len(b.data)
}

// Freed reports whether the block has been released.
func (b *Block) Freed() bool {
	return b.freed.Load()
}

// ID returns the block's allocation sequence number. Untracked blocks have ID
// zero.
func (b *Block) ID() uint64 {
	return b.id
}

type systemAllocator struct{}

// System is an Allocator that never fails and records nothing.
var System Allocator = systemAllocator{}

func (systemAllocator) Malloc(size int) (*Block, error) {
	if size < 0 {
		return nil, errInvalidSize(size)
	}
	return &Block{data: make([]byte, size)}, nil
}

func (systemAllocator) Free(b *Block) {
	if b == nil {
		return
	}
	b.freed.Store(true)
}
