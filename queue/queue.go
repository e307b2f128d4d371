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

// Package queue implements a queue of text values backed by a singly-linked
// list. Values can be inserted at either end and removed from the front, so
// the same structure serves FIFO (InsertTail + RemoveHead) and LIFO
// (InsertHead + RemoveHead) use.
//
// Every node and every copied value is obtained from an alloc.Allocator and
// returned to it exactly once, either by RemoveHead or by Free. A Queue is not
// safe for concurrent access; callers must provide their own locking.
//
// All methods accept a nil *Queue, which behaves as an absent queue: queries
// return zero values, insertions and removals return false, and Free and
// Reverse do nothing.
package queue

import (
	"fmt"

	"github.com/strqueue/strqueue/internal/alloc"
	"github.com/strqueue/strqueue/internal/util"
)

// node represents a node in the queue.
type node struct {
	// Storage accounted for the node itself.
	self *alloc.Block

	// Owned copy of the element followed by a terminating zero byte.
	value *alloc.Block

	// Owning link to the following node, nil for the last node.
	next *node
}

func (n *node) text() string {
	b := n.value.Bytes()
	if len(b) == 0 {
		return ""
	}
	return string(b[:len(b)-1])
}

var (
	nodeSize  = util.UnsafeSizeOf(&node{})
	queueSize = util.UnsafeSizeOf(&Queue{})
)

// Queue is a queue of text values. Create one with New and release it with
// Free.
type Queue struct {
	heap alloc.Allocator

	// Storage accounted for the queue itself. Nil once the queue is freed.
	self *alloc.Block

	// INVARIANT: head == nil iff size == 0
	head *node

	// Non-owning reference to the last node, so that InsertTail is O(1).
	//
	// INVARIANT: tail == nil iff head == nil
	// INVARIANT: tail.next == nil
	tail *node

	// INVARIANT: size is the number of nodes reachable from head
	size int
}

// New returns an empty queue whose storage comes from a. A nil allocator
// selects alloc.System. If the queue's own storage cannot be obtained, New
// returns a nil queue and an error wrapping alloc.ErrOutOfMemory.
func New(a alloc.Allocator) (*Queue, error) {
	if a == nil {
		a = alloc.System
	}
	self, err := a.Malloc(queueSize)
	if err != nil {
		return nil, fmt.Errorf("allocating queue: %w", err)
	}
	return &Queue{heap: a, self: self}, nil
}

// Free releases every node, every value and finally the queue's own storage.
// After Free the queue behaves as an absent queue.
func (q *Queue) Free() {
	if q.absent() {
		return
	}

	for n := q.head; n != nil; {
		next := n.next
		q.heap.Free(n.value)
		q.heap.Free(n.self)
		n = next
	}

	heap, self := q.heap, q.self
	*q = Queue{}
	heap.Free(self)
}

// InsertHead inserts a copy of s at the front of the queue in O(1) time. It
// returns false, leaving the queue unchanged, if the queue is absent or
// storage for the node or the copy cannot be obtained.
func (q *Queue) InsertHead(s string) bool {
	if q.absent() {
		return false
	}
	n := q.newNode(s)
	if n == nil {
		return false
	}

	n.next = q.head
	q.head = n
	if q.tail == nil {
		q.tail = n
	}
	q.size++
	return true
}

// InsertTail inserts a copy of s at the end of the queue in O(1) time. Failure
// is reported as for InsertHead.
func (q *Queue) InsertTail(s string) bool {
	if q.absent() {
		return false
	}
	n := q.newNode(s)
	if n == nil {
		return false
	}

	if q.tail == nil {
		q.head = n
	} else {
		q.tail.next = n
	}
	q.tail = n
	q.size++
	return true
}

// RemoveHead removes the first element and releases its storage. It returns
// false if the queue is absent or empty.
//
// If buf is non-empty, at most len(buf)-1 bytes of the removed value are
// copied into it followed by a zero byte; longer values are truncated. Nothing
// is written to a nil or empty buf.
func (q *Queue) RemoveHead(buf []byte) bool {
	if q.absent() || q.empty() {
		return false
	}

	n := q.head
	if len(buf) > 0 {
		v := n.value.Bytes()
		copied := copy(buf[:len(buf)-1], v[:len(v)-1])
		buf[copied] = 0
	}

	q.head = n.next
	if q.tail == n {
		q.tail = q.head
	}
	q.size--

	q.heap.Free(n.value)
	q.heap.Free(n.self)
	return true
}

// Size returns the number of elements in O(1) time, or 0 for an absent queue.
func (q *Queue) Size() int {
	if q.absent() {
		return 0
	}
	return q.size
}

// Reverse reverses the order of the elements in place. It only relinks the
// existing nodes; nothing is allocated or released.
func (q *Queue) Reverse() {
	if q.absent() || q.empty() {
		return
	}

	var prev *node
	cur := q.head
	for cur != nil {
		next := cur.next
		cur.next = prev
		prev = cur
		cur = next
	}
	q.head, q.tail = prev, q.head
}

// Walk calls fn for each element from front to back, stopping early when fn
// returns false. The queue must not be modified during the walk.
func (q *Queue) Walk(fn func(i int, v string) bool) {
	if q.absent() {
		return
	}
	i := 0
	for n := q.head; n != nil; n = n.next {
		if !fn(i, n.text()) {
			return
		}
		i++
	}
}

// CheckInvariants panics if the queue's bookkeeping is inconsistent.
func (q *Queue) CheckInvariants() {
	if q.absent() {
		return
	}
	if q.self.Freed() {
		panic("queue storage has been freed")
	}

	// head, tail and size agree on emptiness.
	if (q.head == nil) != (q.size == 0) {
		panic(fmt.Sprintf("head is nil: %t, but size is %d", q.head == nil, q.size))
	}
	if (q.head == nil) != (q.tail == nil) {
		panic(fmt.Sprintf("head is nil: %t, but tail is nil: %t", q.head == nil, q.tail == nil))
	}
	if q.tail != nil && q.tail.next != nil {
		panic("tail has a successor")
	}

	count := 0
	var last *node
	for n := q.head; n != nil; n = n.next {
		count++
		if count > q.size {
			panic(fmt.Sprintf("chain is longer than size %d", q.size))
		}
		if n.self.Freed() || n.value.Freed() {
			panic(fmt.Sprintf("node %d refers to freed storage", count-1))
		}
		last = n
	}
	if count != q.size {
		panic(fmt.Sprintf("chain has %d nodes, but size is %d", count, q.size))
	}
	if last != q.tail {
		panic("tail is not the last node of the chain")
	}
}

func (q *Queue) absent() bool {
	return q == nil || q.self == nil
}

func (q *Queue) empty() bool {
	return q.size == 0 || q.head == nil
}

// newNode returns an unlinked node holding a copy of s, or nil if storage
// cannot be obtained. Nothing stays allocated on failure.
func (q *Queue) newNode(s string) *node {
	self, err := q.heap.Malloc(nodeSize)
	if err != nil {
		return nil
	}
	value, err := q.heap.Malloc(util.CStringSize(s))
	if err != nil {
		q.heap.Free(self)
		return nil
	}
	copy(value.Bytes(), s)
	return &node{self: self, value: value}
}
