// Package queue provides the inbound trade buffer between the feed and the
// aggregation loop: a growable ring that absorbs bursts without ever
// blocking the producer.
package queue

import (
	"sync"
)

// Buffer is a thread-safe ring buffer that doubles its capacity when it
// fills past 70%, so a slow consumer backs up in memory instead of
// stalling the market-data reader.
type Buffer[T any] struct {
	mu       sync.Mutex
	cond     *sync.Cond
	buf      []T
	head     int
	tail     int
	count    int
	capacity int
	closed   bool

	totalIn  int64
	totalOut int64
	resizes  int
}

// New creates a Buffer with the given initial capacity.
func New[T any](initialCapacity int) *Buffer[T] {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	b := &Buffer[T]{
		buf:      make([]T, initialCapacity),
		capacity: initialCapacity,
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Send enqueues an item, growing the ring if needed. Returns false once
// the buffer has been closed.
func (b *Buffer[T]) Send(item T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}

	threshold := (b.capacity * 70) / 100
	if threshold < 1 {
		threshold = 1
	}
	if b.count+1 >= threshold {
		b.grow()
	}

	b.buf[b.tail] = item
	b.tail = (b.tail + 1) % b.capacity
	b.count++
	b.totalIn++

	b.cond.Signal()
	return true
}

// Receive blocks until an item is available or the buffer is closed and
// drained; the second return is false only in the latter case.
func (b *Buffer[T]) Receive() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for b.count == 0 && !b.closed {
		b.cond.Wait()
	}

	if b.count == 0 {
		var zero T
		return zero, false
	}
	return b.pop(), true
}

// TryReceive dequeues without blocking; false when the buffer is empty.
func (b *Buffer[T]) TryReceive() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		var zero T
		return zero, false
	}
	return b.pop(), true
}

// pop removes the head item. Must be called with the lock held and count > 0.
func (b *Buffer[T]) pop() T {
	item := b.buf[b.head]
	var zero T
	b.buf[b.head] = zero // release for GC
	b.head = (b.head + 1) % b.capacity
	b.count--
	b.totalOut++
	return item
}

// Close stops the buffer: further Sends fail, receivers drain what remains.
func (b *Buffer[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	b.cond.Broadcast()
}

// Len returns the number of buffered items.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Cap returns the current ring capacity.
func (b *Buffer[T]) Cap() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.capacity
}

// Stats is a snapshot of buffer counters.
type Stats struct {
	Count    int
	Capacity int
	TotalIn  int64
	TotalOut int64
	Resizes  int
}

// Stats returns current counters.
func (b *Buffer[T]) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Count:    b.count,
		Capacity: b.capacity,
		TotalIn:  b.totalIn,
		TotalOut: b.totalOut,
		Resizes:  b.resizes,
	}
}

// grow doubles capacity, un-wrapping the ring. Lock must be held.
func (b *Buffer[T]) grow() {
	newBuf := make([]T, b.capacity*2)

	if b.count > 0 {
		if b.head < b.tail {
			copy(newBuf, b.buf[b.head:b.tail])
		} else {
			n := copy(newBuf, b.buf[b.head:])
			copy(newBuf[n:], b.buf[:b.tail])
		}
	}

	b.buf = newBuf
	b.head = 0
	b.tail = b.count
	b.capacity *= 2
	b.resizes++
}
