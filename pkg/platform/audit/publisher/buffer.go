package publisher

import (
	"sync"

	audit "lineage/pkg/platform/audit"
)

// RingBuffer is a bounded, thread-safe FIFO of audit records. When full, the
// oldest record is dropped to make room.
type RingBuffer struct {
	mu       sync.Mutex
	records  []audit.Record
	head     int
	tail     int
	count    int
	capacity int
	dropped  int64
}

func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = 1024
	}
	return &RingBuffer{
		records:  make([]audit.Record, capacity),
		capacity: capacity,
	}
}

// Enqueue adds a record and reports whether an older record was dropped.
func (b *RingBuffer) Enqueue(rec audit.Record) (dropped bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count >= b.capacity {
		b.records[b.tail] = audit.Record{}
		b.tail = (b.tail + 1) % b.capacity
		b.count--
		b.dropped++
		dropped = true
	}

	b.records[b.head] = rec
	b.head = (b.head + 1) % b.capacity
	b.count++
	return dropped
}

// DequeueBatch removes up to n records in FIFO order.
func (b *RingBuffer) DequeueBatch(n int) []audit.Record {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return nil
	}
	n = min(n, b.count)

	out := make([]audit.Record, n)
	for i := range n {
		out[i] = b.records[b.tail]
		b.records[b.tail] = audit.Record{}
		b.tail = (b.tail + 1) % b.capacity
	}
	b.count -= n
	return out
}

func (b *RingBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

func (b *RingBuffer) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
