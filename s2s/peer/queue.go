package peer

import (
	"github.com/google/uuid"
	"sync"
)

// Item is a flow file held by a peer port
type Item struct {
	Attributes map[string]string
	Content    []byte
}

// Queue is the transactional flow file queue behind one peer port. Flow files
// sent by clients are offered once their transaction is confirmed; flow files
// handed to receiving clients are taken tentatively and restored when the
// transaction does not complete.
type Queue struct {
	id        uuid.UUID
	name      string
	maxQueued int

	mu    sync.Mutex
	items []Item
}

func newQueue(id uuid.UUID, name string, maxQueued int) *Queue {
	return &Queue{id: id, name: name, maxQueued: maxQueued}
}

// ID returns the port identifier
func (q *Queue) ID() uuid.UUID { return q.id }

// Name returns the port name
func (q *Queue) Name() string { return q.name }

// Len returns the number of queued flow files
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Offer appends items and reports whether the queue reached its limit.
// A full queue still accepts the items of a confirmed transaction.
func (q *Queue) Offer(items ...Item) (full bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, items...)
	return q.maxQueued > 0 && len(q.items) >= q.maxQueued
}

// Take removes up to max items from the head of the queue (all for max <= 0)
func (q *Queue) Take(max int) []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	if max > 0 && max < n {
		n = max
	}
	taken := make([]Item, n)
	copy(taken, q.items[:n])
	q.items = q.items[n:]
	return taken
}

// Restore puts taken items back at the head of the queue, keeping their order
func (q *Queue) Restore(items []Item) {
	if len(items) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(append(make([]Item, 0, len(items)+len(q.items)), items...), q.items...)
}
