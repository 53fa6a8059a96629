package engine

import "github.com/tathienbao/eventbt/internal/types"

// queue is the engine's single FIFO of pending events.
type queue struct {
	items []types.Event
	head  int
}

func (q *queue) push(ev types.Event) {
	q.items = append(q.items, ev)
}

func (q *queue) pop() (types.Event, bool) {
	if q.head == len(q.items) {
		return nil, false
	}
	ev := q.items[q.head]
	q.items[q.head] = nil
	q.head++
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	}
	return ev, true
}

func (q *queue) len() int {
	return len(q.items) - q.head
}
