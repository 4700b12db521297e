package session

import (
	"sync"

	"github.com/foxseedlab/voicelink/internal/media"
)

// eventQueue is an unbounded FIFO. push never blocks, so a slow pipeline can
// never stall the transport reading the media stream.
type eventQueue struct {
	mu     sync.Mutex
	items  []media.Event
	signal chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{signal: make(chan struct{}, 1)}
}

func (q *eventQueue) push(ev media.Event) {
	q.mu.Lock()
	q.items = append(q.items, ev)
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// pop blocks until an event is available.
func (q *eventQueue) pop() media.Event {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			ev := q.items[0]
			q.items[0] = media.Event{}
			q.items = q.items[1:]
			q.mu.Unlock()
			return ev
		}
		q.mu.Unlock()
		<-q.signal
	}
}
