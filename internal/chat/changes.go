package chat

import (
	"sync"

	"github.com/devpool/chatsync/internal/pubsub"
)

type queuedChange struct {
	event  pubsub.Event[Change]
	change Change
}

// changeQueue hands changes from hub handlers to a single publishing
// goroutine. Pushing never blocks, and changes leave in push order.
type changeQueue struct {
	mu      sync.Mutex
	pending []queuedChange
	wake    chan struct{}
}

func newChangeQueue() *changeQueue {
	return &changeQueue{wake: make(chan struct{}, 1)}
}

func (q *changeQueue) push(c queuedChange) {
	q.mu.Lock()
	q.pending = append(q.pending, c)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *changeQueue) drain() []queuedChange {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.pending
	q.pending = nil
	return out
}

// publishChanges runs until the session stops. Changes still queued at that
// point are dropped.
func (s *Session) publishChanges() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.changes.wake:
		}
		for _, c := range s.changes.drain() {
			if s.ctx.Err() != nil {
				return
			}
			if err := pubsub.Publish(s.ctx, s.publisher, c.event, c.change); err != nil {
				s.logger.Debug("Failed to publish change", "topic", c.event.Name(), "error", err)
			}
		}
	}
}
