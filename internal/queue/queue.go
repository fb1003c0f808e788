// Package queue is the bounded write queue between the broker's publish
// thread and the background batch writer: one producer, one consumer,
// FIFO order, a hard cap, and a signal when the configured batch-size
// threshold is reached.
package queue

import (
	"sync"
	"time"

	"github.com/mqttsql/persist/internal/interfaces"
	"github.com/mqttsql/persist/internal/store"
)

// Queue is a mutex-guarded FIFO of pending store.Entry values. Push and
// Drain are both O(1) and internally synchronized; neither is
// reentrant.
type Queue struct {
	mu      sync.Mutex
	entries []store.Entry

	capHard   int
	threshold int

	signal chan struct{}

	logger      interfaces.Logger
	observer    interfaces.Observer
	lastDropLog time.Time
}

// New builds a Queue with a hard cap and a batch-size signaling
// threshold. threshold must be <= capHard; callers validate this during
// option parsing.
func New(capHard, threshold int, logger interfaces.Logger, observer interfaces.Observer) *Queue {
	return &Queue{
		capHard:   capHard,
		threshold: threshold,
		signal:    make(chan struct{}, 1),
		logger:    logger,
		observer:  observer,
	}
}

// Push appends entry to the queue. If the queue is already at the hard
// cap, the oldest entry is dropped to make room — the queue never grows
// without bound. Reaching the batch-size threshold wakes the writer via
// Signal.
func (q *Queue) Push(e store.Entry) {
	q.mu.Lock()
	dropped := false
	if len(q.entries) >= q.capHard {
		q.entries = q.entries[1:]
		dropped = true
	}
	q.entries = append(q.entries, e)
	reachedThreshold := len(q.entries) >= q.threshold
	q.mu.Unlock()

	switch {
	case dropped:
		if q.observer != nil {
			q.observer.ObserveDropped("queue_full")
		}
		q.logDropped()
	case q.observer != nil:
		q.observer.ObserveEnqueued(kindOf(e))
	}

	if reachedThreshold {
		select {
		case q.signal <- struct{}{}:
		default:
		}
	}
}

func kindOf(e store.Entry) string {
	if e.Delete != nil {
		return "delete"
	}
	return "insert"
}

// logDropped rate-limits the hard-cap warning to once per second so a
// sustained overload doesn't flood the broker's log.
func (q *Queue) logDropped() {
	q.mu.Lock()
	now := time.Now()
	shouldLog := now.Sub(q.lastDropLog) >= time.Second
	if shouldLog {
		q.lastDropLog = now
	}
	q.mu.Unlock()

	if shouldLog && q.logger != nil {
		q.logger.Warnf("write queue at hard cap (%d), dropping oldest entry", q.capHard)
	}
}

// Signal returns the channel the writer selects on, alongside its
// flush-interval timer, to wake on either a size or time trigger.
func (q *Queue) Signal() <-chan struct{} {
	return q.signal
}

// Drain removes and returns every currently queued entry, in push order.
// It returns nil when the queue is empty.
func (q *Queue) Drain() []store.Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return nil
	}
	out := q.entries
	q.entries = nil
	return out
}

// Len reports the current queue depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
