package relay

import (
	"context"
	"sync"
	"time"

	"github.com/speakswap/speakswap/internal/observe"
)

// queuePollInterval is how long the consumer loop sleeps when the queue
// is empty before checking again.
const queuePollInterval = 50 * time.Millisecond

// Queue is an unbounded FIFO of sealed utterances. Producers (segmenters)
// push from stream goroutines; a single consumer loop pops in arrival order
// and hands each utterance to a pipeline worker. Ordering is preserved at
// dispatch time only: workers run concurrently, so utterances from different
// speakers overlap in processing.
type Queue struct {
	mu      sync.Mutex
	items   []Utterance
	metrics *observe.Metrics
}

// NewQueue returns an empty utterance queue. Metrics may be nil.
func NewQueue(metrics *observe.Metrics) *Queue {
	return &Queue{metrics: metrics}
}

// Push appends an utterance to the tail of the queue. It never blocks.
func (q *Queue) Push(u Utterance) {
	q.mu.Lock()
	q.items = append(q.items, u)
	q.mu.Unlock()
	if q.metrics != nil {
		q.metrics.QueueDepth.Add(context.Background(), 1)
	}
}

// Pop removes and returns the oldest utterance. The second return value is
// false when the queue is empty.
func (q *Queue) Pop() (Utterance, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Utterance{}, false
	}
	u := q.items[0]
	q.items[0] = Utterance{}
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
	if q.metrics != nil {
		q.metrics.QueueDepth.Add(context.Background(), -1)
	}
	return u, true
}

// Len reports the number of utterances waiting for dispatch.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Run consumes the queue until ctx is cancelled. Each popped utterance is
// handed to handle on its own goroutine, so a slow pipeline never stalls
// dispatch of the next utterance. Run returns after ctx is done; in-flight
// handlers are not awaited.
func (q *Queue) Run(ctx context.Context, handle func(context.Context, Utterance)) {
	ticker := time.NewTicker(queuePollInterval)
	defer ticker.Stop()
	for {
		u, ok := q.Pop()
		if ok {
			go handle(ctx, u)
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
