package assets

import (
	"sync"

	"github.com/jaekyeom/splitfeed/internal/tracker"
)

// taskQueue is an unbounded FIFO. Enqueueing never blocks the crawl tick;
// a nil task is the shutdown sentinel for one worker.
type taskQueue struct {
	mu    sync.Mutex
	cond  *sync.Cond
	items []*tracker.AssetTask
}

func newTaskQueue() *taskQueue {
	q := &taskQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *taskQueue) push(t *tracker.AssetTask) {
	q.mu.Lock()
	q.items = append(q.items, t)
	q.mu.Unlock()
	q.cond.Signal()
}

// pop blocks until an item is available.
func (q *taskQueue) pop() *tracker.AssetTask {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 {
		q.cond.Wait()
	}
	t := q.items[0]
	q.items = q.items[1:]
	return t
}

func (q *taskQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
