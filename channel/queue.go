package channel

import (
	"container/list"
	"sync"

	"github.com/heimuheimu/naivecache-sub000/command"
)

// cmdQueue is the unbounded, multi-producer/single-consumer FIFO that
// feeds the IO loop. It is "unbounded" in the sense spec.md means it:
// producers never block on a full buffer, only the single consumer
// blocks when the queue is empty.
type cmdQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  *list.List
	closed bool
}

func newCmdQueue() *cmdQueue {
	q := &cmdQueue{items: list.New()}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *cmdQueue) push(c command.Command) {
	q.mu.Lock()
	q.items.PushBack(c)
	q.cond.Signal()
	q.mu.Unlock()
}

// takeBlocking is the queue's point of suspension: it blocks until an
// item is available or the queue is closed (returning nil).
func (q *cmdQueue) takeBlocking() command.Command {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.items.Len() == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.items.Len() == 0 {
		return nil
	}
	e := q.items.Front()
	q.items.Remove(e)
	return e.Value.(command.Command)
}

func (q *cmdQueue) empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len() == 0
}

// drain removes and returns every remaining item, used when closing
// the channel so pending commands can be cancelled.
func (q *cmdQueue) drain() []command.Command {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []command.Command
	for e := q.items.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(command.Command))
	}
	q.items.Init()
	return out
}

func (q *cmdQueue) closeQueue() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
}
