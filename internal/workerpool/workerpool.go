// Package workerpool implements a bounded worker pool with direct
// hand-off and no task queue: Submit never blocks; it gives the task to
// an idle worker, starts a new worker, or returns ErrSaturated, the
// same three outcomes as a java.util.concurrent.SynchronousQueue-backed
// executor referenced by spec.md's multi-get fan-out design. There is no teacher or pack
// repo with a generic worker pool; this is adapted from the shape of
// sharded.go's ShardedCache (one goroutine launched per shard, joined
// via WaitGroup) generalized into a reusable bounded pool.
package workerpool

import (
	"errors"
	"sync"
	"time"
)

// ErrSaturated is returned by Submit when every worker is busy and no
// new worker can be spawned because Max has been reached.
var ErrSaturated = errors.New("workerpool: saturated")

// Pool is a bounded worker pool. Core workers (if any) stay alive
// indefinitely; additional workers up to Max are spawned on demand and
// exit after KeepAlive idle time.
//
// Hand-off to an idle worker goes through a per-worker, buffered
// (capacity 1) channel rather than one channel shared by all workers.
// Submit claims a worker's channel by popping it from idle under the
// pool's lock, so the send that follows can never find its receiver
// already gone: the worker's own retire path checks the same idle list
// under the same lock before exiting, and backs off if it has just
// been claimed.
type Pool struct {
	core      int
	max       int
	keepAlive time.Duration

	mu      sync.Mutex
	workers int
	idle    []chan func()
}

// New creates a pool with core permanently-running workers, up to max
// total workers, each additional worker retiring after keepAlive idle.
func New(core, max int, keepAlive time.Duration) *Pool {
	p := &Pool{core: core, max: max, keepAlive: keepAlive}
	p.workers = core
	for i := 0; i < core; i++ {
		p.spawn(true, nil)
	}
	return p
}

// Submit hands fn to an available worker, spawning a new one (up to
// Max) if every existing worker is busy. Returns ErrSaturated if the
// pool is already at Max and every worker is busy.
func (p *Pool) Submit(fn func()) error {
	p.mu.Lock()
	if n := len(p.idle); n > 0 {
		ch := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		ch <- fn // buffered cap 1: never blocks, regardless of the worker's state
		return nil
	}
	if p.workers >= p.max {
		p.mu.Unlock()
		return ErrSaturated
	}
	p.workers++
	p.mu.Unlock()
	p.spawn(false, fn)
	return nil
}

// spawn starts a worker goroutine. If first is non-nil the worker runs
// it immediately, before ever publishing a hand-off channel — a freshly
// spawned worker never has to race Submit for its own first task.
func (p *Pool) spawn(isCore bool, first func()) {
	go func() {
		fn := first
		ch := make(chan func(), 1)
		for {
			if fn != nil {
				fn()
				fn = nil
			}

			p.mu.Lock()
			p.idle = append(p.idle, ch)
			p.mu.Unlock()

			if isCore {
				fn = <-ch
				continue
			}

			select {
			case fn = <-ch:
			case <-time.After(p.keepAlive):
				p.mu.Lock()
				if !p.removeIdle(ch) {
					// A Submit already popped our channel in the race
					// with this timeout; its send is buffered and
					// non-blocking, so the task is waiting for us (or
					// about to be) no matter how this timer fired.
					p.mu.Unlock()
					fn = <-ch
					continue
				}
				p.workers--
				p.mu.Unlock()
				return
			}
		}
	}()
}

// removeIdle deletes ch from the idle list, reporting whether it was
// still present — i.e. not yet claimed by a concurrent Submit.
func (p *Pool) removeIdle(ch chan func()) bool {
	for i, c := range p.idle {
		if c == ch {
			p.idle = append(p.idle[:i], p.idle[i+1:]...)
			return true
		}
	}
	return false
}
