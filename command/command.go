// Package command implements the in-flight command objects the
// channel writes and the client awaits: one type per Memcached
// operation, each carrying its request bytes, a one-shot completion
// signal, and the collected response list.
//
// The design is grounded on the teacher's Request/Response-over-channel
// idiom (pkg/tqsession/worker.go), generalized from a single local
// request/response pair into per-operation command types with explicit
// state and timeout/cancel support, the way a network client (rather
// than an in-process worker) needs.
package command

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/heimuheimu/naivecache-sub000/protocol"
)

// State values for a Command's lifecycle.
type State int32

const (
	StateAwaitingWrite State = iota
	StateAwaitingResponse
	StateCompleted
	StateCancelled
	StateTimedOut
)

// ErrTimeout is returned by Await when the deadline elapses before a
// matching response arrives.
var ErrTimeout = errors.New("command: timeout waiting for response")

// ErrOpcodeMismatch is returned by Receive when a response's opcode
// does not match the request's — fatal to the owning channel.
var ErrOpcodeMismatch = protocol.ErrOpcodeMismatch

// Command is the interface the channel's IO loop and the direct client
// operate on, independent of which Memcached operation it represents.
type Command interface {
	// RequestBytes returns the complete wire bytes of the request. A
	// command folded into another by the channel's optimizer still
	// returns its bytes; the channel simply does not write them.
	RequestBytes() []byte
	// ResponseExpected reports whether the channel should still push
	// this command onto the awaiting FIFO after writing it.
	ResponseExpected() bool
	// Receive delivers one response to the command. Returns
	// ErrOpcodeMismatch if resp.Opcode doesn't match the request.
	Receive(resp *protocol.Response) error
	// Await blocks until completion, cancellation, or timeout.
	Await(timeout time.Duration) ([]*protocol.Response, error)
	// Cancel releases any waiter with an empty result list.
	Cancel()
}

// base implements the completion-signal plumbing shared by every
// command type: a chan struct{} closed exactly once via sync.Once, the
// idiomatic Go analogue of the spec's one-shot completion signal.
type base struct {
	state     int32 // State, accessed via atomic
	done      chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
	responses []*protocol.Response
	opcode    byte
}

func newBase(opcode byte) base {
	return base{
		state:  int32(StateAwaitingWrite),
		done:   make(chan struct{}),
		opcode: opcode,
	}
}

func (b *base) State() State {
	return State(atomic.LoadInt32(&b.state))
}

func (b *base) setState(s State) {
	atomic.StoreInt32(&b.state, int32(s))
}

// markWritten transitions AWAITING_WRITE -> AWAITING_RESPONSE. Called
// by the channel's IO loop once the bytes are handed to the socket.
func (b *base) markWritten() {
	atomic.CompareAndSwapInt32(&b.state, int32(StateAwaitingWrite), int32(StateAwaitingResponse))
}

func (b *base) finish(s State) {
	b.setState(s)
	b.closeOnce.Do(func() { close(b.done) })
}

func (b *base) Cancel() {
	b.mu.Lock()
	b.responses = nil
	b.mu.Unlock()
	b.finish(StateCancelled)
}

func (b *base) await(timeout time.Duration) ([]*protocol.Response, error) {
	if timeout <= 0 {
		<-b.done
	} else {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-b.done:
		case <-timer.C:
			// Only the waiting side is affected: the request may
			// already be on the wire and its eventual (discarded)
			// response is handled independently by Receive.
			wasTimedOut := atomic.CompareAndSwapInt32(&b.state, int32(StateAwaitingResponse), int32(StateTimedOut)) ||
				atomic.CompareAndSwapInt32(&b.state, int32(StateAwaitingWrite), int32(StateTimedOut))
			if wasTimedOut {
				return nil, ErrTimeout
			}
			// State already finished concurrently; fall through to
			// read whatever was recorded.
			<-b.done
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.State() == StateCancelled {
		return nil, nil
	}
	return b.responses, nil
}

func (b *base) appendResponse(r *protocol.Response) {
	b.mu.Lock()
	b.responses = append(b.responses, r)
	b.mu.Unlock()
}

func (b *base) checkOpcode(r *protocol.Response) error {
	if r.Opcode != b.opcode {
		return ErrOpcodeMismatch
	}
	return nil
}
