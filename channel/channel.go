// Package channel implements the IO engine: one goroutine owns a
// single duplex connection, accepts commands from many producers via
// an unbounded queue, batches frames up to the socket's send-buffer
// size, tracks outstanding commands in FIFO order, dispatches
// responses by draining the queue and the in-flight list in turn, and
// auto-closes on repeated timeouts or stream end.
//
// Grounded on the teacher's single-goroutine select loop
// (pkg/tqsession/worker.go's (*Worker).run), generalized from "one
// request channel, dispatch by op" to "batch-write then drain-read".
package channel

import (
	"bytes"
	"container/list"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/heimuheimu/naivecache-sub000/command"
	"github.com/heimuheimu/naivecache-sub000/internal/sockconf"
	"github.com/heimuheimu/naivecache-sub000/protocol"
)

// State values for a Channel's lifecycle.
type State int32

const (
	StateUninitialized State = iota
	StateNormal
	StateClosed
)

// ErrInvalidState is returned by Send when the channel is not NORMAL.
var ErrInvalidState = errors.New("channel: invalid state")

// MaxConsecutiveTimeouts is the threshold from spec.md §3/§4.6: more
// than this many timeouts in a row, each within ConsecutiveTimeoutWindow
// of the last, auto-closes the channel.
const MaxConsecutiveTimeouts = 50

// ConsecutiveTimeoutWindow is the "within <1s of each other" window.
const ConsecutiveTimeoutWindow = time.Second

// writeNotifier is implemented by command types that need to know when
// their bytes actually reached the socket (closing their own folding
// or retry windows).
type writeNotifier interface {
	MarkWritten()
}

// multiFramed is implemented by commands (MultiGet) whose wire
// representation is more than one frame.
type multiFramed interface {
	RequestBytesAll() [][]byte
}

// foldable is implemented by commands (Get) that participate in the
// write-side optimizer.
type foldable interface {
	command.Command
	Key() []byte
	Optimize(other *command.Get) bool
}

// Channel owns one socket and the single IO goroutine multiplexing it.
type Channel struct {
	host   string
	sockCfg sockconf.Config

	state int32 // State, accessed via atomic

	conn           net.Conn
	sendBufferSize int

	queue *cmdQueue

	mu            sync.Mutex
	awaiting      *list.List // of command.Command, owned by IO goroutine + Close
	timeoutCount  int
	lastTimeout   time.Time

	closeOnce sync.Once
	done      chan struct{}

	// OnClose is invoked (if non-nil) exactly once when the channel
	// transitions to CLOSED, with the triggering error (nil for an
	// explicit Close()).
	OnClose func(err error)
}

// New constructs a channel for host with the given socket configuration.
// It starts in StateUninitialized; call Init to connect.
func New(host string, cfg sockconf.Config) *Channel {
	return &Channel{
		host:    host,
		sockCfg: cfg,
		state:   int32(StateUninitialized),
		queue:   newCmdQueue(),
		awaiting: list.New(),
		done:    make(chan struct{}),
	}
}

// Host returns the channel's target address.
func (ch *Channel) Host() string { return ch.host }

// Init dials the socket and, on success, transitions to NORMAL and
// starts the IO loop; on failure it self-closes and returns the error.
func (ch *Channel) Init() error {
	conn, err := sockconf.Dial(ch.host, ch.sockCfg)
	if err != nil {
		ch.closeWithCause(err)
		return err
	}
	ch.conn = conn
	ch.sendBufferSize = sockconf.EffectiveSendBufferSize(conn, ch.sockCfg.SendBufferSize)
	atomic.StoreInt32(&ch.state, int32(StateNormal))
	go ch.loop()
	return nil
}

// IsActive reports whether the channel is in NORMAL state.
func (ch *Channel) IsActive() bool {
	return State(atomic.LoadInt32(&ch.state)) == StateNormal
}

// Send enqueues cmd and waits up to timeout for its response(s),
// implementing spec.md §4.6's consecutive-timeout bookkeeping.
func (ch *Channel) Send(cmd command.Command, timeout time.Duration) ([]*protocol.Response, error) {
	if !ch.IsActive() {
		return nil, ErrInvalidState
	}

	ch.queue.push(cmd)
	resps, err := cmd.Await(timeout)
	if err == command.ErrTimeout {
		ch.recordTimeout()
	}
	return resps, err
}

func (ch *Channel) recordTimeout() {
	ch.mu.Lock()
	now := time.Now()
	if ch.lastTimeout.IsZero() || now.Sub(ch.lastTimeout) >= ConsecutiveTimeoutWindow {
		ch.timeoutCount = 1
	} else {
		ch.timeoutCount++
	}
	ch.lastTimeout = now
	exceeded := ch.timeoutCount > MaxConsecutiveTimeouts
	ch.mu.Unlock()

	if exceeded {
		ch.closeWithCause(errors.New("channel: too many consecutive timeouts"))
	}
}

// Close idempotently closes the channel: stops the IO loop, cancels
// every outstanding and queued command, and closes the socket.
func (ch *Channel) Close() error {
	return ch.closeWithCause(nil)
}

func (ch *Channel) closeWithCause(cause error) error {
	var closeErr error
	ch.closeOnce.Do(func() {
		atomic.StoreInt32(&ch.state, int32(StateClosed))
		ch.queue.closeQueue()

		ch.mu.Lock()
		pending := ch.awaiting
		ch.awaiting = list.New()
		ch.mu.Unlock()

		for e := pending.Front(); e != nil; e = e.Next() {
			e.Value.(command.Command).Cancel()
		}
		for _, c := range ch.queue.drain() {
			c.Cancel()
		}

		if ch.conn != nil {
			closeErr = ch.conn.Close()
		}
		close(ch.done)
		if ch.OnClose != nil {
			ch.OnClose(cause)
		}
	})
	return closeErr
}

// Done returns a channel closed once the IO loop has fully exited.
func (ch *Channel) Done() <-chan struct{} { return ch.done }

// loop is the single IO goroutine: batch writes up to the send-buffer
// size, then drain every outstanding response before looping.
func (ch *Channel) loop() {
	var batch []command.Command
	batchSize := 0

	// Commands held in an unflushed batch when the loop exits are neither
	// queued nor awaiting, so closeWithCause cannot reach them; cancel
	// them here so their waiters are released too.
	defer func() {
		for _, c := range batch {
			c.Cancel()
		}
	}()

	for {
		cmd := ch.queue.takeBlocking()
		if cmd == nil {
			// Queue was closed (channel shutting down).
			return
		}

		frameLen := frameLength(cmd)
		if batchSize+frameLen < ch.sendBufferSize {
			batch = append(batch, cmd)
			batchSize += frameLen
			if ch.queue.empty() {
				if err := ch.flushBatch(batch); err != nil {
					ch.closeWithCause(err)
					return
				}
				batch = nil
				batchSize = 0
			}
		} else {
			if err := ch.flushBatch(batch); err != nil {
				ch.closeWithCause(err)
				return
			}
			batch = nil
			batchSize = 0

			if ch.queue.empty() {
				if err := ch.flushBatch([]command.Command{cmd}); err != nil {
					ch.closeWithCause(err)
					return
				}
			} else {
				batch = append(batch, cmd)
				batchSize += frameLen
			}
		}

		if err := ch.drainResponses(); err != nil {
			ch.closeWithCause(err)
			return
		}
	}
}

func frameLength(cmd command.Command) int {
	if mf, ok := cmd.(multiFramed); ok {
		total := 0
		for _, f := range mf.RequestBytesAll() {
			total += len(f)
		}
		return total
	}
	return len(cmd.RequestBytes())
}

// flushBatch applies the write-side optimizer (GET deduplication) and
// writes every surviving command's frames in one syscall, then pushes
// response-expecting commands onto the awaiting FIFO.
func (ch *Channel) flushBatch(batch []command.Command) error {
	if len(batch) == 0 {
		return nil
	}

	type survivor struct {
		cmd    command.Command
		frames [][]byte
	}

	var survivors []survivor
	primaries := make(map[string]foldable)

	for _, cmd := range batch {
		if g, ok := cmd.(foldable); ok {
			key := string(g.Key())
			if primary, exists := primaries[key]; exists {
				if primary.Optimize(anyToGet(g)) {
					continue // folded into primary; not written, not awaited
				}
			}
			primaries[key] = g
			survivors = append(survivors, survivor{cmd: g, frames: [][]byte{g.RequestBytes()}})
			continue
		}
		if mf, ok := cmd.(multiFramed); ok {
			survivors = append(survivors, survivor{cmd: cmd, frames: mf.RequestBytesAll()})
			continue
		}
		survivors = append(survivors, survivor{cmd: cmd, frames: [][]byte{cmd.RequestBytes()}})
	}

	var buf bytes.Buffer
	for _, s := range survivors {
		for _, f := range s.frames {
			buf.Write(f)
		}
	}
	if buf.Len() > 0 {
		if _, err := ch.conn.Write(buf.Bytes()); err != nil {
			return err
		}
	}

	ch.mu.Lock()
	for _, s := range survivors {
		if wn, ok := s.cmd.(writeNotifier); ok {
			wn.MarkWritten()
		}
		if s.cmd.ResponseExpected() {
			ch.awaiting.PushBack(s.cmd)
		}
	}
	ch.mu.Unlock()
	return nil
}

// anyToGet narrows the foldable interface back to *command.Get, the
// only concrete type that currently implements it. A type assertion
// failure here would indicate a new foldable command type was added
// without updating Optimize's signature.
func anyToGet(f foldable) *command.Get {
	return f.(*command.Get)
}

// drainResponses reads and dispatches responses until the awaiting
// FIFO is empty, mirroring spec.md §4.6's inner while loop.
func (ch *Channel) drainResponses() error {
	for {
		ch.mu.Lock()
		if ch.awaiting.Len() == 0 {
			ch.mu.Unlock()
			return nil
		}
		front := ch.awaiting.Front()
		head := front.Value.(command.Command)
		ch.mu.Unlock()

		resp, err := protocol.ReadResponse(ch.conn)
		if err != nil {
			return err
		}

		if err := head.Receive(resp); err != nil {
			return err
		}

		ch.mu.Lock()
		if !head.ResponseExpected() {
			ch.awaiting.Remove(front)
		}
		ch.mu.Unlock()
	}
}
