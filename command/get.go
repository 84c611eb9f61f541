package command

import (
	"bytes"
	"time"

	"github.com/heimuheimu/naivecache-sub000/protocol"
)

// Get is a GET command with write-side deduplication ("the optimizer"):
// a later GET for the same byte-equal key that is still AWAITING_WRITE
// when this one is flushed becomes a shadow of this one instead of
// being written to the socket. Folding is scoped to the flush batch
// that is still pending in the writer — per spec.md's Open Question 2,
// a GET arriving after its primary is already on the wire always
// becomes a new primary, never a shadow.
type Get struct {
	base
	req     *protocol.Request
	key     []byte
	shadows []*Get
}

// NewGet builds a GET command for key.
func NewGet(key []byte) *Get {
	req := protocol.NewGet(key)
	return &Get{base: newBase(protocol.OpGet), req: req, key: key}
}

func (c *Get) Key() []byte { return c.key }

// RequestBytes returns this command's wire bytes. Whether they are
// actually written is decided by the channel's write-side optimizer
// pass (flushBatch), which may fold this command into an earlier
// pending Get for the same key instead of calling RequestBytes at all.
func (c *Get) RequestBytes() []byte {
	return c.req.Bytes
}

func (c *Get) ResponseExpected() bool {
	return c.State() != StateCompleted
}

// Optimize asks whether c (already enqueued, still AWAITING_WRITE) can
// absorb other. other becomes a shadow of c when the keys match
// byte-for-byte and c has not yet been written.
func (c *Get) Optimize(other *Get) bool {
	if c.State() != StateAwaitingWrite {
		return false
	}
	if !bytes.Equal(c.key, other.key) {
		return false
	}
	c.mu.Lock()
	c.shadows = append(c.shadows, other)
	c.mu.Unlock()
	return true
}

// MarkWritten records that this command's bytes reached the socket,
// closing the optimizer's folding window for it.
func (c *Get) MarkWritten() { c.markWritten() }

func (c *Get) Receive(resp *protocol.Response) error {
	if err := c.checkOpcode(resp); err != nil {
		return err
	}
	c.appendResponse(resp)
	c.deliverToShadows(resp)
	c.finish(StateCompleted)
	return nil
}

// deliverToShadows copies resp to every command that was folded into
// this one so each caller observes the same response bytes.
func (c *Get) deliverToShadows(resp *protocol.Response) {
	c.mu.Lock()
	shadows := c.shadows
	c.shadows = nil
	c.mu.Unlock()

	for _, s := range shadows {
		s.appendResponse(resp)
		s.finish(StateCompleted)
	}
}

func (c *Get) Await(timeout time.Duration) ([]*protocol.Response, error) {
	return c.await(timeout)
}
