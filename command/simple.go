package command

import (
	"time"

	"github.com/heimuheimu/naivecache-sub000/protocol"
)

// Simple wraps any single-reply request (SET, ADD, DELETE, TOUCH,
// INCREMENT, DECREMENT, APPEND, PREPEND, ...): on the first matching
// response it completes and releases waiters.
type Simple struct {
	base
	req *protocol.Request
}

// NewSimple builds a single-reply command around req.
func NewSimple(req *protocol.Request) *Simple {
	return &Simple{base: newBase(req.Opcode), req: req}
}

func (c *Simple) RequestBytes() []byte { return c.req.Bytes }

func (c *Simple) ResponseExpected() bool {
	return c.State() != StateCompleted
}

func (c *Simple) Receive(resp *protocol.Response) error {
	if err := c.checkOpcode(resp); err != nil {
		return err
	}
	c.appendResponse(resp)
	c.finish(StateCompleted)
	return nil
}

func (c *Simple) Await(timeout time.Duration) ([]*protocol.Response, error) {
	return c.await(timeout)
}

// MarkWritten records that the command's bytes reached the socket.
func (c *Simple) MarkWritten() { c.markWritten() }
