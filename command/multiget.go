package command

import (
	"bytes"
	"time"

	"github.com/heimuheimu/naivecache-sub000/protocol"
)

// MultiGet is built from an ordered key list: one GETKQ request per
// key except the last, which is GETK. It completes when a response's
// key equals the stored last key; the response list accumulates every
// intermediate response (hits and misses both appear as entries).
type MultiGet struct {
	base
	keys    [][]byte
	reqs    []*protocol.Request
	lastKey []byte
}

// NewMultiGet builds a multi-get command over keys (len(keys) >= 1).
func NewMultiGet(keys [][]byte) *MultiGet {
	reqs := make([]*protocol.Request, len(keys))
	for i, k := range keys {
		if i == len(keys)-1 {
			reqs[i] = protocol.NewGetK(k)
		} else {
			reqs[i] = protocol.NewGetKQ(k)
		}
	}
	return &MultiGet{
		base:    newBase(protocol.OpGetK),
		keys:    keys,
		reqs:    reqs,
		lastKey: keys[len(keys)-1],
	}
}

// RequestBytesAll returns every frame to write, in order: one GETKQ
// per key but the last, then one GETK.
func (c *MultiGet) RequestBytesAll() [][]byte {
	out := make([][]byte, len(c.reqs))
	for i, r := range c.reqs {
		out[i] = r.Bytes
	}
	return out
}

// RequestBytes satisfies Command by returning the concatenation of
// every frame; the channel writer special-cases MultiGet to use
// RequestBytesAll instead, summing the frame lengths for the
// batch-size check and writing the frames in order.
func (c *MultiGet) RequestBytes() []byte {
	var buf bytes.Buffer
	for _, r := range c.reqs {
		buf.Write(r.Bytes)
	}
	return buf.Bytes()
}

func (c *MultiGet) ResponseExpected() bool {
	return c.State() != StateCompleted
}

// Receive accepts both GETKQ hits (opcode GetKQ) and the final GETK
// response (opcode GetK); completion is driven by key equality with
// the stored last key, as required for quiet multi-get framing where a
// miss on a quiet key never produces a response at all.
func (c *MultiGet) Receive(resp *protocol.Response) error {
	if resp.Opcode != protocol.OpGetK && resp.Opcode != protocol.OpGetKQ {
		return ErrOpcodeMismatch
	}
	c.appendResponse(resp)
	if bytes.Equal(resp.Key, c.lastKey) {
		c.finish(StateCompleted)
	}
	return nil
}

func (c *MultiGet) Await(timeout time.Duration) ([]*protocol.Response, error) {
	return c.await(timeout)
}

// MarkWritten records that every frame reached the socket.
func (c *MultiGet) MarkWritten() { c.markWritten() }
