package channel

import (
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/heimuheimu/naivecache-sub000/command"
	"github.com/heimuheimu/naivecache-sub000/internal/sockconf"
	"github.com/heimuheimu/naivecache-sub000/protocol"
)

// fakeServer accepts exactly one connection and runs handle against it
// on a separate goroutine, returning the listener's address.
func fakeServer(t *testing.T, handle func(net.Conn)) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		handle(conn)
	}()
	t.Cleanup(func() { ln.Close() })
	return ln.Addr().String()
}

func newTestChannel(t *testing.T, addr string) *Channel {
	t.Helper()
	cfg := sockconf.Default()
	cfg.ConnectTimeout = time.Second
	ch := New(addr, cfg)
	if err := ch.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { ch.Close() })
	return ch
}

// echoGet answers every request it receives with a success response
// carrying the request's opcode and value.
func echoGet(conn net.Conn, value []byte) {
	defer conn.Close()
	for {
		req, err := readRequestHeader(conn)
		if err != nil {
			return
		}
		resp := &protocol.Response{Opcode: req.opcode, Status: protocol.StatusNoError, Value: value}
		writeResponse(conn, resp)
	}
}

type parsedReq struct {
	opcode byte
	key    []byte
}

func readRequestHeader(conn net.Conn) (parsedReq, error) {
	hdr := make([]byte, protocol.HeaderSize)
	if _, err := readFull(conn, hdr); err != nil {
		return parsedReq{}, err
	}
	h := protocol.DecodeHeader(hdr)
	body := make([]byte, h.TotalBodyLength)
	if len(body) > 0 {
		if _, err := readFull(conn, body); err != nil {
			return parsedReq{}, err
		}
	}
	key := body[h.ExtrasLength : int(h.ExtrasLength)+int(h.KeyLength)]
	return parsedReq{opcode: h.Opcode, key: key}, nil
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func writeResponse(conn net.Conn, resp *protocol.Response) {
	var extras []byte
	body := make([]byte, protocol.HeaderSize+len(extras)+len(resp.Key)+len(resp.Value))
	h := protocol.Header{
		Magic:           protocol.ResMagic,
		Opcode:          resp.Opcode,
		KeyLength:       uint16(len(resp.Key)),
		ExtrasLength:    uint8(len(extras)),
		VBucketOrStatus: resp.Status,
		TotalBodyLength: uint32(len(extras) + len(resp.Key) + len(resp.Value)),
	}
	h.Encode(body[:protocol.HeaderSize])
	off := protocol.HeaderSize
	off += copy(body[off:], extras)
	off += copy(body[off:], resp.Key)
	copy(body[off:], resp.Value)
	conn.Write(body)
}

func TestChannelPipelinesInOrder(t *testing.T) {
	addr := fakeServer(t, func(conn net.Conn) { echoGet(conn, []byte("v")) })
	ch := newTestChannel(t, addr)

	a := command.NewGet([]byte("a"))
	b := command.NewGet([]byte("b"))

	if _, err := ch.Send(a, time.Second); err != nil {
		t.Fatalf("send a: %v", err)
	}
	if _, err := ch.Send(b, time.Second); err != nil {
		t.Fatalf("send b: %v", err)
	}
}

func TestChannelFoldsDuplicateGets(t *testing.T) {
	var served int32
	addr := fakeServer(t, func(conn net.Conn) {
		defer conn.Close()
		for {
			req, err := readRequestHeader(conn)
			if err != nil {
				return
			}
			atomic.AddInt32(&served, 1)
			writeResponse(conn, &protocol.Response{Opcode: req.opcode, Status: protocol.StatusNoError, Key: req.key, Value: []byte("v")})
		}
	})
	ch := newTestChannel(t, addr)

	a := command.NewGet([]byte("dup"))
	b := command.NewGet([]byte("dup"))

	// Enqueue both under one lock so the IO loop sees them together: it
	// takes a, finds b still queued, and flushes both in one batch.
	ch.queue.mu.Lock()
	ch.queue.items.PushBack(a)
	ch.queue.items.PushBack(b)
	ch.queue.cond.Signal()
	ch.queue.mu.Unlock()

	ra, err := a.Await(time.Second)
	if err != nil || len(ra) != 1 {
		t.Fatalf("await a: resps=%v err=%v", ra, err)
	}
	rb, err := b.Await(time.Second)
	if err != nil || len(rb) != 1 {
		t.Fatalf("await b: resps=%v err=%v", rb, err)
	}
	if string(ra[0].Value) != string(rb[0].Value) {
		t.Fatalf("shadow saw %q, primary saw %q", rb[0].Value, ra[0].Value)
	}
	if n := atomic.LoadInt32(&served); n != 1 {
		t.Fatalf("expected one GET frame on the wire, server saw %d", n)
	}
}

func TestChannelTimeoutDoesNotBlockLaterSends(t *testing.T) {
	addr := fakeServer(t, func(conn net.Conn) {
		defer conn.Close()
		// Never respond; just drain bytes so writes don't block.
		buf := make([]byte, 4096)
		for {
			if _, err := conn.Read(buf); err != nil {
				return
			}
		}
	})
	ch := newTestChannel(t, addr)

	_, err := ch.Send(command.NewGet([]byte("k")), 20*time.Millisecond)
	if err != command.ErrTimeout {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}

	// The first GET is still waiting for a response that never comes; a
	// later send must still return by its own deadline.
	start := time.Now()
	_, err = ch.Send(command.NewGet([]byte("k2")), 20*time.Millisecond)
	if err != command.ErrTimeout {
		t.Fatalf("expected ErrTimeout for the later send, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("later send took %v, past its own 20ms deadline", elapsed)
	}
}

func TestChannelClosesAfterConsecutiveTimeoutFlood(t *testing.T) {
	addr := fakeServer(t, func(conn net.Conn) {
		defer conn.Close()
		buf := make([]byte, 4096)
		for {
			if _, err := conn.Read(buf); err != nil {
				return
			}
		}
	})
	ch := newTestChannel(t, addr)

	for i := 0; i <= MaxConsecutiveTimeouts; i++ {
		ch.Send(command.NewGet([]byte("k")), 2*time.Millisecond)
		if !ch.IsActive() {
			break
		}
	}
	if ch.IsActive() {
		t.Fatal("expected channel to auto-close after the timeout flood")
	}
}

func TestChannelCloseCancelsQueuedCommands(t *testing.T) {
	addr := fakeServer(t, func(conn net.Conn) {
		defer conn.Close()
		buf := make([]byte, 4096)
		conn.Read(buf)
		<-time.After(time.Hour) // hold the connection open, never reply
	})
	ch := newTestChannel(t, addr)

	blocker := command.NewGet([]byte("blocker"))
	ch.queue.push(blocker)

	queued := command.NewGet([]byte("queued"))
	ch.queue.push(queued)

	ch.Close()

	resps, err := queued.Await(time.Second)
	if err != nil {
		t.Fatalf("Await after Close: %v", err)
	}
	if resps != nil {
		t.Fatalf("expected nil responses for a cancelled command, got %v", resps)
	}
}
