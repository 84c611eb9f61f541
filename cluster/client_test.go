package cluster

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/heimuheimu/naivecache-sub000/client"
	"github.com/heimuheimu/naivecache-sub000/protocol"
)

// echoServer accepts connections and answers every request with
// StatusKeyNotFound and an empty body, until the listener is closed.
func echoServer(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				for {
					hdr := make([]byte, protocol.HeaderSize)
					if _, err := io.ReadFull(conn, hdr); err != nil {
						return
					}
					h := protocol.DecodeHeader(hdr)
					body := make([]byte, h.TotalBodyLength)
					if len(body) > 0 {
						if _, err := io.ReadFull(conn, body); err != nil {
							return
						}
					}
					resp := make([]byte, protocol.HeaderSize)
					rh := protocol.Header{Magic: protocol.ResMagic, Opcode: h.Opcode, VBucketOrStatus: protocol.StatusKeyNotFound}
					rh.Encode(resp)
					conn.Write(resp)
				}
			}(conn)
		}
	}()
	t.Cleanup(func() { ln.Close() })
	return ln.Addr().String()
}

func TestClusterNewFailsWithNoHosts(t *testing.T) {
	_, err := New(nil, client.DefaultConfig(), nil, nil)
	if err != ErrEmptyHosts {
		t.Fatalf("expected ErrEmptyHosts, got %v", err)
	}
}

func TestClusterRoutesKeyToLiveHost(t *testing.T) {
	a := echoServer(t)
	b := echoServer(t)

	c, err := New([]string{a, b}, client.DefaultConfig(), nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	if !c.IsActive() {
		t.Fatal("expected cluster to be active with two live hosts")
	}

	_, ok := c.Get("any-key")
	if ok {
		t.Fatal("expected miss (fake server always returns key-not-found)")
	}
}

func TestClusterFailsWhenAllHostsUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close() // nothing listens here anymore

	cfg := client.DefaultConfig()
	cfg.Sock.ConnectTimeout = 100 * time.Millisecond
	_, err = New([]string{addr}, cfg, nil, nil)
	if err != ErrNoAliveHosts {
		t.Fatalf("expected ErrNoAliveHosts, got %v", err)
	}
}

func TestClusterMultiGetAcrossHosts(t *testing.T) {
	a := echoServer(t)
	b := echoServer(t)
	c, err := New([]string{a, b}, client.DefaultConfig(), nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	result := c.MultiGet([]string{"k1", "k2", "k3", "k4"})
	if result == nil {
		t.Fatal("MultiGet must never return nil")
	}
	// Fake servers always miss, so the result map should be empty but
	// non-nil, and no operation should hang.
	if len(result) != 0 {
		t.Fatalf("expected empty result from all-miss servers, got %v", result)
	}
}
