package client

import (
	"io"
	"net"
	"testing"

	"github.com/heimuheimu/naivecache-sub000/protocol"
)

func missServer(t *testing.T) string {
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
						io.ReadFull(conn, body)
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

func TestOneTimeClientDoClosesAfterUse(t *testing.T) {
	addr := missServer(t)
	ot := NewOneTime(addr, DefaultConfig(), nil)

	var sawActive bool
	var used *DirectClient
	err := ot.Do(func(dc *DirectClient) {
		used = dc
		sawActive = dc.IsActive()
		dc.Get("k")
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if !sawActive {
		t.Fatal("expected the client to be active during Do")
	}
	if used.IsActive() {
		t.Fatal("expected the client to be closed once Do returns")
	}
}

func TestAutoReconnectClientServesAfterInitialConnect(t *testing.T) {
	addr := missServer(t)
	arc, err := NewAutoReconnect(addr, DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("NewAutoReconnect: %v", err)
	}
	defer arc.Close()

	if !arc.IsActive() {
		t.Fatal("expected active immediately after connect")
	}
	_, ok := arc.Get("k")
	if ok {
		t.Fatal("expected miss from the fake server")
	}
}
