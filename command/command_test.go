package command

import (
	"testing"
	"time"

	"github.com/heimuheimu/naivecache-sub000/protocol"
)

func TestSimpleAwaitTimeout(t *testing.T) {
	c := NewSimple(protocol.NewSet([]byte("k"), [4]byte{}, 0, []byte("v")))
	_, err := c.Await(10 * time.Millisecond)
	if err != ErrTimeout {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestSimpleReceiveCompletes(t *testing.T) {
	c := NewSimple(protocol.NewSet([]byte("k"), [4]byte{}, 0, []byte("v")))
	go func() {
		c.Receive(&protocol.Response{Opcode: protocol.OpSet, Status: protocol.StatusNoError})
	}()
	resps, err := c.Await(time.Second)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if len(resps) != 1 {
		t.Fatalf("expected 1 response, got %d", len(resps))
	}
}

func TestSimpleOpcodeMismatchIsFatal(t *testing.T) {
	c := NewSimple(protocol.NewSet([]byte("k"), [4]byte{}, 0, []byte("v")))
	err := c.Receive(&protocol.Response{Opcode: protocol.OpGet})
	if err != ErrOpcodeMismatch {
		t.Fatalf("expected ErrOpcodeMismatch, got %v", err)
	}
}

func TestSimpleCancelReleasesWaiterEmpty(t *testing.T) {
	c := NewSimple(protocol.NewDelete([]byte("k")))
	go c.Cancel()
	resps, err := c.Await(time.Second)
	if err != nil {
		t.Fatalf("Await after Cancel: %v", err)
	}
	if len(resps) != 0 {
		t.Fatalf("expected empty response list after cancel, got %d", len(resps))
	}
}

func TestGetOptimizeFoldsSameKey(t *testing.T) {
	primary := NewGet([]byte("dup"))
	shadow := NewGet([]byte("dup"))

	if !primary.Optimize(shadow) {
		t.Fatal("expected primary to absorb shadow with same key")
	}

	resp := &protocol.Response{Opcode: protocol.OpGet, Status: protocol.StatusNoError, Value: []byte("v1")}
	if err := primary.Receive(resp); err != nil {
		t.Fatalf("Receive: %v", err)
	}

	primaryResps, err := primary.Await(time.Second)
	if err != nil || len(primaryResps) != 1 {
		t.Fatalf("primary Await: resps=%v err=%v", primaryResps, err)
	}
	shadowResps, err := shadow.Await(time.Second)
	if err != nil || len(shadowResps) != 1 {
		t.Fatalf("shadow Await: resps=%v err=%v", shadowResps, err)
	}
	if string(shadowResps[0].Value) != "v1" {
		t.Fatalf("shadow did not receive the same response bytes")
	}
}

func TestGetOptimizeRejectsDifferentKey(t *testing.T) {
	a := NewGet([]byte("a"))
	b := NewGet([]byte("b"))
	if a.Optimize(b) {
		t.Fatal("expected Optimize to reject a different key")
	}
}

func TestGetOptimizeRejectsAfterWrite(t *testing.T) {
	a := NewGet([]byte("k"))
	a.MarkWritten()
	b := NewGet([]byte("k"))
	if a.Optimize(b) {
		t.Fatal("expected Optimize to refuse folding once the primary has been written")
	}
}

func TestMultiGetCompletesOnLastKey(t *testing.T) {
	keys := [][]byte{[]byte("a"), []byte("b"), []byte("c")}
	mg := NewMultiGet(keys)

	frames := mg.RequestBytesAll()
	if len(frames) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(frames))
	}
	lastHeader := frames[2]
	if lastHeader[1] != protocol.OpGetK {
		t.Fatalf("last frame opcode = 0x%02x, want OpGetK", lastHeader[1])
	}
	if frames[0][1] != protocol.OpGetKQ || frames[1][1] != protocol.OpGetKQ {
		t.Fatalf("non-last frames must be OpGetKQ")
	}

	mg.Receive(&protocol.Response{Opcode: protocol.OpGetKQ, Key: []byte("a"), Status: protocol.StatusNoError})
	if mg.State() == StateCompleted {
		t.Fatal("should not complete before the last key's response")
	}
	mg.Receive(&protocol.Response{Opcode: protocol.OpGetK, Key: []byte("c"), Status: protocol.StatusKeyNotFound})
	if mg.State() != StateCompleted {
		t.Fatal("expected completion once the last key's response arrives")
	}

	resps, err := mg.Await(time.Second)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if len(resps) != 2 {
		t.Fatalf("expected 2 accumulated responses, got %d", len(resps))
	}
}
