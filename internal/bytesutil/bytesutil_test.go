package bytesutil

import "testing"

func TestUint16RoundTrip(t *testing.T) {
	buf := make([]byte, 2)
	for x := 0; x <= 0xffff; x += 97 {
		if err := PutUint16(buf, 0, x); err != nil {
			t.Fatalf("PutUint16(%d): %v", x, err)
		}
		if got := Uint16(buf, 0); int(got) != x {
			t.Fatalf("Uint16(PutUint16(%d)) = %d", x, got)
		}
	}
}

func TestUint16OutOfRange(t *testing.T) {
	buf := make([]byte, 2)
	if err := PutUint16(buf, 0, -1); err != ErrOutOfRange {
		t.Fatalf("expected ErrOutOfRange for -1, got %v", err)
	}
	if err := PutUint16(buf, 0, 0x10000); err != ErrOutOfRange {
		t.Fatalf("expected ErrOutOfRange for 0x10000, got %v", err)
	}
}

func TestUint8OutOfRange(t *testing.T) {
	buf := make([]byte, 1)
	if err := PutUint8(buf, 0, -1); err != ErrOutOfRange {
		t.Fatalf("expected ErrOutOfRange for -1, got %v", err)
	}
	if err := PutUint8(buf, 0, 256); err != ErrOutOfRange {
		t.Fatalf("expected ErrOutOfRange for 256, got %v", err)
	}
	if err := PutUint8(buf, 0, 255); err != nil {
		t.Fatalf("255 should be valid: %v", err)
	}
}

func TestUint32RoundTrip(t *testing.T) {
	buf := make([]byte, 4)
	cases := []uint32{0, 1, 0x7fffffff, 0x80000000, 0xffffffff}
	for _, x := range cases {
		PutUint32(buf, 0, x)
		if got := Uint32(buf, 0); got != x {
			t.Fatalf("Uint32(PutUint32(%d)) = %d", x, got)
		}
	}
}

func TestUint64RoundTrip(t *testing.T) {
	buf := make([]byte, 8)
	cases := []uint64{0, 1, 1 << 40, 0xffffffffffffffff}
	for _, x := range cases {
		PutUint64(buf, 0, x)
		if got := Uint64(buf, 0); got != x {
			t.Fatalf("Uint64(PutUint64(%d)) = %d", x, got)
		}
	}
}
