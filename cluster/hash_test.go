package cluster

import "testing"

func TestResolveIndexStableForSameKey(t *testing.T) {
	key := []byte("stable-key")
	first := resolveIndex(key, 8)
	for i := 0; i < 100; i++ {
		if got := resolveIndex(key, 8); got != first {
			t.Fatalf("resolveIndex not stable: got %d, want %d", got, first)
		}
	}
}

func TestResolveIndexWithinRange(t *testing.T) {
	for i := 0; i < 1000; i++ {
		idx := resolveIndex([]byte{byte(i), byte(i >> 8)}, 5)
		if idx < 0 || idx >= 5 {
			t.Fatalf("index %d out of range [0,5)", idx)
		}
	}
}

func TestResolveIndexMovesFewKeysWhenBucketsGrow(t *testing.T) {
	const buckets = 100
	const keys = 5000
	moved := 0
	for i := 0; i < keys; i++ {
		k := []byte{byte(i), byte(i >> 8), byte(i >> 16)}
		before := resolveIndex(k, buckets)
		after := resolveIndex(k, buckets+1)
		if before != after {
			moved++
		}
	}
	// Expect roughly keys/(buckets+1) reassignments; allow generous slack.
	maxExpected := keys/buckets + keys/10
	if moved > maxExpected {
		t.Fatalf("too many keys moved on bucket growth: %d (max expected ~%d)", moved, maxExpected)
	}
}
