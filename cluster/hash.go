package cluster

import "hash/fnv"

// jumpConsistentHash implements the Jump Consistent Hash algorithm
// (Lamping & Veach): given a 64-bit key hash and a bucket count,
// returns a bucket in [0, buckets) such that growing buckets by one
// moves only O(1/buckets) keys.
//
// The bit-shuffling constants below are exactly Lamping & Veach's
// published algorithm, not a value tuned for this codebase.
func jumpConsistentHash(keyHash uint64, buckets int) int {
	if buckets <= 0 {
		return 0
	}
	var candidate int64 = -1
	var next int64 = 0
	state := keyHash

	for next < int64(buckets) {
		candidate = next
		state = state*2862933555777941757 + 1
		next = int64(float64(candidate+1) / (float64((state>>33)+1) / float64(int64(1)<<31)))
	}
	return int(candidate)
}

// hashKey reduces an arbitrary byte key to the 64-bit seed
// jumpConsistentHash expects, using FNV-1a — the same pre-hash
// sharded.go's ShardedCache uses (fnv.New32a()) before reducing to a
// shard index, kept here as the seed for the LCG instead of a direct
// modulo.
func hashKey(key []byte) uint64 {
	h := fnv.New32a()
	h.Write(key)
	return uint64(h.Sum32())
}

// resolveIndex picks a bucket in [0, buckets) for key.
func resolveIndex(key []byte, buckets int) int {
	return jumpConsistentHash(hashKey(key), buckets)
}
