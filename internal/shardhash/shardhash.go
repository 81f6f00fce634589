// Package shardhash implements the strong content hash modulo shard count
// primitive used by every sharder and by the disk-backed join/reductor
// bucket assignment.
package shardhash

import "github.com/cespare/xxhash/v2"

// Of returns a content hash of key, independent of shard count.
func Of(key []byte) uint64 {
	return xxhash.Sum64(key)
}

// OfString is a convenience wrapper for string keys, avoiding an
// allocation-causing []byte(s) conversion on the hot path.
func OfString(key string) uint64 {
	return xxhash.Sum64String(key)
}

// Shard maps a hash to a shard index in [0, count). count must be > 0.
func Shard(hash uint64, count int) int {
	if count <= 0 {
		panic("shardhash: count must be positive")
	}
	return int(hash % uint64(count))
}

// ShardOfString hashes key and maps it directly to a shard index.
func ShardOfString(key string, count int) int {
	return Shard(OfString(key), count)
}
