package cluster

import (
	"github.com/mgtv-tech/redis-ferry/pkg/digest"
)

// NumSlots is the number of hash buckets a redis cluster partitions the
// keyspace into.
const NumSlots = 16384

// Slot maps a key to its cluster slot : CRC16 over the hash-tag region,
// modulo 16384. The hash tag is the substring between the first '{' and the
// next '}' strictly after it; an empty tag ("{}foo") or an unclosed brace
// ("{foo") hashes the whole key.
func Slot(key []byte) uint16 {
	var s, e int
	for s = 0; s < len(key); s++ {
		if key[s] == '{' {
			break
		}
	}

	if s == len(key) {
		return digest.Crc16Bytes(key) & (NumSlots - 1)
	}

	for e = s + 1; e < len(key); e++ {
		if key[e] == '}' {
			break
		}
	}

	if e == len(key) || e == s+1 {
		return digest.Crc16Bytes(key) & (NumSlots - 1)
	}

	return digest.Crc16Bytes(key[s+1:e]) & (NumSlots - 1)
}
