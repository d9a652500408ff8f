package tagbench

import (
	"encoding/binary"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
	"github.com/spaolacci/murmur3"
	"github.com/zeebo/xxh3"

	"github.com/rip-create-your-account/tagbench/fishtable"
)

var hashers = map[string]fishtable.Hasher[uint64]{
	"xxh3":    xxh3Hasher,
	"xxhash":  xxhashHasher,
	"murmur3": murmur3Hasher,
}

func xxh3Hasher(key uint64, seed uint64) uint64 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], key)
	return xxh3.HashSeed(b[:], seed)
}

// xxhash/v2 has no seeded one-shot, so the seed is folded into the key.
func xxhashHasher(key uint64, seed uint64) uint64 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], key^seed)
	return xxhash.Sum64(b[:])
}

func murmur3Hasher(key uint64, seed uint64) uint64 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], key)
	return murmur3.Sum64WithSeed(b[:], uint32(seed)^uint32(seed>>32))
}

// HasherByName returns the key hasher the fishtable kinds use.
func HasherByName(name string) (fishtable.Hasher[uint64], error) {
	h, ok := hashers[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownHasher, "%q", name)
	}
	return h, nil
}

// HasherNames lists the registered hashers, sorted.
func HasherNames() []string {
	names := make([]string, 0, len(hashers))
	for name := range hashers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
