// Package fishtable implements Finnish hash tables: extendible hashing over a
// trie of small bucketed open-addressing maps.
package fishtable

import (
	"math"
	"math/bits"

	"golang.org/x/exp/rand"
)

const (
	// Maximum number of buckets per small map.
	// NOTE: Must be a power of two
	maxBuckets = 32

	maxEntriesPerMap = maxBuckets * bucketSize
)

type tophash = uint8

const tophashEmpty tophash = 0

// fixTophash adjusts the hash so that it's never the marker for empty.
func fixTophash(hash uint8) tophash {
	if hash == tophashEmpty {
		return 1
	}
	return hash
}

// holds metadata for each entry in the bucket
type bucketmeta struct {
	// top 8-bits of the hash adjusted with fixTophash()
	tophash8 [bucketSize]tophash
	// the byte of the hash that the next split looks at, so that splitting
	// doesn't need to hash the keys again
	triehash8 [bucketSize]uint8
}

type bucket[K comparable, V any] struct {
	keys   [bucketSize]K
	values [bucketSize]V
}

func indexIntoBuckets(hash tophash, numBuckets int) uint {
	return uint(hash) & uint(numBuckets-1)
}

// triehashFor picks the byte of the hash that holds bit 'depth'.
func triehashFor(hash uint64, depth uint8) uint8 {
	return uint8(hash >> (depth / 8 * 8))
}

// Hasher hashes a key with the per-table seed.
type Hasher[K comparable] func(key K, seed uint64) uint64

// A Finnish hash table, or fish for short. Stores key-value pairs.
//
// The table only grows. Concurrent calls to Get are safe as long as nobody
// is calling Put.
type Table[K comparable, V any] struct {
	hasher Hasher[K]
	trie   []*smolMap[K, V]
	seed   uint64
	len    int
}

type smolMap[K comparable, V any] struct {
	bucketmetas []bucketmeta
	buckets     []bucket[K, V]

	depth      uint8 // <= 64
	preferGrow bool
	pop        uint16 // <= maxEntriesPerMap
}

// MakeFishTable makes an empty table.
//
// WARNING: If more keys than fit in one full small map (224) have the exact
// same hash value, every further Put() splits that map again and doubles the
// trie until memory runs out. Pass in a good hash function.
func MakeFishTable[K comparable, V any](hasher Hasher[K]) *Table[K, V] {
	m := new(Table[K, V])
	m.hasher = hasher
	m.seed = rand.Uint64()
	return m
}

// MakeWithSize makes a table with enough small maps pre-allocated to hold
// size entries without splitting.
func MakeWithSize[K comparable, V any](size int, hasher Hasher[K]) *Table[K, V] {
	m := MakeFishTable[K, V](hasher)
	if size <= 0 {
		return m
	}

	// Aim at 3/4 full small maps so that a few unlucky ones don't split
	// right away.
	const perMap = maxEntriesPerMap * 3 / 4
	numMaps := 1
	if size > perMap {
		numMaps = 1 << bits.Len(uint((size-1)/perMap))
	}
	depth := uint8(bits.TrailingZeros(uint(numMaps)))

	perMapEntries := (size + numMaps - 1) / numMaps
	numBuckets := 1
	if perMapEntries > bucketSize*3/4 {
		numBuckets = 1 << bits.Len(uint((perMapEntries-1)/(bucketSize*3/4)))
	}
	if numBuckets > maxBuckets {
		numBuckets = maxBuckets
	}

	m.trie = make([]*smolMap[K, V], numMaps)
	for i := range m.trie {
		sm := makeSmolMap[K, V](numBuckets)
		sm.depth = depth
		m.trie[i] = sm
	}
	return m
}

func (m *Table[K, V]) Len() int {
	return m.len
}

func (m *Table[K, V]) Get(k K) (V, bool) {
	if len(m.trie) > 0 {
		hash := m.hasher(k, m.seed)

		sm := m.trie[hash&uint64(len(m.trie)-1)]
		mapmetas := sm.bucketmetas

		tophash8 := fixTophash(uint8(hash >> 56))
		triehash8 := triehashFor(hash, sm.depth)

		tophashProbe, triehashProbe := makeHashProbe(tophash8), makeHashProbe(triehash8)
		bucketMask := uint(len(mapmetas) - 1)
		bucketIndex := indexIntoBuckets(tophash8, len(mapmetas)) // start looking from tophash8 location
		max := bucketIndex + uint(len(mapmetas))                 // loop around once

		for ; bucketIndex < max; bucketIndex++ {
			bucketmetas := &mapmetas[bucketIndex&bucketMask]
			finder := bucketmetas.Finder()

			slotsToLookAt := finder.ProbeHashMatches(tophashProbe, triehashProbe)
			for ; slotsToLookAt.HasCurrent(); slotsToLookAt.Advance() {
				idx := slotsToLookAt.Current()

				bucket := &sm.buckets[bucketIndex&bucketMask]
				if bucket.keys[idx] == k {
					return bucket.values[idx], true
				}
			}

			// Probing during inserting would have placed the key into the
			// first empty slot it saw.
			empties := finder.EmptySlots()
			if empties.HasCurrent() {
				break
			}
		}
	}

	var zerov V
	return zerov, false
}

// Does the Put thing.
func (m *Table[K, V]) Put(k K, v V) {
	hash := m.hasher(k, m.seed)
	if len(m.trie) == 0 {
		m.trie = []*smolMap[K, V]{makeSmolMap[K, V](1)}
	}

top:
	sm := m.trie[hash&uint64(len(m.trie)-1)]
	mapmetas := sm.bucketmetas

	tophash8 := fixTophash(uint8(hash >> 56))
	triehash8 := triehashFor(hash, sm.depth)

	tophashProbe, triehashProbe := makeHashProbe(tophash8), makeHashProbe(triehash8)
	bucketMask := uint(len(mapmetas) - 1)
	bucketIndex := indexIntoBuckets(tophash8, len(mapmetas))
	max := bucketIndex + uint(len(mapmetas))

	for ; bucketIndex < max; bucketIndex++ {
		bucketmetas := &mapmetas[bucketIndex&bucketMask]
		finder := bucketmetas.Finder()

		hashMatches := finder.ProbeHashMatches(tophashProbe, triehashProbe)
		for ; hashMatches.HasCurrent(); hashMatches.Advance() {
			idx := hashMatches.Current()

			bucket := &sm.buckets[bucketIndex&bucketMask]
			if bucket.keys[idx] == k {
				bucket.values[idx] = v
				return
			}
		}

		// If we see an empty slot then we can take it. Some earlier insert
		// with the same key would have already been found as part of the
		// probing.
		empties := finder.EmptySlots()
		if empties.HasCurrent() {
			idx := empties.Current()

			bucket := &sm.buckets[bucketIndex&bucketMask]
			bucket.keys[idx] = k
			bucket.values[idx] = v
			bucketmetas.tophash8[idx] = tophash8
			bucketmetas.triehash8[idx] = triehash8
			sm.pop++
			m.len++

			if sm.pop > maxLoad(len(mapmetas)) {
				m.makeSpaceForMap(sm, hash)
			}
			return
		}
	}

	// Probed through the whole thing without finding a free slot.
	m.makeSpaceForMap(sm, hash)
	goto top
}

// maxLoad is the population after which a small map of numBuckets buckets
// gets grown or split.
func maxLoad(numBuckets int) uint16 {
	switch {
	case numBuckets <= 2:
		// Small maps probe through the whole thing anyway, only make space
		// when completely full.
		return math.MaxUint16
	case numBuckets > 4:
		return uint16(numBuckets * bucketSize * 7 / 8)
	default:
		return uint16(numBuckets*bucketSize) - 1
	}
}

func (m *Table[K, V]) makeSpaceForMap(sm *smolMap[K, V], hash uint64) {
	// Add some more buckets instead of always splitting. Deep maps have
	// used up most of their triehash byte so prefer growing them.
	reallyShouldPreferGrow := sm.depth%8 == 7
	if (reallyShouldPreferGrow || sm.preferGrow) && len(sm.bucketmetas) < maxBuckets {
		m.growSmol(sm)
		sm.preferGrow = false // split next time
		return
	}

	oldDepth := sm.depth
	left, right := m.split(sm)

	// add more buckets next time
	left.preferGrow = true
	right.preferGrow = true

	// But maybe the trie needs to grow as well...
	if 1<<oldDepth == len(m.trie) {
		oldTrie := m.trie
		m.trie = make([]*smolMap[K, V], len(oldTrie)*2)
		copy(m.trie[:len(oldTrie)], oldTrie)
		copy(m.trie[len(oldTrie):], oldTrie)
	}

	hibi := uint64(1) << uint64(oldDepth)
	for i := hash & (hibi - 1); i < uint64(len(m.trie)); i += hibi {
		if i&hibi == 0 {
			m.trie[i] = left
		} else {
			m.trie[i] = right
		}
	}
}

// bucketInserter tracks the next free slot of every bucket of a freshly
// made small map.
type bucketInserter [maxBuckets]uint8

func (freeSlots *bucketInserter) findSlot(preferredBucketIdx uint, numBuckets int) (uint, uint8) {
	idxMask := uint(numBuckets - 1)
	bucketIdx := preferredBucketIdx
	for i := 0; i < numBuckets; i++ {
		nextFreeInBucket := freeSlots[bucketIdx]
		if nextFreeInBucket < bucketSize {
			freeSlots[bucketIdx]++
			return bucketIdx, nextFreeInBucket
		}
		bucketIdx = (bucketIdx + 1) & idxMask
	}
	panic("how?")
}

func (sm *smolMap[K, V]) insertFresh(inserter *bucketInserter, tophash8, triehash8 uint8, k K, v V) {
	bucketIdx, slot := inserter.findSlot(indexIntoBuckets(tophash8, len(sm.bucketmetas)), len(sm.bucketmetas))
	sm.bucketmetas[bucketIdx].tophash8[slot] = tophash8
	sm.bucketmetas[bucketIdx].triehash8[slot] = triehash8
	sm.buckets[bucketIdx].keys[slot] = k
	sm.buckets[bucketIdx].values[slot] = v
	sm.pop++
}

// split moves the entries of sm into two new maps one level deeper. Entries
// with the old depth bit of their hash set go right.
func (m *Table[K, V]) split(sm *smolMap[K, V]) (*smolMap[K, V], *smolMap[K, V]) {
	if sm.depth == 64 {
		// 64-bit hash values have only 64 bits :-(
		panic("depth overflow")
	}

	newDepth := sm.depth + 1
	left := makeSmolMap[K, V](len(sm.bucketmetas))
	right := makeSmolMap[K, V](len(sm.bucketmetas))
	left.depth, right.depth = newDepth, newDepth

	oldDepthBit := uint8(1) << (sm.depth % 8)
	isAt8Boundary := newDepth%8 == 0

	var leftInserter, rightInserter bucketInserter
	for bucketIndex := range sm.bucketmetas {
		bucketmetas := &sm.bucketmetas[bucketIndex]
		bucket := &sm.buckets[bucketIndex]

		finder := bucketmetas.Finder()
		matches := finder.PresentSlots()
		for ; matches.HasCurrent(); matches.Advance() {
			slot := matches.Current()

			triehash8 := bucketmetas.triehash8[slot]
			dst, inserter := left, &leftInserter
			if triehash8&oldDepthBit != 0 {
				dst, inserter = right, &rightInserter
			}
			if isAt8Boundary {
				// NOTE: Only place where keys get hashed again
				triehash8 = triehashFor(m.hasher(bucket.keys[slot], m.seed), newDepth)
			}

			dst.insertFresh(inserter, bucketmetas.tophash8[slot], triehash8, bucket.keys[slot], bucket.values[slot])
		}
	}

	return left, right
}

func (m *Table[K, V]) growSmol(sm *smolMap[K, V]) {
	grown := makeSmolMap[K, V](len(sm.bucketmetas) * 2)
	grown.depth = sm.depth

	var inserter bucketInserter
	for bucketIndex := range sm.bucketmetas {
		bucketmetas := &sm.bucketmetas[bucketIndex]
		bucket := &sm.buckets[bucketIndex]

		finder := bucketmetas.Finder()
		matches := finder.PresentSlots()
		for ; matches.HasCurrent(); matches.Advance() {
			slot := matches.Current()
			grown.insertFresh(&inserter, bucketmetas.tophash8[slot], bucketmetas.triehash8[slot], bucket.keys[slot], bucket.values[slot])
		}
	}

	*sm = *grown // lol
}

func (m *Table[K, V]) iterateMaps(iter func(*smolMap[K, V]) bool) {
	for i, sm := range m.trie {
		// Did we visit this map already? Only the first trie slot pointing
		// at a map has no bits set above its depth.
		hibi := uint64(1) << uint64(sm.depth)
		if uint64(i) != (uint64(i) & (hibi - 1)) {
			continue
		}

		if ok := iter(sm); !ok {
			return
		}
	}
}

// Iterate calls iter for every key-value pair until iter returns false.
// NOTE: Not random order. Don't modify while iterating.
func (m *Table[K, V]) Iterate(iter func(K, V) bool) {
	m.iterateMaps(func(sm *smolMap[K, V]) bool {
		for i := range sm.buckets {
			bucketmetas := &sm.bucketmetas[i]
			bucket := &sm.buckets[i]

			finder := bucketmetas.Finder()
			present := finder.PresentSlots()
			for ; present.HasCurrent(); present.Advance() {
				idx := present.Current()

				if ok := iter(bucket.keys[idx], bucket.values[idx]); !ok {
					return false
				}
			}
		}
		return true
	})
}

func makeSmolMap[K comparable, V any](buckets int) *smolMap[K, V] {
	if buckets > maxBuckets || bits.OnesCount(uint(buckets)) != 1 {
		panic("bad size")
	}

	m := new(smolMap[K, V])
	m.bucketmetas = make([]bucketmeta, buckets)
	m.buckets = make([]bucket[K, V], buckets)
	return m
}

// load reports how many slots are in use out of how many there are.
func (m *Table[K, V]) load() (occupied, totalSlots uint64) {
	m.iterateMaps(func(sm *smolMap[K, V]) bool {
		for bucketIndex := range sm.bucketmetas {
			finder := sm.bucketmetas[bucketIndex].Finder()
			present := finder.PresentSlots()
			occupied += uint64(present.Count())
			totalSlots += bucketSize
		}
		return true
	})
	return occupied, totalSlots
}

func (m *Table[K, V]) loadFactor() float64 {
	occupied, totalSlots := m.load()
	if totalSlots == 0 {
		return 0
	}
	return float64(occupied) / float64(totalSlots)
}
