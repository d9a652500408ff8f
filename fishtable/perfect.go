package fishtable

import (
	"encoding/binary"
	"math"
	"math/bits"

	"golang.org/x/exp/rand"
)

// KV is a key-value pair handed to MakePerfect.
type KV[K comparable, V any] struct {
	Key   K
	Value V
}

type phtrieEntry struct {
	// Really trie entries need to only carry the bucketsOffset but the hash
	// rotation fits here so smoothly
	bucketsOffsetHashrot uint32 // 26b + 6b
}

func (e phtrieEntry) bucketsOffset() uint32 {
	return e.bucketsOffsetHashrot >> 6
}

func (e phtrieEntry) hashrot() uint32 {
	// Shifts only look at the lower 6 bits anyway
	return e.bucketsOffsetHashrot & (64 - 1)
}

// A perfect hashing Finnish hash table, or phfish for short. Built once from
// a set of distinct keys and never modified afterwards, so concurrent calls to
// Get are always safe.
type Perfect[K comparable, V any] struct {
	hasher Hasher[K]
	trie   []phtrieEntry

	// allMetas is a run of encoded buckets, (header + tophashes) each. The
	// header is the offset of the bucket's first entry in allKvs.
	allKvs   []KV[K, V]
	allMetas []uint8

	seed uint64
}

func (m *Perfect[K, V]) Len() int {
	return len(m.allKvs)
}

func (m *Perfect[K, V]) Get(k K) (V, bool) {
	trie := m.trie
	if len(trie) > 0 {
		hash := m.hasher(k, m.seed)

		sm := trie[hash&uint64(len(trie)-1)]

		metastart := m.allMetas[sm.bucketsOffset():][:4+bucketSize]
		kvsOffset := binary.LittleEndian.Uint32(metastart[0:4])

		tophash8 := uint8(hash >> sm.hashrot())

		// The tophashes within a bucket are unique so the earliest match is
		// the only candidate. Matches past the bucket's population land on
		// the next bucket's entries and fail the key comparison.
		hashMatches := findBytes(metastart[4:], makeHashProbe(tophash8))
		if hashMatches.HasCurrent() {
			idx := uint(kvsOffset) + uint(hashMatches.Current())
			if idx < uint(len(m.allKvs)) {
				kv := &m.allKvs[idx]
				if kv.Key == k {
					return kv.Value, true
				}
			}
		}
	}

	var zerov V
	return zerov, false
}

// MakePerfect builds a perfect hash table out of kvs. Keys must be distinct,
// MakePerfect panics on a duplicate key.
func MakePerfect[K comparable, V any](hasher Hasher[K], kvs []KV[K, V]) *Perfect[K, V] {
	if len(kvs) == 0 {
		return &Perfect[K, V]{hasher: hasher}
	}
	if len(kvs) > math.MaxUint32 {
		panic("too many keys")
	}

	builder := new(phBuilder[K, V])
	builder.kvs = kvs
	builder.fullHashes = make([]uint64, len(kvs))
	builder.hasher = hasher
	for {
		builder.seed = rand.Uint64()

		{
			adjustedSize := len(kvs) * 16 / 11 // 11/16 is the load-factor that we hit consistently
			numMaps := adjustedSize / bucketSize
			numMaps = 1 << bits.Len(uint(numMaps))

			initialDepth := uint8(bits.TrailingZeros(uint(numMaps)))

			builder.trie = make([]*phBuilderSmolMap, numMaps)
			bulk := make([]phBuilderSmolMap, numMaps)
			for i := range builder.trie {
				builder.trie[i] = &bulk[i]
				builder.trie[i].depth = initialDepth
				builder.trie[i].hashrot = 56 // initially use the top 8 bits
			}
		}

		if ok := builder.PutAll(); !ok {
			continue // two keys share a hash, try another seed
		}

		builder.compactTheMaps()
		return builder.finish()
	}
}

func (builder *phBuilder[K, V]) finish() *Perfect[K, V] {
	m := new(Perfect[K, V])
	m.hasher = builder.hasher
	m.seed = builder.seed

	var numTotalBuckets int
	var lastBucketPop int
	builder.iterateMapsWithRevisiting(func(i, firstInstance int, sm *phBuilderSmolMap) {
		if i != firstInstance {
			return
		}
		numTotalBuckets++
		lastBucketPop = int(sm.pop)
	})

	// Leave room so that the last bucket can be read as a whole
	encodedSize := numTotalBuckets*4 + len(builder.kvs)
	encodedSize += bucketSize - lastBucketPop

	// The trie packs the bucket offset into 26 bits.
	if encodedSize >= 1<<26 {
		panic("too many kv pairs, sorry :-|")
	}

	m.trie = make([]phtrieEntry, len(builder.trie))
	m.allMetas = make([]uint8, encodedSize)
	m.allKvs = make([]KV[K, V], len(builder.kvs))

	var bucketsOff int
	var kvsOff int
	builder.iterateMapsWithRevisiting(func(i, firstInstance int, sm *phBuilderSmolMap) {
		if i != firstInstance {
			// we are supposed to point to the same thing as the first instance
			m.trie[i] = m.trie[firstInstance]
			return
		}

		if sm.hashrot >= 64 {
			panic("oops")
		}

		m.trie[i] = phtrieEntry{
			bucketsOffsetHashrot: uint32(bucketsOff)<<6 | uint32(sm.hashrot),
		}

		dstMetas := m.allMetas[bucketsOff:]
		binary.LittleEndian.PutUint32(dstMetas, uint32(kvsOff))

		dstHashes := dstMetas[4:][:sm.pop]
		for slotInBucket, kvIndex := range sm.buckets[:sm.pop] {
			hash := builder.fullHashes[kvIndex]
			dstHashes[slotInBucket] = uint8(hash >> sm.hashrot)

			m.allKvs[kvsOff] = builder.kvs[kvIndex]
			kvsOff++
		}
		bucketsOff += 4 + int(sm.pop)
	})

	return m
}

type phBuilder[K comparable, V any] struct {
	kvs        []KV[K, V]
	fullHashes []uint64

	hasher Hasher[K]
	trie   []*phBuilderSmolMap
	seed   uint64
}

type bitvector [4]uint64

func (bv *bitvector) Toggle(i uint8) {
	bv[i>>6] ^= uint64(1) << (i % 64)
}

func (bv *bitvector) IsSet(i uint8) bool {
	return bv[i>>6]&(uint64(1)<<(i%64)) != 0
}

type phBuilderSmolMap struct {
	buckets [bucketSize]uint32 // indices into phBuilder.kvs
	// keeps track of the present tophashes in [0, 255]
	bitvector bitvector
	pop       uint8 // <= bucketSize

	depth   uint8 // <= 64
	hashrot uint8 // <= 56
}

// compactTheMaps merges sibling maps whose entries fit into one bucket. The
// pre-allocated trie leaves plenty of those behind.
func (h *phBuilder[K, V]) compactTheMaps() {
	h.iterateMapsWithRevisiting(func(i, f int, _ *phBuilderSmolMap) {
		if i != f {
			return
		}

		// Merging will continue as long as morale improves
		for {
			sm := h.trie[i]
			if sm.depth == 0 {
				return
			}

			step := uint64(1) << (sm.depth - 1)
			siblingPos := uint64(i) & (step - 1)
			firstMap := h.trie[siblingPos]
			secondMap := h.trie[siblingPos+step]

			if firstMap == secondMap || firstMap.depth != secondMap.depth {
				return
			}
			if int(firstMap.pop)+int(secondMap.pop) > bucketSize {
				return
			}

			smallerMap, biggerMap := firstMap, secondMap
			if secondMap.pop < firstMap.pop {
				smallerMap, biggerMap = secondMap, firstMap
			}

			// create a copy that we can safely mutate
			mergedMap := *biggerMap
			for _, kvIndex := range smallerMap.buckets[:smallerMap.pop] {
				hash := h.fullHashes[kvIndex]

				tophash8 := uint8(hash >> (mergedMap.hashrot % 64))
				if !mergedMap.bitvector.IsSet(tophash8) {
					mergedMap.buckets[mergedMap.pop] = kvIndex
					mergedMap.bitvector.Toggle(tophash8)
					mergedMap.pop++
					continue
				}

				if ok := h.findWorkingHashrotAndAdd(&mergedMap, hash, kvIndex); !ok {
					return
				}
			}

			*firstMap = mergedMap
			firstMap.depth--
			for j := siblingPos; j < uint64(len(h.trie)); j += step {
				h.trie[j] = firstMap
			}
		}
	})

	// try to reduce the trie size
reduceloop:
	for len(h.trie) > 1 {
		firstHalf, secondHalf := h.trie[:len(h.trie)/2], h.trie[len(h.trie)/2:]
		for i := range firstHalf {
			if firstHalf[i] != secondHalf[i] {
				break reduceloop
			}
		}
		h.trie = firstHalf
	}
}

// findWorkingHashrotAndAdd looks for a hash rotation under which the current
// entries of m and the new one all have distinct tophashes.
func (h *phBuilder[K, V]) findWorkingHashrotAndAdd(m *phBuilderSmolMap, newHash uint64, newKvIndex uint32) bool {
	newrot := m.hashrot
nextrot:
	for i := 0; i < 8; i++ {
		newrot -= 4
		if newrot <= m.depth {
			// Don't delve too deep into the triehash bits as they are equal
			// for all entries in the smol map
			newrot = 56
		}

		var bv bitvector

		for _, kvIndex := range m.buckets[:m.pop] {
			tophash8 := uint8(h.fullHashes[kvIndex] >> newrot)
			if bv.IsSet(tophash8) {
				continue nextrot
			}
			bv.Toggle(tophash8)
		}

		tophash8 := uint8(newHash >> newrot)
		if bv.IsSet(tophash8) {
			continue nextrot
		}
		bv.Toggle(tophash8)
		m.buckets[m.pop] = newKvIndex
		m.pop++

		m.bitvector = bv
		m.hashrot = newrot
		return true
	}

	return false
}

// PutAll places every kv into the trie. Returns false if two distinct keys
// share the same full hash.
func (h *phBuilder[K, V]) PutAll() bool {
kvsLoop:
	for i := range h.kvs {
		kvIndex := uint32(i)
		k := h.kvs[i].Key

		hash := h.hasher(k, h.seed)
		h.fullHashes[kvIndex] = hash

		for {
			sm := h.trie[hash&uint64(len(h.trie)-1)]

			tophash8 := uint8(hash >> (sm.hashrot % 64))

			if sm.bitvector.IsSet(tophash8) {
				// A tophash collision! Perhaps even a full hash collision!
				for _, other := range sm.buckets[:sm.pop] {
					if h.fullHashes[other] == hash {
						if h.kvs[other].Key == k {
							panic("duplicate key")
						}
						return false
					}
				}

				// We will not tolerate splitting if we have empty slots
				if sm.pop < bucketSize {
					if ok := h.findWorkingHashrotAndAdd(sm, hash, kvIndex); ok {
						continue kvsLoop
					}
				}

				h.splitForHash(sm, hash)
				continue
			}

			if sm.pop < bucketSize {
				sm.buckets[sm.pop] = kvIndex
				sm.bitvector.Toggle(tophash8)
				sm.pop++
				continue kvsLoop
			}

			// No empty space? SPLIT and try again!
			h.splitForHash(sm, hash)
		}
	}
	return true
}

func (h *phBuilder[K, V]) splitForHash(sm *phBuilderSmolMap, hash uint64) {
	oldDepth := sm.depth
	right := h.split(sm)

	// But maybe the trie needs to grow as well...
	if 1<<oldDepth == len(h.trie) {
		oldTrie := h.trie
		h.trie = make([]*phBuilderSmolMap, len(oldTrie)*2)
		copy(h.trie[:len(oldTrie)], oldTrie)
		copy(h.trie[len(oldTrie):], oldTrie)
	}

	step := uint64(1) << oldDepth
	for i := (hash & (step - 1)) + step; i < uint64(len(h.trie)); i += step * 2 {
		h.trie[i] = right
	}
}

// split keeps m as the left half and returns the new right half.
func (h *phBuilder[K, V]) split(m *phBuilderSmolMap) *phBuilderSmolMap {
	if m.depth == 64 {
		// 64-bit hash values have only 64 bits :-(
		panic("depth overflow")
	}

	oldDepthBit := uint64(1) << (m.depth % 64)
	m.depth++

	right := new(phBuilderSmolMap)
	right.depth = m.depth
	right.hashrot = m.hashrot

	var leftPop uint8
	for _, kvIndex := range m.buckets[:m.pop] {
		hash := h.fullHashes[kvIndex]
		tophash8 := uint8(hash >> (m.hashrot % 64))
		if hash&oldDepthBit == 0 {
			// keep the lefties packed at the head of the array
			m.buckets[leftPop] = kvIndex
			leftPop++
			continue
		}

		right.buckets[right.pop] = kvIndex
		right.pop++
		right.bitvector.Toggle(tophash8)
		m.bitvector.Toggle(tophash8)
	}
	m.pop = leftPop

	return right
}

func (h *phBuilder[K, V]) iterateMapsWithRevisiting(iter func(int, int, *phBuilderSmolMap)) {
	for i, sm := range h.trie {
		// Did we visit this map already? Same trick as Table.iterateMaps
		hibi := uint64(1) << (sm.depth % 64)
		firstInstance := int(uint64(i) & (hibi - 1))

		iter(i, firstInstance, sm)
	}
}
