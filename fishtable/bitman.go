package fishtable

import (
	"encoding/binary"
	"math"
	"math/bits"
)

const bucketSize = 8

// Every byte of the probe is the searched byte. Built once per lookup and
// compared against a whole bucket worth of metadata.
type hashprobe uint64

func makeHashProbe(b uint8) hashprobe {
	return hashprobe((math.MaxUint64 / 255) * uint64(b))
}

type bucketfinder struct {
	tophashes8le, triehashes8le uint64
}

func (b *bucketmeta) Finder() bucketfinder {
	return bucketfinder{
		tophashes8le:  binary.LittleEndian.Uint64(b.tophash8[:]),
		triehashes8le: binary.LittleEndian.Uint64(b.triehash8[:]),
	}
}

// ProbeHashMatches finds the slots where both the tophash and the triehash
// match. Empty slots never match because a probe tophash is never zero.
func (b *bucketfinder) ProbeHashMatches(tophashProbe, triehashProbe hashprobe) matchiter {
	hashMatches := findZeros64((b.tophashes8le ^ uint64(tophashProbe)) | (b.triehashes8le ^ uint64(triehashProbe)))
	return matchiter{hashMatches: hashMatches}
}

func (b *bucketfinder) EmptySlots() matchiter {
	return matchiter{hashMatches: findZeros64(b.tophashes8le)}
}

func (b *bucketfinder) PresentSlots() matchiter {
	return matchiter{hashMatches: findNonZeros64(b.tophashes8le)}
}

// matchiter walks the set top bits of a SWAR match word, lowest slot first.
type matchiter struct {
	hashMatches uint64
}

func (m *matchiter) HasCurrent() bool {
	return m.hashMatches != 0
}

func (m *matchiter) Current() uint8 {
	return uint8(bits.TrailingZeros64(m.hashMatches) / 8)
}

func (m *matchiter) Advance() {
	// unset the lowest set bit
	m.hashMatches = m.hashMatches & (m.hashMatches - 1)
}

func (m *matchiter) Count() uint8 {
	return uint8(bits.OnesCount64(m.hashMatches))
}

// findZeros64 sets the top bit of every zero byte of v. The additions never
// carry across bytes.
func findZeros64(v uint64) uint64 {
	const c1 = (math.MaxUint64 / 255) * 0b0111_1111
	const topbit = (math.MaxUint64 / 255) * 0b1000_0000
	return ^((v&c1 + c1) | v) & topbit
}

func findNonZeros64(v uint64) uint64 {
	const c1 = (math.MaxUint64 / 255) * 0b0111_1111
	const topbit = (math.MaxUint64 / 255) * 0b1000_0000
	return ((v&c1 + c1) | v) & topbit
}

// findBytes matches every byte of the 8 bytes at b that equals the probe.
func findBytes(b []byte, probe hashprobe) matchiter {
	return matchiter{hashMatches: findZeros64(binary.LittleEndian.Uint64(b) ^ uint64(probe))}
}
