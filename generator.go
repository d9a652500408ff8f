package tagbench

import (
	crand "crypto/rand"
	"encoding/binary"
	"math"
	"time"

	"golang.org/x/exp/rand"
)

// Generator fills slices with random keys.
type Generator interface {
	// Fill writes values drawn uniformly from [0, max] into dst.
	Fill(dst []uint64, max uint64)
}

type pcgGenerator struct {
	rng *rand.Rand
}

// NewGenerator returns a generator whose output is fully determined by seed.
// Not safe for concurrent use.
func NewGenerator(seed uint64) Generator {
	return &pcgGenerator{rng: rand.New(rand.NewSource(seed))}
}

// NewEntropyGenerator returns a generator seeded from the OS entropy source,
// so no two runs see the same data.
func NewEntropyGenerator() Generator {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return NewGenerator(uint64(time.Now().UnixNano()))
	}
	return NewGenerator(binary.LittleEndian.Uint64(b[:]))
}

func (g *pcgGenerator) Fill(dst []uint64, max uint64) {
	if max == math.MaxUint64 {
		for i := range dst {
			dst[i] = g.rng.Uint64()
		}
		return
	}
	for i := range dst {
		dst[i] = g.rng.Uint64n(max + 1)
	}
}
