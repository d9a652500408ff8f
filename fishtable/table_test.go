package fishtable

import (
	"encoding/binary"
	"fmt"
	"runtime"
	"testing"
	"time"

	"github.com/zeebo/xxh3"
)

var hasher Hasher[int64] = func(i int64, seed uint64) uint64 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(i))
	return xxh3.HashSeed(b[:], seed)
}

func TestMap(t *testing.T) {
	var sizes = [...]int{
		0,
		1,
		2,
		4,
		7,
		13,
		29,
		63,
		77,
		121,
		146,
		189,
		204,
		263,
		1_023,
		1_902,
		6_021,
		10_518,
		39_127,
		76_124,
		124_152,
		1_012_912,
	}

	var presizes = [...]int{
		0, // no presizing
		1,
		15,
		61,
		372,
		21526,
	}

	type tc struct {
		size, presize int
		shittyHasher  bool
	}
	testcases := make([]tc, 0, len(sizes)*len(presizes))
	for _, size := range sizes {
		for _, presize := range presizes {
			testcases = append(testcases, tc{size: size, presize: presize})
		}
	}

	// A hasher that returns the same thing for everything still works as
	// long as all the keys (1.5x size by the end) fit in a single small map
	for _, size := range []int{31, 69, 101, 136, 149} {
		testcases = append(testcases, tc{size: size, shittyHasher: true})
	}

	for tci := range testcases {
		size := testcases[tci].size
		presize := testcases[tci].presize
		shittyHasher := testcases[tci].shittyHasher

		t.Run(fmt.Sprintf("size=%v&presize=%v&shitty=%v", size, presize, shittyHasher), func(t *testing.T) {
			hasher := hasher
			if shittyHasher {
				hasher = func(i int64, seed uint64) uint64 {
					return 0xdeadbeef_cafebabe
				}
			}

			var m *Table[int64, int]
			if presize == 0 {
				m = MakeFishTable[int64, int](hasher)
			} else {
				m = MakeWithSize[int64, int](presize, hasher)
			}
			wantm := make(map[int64]int, size)
			checkMaps := func() {
				if m.Len() != len(wantm) {
					t.Fatalf("got %v want %v", m.Len(), len(wantm))
				}

				// iterate should return the same values
				seen := make(map[int64]int, len(wantm))
				m.Iterate(func(k int64, v int) bool {
					if _, ok := wantm[k]; !ok {
						t.Fatalf("extra %v=%v", k, v)
					}
					if old, ok := seen[k]; ok {
						t.Fatalf("duplicate %v=%v, old=%v", k, v, old)
					}
					seen[k] = v
					return true
				})
				if len(seen) != len(wantm) {
					t.Fatalf("got %v want %v", len(seen), len(wantm))
				}

				// Get should return the same values
				for k, want := range wantm {
					v, ok := m.Get(k)
					if !ok {
						t.Fatalf("missing %v=%v", k, want)
					}
					if v != want {
						t.Fatalf("wrong value for key %v, want %v got %v", k, want, v)
					}
				}

				// and nothing else
				for i := 0; i < 100; i++ {
					k := int64(-1 - i)
					if v, ok := m.Get(k); ok {
						t.Fatalf("got %v=%v that was never put", k, v)
					}
				}

				// Check map state
				var totalPop uint64
				m.iterateMaps(func(sm *smolMap[int64, int]) bool {
					if sm.depth > 64 {
						t.Fatalf("bad depth %v", sm.depth)
					}
					if sm.pop > maxEntriesPerMap {
						t.Fatalf("bad pop %v", sm.pop)
					}
					totalPop += uint64(sm.pop)
					return true
				})
				if totalPop != uint64(m.Len()) {
					t.Fatalf("bad total resident got %v m.Len()=%v", totalPop, m.Len())
				}
			}

			for i := 0; i < size; i++ {
				m.Put(int64(i), i)
				wantm[int64(i)] = i
			}
			checkMaps()

			// Overwrite half of them
			for i := 0; i < size; i += 2 {
				m.Put(int64(i), -i)
				wantm[int64(i)] = -i
			}
			checkMaps()

			// And grow some more, overlapping with what is there
			for i := size / 2; i < size+(size/2); i++ {
				m.Put(int64(i), i)
				wantm[int64(i)] = i
			}
			checkMaps()
		})
	}
}

func TestMapConcurrentGets(t *testing.T) {
	const size = 50_000
	m := MakeFishTable[int64, int64](hasher)
	for i := 0; i < size; i++ {
		m.Put(int64(i), int64(i)*3)
	}

	done := make(chan error, 4)
	for w := 0; w < 4; w++ {
		go func(w int) {
			for i := w; i < size*2; i += 4 {
				v, ok := m.Get(int64(i))
				if ok != (i < size) || (ok && v != int64(i)*3) {
					done <- fmt.Errorf("bad get %v: %v %v", i, v, ok)
					return
				}
			}
			done <- nil
		}(w)
	}
	for w := 0; w < 4; w++ {
		if err := <-done; err != nil {
			t.Fatal(err)
		}
	}
}

var sizes = [...]int{
	1,
	7,
	13,
	29,
	63,
	121,
	263,
	723,
	1_023,
	1_902,
	3_298,
	6_021,
	10_518,
	39_127,
	76_124,
	124_152,
	2_500_000,
	5_000_000,
}

// Noinline so that built-in map doesn't get unfair optimizations that impact
// small size tests a lot.
//
//go:noinline
func makemap() map[int64]int64 {
	return make(map[int64]int64)
}

//go:noinline
func makeextmap() *Table[int64, int64] {
	return MakeFishTable[int64, int64](hasher)
}

func BenchmarkInserts8B(b *testing.B) {
	for si := range sizes {
		size := sizes[si]

		b.Run(fmt.Sprintf("ext=false&size=%v", size), func(b *testing.B) {
			for j := 0; j < b.N; j++ {
				m := makemap()
				for i := 0; i < size; i++ {
					m[int64(i)] = int64(i)
				}
				if len(m) != size {
					b.Fatal(len(m), size)
				}
			}
			b.ReportMetric((float64(b.Elapsed()))/float64(b.N*size), "ns/insert")
		})
		b.Run(fmt.Sprintf("ext=true&size=%v", size), func(b *testing.B) {
			var m *Table[int64, int64]
			for j := 0; j < b.N; j++ {
				m = makeextmap()
				for i := 0; i < size; i++ {
					m.Put(int64(i), int64(i))
				}
				if m.Len() != size {
					b.Fatal(m.Len(), size)
				}
			}
			b.StopTimer()
			b.ReportMetric((float64(b.Elapsed()))/float64(b.N*size), "ns/insert")
			b.ReportMetric(m.loadFactor(), "lf/map")
		})
		b.Run(fmt.Sprintf("ext=sized&size=%v", size), func(b *testing.B) {
			var m *Table[int64, int64]
			for j := 0; j < b.N; j++ {
				m = MakeWithSize[int64, int64](size, hasher)
				for i := 0; i < size; i++ {
					m.Put(int64(i), int64(i))
				}
				if m.Len() != size {
					b.Fatal(m.Len(), size)
				}
			}
			b.StopTimer()
			b.ReportMetric((float64(b.Elapsed()))/float64(b.N*size), "ns/insert")
			b.ReportMetric(m.loadFactor(), "lf/map")
		})
	}
}

func BenchmarkLookupHits(b *testing.B) {
	for si := range sizes {
		size := sizes[si]

		b.Run(fmt.Sprintf("ext=false&size=%v", size), func(b *testing.B) {
			m := makemap()
			for i := 0; i < size; i++ {
				m[int64(i)] = int64(i)
			}

			b.ResetTimer()
			for j := 0; j < b.N; j++ {
				for i := 0; i < size; i++ {
					v, ok := m[int64(i)]
					if v != int64(i) || !ok {
						b.Fatal(v, i, ok)
					}
				}
			}
		})
		b.Run(fmt.Sprintf("ext=true&size=%v", size), func(b *testing.B) {
			m := makeextmap()
			for i := 0; i < size; i++ {
				m.Put(int64(i), int64(i))
			}

			b.ResetTimer()
			for j := 0; j < b.N; j++ {
				for i := 0; i < size; i++ {
					v, ok := m.Get(int64(i))
					if v != int64(i) || !ok {
						b.Fatal(v, i, ok)
					}
				}
			}
		})
	}
}

func BenchmarkLookupMisses(b *testing.B) {
	for si := range sizes {
		size := sizes[si]

		b.Run(fmt.Sprintf("ext=false&size=%v", size), func(b *testing.B) {
			m := makemap()
			for i := 0; i < size; i++ {
				m[int64(i)] = int64(i)
			}

			b.ResetTimer()
			for j := 0; j < b.N; j++ {
				for i := 0; i < size; i++ {
					v, ok := m[int64(size+i)]
					if ok {
						b.Fatal(v, i)
					}
				}
			}
		})
		b.Run(fmt.Sprintf("ext=true&size=%v", size), func(b *testing.B) {
			m := makeextmap()
			for i := 0; i < size; i++ {
				m.Put(int64(i), int64(i))
			}

			b.ResetTimer()
			for j := 0; j < b.N; j++ {
				for i := 0; i < size; i++ {
					v, ok := m.Get(int64(size + i))
					if ok {
						b.Fatal(v, i)
					}
				}
			}
		})
	}
}

func BenchmarkLoadFactor(b *testing.B) {
	sizes := make([]int, 300)
	sizes[0] = 1
	sizes[1] = 2
	for i := 2; i < len(sizes); i++ {
		v := i + 1
		sizes[i] = v * v / 3
	}

	for si := range sizes {
		size := sizes[si]
		b.Run(fmt.Sprintf("ext=true&size=%v", size), func(b *testing.B) {
			b.ReportMetric(0, "ns/op") // suppress the metric

			m := makeextmap()

			runtime.GC() // for ns/insert accuracy

			start := time.Now()
			for i := 0; i < size; i++ {
				m.Put(int64(i), int64(i))
			}
			duration := time.Since(start)
			b.ReportMetric(float64(duration)/float64(size), "ns/insert")

			occupied, totalSlots := m.load()
			if occupied != uint64(size) {
				b.Fatalf("got %v want %v", occupied, size)
			}
			b.ReportMetric(float64(occupied)/float64(totalSlots), "load-factor")
		})
	}
}
