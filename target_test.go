package tagbench

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	for _, kind := range AllKinds() {
		got, err := ParseKind(kind.String())
		require.NoError(t, err)
		assert.Equal(t, kind, got)
	}

	_, err := ParseKind("btree")
	assert.ErrorIs(t, err, ErrUnknownTarget)
	assert.Equal(t, "unknown", Kind(-1).String())
	assert.Equal(t, "unordered_map", KindHashMap.String())
	assert.Equal(t, "map", KindTreeMap.String())
}

func TestKindOrdered(t *testing.T) {
	assert.True(t, KindTreeMap.Ordered())
	assert.True(t, KindSkipMap.Ordered())
	assert.False(t, KindHashMap.Ordered())
	assert.False(t, KindFishTable.Ordered())
}

func TestNewTargetUnknownKindPanics(t *testing.T) {
	assert.Panics(t, func() { NewTarget(Kind(100), TargetOptions{}) })
}

func eachTarget(t *testing.T, fn func(t *testing.T, newTarget func() Target)) {
	for _, kind := range AllKinds() {
		for _, hint := range []int{0, 1000} {
			kind, hint := kind, hint
			t.Run(fmt.Sprintf("kind=%v&hint=%v", kind, hint), func(t *testing.T) {
				fn(t, func() Target {
					target := NewTarget(kind, TargetOptions{SizeHint: hint})
					require.Equal(t, kind, target.Kind())
					return target
				})
			})
		}
	}
}

func TestTargetHitAndMiss(t *testing.T) {
	eachTarget(t, func(t *testing.T, newTarget func() Target) {
		target := newTarget()
		assert.Equal(t, 0, target.Len())
		_, ok := target.Get(1)
		assert.False(t, ok)

		target.Populate([]uint64{1, 2, 3})
		assert.Equal(t, 3, target.Len())

		v, ok := target.Get(2)
		assert.True(t, ok)
		assert.Equal(t, uint64(2), v)

		_, ok = target.Get(5)
		assert.False(t, ok)
	})
}

func TestTargetDuplicatesCollapse(t *testing.T) {
	eachTarget(t, func(t *testing.T, newTarget func() Target) {
		target := newTarget()
		target.Populate([]uint64{1, 2, 2, 3, 3, 3, 0})
		assert.Equal(t, 4, target.Len())
		for _, k := range []uint64{0, 1, 2, 3} {
			v, ok := target.Get(k)
			assert.True(t, ok, "key %v", k)
			assert.Equal(t, k, v)
		}
	})
}

func TestTargetMatchesBuiltinMap(t *testing.T) {
	data := make([]uint64, 20_000)
	NewGenerator(7).Fill(data, 50_000)
	queries := make([]uint64, 5_000)
	NewGenerator(8).Fill(queries, 50_000)

	want := make(map[uint64]struct{}, len(data))
	for _, v := range data {
		want[v] = struct{}{}
	}

	eachTarget(t, func(t *testing.T, newTarget func() Target) {
		target := newTarget()
		target.Populate(data)
		require.Equal(t, len(want), target.Len())

		for _, q := range queries {
			v, ok := target.Get(q)
			_, wantOk := want[q]
			require.Equal(t, wantOk, ok, "key %v", q)
			if ok {
				require.Equal(t, q, v)
			}
		}
	})
}

func TestTargetConcurrentGets(t *testing.T) {
	data := make([]uint64, 10_000)
	for i := range data {
		data[i] = uint64(i) * 2
	}

	eachTarget(t, func(t *testing.T, newTarget func() Target) {
		target := newTarget()
		target.Populate(data)

		const workers = 4
		errs := make([]error, workers)
		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := w; i < len(data)*2; i += workers {
					v, ok := target.Get(uint64(i))
					if ok != (i%2 == 0) || (ok && v != uint64(i)) {
						errs[w] = fmt.Errorf("bad get %v: %v %v", i, v, ok)
						return
					}
				}
			}(w)
		}
		wg.Wait()
		for _, err := range errs {
			require.NoError(t, err)
		}
	})
}

func TestPerfectTargetPopulateReplaces(t *testing.T) {
	target := NewTarget(KindPerfect, TargetOptions{})
	target.Populate([]uint64{1, 2, 3})
	target.Populate([]uint64{4})

	assert.Equal(t, 1, target.Len())
	_, ok := target.Get(1)
	assert.False(t, ok)
	v, ok := target.Get(4)
	assert.True(t, ok)
	assert.Equal(t, uint64(4), v)
}

func TestTargetHashers(t *testing.T) {
	data := make([]uint64, 3_000)
	NewGenerator(3).Fill(data, 1<<40)

	for _, name := range HasherNames() {
		hasher, err := HasherByName(name)
		require.NoError(t, err)
		for _, kind := range []Kind{KindFishTable, KindPerfect} {
			t.Run(name+"/"+kind.String(), func(t *testing.T) {
				target := NewTarget(kind, TargetOptions{Hasher: hasher})
				target.Populate(data)
				for _, k := range data {
					v, ok := target.Get(k)
					require.True(t, ok)
					require.Equal(t, k, v)
				}
			})
		}
	}
}
