package tagbench

import (
	"math/bits"
	"slices"

	"github.com/alphadose/haxmap"
	"github.com/cockroachdb/swiss"
	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/utils"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/zhangyunhao116/skipmap"

	"github.com/rip-create-your-account/tagbench/fishtable"
)

type hashMapTarget struct {
	m map[uint64]uint64
}

func newHashMapTarget(opts TargetOptions) *hashMapTarget {
	return &hashMapTarget{m: make(map[uint64]uint64, opts.SizeHint)}
}

func (t *hashMapTarget) Kind() Kind { return KindHashMap }
func (t *hashMapTarget) Len() int   { return len(t.m) }

func (t *hashMapTarget) Populate(data []uint64) {
	for _, v := range data {
		t.m[v] = v
	}
}

func (t *hashMapTarget) Get(key uint64) (uint64, bool) {
	v, ok := t.m[key]
	return v, ok
}

// Red-black tree. Values come back boxed, the unboxing is part of the
// lookup cost.
type treeMapTarget struct {
	m *treemap.Map
}

func newTreeMapTarget(TargetOptions) *treeMapTarget {
	return &treeMapTarget{m: treemap.NewWith(utils.UInt64Comparator)}
}

func (t *treeMapTarget) Kind() Kind { return KindTreeMap }
func (t *treeMapTarget) Len() int   { return t.m.Size() }

func (t *treeMapTarget) Populate(data []uint64) {
	for _, v := range data {
		t.m.Put(v, v)
	}
}

func (t *treeMapTarget) Get(key uint64) (uint64, bool) {
	v, found := t.m.Get(key)
	if !found {
		return 0, false
	}
	return v.(uint64), true
}

type fishTableTarget struct {
	m *fishtable.Table[uint64, uint64]
}

func newFishTableTarget(opts TargetOptions) *fishTableTarget {
	if opts.SizeHint > 0 {
		return &fishTableTarget{m: fishtable.MakeWithSize[uint64, uint64](opts.SizeHint, opts.Hasher)}
	}
	return &fishTableTarget{m: fishtable.MakeFishTable[uint64, uint64](opts.Hasher)}
}

func (t *fishTableTarget) Kind() Kind { return KindFishTable }
func (t *fishTableTarget) Len() int   { return t.m.Len() }

func (t *fishTableTarget) Populate(data []uint64) {
	for _, v := range data {
		t.m.Put(v, v)
	}
}

func (t *fishTableTarget) Get(key uint64) (uint64, bool) {
	return t.m.Get(key)
}

// The perfect table is built in one go from a duplicate free key set, so
// Populate replaces whatever was there before.
type perfectTarget struct {
	hasher fishtable.Hasher[uint64]
	m      *fishtable.Perfect[uint64, uint64]
}

func newPerfectTarget(opts TargetOptions) *perfectTarget {
	t := &perfectTarget{hasher: opts.Hasher}
	t.m = fishtable.MakePerfect[uint64, uint64](t.hasher, nil)
	return t
}

func (t *perfectTarget) Kind() Kind { return KindPerfect }
func (t *perfectTarget) Len() int   { return t.m.Len() }

func (t *perfectTarget) Populate(data []uint64) {
	keys := slices.Clone(data)
	slices.Sort(keys)
	keys = slices.Compact(keys)

	kvs := make([]fishtable.KV[uint64, uint64], len(keys))
	for i, k := range keys {
		kvs[i] = fishtable.KV[uint64, uint64]{Key: k, Value: k}
	}
	t.m = fishtable.MakePerfect[uint64, uint64](t.hasher, kvs)
}

func (t *perfectTarget) Get(key uint64) (uint64, bool) {
	return t.m.Get(key)
}

type swissTarget struct {
	m *swiss.Map[uint64, uint64]
}

func newSwissTarget(opts TargetOptions) *swissTarget {
	return &swissTarget{m: swiss.New[uint64, uint64](opts.SizeHint)}
}

func (t *swissTarget) Kind() Kind { return KindSwiss }
func (t *swissTarget) Len() int   { return t.m.Len() }

func (t *swissTarget) Populate(data []uint64) {
	for _, v := range data {
		t.m.Put(v, v)
	}
}

func (t *swissTarget) Get(key uint64) (uint64, bool) {
	return t.m.Get(key)
}

type xsyncTarget struct {
	m *xsync.Map[uint64, uint64]
}

func newXSyncTarget(opts TargetOptions) *xsyncTarget {
	if opts.SizeHint > 0 {
		return &xsyncTarget{m: xsync.NewMap[uint64, uint64](xsync.WithPresize(opts.SizeHint))}
	}
	return &xsyncTarget{m: xsync.NewMap[uint64, uint64]()}
}

func (t *xsyncTarget) Kind() Kind { return KindXSync }
func (t *xsyncTarget) Len() int   { return t.m.Size() }

func (t *xsyncTarget) Populate(data []uint64) {
	for _, v := range data {
		t.m.Store(v, v)
	}
}

func (t *xsyncTarget) Get(key uint64) (uint64, bool) {
	return t.m.Load(key)
}

type haxMapTarget struct {
	m *haxmap.Map[uint64, uint64]
}

func newHaxMapTarget(opts TargetOptions) *haxMapTarget {
	if opts.SizeHint > 0 {
		// haxmap indexes its buckets with a mask
		size := uintptr(1) << bits.Len(uint(opts.SizeHint-1))
		return &haxMapTarget{m: haxmap.New[uint64, uint64](size)}
	}
	return &haxMapTarget{m: haxmap.New[uint64, uint64]()}
}

func (t *haxMapTarget) Kind() Kind { return KindHaxMap }
func (t *haxMapTarget) Len() int   { return int(t.m.Len()) }

func (t *haxMapTarget) Populate(data []uint64) {
	for _, v := range data {
		t.m.Set(v, v)
	}
}

func (t *haxMapTarget) Get(key uint64) (uint64, bool) {
	return t.m.Get(key)
}

// skiplist is the part of skipmap's ordered map the target touches.
type skiplist interface {
	Store(key, value uint64)
	Load(key uint64) (uint64, bool)
	Len() int
}

type skipMapTarget struct {
	m skiplist
}

func newSkipMapTarget(TargetOptions) *skipMapTarget {
	return &skipMapTarget{m: skipmap.New[uint64, uint64]()}
}

func (t *skipMapTarget) Kind() Kind { return KindSkipMap }
func (t *skipMapTarget) Len() int   { return t.m.Len() }

func (t *skipMapTarget) Populate(data []uint64) {
	for _, v := range data {
		t.m.Store(v, v)
	}
}

func (t *skipMapTarget) Get(key uint64) (uint64, bool) {
	return t.m.Load(key)
}
