package tagbench

import (
	"github.com/pkg/errors"

	"github.com/rip-create-your-account/tagbench/fishtable"
)

// Kind enumerates the containers a run can compare.
type Kind int

const (
	KindHashMap Kind = iota
	KindTreeMap
	KindFishTable
	KindPerfect
	KindSwiss
	KindXSync
	KindHaxMap
	KindSkipMap
)

var kindLabels = [...]string{
	KindHashMap:   "unordered_map",
	KindTreeMap:   "map",
	KindFishTable: "fishtable",
	KindPerfect:   "phfish",
	KindSwiss:     "swiss",
	KindXSync:     "xsync",
	KindHaxMap:    "haxmap",
	KindSkipMap:   "skipmap",
}

// AllKinds lists every kind in declaration order.
func AllKinds() []Kind {
	kinds := make([]Kind, len(kindLabels))
	for i := range kindLabels {
		kinds[i] = Kind(i)
	}
	return kinds
}

// String returns the label used in the report.
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindLabels) {
		return "unknown"
	}
	return kindLabels[k]
}

// Ordered reports whether the container keeps its keys sorted.
func (k Kind) Ordered() bool {
	return k == KindTreeMap || k == KindSkipMap
}

func ParseKind(label string) (Kind, error) {
	for i, l := range kindLabels {
		if l == label {
			return Kind(i), nil
		}
	}
	return 0, errors.Wrapf(ErrUnknownTarget, "%q", label)
}

// Lookuper is the read side of a Target, all the lookup phases need.
type Lookuper interface {
	// Get returns the value stored under key. Safe for concurrent use once
	// population is done.
	Get(key uint64) (uint64, bool)
}

// Target is a key/value container under measurement. Every key maps to
// itself.
type Target interface {
	Lookuper
	Kind() Kind
	// Populate inserts every element of data as key and value. Duplicates
	// collapse into one entry.
	Populate(data []uint64)
	Len() int
}

// TargetOptions tune container construction.
type TargetOptions struct {
	// SizeHint is passed as initial capacity where the container takes one,
	// 0 means no hint.
	SizeHint int
	// Hasher is used by the fishtable kinds, nil means xxh3.
	Hasher fishtable.Hasher[uint64]
}

// NewTarget returns an empty container of the given kind. It panics on a kind
// outside the enumeration.
func NewTarget(kind Kind, opts TargetOptions) Target {
	if opts.SizeHint < 0 {
		opts.SizeHint = 0
	}
	if opts.Hasher == nil {
		opts.Hasher = xxh3Hasher
	}

	switch kind {
	case KindHashMap:
		return newHashMapTarget(opts)
	case KindTreeMap:
		return newTreeMapTarget(opts)
	case KindFishTable:
		return newFishTableTarget(opts)
	case KindPerfect:
		return newPerfectTarget(opts)
	case KindSwiss:
		return newSwissTarget(opts)
	case KindXSync:
		return newXSyncTarget(opts)
	case KindHaxMap:
		return newHaxMapTarget(opts)
	case KindSkipMap:
		return newSkipMapTarget(opts)
	default:
		panic("tagbench: unknown target kind")
	}
}
