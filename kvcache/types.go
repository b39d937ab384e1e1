// Package kvcache implements the KV-Cache Manager (C3): a concurrent,
// bounded, quantized block store for attention K/V across all live
// sequences.
//
// Positions are bookkept over an explicitly spot-allocated arena
// addressed by CacheBlock, with reuse-or-break cache semantics made
// explicit as a per-block generation counter.
package kvcache

import (
	"sync"

	"github.com/nsqe/nsqe/quant"
)

// SequenceID, HeadID, and SpotID are the coordinate space CacheBlocks and
// the spot arena are addressed by.
type (
	SequenceID int64
	HeadID     int32
	SpotID     int64
)

// Tier is the segmented-LRU tier a block currently lives in.
type Tier uint8

const (
	TierCold Tier = iota
	TierActive
)

// PosRange is an inclusive-exclusive span of sequence positions.
type PosRange struct {
	Min, Max int32
}

func (r PosRange) contains(pos int32) bool {
	return pos >= r.Min && pos < r.Max
}

// CacheBlock is the data model's CacheBlock: a fixed-size region of the
// arena holding quantized K/V for one contiguous span of positions in
// one head of one sequence.
type CacheBlock struct {
	Spot      SpotID
	Sequence  SequenceID
	Head      HeadID
	Positions PosRange
	Codec     quant.CodecTag
	Bits      int
	Params    quant.CodecParams

	LastAccessTick int64
	pinCount       int32
	generation     uint64
	tier           Tier

	mu sync.RWMutex
}

// BlockHandle is the weak identifier Reserve returns. Every operation
// that dereferences it revalidates Generation against the live block,
// surfacing errs.ErrStaleHandle on mismatch — the data model's
// requirement that sequences "hold weak identifiers that must be
// revalidated after any await point."
type BlockHandle struct {
	Spot       SpotID
	Sequence   SequenceID
	Head       HeadID
	Generation uint64
}

// Priority orders sequences for eviction tie-breaking; lower evicts
// first.
type Priority int32
