package kvcache

import (
	"math"

	"github.com/nsqe/nsqe/quant"
)

// PrefixSpan describes one of srcSeq's blocks eligible to be copied as a
// prefix into a new sequence.
type PrefixSpan struct {
	Positions PosRange
	Codec     quant.CodecTag
	Bits      int
	Keys      []byte
	Values    []byte
}

// CopyPrefix returns the content of every srcSeq block whose positions
// fall below length, for the caller to Reserve and Write against a new
// destination sequence. There is no shared-tensor storage to alias
// into, so the copy is explicit.
func (m *Manager) CopyPrefix(srcSeq SequenceID, length int32) []PrefixSpan {
	m.mu.Lock()
	defer m.mu.Unlock()

	var spans []PrefixSpan
	for spot, block := range m.blocks {
		if block.Sequence != srcSeq || block.Positions.Min >= length {
			continue
		}
		spans = append(spans, PrefixSpan{
			Positions: block.Positions,
			Codec:     block.Codec,
			Bits:      block.Bits,
			Keys:      append([]byte(nil), m.arena.keySlice(spot)...),
			Values:    append([]byte(nil), m.arena.valueSlice(spot)...),
		})
	}
	return spans
}

// CanResume reports whether seq can resume decoding at pos given a
// sliding window of windowSize positions still resident in the cache.
// windowSize of math.MaxInt32 means "no window", always resumable.
func (m *Manager) CanResume(seq SequenceID, pos int32, windowSize int32) bool {
	if windowSize == math.MaxInt32 {
		return true
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var first int32 = math.MaxInt32
	var last int32 = -1
	for _, block := range m.blocks {
		if block.Sequence != seq {
			continue
		}
		if block.Positions.Min < first {
			first = block.Positions.Min
		}
		if block.Positions.Max > last {
			last = block.Positions.Max
		}
	}
	if last == -1 {
		return false
	}

	windowStart := pos - windowSize
	if windowStart < 0 {
		windowStart = 0
	}
	return windowStart >= first && pos <= last+1
}

// Remove releases every block of seq whose positions fall in
// [beginIndex, endIndex), returning their spots to the free list.
// Blocks only partly inside the range, and blocks at or beyond
// endIndex, stay resident; no position is shifted or renumbered.
func (m *Manager) Remove(seq SequenceID, beginIndex, endIndex int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for spot, block := range m.blocks {
		if block.Sequence != seq {
			continue
		}
		if block.Positions.Min >= beginIndex && block.Positions.Max <= endIndex {
			m.lru.forget(spot, block.tier)
			delete(m.blocks, spot)
			m.arena.release(spot)
		}
	}
	return nil
}
