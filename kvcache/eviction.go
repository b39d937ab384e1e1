package kvcache

import lru "github.com/hashicorp/golang-lru/v2/simplelru"

// segmentedLRU is the two-tier active/cold index the eviction policy is
// defined over. A victim search scans one tier's keys (the cold tier
// first) rather than every resident block.
type segmentedLRU struct {
	active *lru.LRU[SpotID, *CacheBlock]
	cold   *lru.LRU[SpotID, *CacheBlock]
}

func newSegmentedLRU(activeCap, coldCap int) *segmentedLRU {
	active, _ := lru.NewLRU[SpotID, *CacheBlock](activeCap, nil)
	cold, _ := lru.NewLRU[SpotID, *CacheBlock](coldCap, nil)
	return &segmentedLRU{active: active, cold: cold}
}

func (s *segmentedLRU) track(block *CacheBlock) {
	block.tier = TierCold
	s.cold.Add(block.Spot, block)
}

func (s *segmentedLRU) touch(block *CacheBlock) {
	if block.tier == TierActive {
		s.active.Add(block.Spot, block)
		return
	}
	s.cold.Remove(block.Spot)
	block.tier = TierActive
	s.active.Add(block.Spot, block)
}

func (s *segmentedLRU) forget(spot SpotID, tier Tier) {
	if tier == TierActive {
		s.active.Remove(spot)
	} else {
		s.cold.Remove(spot)
	}
}

// victim picks the next block to reclaim: skip pinned blocks; prefer
// cold tier, oldest last_access_tick; break ties by sequence priority
// then sequence id; if cold is empty, demote the least-recently-used
// active block into cold and retry.
func (s *segmentedLRU) victim(priority func(SequenceID) Priority) *CacheBlock {
	if v := selectVictim(s.cold.Keys(), s.cold, priority); v != nil {
		return v
	}

	for _, spot := range s.active.Keys() {
		block, ok := s.active.Peek(spot)
		if !ok || block.pinCount > 0 {
			continue
		}
		s.active.Remove(spot)
		block.tier = TierCold
		s.cold.Add(spot, block)
		return selectVictim(s.cold.Keys(), s.cold, priority)
	}

	return nil
}

// selectVictim scans keys (oldest-first order, per simplelru.Keys) for
// the lowest-tick unpinned block, breaking ties by sequence priority
// then sequence id.
func selectVictim(keys []SpotID, tier *lru.LRU[SpotID, *CacheBlock], priority func(SequenceID) Priority) *CacheBlock {
	var best *CacheBlock
	for _, spot := range keys {
		block, ok := tier.Peek(spot)
		if !ok || block.pinCount > 0 {
			continue
		}
		if best == nil || block.LastAccessTick < best.LastAccessTick ||
			(block.LastAccessTick == best.LastAccessTick && tieBreak(block, best, priority)) {
			best = block
		}
	}
	return best
}

func tieBreak(candidate, current *CacheBlock, priority func(SequenceID) Priority) bool {
	cp, bp := priority(candidate.Sequence), priority(current.Sequence)
	if cp != bp {
		return cp < bp
	}
	return candidate.Sequence < current.Sequence
}
