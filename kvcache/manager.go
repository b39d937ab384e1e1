package kvcache

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nsqe/nsqe/errs"
	"github.com/nsqe/nsqe/quant"
)

// Manager implements C3: Reserve, Write, Read, Pin, Unpin, and
// EvictUntil over a fixed spot arena.
//
// Latch ordering is fixed to spot-list before block latch: mu (guarding
// the arena's free list, the segmented LRU, and blocksBySpot) is always
// acquired before any block's mu, and mu is never held across a block
// latch acquisition or any I/O. This ordering prevents deadlock between
// concurrent Reserve/EvictUntil and Read/Write/Pin calls.
type Manager struct {
	cfg   Config
	arena *spotArena

	mu        sync.Mutex
	blocks    map[SpotID]*CacheBlock
	lru       *segmentedLRU
	priority  map[SequenceID]Priority
	tick      int64
	nextGen   atomic.Uint64
}

// New constructs a Manager with a fresh arena sized by cfg.
func New(cfg Config) *Manager {
	return &Manager{
		cfg:      cfg,
		arena:    newSpotArena(cfg),
		blocks:   make(map[SpotID]*CacheBlock),
		lru:      newSegmentedLRU(cfg.ActiveCapacity, cfg.ColdCapacity),
		priority: make(map[SequenceID]Priority),
	}
}

// SetPriority sets seq's eviction priority; lower evicts first among
// otherwise-tied cold candidates.
func (m *Manager) SetPriority(seq SequenceID, p Priority) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.priority[seq] = p
}

func (m *Manager) priorityOf(seq SequenceID) Priority {
	if p, ok := m.priority[seq]; ok {
		return p
	}
	return 0
}

// Reserve allocates one block per PositionsPerBlock-sized chunk of
// positions, evicting cold/active victims under the spot-list mutex
// until enough spots are free or CapacityExhausted is returned.
func (m *Manager) Reserve(seq SequenceID, head HeadID, positions PosRange, codec quant.CodecTag, bits int) ([]BlockHandle, error) {
	span := positions.Max - positions.Min
	if span <= 0 {
		return nil, fmt.Errorf("%w: empty position range", errs.ErrInvalidInput)
	}
	n := int((span + m.cfg.PositionsPerBlock - 1) / m.cfg.PositionsPerBlock)

	m.mu.Lock()
	defer m.mu.Unlock()

	spots, err := m.acquireWithEviction(n)
	if err != nil {
		return nil, err
	}

	handles := make([]BlockHandle, n)
	for i, spot := range spots {
		min := positions.Min + int32(i)*m.cfg.PositionsPerBlock
		max := min32(min+m.cfg.PositionsPerBlock, positions.Max)

		block := &CacheBlock{
			Spot:           spot,
			Sequence:       seq,
			Head:           head,
			Positions:      PosRange{Min: min, Max: max},
			Codec:          codec,
			Bits:           bits,
			LastAccessTick: m.tick,
			generation:     m.nextGen.Add(1),
		}
		m.blocks[spot] = block
		m.lru.track(block)
		handles[i] = BlockHandle{Spot: spot, Sequence: seq, Head: head, Generation: block.generation}
	}

	return handles, nil
}

func (m *Manager) acquireWithEviction(n int) ([]SpotID, error) {
	for {
		spots, err := m.arena.acquire(n)
		if err == nil {
			return spots, nil
		}
		if !m.evictOne() {
			return nil, err
		}
	}
}

// evictOne removes a single victim per the segmented-LRU policy,
// returning false when no evictable block exists (every block pinned).
func (m *Manager) evictOne() bool {
	victim := m.lru.victim(m.priorityOf)
	if victim == nil {
		return false
	}
	m.lru.forget(victim.Spot, victim.tier)
	delete(m.blocks, victim.Spot)
	m.arena.release(victim.Spot)
	return true
}

// EvictUntil evicts victims until at least freeBytes are available or
// no further block can be evicted.
func (m *Manager) EvictUntil(freeBytes uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for m.arena.freeBytes() < freeBytes {
		if !m.evictOne() {
			return fmt.Errorf("%w: cannot free %d bytes, all remaining blocks pinned", errs.ErrCapacityExhausted, freeBytes)
		}
	}
	return nil
}

// lookup revalidates handle against the live block, returning
// ErrStaleHandle if the block was evicted or reused since Reserve.
func (m *Manager) lookup(handle BlockHandle) (*CacheBlock, error) {
	m.mu.Lock()
	block, ok := m.blocks[handle.Spot]
	m.mu.Unlock()

	if !ok || block.generation != handle.Generation {
		return nil, fmt.Errorf("%w: block handle for spot %d is stale", errs.ErrStaleHandle, handle.Spot)
	}
	return block, nil
}

// Pin increments handle's block's reference count, keeping it off the
// eviction path for the duration of a forward step.
func (m *Manager) Pin(handle BlockHandle) error {
	block, err := m.lookup(handle)
	if err != nil {
		return err
	}
	atomic.AddInt32(&block.pinCount, 1)
	m.mu.Lock()
	m.lru.touch(block)
	m.mu.Unlock()
	return nil
}

// Unpin decrements handle's block's reference count.
func (m *Manager) Unpin(handle BlockHandle) error {
	block, err := m.lookup(handle)
	if err != nil {
		return err
	}
	if atomic.AddInt32(&block.pinCount, -1) < 0 {
		atomic.StoreInt32(&block.pinCount, 0)
		return fmt.Errorf("%w: unpin without matching pin on spot %d", errs.ErrInternalInvariantViolated, handle.Spot)
	}
	return nil
}

// Write stores keys/values into handle's block. Single-writer: callers
// must hold the block themselves (by convention, the pinning sequence's
// own decode step), enforced here by the block's exclusive latch.
func (m *Manager) Write(handle BlockHandle, keys, values []byte, params quant.CodecParams) error {
	block, err := m.lookup(handle)
	if err != nil {
		return err
	}

	block.mu.Lock()

	block.Params = params

	dst := m.arena.keySlice(handle.Spot)
	if len(keys) > len(dst) {
		block.mu.Unlock()
		return fmt.Errorf("%w: key payload %d exceeds spot capacity %d", errs.ErrInvalidInput, len(keys), len(dst))
	}
	copy(dst, keys)

	dstV := m.arena.valueSlice(handle.Spot)
	if len(values) > len(dstV) {
		block.mu.Unlock()
		return fmt.Errorf("%w: value payload %d exceeds spot capacity %d", errs.ErrInvalidInput, len(values), len(dstV))
	}
	copy(dstV, values)
	block.mu.Unlock()

	m.mu.Lock()
	m.tick++
	block.LastAccessTick = m.tick
	m.mu.Unlock()

	return nil
}

// BlockContent is one handle's dequantized K/V payload, returned by
// Read.
type BlockContent struct {
	Handle BlockHandle
	Keys   []float32
	Values []float32
}

// Read dequantizes and returns the content of each handle. Readers take
// only the block's shared latch, so concurrent Read calls never block
// each other.
func (m *Manager) Read(handles []BlockHandle) ([]BlockContent, error) {
	out := make([]BlockContent, len(handles))
	for i, h := range handles {
		block, err := m.lookup(h)
		if err != nil {
			return nil, err
		}

		block.mu.RLock()
		keyPayload := append([]byte(nil), m.arena.keySlice(h.Spot)...)
		valuePayload := append([]byte(nil), m.arena.valueSlice(h.Spot)...)
		elements := int(block.Positions.Max - block.Positions.Min)
		block.mu.RUnlock()

		keys, err := quant.Dequantize(quant.QuantizedBlock{Codec: block.Codec, Params: block.Params, Payload: keyPayload, Elements: elements}, block.Bits)
		if err != nil {
			return nil, err
		}
		values, err := quant.Dequantize(quant.QuantizedBlock{Codec: block.Codec, Params: block.Params, Payload: valuePayload, Elements: elements}, block.Bits)
		if err != nil {
			return nil, err
		}

		out[i] = BlockContent{Handle: h, Keys: keys, Values: values}
	}
	return out, nil
}

// Stats is a point-in-time occupancy snapshot for admin/CLI reporting.
type Stats struct {
	TotalSpots     int
	FreeSpots      int
	FreeBytes      uint64
	ResidentBlocks int
}

// Stats reports the arena's current occupancy.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		TotalSpots:     m.cfg.TotalSpots,
		FreeSpots:      len(m.arena.freeSpots),
		FreeBytes:      m.arena.freeBytes(),
		ResidentBlocks: len(m.blocks),
	}
}

func min32(a, b int32) int32 {
	if a < b {
		return a
	}
	return b
}
