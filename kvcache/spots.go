package kvcache

import "github.com/nsqe/nsqe/errs"

// Config sizes the Manager's arena. SpotBytes must be a power-of-two
// multiple of HeadDimBytes, the data model's CacheBlock invariant (c).
type Config struct {
	HeadDimBytes    uint64
	PositionsPerBlock int32
	TotalSpots      int
	ActiveCapacity  int
	ColdCapacity    int
}

// SpotBytes is the per-spot payload size for one of the key or value
// halves of a block.
func (c Config) SpotBytes() uint64 {
	return c.HeadDimBytes * uint64(c.PositionsPerBlock)
}

// spotArena is the fixed physical backing store, divided into
// fixed-size spots. freeSpots is a stack of available spot indices,
// seeded full at construction.
type spotArena struct {
	keys       []byte
	values     []byte
	spotBytes  uint64
	freeSpots  []SpotID
}

func newSpotArena(cfg Config) *spotArena {
	spotBytes := cfg.SpotBytes()
	free := make([]SpotID, cfg.TotalSpots)
	for i := range free {
		free[i] = SpotID(i)
	}
	return &spotArena{
		keys:      make([]byte, spotBytes*uint64(cfg.TotalSpots)),
		values:    make([]byte, spotBytes*uint64(cfg.TotalSpots)),
		spotBytes: spotBytes,
		freeSpots: free,
	}
}

// acquire pops n free spots as a single critical-section operation;
// acquiring fewer than n is never partial — either all n come back or
// none do, so a failed Reserve never leaks spots for the caller to clean
// up.
func (a *spotArena) acquire(n int) ([]SpotID, error) {
	if len(a.freeSpots) < n {
		return nil, errs.ErrCapacityExhausted
	}
	tail := len(a.freeSpots) - n
	spots := append([]SpotID(nil), a.freeSpots[tail:]...)
	a.freeSpots = a.freeSpots[:tail]
	return spots, nil
}

func (a *spotArena) release(spots ...SpotID) {
	a.freeSpots = append(a.freeSpots, spots...)
}

func (a *spotArena) keySlice(spot SpotID) []byte {
	start := uint64(spot) * a.spotBytes
	return a.keys[start : start+a.spotBytes]
}

func (a *spotArena) valueSlice(spot SpotID) []byte {
	start := uint64(spot) * a.spotBytes
	return a.values[start : start+a.spotBytes]
}

func (a *spotArena) freeBytes() uint64 {
	return uint64(len(a.freeSpots)) * a.spotBytes * 2
}
