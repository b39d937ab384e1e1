package kvcache

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nsqe/nsqe/errs"
	"github.com/nsqe/nsqe/quant"
)

func testConfig() Config {
	return Config{
		HeadDimBytes:      128,
		PositionsPerBlock: 16,
		TotalSpots:        4,
		ActiveCapacity:    4,
		ColdCapacity:      4,
	}
}

func TestReserveAndWriteRead(t *testing.T) {
	m := New(testConfig())

	handles, err := m.Reserve(1, 0, PosRange{Min: 0, Max: 16}, quant.CodecLinear, 8)
	require.NoError(t, err)
	require.Len(t, handles, 1)

	payload := make([]byte, testConfig().HeadDimBytes*16)
	require.NoError(t, m.Write(handles[0], payload, payload, quant.CodecParams{Scale: 0.1}))

	content, err := m.Read(handles)
	require.NoError(t, err)
	require.Len(t, content, 1)
}

func TestReserveExhaustsCapacity(t *testing.T) {
	cfg := testConfig()
	cfg.TotalSpots = 1
	cfg.ActiveCapacity = 1
	cfg.ColdCapacity = 1
	m := New(cfg)

	_, err := m.Reserve(1, 0, PosRange{Min: 0, Max: 16}, quant.CodecLinear, 8)
	require.NoError(t, err)

	// pin the only block so eviction can't reclaim it
	require.NoError(t, m.Pin(mustFirstHandle(t, m)))

	_, err = m.Reserve(2, 0, PosRange{Min: 0, Max: 16}, quant.CodecLinear, 8)
	require.ErrorIs(t, err, errs.ErrCapacityExhausted)
}

func mustFirstHandle(t *testing.T, m *Manager) BlockHandle {
	t.Helper()
	for spot, block := range m.blocks {
		return BlockHandle{Spot: spot, Sequence: block.Sequence, Head: block.Head, Generation: block.generation}
	}
	t.Fatal("no blocks reserved")
	return BlockHandle{}
}

func TestEvictionReclaimsUnpinnedColdBlockFirst(t *testing.T) {
	cfg := testConfig()
	cfg.TotalSpots = 2
	cfg.ActiveCapacity = 2
	cfg.ColdCapacity = 2
	m := New(cfg)

	h1, err := m.Reserve(1, 0, PosRange{Min: 0, Max: 16}, quant.CodecLinear, 8)
	require.NoError(t, err)
	_, err = m.Reserve(2, 0, PosRange{Min: 0, Max: 16}, quant.CodecLinear, 8)
	require.NoError(t, err)

	require.NoError(t, m.Pin(h1[0]))

	// capacity is full; reserving a third block must evict seq 2's block
	// (unpinned) rather than seq 1's (pinned).
	h3, err := m.Reserve(3, 0, PosRange{Min: 0, Max: 16}, quant.CodecLinear, 8)
	require.NoError(t, err)
	require.NotEqual(t, h1[0].Spot, h3[0].Spot)

	_, err = m.lookup(h1[0])
	require.NoError(t, err, "pinned block must survive eviction")
}

func TestStaleHandleAfterEviction(t *testing.T) {
	cfg := testConfig()
	cfg.TotalSpots = 1
	cfg.ActiveCapacity = 1
	cfg.ColdCapacity = 1
	m := New(cfg)

	h1, err := m.Reserve(1, 0, PosRange{Min: 0, Max: 16}, quant.CodecLinear, 8)
	require.NoError(t, err)

	_, err = m.Reserve(2, 0, PosRange{Min: 0, Max: 16}, quant.CodecLinear, 8)
	require.NoError(t, err)

	_, err = m.lookup(h1[0])
	require.ErrorIs(t, err, errs.ErrStaleHandle)
}

func TestRemoveReleasesBlocksInRange(t *testing.T) {
	m := New(testConfig())

	_, err := m.Reserve(1, 0, PosRange{Min: 0, Max: 16}, quant.CodecLinear, 8)
	require.NoError(t, err)

	require.NoError(t, m.Remove(1, 0, 16))
	require.Equal(t, 0, len(m.blocks))
}
