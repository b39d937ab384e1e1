package cluster

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nsqe/nsqe/errs"
)

func testConfig() Config {
	return Config{
		SuspectAfter:     20 * time.Millisecond,
		NodeTimeout:      60 * time.Millisecond,
		SweepInterval:    5 * time.Millisecond,
		PlacementRetries: 3,
	}
}

func TestHeartbeatTransitionsRegisteredToHealthy(t *testing.T) {
	c := New(testConfig())
	c.Register("n1")
	require.NoError(t, c.Heartbeat("n1", Capability{Load: 0.1}))

	snap := c.Snapshot()
	require.Len(t, snap, 1)
	require.Equal(t, StateHealthy, snap[0].State)
}

func TestHeartbeatUnknownNodeFails(t *testing.T) {
	c := New(testConfig())
	require.ErrorIs(t, c.Heartbeat("ghost", Capability{}), errs.ErrNodeNotFound)
}

func TestSweepSuspectsThenEvictsOnMissedHeartbeats(t *testing.T) {
	c := New(testConfig())
	c.Init()
	defer c.Shutdown()

	var lost NodeID
	lostCh := make(chan struct{})
	c.OnNodeLost(func(id NodeID) {
		lost = id
		close(lostCh)
	})

	c.Register("n1")
	require.NoError(t, c.Heartbeat("n1", Capability{Load: 0.1}))

	require.Eventually(t, func() bool {
		snap := c.Snapshot()
		return len(snap) == 1 && snap[0].State == StateSuspect
	}, 200*time.Millisecond, 5*time.Millisecond)

	select {
	case <-lostCh:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected node to be evicted on timeout")
	}
	require.Equal(t, NodeID("n1"), lost)
	require.Empty(t, c.Snapshot())
}

func TestSweepResumesHealthyOnHeartbeat(t *testing.T) {
	c := New(testConfig())
	c.Init()
	defer c.Shutdown()

	c.Register("n1")
	require.NoError(t, c.Heartbeat("n1", Capability{}))

	require.Eventually(t, func() bool {
		snap := c.Snapshot()
		return len(snap) == 1 && snap[0].State == StateSuspect
	}, 200*time.Millisecond, 5*time.Millisecond)

	require.NoError(t, c.Heartbeat("n1", Capability{}))
	snap := c.Snapshot()
	require.Equal(t, StateHealthy, snap[0].State)
}

func TestInitTwiceWithoutShutdownPanics(t *testing.T) {
	c := New(testConfig())
	c.Init()
	defer c.Shutdown()
	require.Panics(t, func() { c.Init() })
}

func TestShutdownBeforeInitPanics(t *testing.T) {
	c := New(testConfig())
	require.Panics(t, c.Shutdown)
}

func TestPlacePrefersResidentThenTieBreaksByLoadThenID(t *testing.T) {
	c := New(testConfig())
	c.Register("b")
	c.Register("a")
	c.Register("cold")
	require.NoError(t, c.Heartbeat("b", Capability{ResidentModels: []string{"m1"}, Load: 0.5}))
	require.NoError(t, c.Heartbeat("a", Capability{ResidentModels: []string{"m1"}, Load: 0.5}))
	require.NoError(t, c.Heartbeat("cold", Capability{FreeCacheBytes: 1 << 20}))

	var tried []NodeID
	node, err := c.Place(context.Background(), PlacementRequest{RequiredModel: "m1"}, func(_ context.Context, id NodeID) error {
		tried = append(tried, id)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, NodeID("a"), node)
	require.Equal(t, []NodeID{"a"}, tried)
}

func TestPlaceRetriesOnOverloadedUpToBoundedCount(t *testing.T) {
	c := New(testConfig())
	c.Register("n1")
	c.Register("n2")
	c.Register("n3")
	require.NoError(t, c.Heartbeat("n1", Capability{ResidentModels: []string{"m1"}, Load: 0.1}))
	require.NoError(t, c.Heartbeat("n2", Capability{ResidentModels: []string{"m1"}, Load: 0.2}))
	require.NoError(t, c.Heartbeat("n3", Capability{ResidentModels: []string{"m1"}, Load: 0.3}))

	var tried []NodeID
	node, err := c.Place(context.Background(), PlacementRequest{RequiredModel: "m1"}, func(_ context.Context, id NodeID) error {
		tried = append(tried, id)
		if id == "n3" {
			return nil
		}
		return errs.ErrOverloaded
	})
	require.NoError(t, err)
	require.Equal(t, NodeID("n3"), node)
	require.Equal(t, []NodeID{"n1", "n2", "n3"}, tried)
}

func TestPlaceNoViableRouteWithoutHealthyNodes(t *testing.T) {
	c := New(testConfig())
	_, err := c.Place(context.Background(), PlacementRequest{RequiredModel: "m1"}, func(context.Context, NodeID) error {
		return nil
	})
	require.ErrorIs(t, err, errs.ErrNoViableRoute)
}

func TestDeregisterFiresNodeLost(t *testing.T) {
	c := New(testConfig())
	c.Register("n1")
	require.NoError(t, c.Heartbeat("n1", Capability{}))

	var lost NodeID
	c.OnNodeLost(func(id NodeID) { lost = id })
	require.NoError(t, c.Deregister("n1"))
	require.Equal(t, NodeID("n1"), lost)

	require.Empty(t, c.Snapshot())
}

func TestProbeAppliesConcurrentCapabilityUpdates(t *testing.T) {
	c := New(testConfig())
	c.Register("n1")
	c.Register("n2")
	require.NoError(t, c.Heartbeat("n1", Capability{}))
	require.NoError(t, c.Heartbeat("n2", Capability{}))

	err := c.Probe(context.Background(), []NodeID{"n1", "n2"}, func(_ context.Context, id NodeID) (Capability, error) {
		return Capability{Load: 0.42}, nil
	})
	require.NoError(t, err)

	for _, rec := range c.Snapshot() {
		require.Equal(t, 0.42, rec.Capability.Load)
	}
}

func TestProbePropagatesProbeError(t *testing.T) {
	c := New(testConfig())
	c.Register("n1")
	require.NoError(t, c.Heartbeat("n1", Capability{}))

	boom := errors.New("probe failed")
	err := c.Probe(context.Background(), []NodeID{"n1"}, func(context.Context, NodeID) (Capability, error) {
		return Capability{}, boom
	})
	require.ErrorIs(t, err, boom)
}
