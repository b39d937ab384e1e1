package cluster

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nsqe/nsqe/errs"
)

// Config bundles the coordinator's tunables, sourced from envconfig by
// callers.
type Config struct {
	SuspectAfter     time.Duration
	NodeTimeout      time.Duration
	SweepInterval    time.Duration
	PlacementRetries int
}

// DefaultConfig mirrors the defaults documented in envconfig: a short
// grace window before a node is merely suspected, a longer one before
// it is evicted outright. Callers wire the envconfig-sourced values in
// at construction; this is just the fallback if they don't.
func DefaultConfig() Config {
	return Config{
		SuspectAfter:     5 * time.Second,
		NodeTimeout:      15 * time.Second,
		SweepInterval:    time.Second,
		PlacementRetries: 3,
	}
}

// PlacementRequest describes a worker slot the coordinator must find.
type PlacementRequest struct {
	RequiredModel string
	// EstimatedBytes is the cache capacity the placement will consume;
	// a candidate whose FreeCacheBytes can't cover it is skipped on the
	// cold-load fallback path.
	EstimatedBytes uint64
}

// Attempt is supplied by the caller and invoked against each placement
// candidate in turn; it should return errs.ErrOverloaded if the node
// refused the assignment, nil on acceptance, or any other error to
// abort the whole placement.
type Attempt func(ctx context.Context, node NodeID) error

// Coordinator is the C6 Cluster Coordinator: worker membership,
// heartbeat-driven health, and advisory placement. State is mutex-
// guarded and scoped to an instance rather than package-level globals
// so multiple clusters can coexist in one process (tests, multi-tenant
// control planes).
type Coordinator struct {
	cfg Config
	log *slog.Logger

	mu          sync.Mutex
	nodes       map[NodeID]*NodeRecord
	initialized bool
	stopSweep   chan struct{}
	sweepDone   chan struct{}

	// onLost is called with sequences invalidated by a node's eviction;
	// wired by runtime in production, left nil in tests that don't
	// exercise the failure path.
	onLost func(NodeID)
}

// New constructs a Coordinator. Callers must call Init before
// Register/Heartbeat/Place and Shutdown when done.
func New(cfg Config) *Coordinator {
	return &Coordinator{
		cfg:   cfg,
		log:   slog.Default(),
		nodes: make(map[NodeID]*NodeRecord),
	}
}

// OnNodeLost registers a callback invoked whenever a node transitions
// to Evicted, carrying the lost node's id so the caller can mark
// affected sequences NodeLost.
func (c *Coordinator) OnNodeLost(fn func(NodeID)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onLost = fn
}

// Init starts the background suspect/timeout sweep. Calling Init twice
// without an intervening Shutdown panics.
func (c *Coordinator) Init() {
	c.mu.Lock()
	if c.initialized {
		c.mu.Unlock()
		panic(errs.ErrAlreadyInitialized)
	}
	c.initialized = true
	c.stopSweep = make(chan struct{})
	c.sweepDone = make(chan struct{})
	c.mu.Unlock()

	go c.sweepLoop(c.stopSweep, c.sweepDone)
}

// Shutdown stops the sweep loop and blocks until it has exited.
// Shutdown on a Coordinator that was never Init'd panics.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	if !c.initialized {
		c.mu.Unlock()
		panic(errs.ErrNotInitialized)
	}
	c.initialized = false
	stop, done := c.stopSweep, c.sweepDone
	c.mu.Unlock()

	close(stop)
	<-done
}

func (c *Coordinator) sweepLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// sweep evaluates every node's last-seen age against suspect_after and
// node_timeout, transitioning Healthy->Suspect->Evicted as needed.
func (c *Coordinator) sweep() {
	now := time.Now()

	c.mu.Lock()
	var lost []NodeID
	for id, rec := range c.nodes {
		age := now.Sub(rec.LastSeen)
		switch rec.State {
		case StateHealthy:
			if age > c.cfg.SuspectAfter {
				rec.State = StateSuspect
				c.log.Warn("node suspect", "node", id, "since_heartbeat", age)
			}
		case StateSuspect:
			if age > c.cfg.NodeTimeout {
				delete(c.nodes, id)
				lost = append(lost, id)
				c.log.Error("node evicted on timeout", "node", id, "since_heartbeat", age)
			}
		}
	}
	onLost := c.onLost
	c.mu.Unlock()

	if onLost != nil {
		for _, id := range lost {
			onLost(id)
		}
	}
}

// Register admits a node in the Registered state; it becomes Healthy on
// its first heartbeat.
func (c *Coordinator) Register(id NodeID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.nodes[id]; ok {
		return
	}
	c.nodes[id] = &NodeRecord{ID: id, State: StateRegistered, LastSeen: time.Now()}
}

// Heartbeat applies a liveness signal and capability refresh, moving
// Registered/Suspect nodes back to Healthy.
func (c *Coordinator) Heartbeat(id NodeID, cap Capability) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.nodes[id]
	if !ok {
		return errs.ErrNodeNotFound
	}
	rec.LastSeen = time.Now()
	rec.Capability = cap
	if rec.State == StateRegistered || rec.State == StateSuspect {
		rec.State = StateHealthy
	}
	return nil
}

// Deregister evicts id unconditionally, regardless of current state,
// and removes it so it no longer appears in Snapshot.
func (c *Coordinator) Deregister(id NodeID) error {
	c.mu.Lock()
	_, ok := c.nodes[id]
	if !ok {
		c.mu.Unlock()
		return errs.ErrNodeNotFound
	}
	delete(c.nodes, id)
	onLost := c.onLost
	c.mu.Unlock()

	if onLost != nil {
		onLost(id)
	}
	return nil
}

// Snapshot returns a copy of every known node record, for C8's
// GET /cluster/nodes.
func (c *Coordinator) Snapshot() []NodeRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]NodeRecord, 0, len(c.nodes))
	for _, rec := range c.nodes {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// candidates returns Healthy nodes eligible for req, resident-first,
// sorted by tie-break: lowest load, then lowest node id.
func (c *Coordinator) candidates(req PlacementRequest) []NodeID {
	c.mu.Lock()
	defer c.mu.Unlock()

	var resident, cold []*NodeRecord
	for _, rec := range c.nodes {
		if rec.State != StateHealthy {
			continue
		}
		if hasModel(rec.Capability.ResidentModels, req.RequiredModel) {
			resident = append(resident, rec)
			continue
		}
		if rec.Capability.FreeCacheBytes >= req.EstimatedBytes {
			cold = append(cold, rec)
		}
	}
	byTieBreak := func(recs []*NodeRecord) []NodeID {
		sort.Slice(recs, func(i, j int) bool {
			if recs[i].Capability.Load != recs[j].Capability.Load {
				return recs[i].Capability.Load < recs[j].Capability.Load
			}
			return recs[i].ID < recs[j].ID
		})
		ids := make([]NodeID, len(recs))
		for i, r := range recs {
			ids[i] = r.ID
		}
		return ids
	}

	return append(byTieBreak(resident), byTieBreak(cold)...)
}

func hasModel(resident []string, model string) bool {
	for _, m := range resident {
		if m == model {
			return true
		}
	}
	return false
}

// Place picks a candidate and invokes attempt against it, retrying the
// next candidate on errs.ErrOverloaded up to cfg.PlacementRetries times.
// Placement is advisory: a successful attempt call is the only
// confirmation of assignment, Place itself holds no lock across it.
func (c *Coordinator) Place(ctx context.Context, req PlacementRequest, attempt Attempt) (NodeID, error) {
	candidates := c.candidates(req)
	if len(candidates) == 0 {
		return "", errs.ErrNoViableRoute
	}

	limit := c.cfg.PlacementRetries
	if limit <= 0 || limit > len(candidates) {
		limit = len(candidates)
	}

	var lastErr error
	for i := 0; i < limit; i++ {
		node := candidates[i]
		err := attempt(ctx, node)
		if err == nil {
			return node, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !errors.Is(err, errs.ErrOverloaded) {
			return "", err
		}
		lastErr = err
	}
	return "", lastErr
}

// Probe fetches a fresh Capability reading per candidate concurrently
// (bounded by cfg.PlacementRetries concurrent probes) and applies each
// via Heartbeat, so Place sees up-to-date load figures for nodes that
// heartbeat infrequently under load. errgroup bounds fan-out and returns
// the first error; that error also cancels the context shared by the
// probes still running.
func (c *Coordinator) Probe(ctx context.Context, ids []NodeID, probe func(context.Context, NodeID) (Capability, error)) error {
	limit := c.cfg.PlacementRetries
	if limit <= 0 {
		limit = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			capability, err := probe(gctx, id)
			if err != nil {
				return err
			}
			return c.Heartbeat(id, capability)
		})
	}
	return g.Wait()
}
