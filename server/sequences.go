package server

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/nsqe/nsqe/kvcache"
)

// sequenceTable tracks the cancel function for every in-flight inference
// stream, keyed by a process-wide monotonic kvcache.SequenceID, so
// CancelHandler can reach a running Engine.Run without a shared global.
// The decimal string form of the id is what's exposed over HTTP.
type sequenceTable struct {
	next    atomic.Int64
	mu      sync.Mutex
	cancels map[kvcache.SequenceID]context.CancelFunc
}

func newSequenceTable() *sequenceTable {
	return &sequenceTable{cancels: make(map[kvcache.SequenceID]context.CancelFunc)}
}

func (t *sequenceTable) begin(parent context.Context) (kvcache.SequenceID, context.Context) {
	id := kvcache.SequenceID(t.next.Add(1))
	ctx, cancel := context.WithCancel(parent)

	t.mu.Lock()
	t.cancels[id] = cancel
	t.mu.Unlock()

	return id, ctx
}

func (t *sequenceTable) end(id kvcache.SequenceID) {
	t.mu.Lock()
	delete(t.cancels, id)
	t.mu.Unlock()
}

// cancel returns false if raw doesn't parse as a sequence id, or the id
// is unknown or already finished.
func (t *sequenceTable) cancel(raw string) bool {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false
	}
	id := kvcache.SequenceID(n)

	t.mu.Lock()
	cancel, ok := t.cancels[id]
	t.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	return true
}
