// Package registry implements the Model Registry (C4): model metadata
// and lifetime ownership, tracking each model through load, residency,
// and eviction.
package registry

import (
	"log/slog"
	"sync"

	"github.com/nsqe/nsqe/format"
	"github.com/nsqe/nsqe/quant"
)

// ModelID identifies a registered model.
type ModelID string

// LoadState is a ModelHandle's position in its lifecycle: unloaded,
// loading, resident, or evicting.
type LoadState uint8

const (
	StateUnloaded LoadState = iota
	StateLoading
	StateResident
	StateEvicting
)

func (s LoadState) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoading:
		return "loading"
	case StateResident:
		return "resident"
	case StateEvicting:
		return "evicting"
	default:
		return "unknown"
	}
}

// LayerDescriptor is one layer's tensor descriptors, keyed by tensor
// name within the layer.
type LayerDescriptor struct {
	Name    string
	Tensors map[string]quant.TensorDescriptor
}

// ModelHandle is immutable after Register except for its load-state:
// id, architecture, layer list, per-layer tensor descriptors, and
// default precision map are fixed, while Registry mutates load-state
// under lock as the model moves through its lifecycle.
// Weight tensors are shared immutably by reference to executors — every
// reader of a resident ModelHandle sees the same backing descriptors.
type ModelHandle struct {
	ID              ModelID
	Architecture    string
	Layers          []LayerDescriptor
	DefaultPrecision quant.Profile

	SalienceDigest []byte
	TotalBytes     uint64

	mu       sync.Mutex
	zeroRefs *sync.Cond
	state    LoadState
	refCount int
}

func newModelHandle() *ModelHandle {
	h := &ModelHandle{}
	h.zeroRefs = sync.NewCond(&h.mu)
	return h
}

func (h *ModelHandle) State() LoadState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// LogValue renders a ModelHandle for structured logging, summarizing
// size/state fields rather than dumping the whole tensor graph.
func (h *ModelHandle) LogValue() slog.Value {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slog.GroupValue(
		slog.String("id", string(h.ID)),
		slog.String("architecture", h.Architecture),
		slog.String("state", h.state.String()),
		slog.String("size", format.HumanBytes(h.TotalBytes)),
		slog.Int("refs", h.refCount),
	)
}
