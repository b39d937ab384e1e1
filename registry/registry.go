package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/nsqe/nsqe/errs"
	"github.com/nsqe/nsqe/quant"
)

// Loader performs the actual weight-residency work for Load. Injected
// at construction — Registry itself never knows how bytes get paged
// in, only when and how often.
type Loader func(ctx context.Context, handle *ModelHandle, targetMemoryBudget uint64) error

// Registry implements C4. Concurrent Load calls for the same model id
// coalesce behind a single in-flight call via singleflight, keyed
// per-model so distinct models can load concurrently.
type Registry struct {
	loader Loader
	log    *slog.Logger

	mu     sync.RWMutex
	models map[ModelID]*ModelHandle

	loadGroup singleflight.Group
}

// New constructs a Registry backed by loader.
func New(loader Loader) *Registry {
	return &Registry{
		loader: loader,
		log:    slog.Default(),
		models: make(map[ModelID]*ModelHandle),
	}
}

// Register creates a new, unloaded ModelHandle from artifact metadata
// and returns its id. The handle's tensor layout is fixed from this
// point on; only its state and ref count mutate afterward.
func (r *Registry) Register(architecture string, layers []LayerDescriptor, defaultPrecision quant.Profile, salienceDigest []byte) (ModelID, error) {
	if architecture == "" {
		return "", fmt.Errorf("%w: architecture must be set", errs.ErrInvalidInput)
	}

	id := ModelID(uuid.NewString())
	var total uint64
	for _, layer := range layers {
		for _, t := range layer.Tensors {
			total += t.StorageBytes()
		}
	}

	handle := newModelHandle()
	handle.ID = id
	handle.Architecture = architecture
	handle.Layers = layers
	handle.DefaultPrecision = defaultPrecision
	handle.SalienceDigest = salienceDigest
	handle.TotalBytes = total
	handle.state = StateUnloaded

	r.mu.Lock()
	r.models[id] = handle
	r.mu.Unlock()

	r.log.Info("registered model", "model", handle)
	return id, nil
}

// Load transitions a model to resident, coalescing concurrent callers
// for the same id behind one Loader invocation. Idempotent: a call
// against an already-resident model returns immediately.
func (r *Registry) Load(ctx context.Context, id ModelID, targetMemoryBudget uint64) error {
	handle, err := r.handle(id)
	if err != nil {
		return err
	}

	handle.mu.Lock()
	state := handle.state
	handle.mu.Unlock()
	if state == StateResident {
		return nil
	}
	if state == StateEvicting {
		return fmt.Errorf("%w: model %s is evicting", errs.ErrModelEvicting, id)
	}

	_, err, _ = r.loadGroup.Do(string(id), func() (any, error) {
		handle.mu.Lock()
		handle.state = StateLoading
		handle.mu.Unlock()

		if loadErr := r.loader(ctx, handle, targetMemoryBudget); loadErr != nil {
			handle.mu.Lock()
			handle.state = StateUnloaded
			handle.mu.Unlock()
			return nil, loadErr
		}

		handle.mu.Lock()
		handle.state = StateResident
		handle.mu.Unlock()
		return nil, nil
	})
	return err
}

// Pin marks one active execution referencing handle, rejecting the pin
// if the model is evicting.
func (r *Registry) Pin(id ModelID) error {
	handle, err := r.handle(id)
	if err != nil {
		return err
	}

	handle.mu.Lock()
	defer handle.mu.Unlock()
	if handle.state == StateEvicting {
		return fmt.Errorf("%w: model %s is evicting", errs.ErrModelEvicting, id)
	}
	handle.refCount++
	return nil
}

// Unpin releases one active execution's reference.
func (r *Registry) Unpin(id ModelID) error {
	handle, err := r.handle(id)
	if err != nil {
		return err
	}

	handle.mu.Lock()
	defer handle.mu.Unlock()
	if handle.refCount == 0 {
		return fmt.Errorf("%w: unpin without matching pin on model %s", errs.ErrInternalInvariantViolated, id)
	}
	handle.refCount--
	if handle.refCount == 0 {
		handle.zeroRefs.Broadcast()
	}
	return nil
}

// Evict transitions a model to evicting, rejecting new Pins immediately,
// then blocks until its reference count reaches zero before marking it
// unloaded. Callers choosing to run this asynchronously should do so
// from their own goroutine; Evict itself is a blocking wait loop guarded
// by a condition check under the handle's lock.
func (r *Registry) Evict(ctx context.Context, id ModelID) error {
	handle, err := r.handle(id)
	if err != nil {
		return err
	}

	handle.mu.Lock()
	handle.state = StateEvicting
	handle.mu.Unlock()

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			handle.zeroRefs.Broadcast()
		case <-done:
		}
	}()

	handle.mu.Lock()
	for handle.refCount > 0 && ctx.Err() == nil {
		handle.zeroRefs.Wait()
	}
	refs := handle.refCount
	if ctx.Err() != nil && refs > 0 {
		handle.mu.Unlock()
		close(done)
		return fmt.Errorf("%w: evict of %s cancelled with %d active references", errs.ErrCancelled, id, refs)
	}
	handle.state = StateUnloaded
	handle.mu.Unlock()
	close(done)

	r.mu.Lock()
	delete(r.models, id)
	r.mu.Unlock()

	r.log.Info("evicted model", "model", handle)
	return nil
}

// Describe returns the handle for id.
func (r *Registry) Describe(id ModelID) (*ModelHandle, error) {
	return r.handle(id)
}

// List returns every registered model's handle, in no particular order.
// Used by admin tooling and the router's default candidate source.
func (r *Registry) List() []*ModelHandle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ModelHandle, 0, len(r.models))
	for _, h := range r.models {
		out = append(out, h)
	}
	return out
}

func (r *Registry) handle(id ModelID) (*ModelHandle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handle, ok := r.models[id]
	if !ok {
		return nil, fmt.Errorf("%w: model %s", errs.ErrModelNotFound, id)
	}
	return handle, nil
}
