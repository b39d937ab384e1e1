package registry

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nsqe/nsqe/errs"
	"github.com/nsqe/nsqe/quant"
)

func sampleLayers() []LayerDescriptor {
	return []LayerDescriptor{
		{
			Name: "layer.0",
			Tensors: map[string]quant.TensorDescriptor{
				"attn.wq": {Name: "attn.wq", Shape: []uint64{8, 64}, Kind: quant.KindF32},
			},
		},
	}
}

func TestRegisterAndDescribe(t *testing.T) {
	r := New(func(ctx context.Context, h *ModelHandle, budget uint64) error { return nil })

	id, err := r.Register("llama", sampleLayers(), nil, nil)
	require.NoError(t, err)

	handle, err := r.Describe(id)
	require.NoError(t, err)
	require.Equal(t, StateUnloaded, handle.State())
}

func TestLoadCoalescesConcurrentCallers(t *testing.T) {
	var calls int32
	loader := func(ctx context.Context, h *ModelHandle, budget uint64) error {
		atomic.AddInt32(&calls, 1)
		time.Sleep(10 * time.Millisecond)
		return nil
	}
	r := New(loader)
	id, err := r.Register("llama", sampleLayers(), nil, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, r.Load(context.Background(), id, 0))
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestPinRejectedWhileEvicting(t *testing.T) {
	r := New(func(ctx context.Context, h *ModelHandle, budget uint64) error { return nil })
	id, err := r.Register("llama", sampleLayers(), nil, nil)
	require.NoError(t, err)
	require.NoError(t, r.Load(context.Background(), id, 0))
	require.NoError(t, r.Pin(id))

	done := make(chan error, 1)
	go func() { done <- r.Evict(context.Background(), id) }()

	time.Sleep(10 * time.Millisecond)
	_, err = r.Describe(id)
	require.NoError(t, err)

	err = r.Pin(id)
	require.ErrorIs(t, err, errs.ErrModelEvicting)

	require.NoError(t, r.Unpin(id))
	require.NoError(t, <-done)

	_, err = r.Describe(id)
	require.ErrorIs(t, err, errs.ErrModelNotFound)
}

func TestEvictCancelledWithActiveReferences(t *testing.T) {
	r := New(func(ctx context.Context, h *ModelHandle, budget uint64) error { return nil })
	id, err := r.Register("llama", sampleLayers(), nil, nil)
	require.NoError(t, err)
	require.NoError(t, r.Load(context.Background(), id, 0))
	require.NoError(t, r.Pin(id))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err = r.Evict(ctx, id)
	require.ErrorIs(t, err, errs.ErrCancelled)
}
