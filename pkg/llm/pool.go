package llm

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// BoundedGateway applies admission control in front of a shared gateway.
// Local inference endpoints are typically single-instance and resource-bound;
// requests beyond capacity wait for a slot instead of overwhelming the model
// process.
type BoundedGateway struct {
	inner Gateway
	slots *semaphore.Weighted
}

// NewBoundedGateway wraps gateway with a worker pool of the given size.
func NewBoundedGateway(gateway Gateway, size int64) *BoundedGateway {
	if size <= 0 {
		size = 1
	}

	return &BoundedGateway{
		inner: gateway,
		slots: semaphore.NewWeighted(size),
	}
}

// Complete waits for a pool slot, honoring context cancellation, then
// delegates to the wrapped gateway.
func (b *BoundedGateway) Complete(ctx context.Context, prompt string, params Params) (string, error) {
	if err := b.slots.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer b.slots.Release(1)

	return b.inner.Complete(ctx, prompt, params)
}

// IsAvailable probes without consuming a pool slot; the health check must not
// queue behind generation traffic.
func (b *BoundedGateway) IsAvailable(ctx context.Context) bool {
	return b.inner.IsAvailable(ctx)
}
