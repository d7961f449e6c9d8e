package llm_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nalar-edu/nalar-api/pkg/llm"
)

type slowGateway struct {
	active atomic.Int32
	peak   atomic.Int32
}

func (s *slowGateway) Complete(context.Context, string, llm.Params) (string, error) {
	current := s.active.Add(1)
	for {
		peak := s.peak.Load()
		if current <= peak || s.peak.CompareAndSwap(peak, current) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	s.active.Add(-1)
	return "done", nil
}

func (s *slowGateway) IsAvailable(context.Context) bool {
	return true
}

func TestBoundedGatewayLimitsConcurrency(t *testing.T) {
	inner := &slowGateway{}
	pool := llm.NewBoundedGateway(inner, 2)

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := pool.Complete(context.Background(), "prompt", llm.Params{})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, inner.peak.Load(), int32(2))
}

func TestBoundedGatewayHonorsCancellationWhileQueued(t *testing.T) {
	inner := &slowGateway{}
	pool := llm.NewBoundedGateway(inner, 1)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = pool.Complete(context.Background(), "holder", llm.Params{})
	}()

	time.Sleep(5 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := pool.Complete(ctx, "queued", llm.Params{})
	require.ErrorIs(t, err, context.Canceled)

	wg.Wait()
}

func TestBoundedGatewayAvailabilityBypassesPool(t *testing.T) {
	inner := &slowGateway{}
	pool := llm.NewBoundedGateway(inner, 1)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = pool.Complete(context.Background(), "holder", llm.Params{})
	}()

	time.Sleep(5 * time.Millisecond)
	assert.True(t, pool.IsAvailable(context.Background()))
	wg.Wait()
}
