package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestClamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   int
		want int
	}{
		{name: "zero picks default", in: 0, want: DefaultWorkers},
		{name: "negative picks default", in: -4, want: DefaultWorkers},
		{name: "below range clamps up", in: 2, want: MinWorkers},
		{name: "above range clamps down", in: 100, want: MaxWorkers},
		{name: "in range passes through", in: 12, want: 12},
		{name: "lower bound", in: MinWorkers, want: MinWorkers},
		{name: "upper bound", in: MaxWorkers, want: MaxWorkers},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Clamp(tt.in))
		})
	}
}

func TestPoolRunsEveryTask(t *testing.T) {
	t.Parallel()

	pool := NewPool(MinWorkers, zap.NewNop())

	const n = 200
	var done int64
	for i := 0; i < n; i++ {
		err := pool.Submit(context.Background(), func() {
			atomic.AddInt64(&done, 1)
		})
		require.NoError(t, err)
	}
	pool.Close()

	require.Equal(t, int64(n), atomic.LoadInt64(&done))
}

func TestPoolBoundsConcurrency(t *testing.T) {
	t.Parallel()

	pool := NewPool(MinWorkers, zap.NewNop())

	var active, peak int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		err := pool.Submit(context.Background(), func() {
			defer wg.Done()
			cur := atomic.AddInt64(&active, 1)
			for {
				old := atomic.LoadInt64(&peak)
				if cur <= old || atomic.CompareAndSwapInt64(&peak, old, cur) {
					break
				}
			}
			atomic.AddInt64(&active, -1)
		})
		require.NoError(t, err)
	}
	wg.Wait()
	pool.Close()

	require.LessOrEqual(t, atomic.LoadInt64(&peak), int64(pool.Workers()))
}

func TestPoolSubmitHonorsContext(t *testing.T) {
	t.Parallel()

	pool := NewPool(MinWorkers, zap.NewNop())
	defer pool.Close()

	// Fill the workers and the queue with blocked tasks so Submit has to
	// wait, then cancel the submitting context.
	release := make(chan struct{})
	for i := 0; i < pool.Workers()*2; i++ {
		require.NoError(t, pool.Submit(context.Background(), func() { <-release }))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := pool.Submit(ctx, func() {})
	require.ErrorIs(t, err, context.Canceled)

	close(release)
}

func TestPoolCloseWaitsForAcceptedTasks(t *testing.T) {
	t.Parallel()

	pool := NewPool(MinWorkers, zap.NewNop())

	started := make(chan struct{})
	finished := int64(0)
	require.NoError(t, pool.Submit(context.Background(), func() {
		close(started)
		atomic.AddInt64(&finished, 1)
	}))

	<-started
	pool.Close()
	require.Equal(t, int64(1), atomic.LoadInt64(&finished))
}
