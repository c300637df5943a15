package plot

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPool_ConcurrentRenders(t *testing.T) {
	p := NewPool(2)
	require.Equal(t, 2, p.Workers())

	cfg := DefaultConfig()
	var wg sync.WaitGroup
	errs := make([]error, 6)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			art, err := p.Render(context.Background(), linearSamples(10+i), cfg)
			if err == nil && len(art.Data) > cfg.MaxBytes {
				err = errors.New("oversized artifact")
			}
			errs[i] = err
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}
}

func TestPool_CancelledContext(t *testing.T) {
	p := NewPool(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Render(ctx, linearSamples(5), DefaultConfig())
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewPool_DefaultWorkers(t *testing.T) {
	require.Positive(t, NewPool(0).Workers())
}
