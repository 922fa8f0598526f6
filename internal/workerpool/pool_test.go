// Copyright 2026 The translateLocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package workerpool

import (
	"context"
	"errors"
	goruntime "runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func closePool(t *testing.T, p *Pool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.Close(ctx))
}

func TestNewDefaultsToNumCPU(t *testing.T) {
	p := New(0, -1)
	defer closePool(t, p)
	assert.Equal(t, goruntime.NumCPU(), p.Size())
}

func TestDoReturnsResult(t *testing.T) {
	p := New(2, 4)
	defer closePool(t, p)

	got, err := Do(context.Background(), p, func(ctx context.Context) (string, error) {
		return "bonjour", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "bonjour", got)

	boom := errors.New("boom")
	_, err = Do(context.Background(), p, func(ctx context.Context) (int, error) {
		return 0, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestTasksStartInSubmissionOrder(t *testing.T) {
	p := New(1, 16)
	defer closePool(t, p)

	var mu sync.Mutex
	var order []int
	futures := make([]*Future[int], 0, 10)
	for i := 0; i < 10; i++ {
		i := i
		f, err := Submit(context.Background(), p, func(ctx context.Context) (int, error) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return i, nil
		})
		require.NoError(t, err)
		futures = append(futures, f)
	}
	for i, f := range futures {
		v, err := f.Wait(context.Background())
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
}

func TestConcurrencyIsBounded(t *testing.T) {
	const workers = 3
	p := New(workers, 32)
	defer closePool(t, p)

	var running, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := Do(context.Background(), p, func(ctx context.Context) (struct{}, error) {
				n := atomic.AddInt32(&running, 1)
				for {
					old := atomic.LoadInt32(&peak)
					if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&running, -1)
				return struct{}{}, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(workers))
}

func TestWaitCancellationLeavesTaskRunning(t *testing.T) {
	p := New(1, 1)
	defer closePool(t, p)

	release := make(chan struct{})
	var finished atomic.Bool
	f, err := Submit(context.Background(), p, func(ctx context.Context) (int, error) {
		<-release
		finished.Store(true)
		return 42, nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = f.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, finished.Load())

	close(release)
	v, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.True(t, finished.Load())
}

func TestQueuedTaskWithDoneContextIsSkipped(t *testing.T) {
	p := New(1, 4)
	defer closePool(t, p)

	release := make(chan struct{})
	_, err := Submit(context.Background(), p, func(ctx context.Context) (int, error) {
		<-release
		return 0, nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	var ran atomic.Bool
	f, err := Submit(ctx, p, func(ctx context.Context) (int, error) {
		ran.Store(true)
		return 1, nil
	})
	require.NoError(t, err)
	cancel()
	close(release)

	<-f.Done()
	_, err = f.Wait(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ran.Load())
}

func TestSubmitBlocksWhenQueueFull(t *testing.T) {
	p := New(1, 0)
	defer closePool(t, p)

	release := make(chan struct{})
	defer close(release)
	_, err := Submit(context.Background(), p, func(ctx context.Context) (int, error) {
		<-release
		return 0, nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	// The single worker is busy and there is no queue slot.
	_, err = Submit(ctx, p, func(ctx context.Context) (int, error) { return 0, nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPanicIsReportedAsError(t *testing.T) {
	p := New(1, 1)
	defer closePool(t, p)

	_, err := Do(context.Background(), p, func(ctx context.Context) (int, error) {
		panic("kaboom")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")

	v, err := Do(context.Background(), p, func(ctx context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestCloseDrainsQueuedTasks(t *testing.T) {
	p := New(1, 8)
	var done int32
	futures := make([]*Future[int], 0, 5)
	for i := 0; i < 5; i++ {
		f, err := Submit(context.Background(), p, func(ctx context.Context) (int, error) {
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&done, 1)
			return 0, nil
		})
		require.NoError(t, err)
		futures = append(futures, f)
	}
	closePool(t, p)
	assert.Equal(t, int32(5), atomic.LoadInt32(&done))

	_, err := Submit(context.Background(), p, func(ctx context.Context) (int, error) { return 0, nil })
	assert.ErrorIs(t, err, ErrClosed)
	closePool(t, p)
}

func TestCloseHonoursContext(t *testing.T) {
	p := New(1, 1)
	release := make(chan struct{})
	_, err := Submit(context.Background(), p, func(ctx context.Context) (int, error) {
		<-release
		return 0, nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err = p.Close(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	closePool(t, p)
}
