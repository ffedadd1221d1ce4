package fanout

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicyDo_SucceedsFirstAttempt(t *testing.T) {
	p := Policy{Service: "test", Retries: 1}
	calls := 0

	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestPolicyDo_RetriesOnce(t *testing.T) {
	p := Policy{Service: "test", Retries: 1, Backoff: time.Millisecond}
	calls := 0

	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestPolicyDo_GivesUpAfterRetry(t *testing.T) {
	p := Policy{Service: "test", Retries: 1, Backoff: time.Millisecond}
	calls := 0
	failure := errors.New("still failing")

	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return failure
	})

	assert.ErrorIs(t, err, failure)
	assert.Equal(t, 2, calls)
}

func TestPolicyDo_PermanentNotRetried(t *testing.T) {
	p := Policy{Service: "test", Retries: 1}
	calls := 0

	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return Permanent(errors.New("bad request"))
	})

	require.Error(t, err)
	assert.True(t, IsPermanent(err))
	assert.Equal(t, 1, calls)
}

func TestPolicyDo_PerAttemptTimeout(t *testing.T) {
	p := Policy{Service: "test", Timeout: 20 * time.Millisecond}

	start := time.Now()
	err := p.Do(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestPolicyDo_NoRetryAfterParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{Service: "test", Retries: 1}
	calls := 0

	err := p.Do(ctx, func(ctx context.Context) error {
		calls++
		cancel()
		return errors.New("failed")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestNewLimiter(t *testing.T) {
	assert.Nil(t, NewLimiter(0))
	l := NewLimiter(5)
	require.NotNil(t, l)
	assert.Equal(t, 1, l.Burst())
}

func TestRun_FillsEverySlot(t *testing.T) {
	results := make([]int, 50)

	err := Run(context.Background(), len(results), 4, func(ctx context.Context, i int) {
		results[i] = i * i
	})

	require.NoError(t, err)
	for i, v := range results {
		assert.Equal(t, i*i, v)
	}
}

func TestRun_RespectsLimit(t *testing.T) {
	var inFlight, peak int32

	err := Run(context.Background(), 20, 3, func(ctx context.Context, i int) {
		cur := atomic.AddInt32(&inFlight, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if cur <= old || atomic.CompareAndSwapInt32(&peak, old, cur) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
	})

	require.NoError(t, err)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
}

func TestRun_SkipsAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var started int32

	err := Run(ctx, 100, 1, func(ctx context.Context, i int) {
		if atomic.AddInt32(&started, 1) == 5 {
			cancel()
		}
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, atomic.LoadInt32(&started), int32(100))
}
