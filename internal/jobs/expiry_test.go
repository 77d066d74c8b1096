package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingExpirer struct {
	calls  atomic.Int32
	result int
	err    error
}

func (e *countingExpirer) ExpireDue(ctx context.Context) (int, error) {
	e.calls.Add(1)
	return e.result, e.err
}

func TestExpiryJob_RunOnce(t *testing.T) {
	t.Run("returns the expired count", func(t *testing.T) {
		job := NewExpiryJob(&countingExpirer{result: 3}, time.Minute)
		n, err := job.RunOnce(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})

	t.Run("surfaces failures", func(t *testing.T) {
		job := NewExpiryJob(&countingExpirer{err: errors.New("db down")}, time.Minute)
		n, err := job.RunOnce(context.Background())
		assert.Error(t, err)
		assert.Zero(t, n)
	})
}

func TestExpiryJob_StartStop(t *testing.T) {
	expirer := &countingExpirer{}
	job := NewExpiryJob(expirer, 10*time.Millisecond)

	job.Start()
	assert.Eventually(t, func() bool {
		return expirer.calls.Load() >= 2
	}, time.Second, 5*time.Millisecond)

	job.Stop()
	after := expirer.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, expirer.calls.Load())

	job.Stop()
}

func TestExpiryJob_KeepsRunningAfterFailure(t *testing.T) {
	expirer := &countingExpirer{err: errors.New("timeout")}
	job := NewExpiryJob(expirer, 10*time.Millisecond)

	job.Start()
	defer job.Stop()

	assert.Eventually(t, func() bool {
		return expirer.calls.Load() >= 3
	}, time.Second, 5*time.Millisecond)
}
