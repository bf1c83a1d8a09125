package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_RunsJobOnStart(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Shutdown() })

	var runs atomic.Int32
	_, err = s.Register(context.Background(), Job{
		Name:       "counter",
		Interval:   time.Hour,
		RunOnStart: true,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Jobs())

	s.Start()
	require.Eventually(t, func() bool { return runs.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestScheduler_JobNeverOverlapsItself(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Shutdown() })

	var running, maxRunning, runs atomic.Int32
	_, err = s.Register(context.Background(), Job{
		Name:       "slow",
		Interval:   20 * time.Millisecond,
		RunOnStart: true,
		Run: func(ctx context.Context) error {
			n := running.Add(1)
			defer running.Add(-1)
			for {
				m := maxRunning.Load()
				if n <= m || maxRunning.CompareAndSwap(m, n) {
					break
				}
			}
			runs.Add(1)
			time.Sleep(80 * time.Millisecond)
			return errors.New("still failing")
		},
	})
	require.NoError(t, err)

	s.Start()
	require.Eventually(t, func() bool { return runs.Load() >= 3 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), maxRunning.Load())
}

func TestScheduler_RejectsNonPositiveInterval(t *testing.T) {
	s, err := New()
	require.NoError(t, err)

	_, err = s.Register(context.Background(), Job{Name: "bad", Run: func(context.Context) error { return nil }})
	assert.Error(t, err)
}

func TestRunJob_BoundsRunByTimeout(t *testing.T) {
	job := Job{
		Name:     "stuck",
		Interval: time.Hour,
		Timeout:  20 * time.Millisecond,
		Run: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}

	start := time.Now()
	err := runJob(context.Background(), job)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRunJob_DefaultsTimeoutToInterval(t *testing.T) {
	var deadline time.Time
	job := Job{
		Name:     "deadline",
		Interval: time.Minute,
		Run: func(ctx context.Context) error {
			deadline, _ = ctx.Deadline()
			return nil
		},
	}

	require.NoError(t, runJob(context.Background(), job))
	assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)
}

func TestRunJob_RecoversPanic(t *testing.T) {
	job := Job{
		Name:     "boom",
		Interval: time.Minute,
		Run:      func(context.Context) error { panic("nil center") },
	}

	var err error
	assert.NotPanics(t, func() { err = runJob(context.Background(), job) })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nil center")
}

func TestScheduler_KeepsRunningAfterPanic(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Shutdown() })

	var runs atomic.Int32
	_, err = s.Register(context.Background(), Job{
		Name:       "flaky",
		Interval:   20 * time.Millisecond,
		RunOnStart: true,
		Run: func(context.Context) error {
			if runs.Add(1) == 1 {
				panic("first run")
			}
			return nil
		},
	})
	require.NoError(t, err)

	s.Start()
	require.Eventually(t, func() bool { return runs.Load() >= 2 }, 3*time.Second, 10*time.Millisecond)
}
