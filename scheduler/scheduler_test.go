package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAddTicker_Fires(t *testing.T) {
	s := New(zap.NewNop())
	defer s.Stop()

	var count int32
	s.AddTicker("tick", 20*time.Millisecond, func(context.Context) error {
		atomic.AddInt32(&count, 1)
		return nil
	})

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&count) >= 3 },
		time.Second, 10*time.Millisecond)
}

func TestAddTicker_ReplacesSameName(t *testing.T) {
	s := New(zap.NewNop())
	defer s.Stop()

	var first, second int32
	s.AddTicker("task", 20*time.Millisecond, func(context.Context) error { atomic.AddInt32(&first, 1); return nil })
	time.Sleep(30 * time.Millisecond)
	s.AddTicker("task", 20*time.Millisecond, func(context.Context) error { atomic.AddInt32(&second, 1); return nil })

	frozen := atomic.LoadInt32(&first)
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&second) >= 2 }, time.Second, 10*time.Millisecond)
	assert.LessOrEqual(t, atomic.LoadInt32(&first), frozen+1, "old task stops after at most one in-flight run")
	assert.Equal(t, []string{"task"}, s.ListTickers())
}

func TestRemove(t *testing.T) {
	s := New(zap.NewNop())
	defer s.Stop()

	var count int32
	s.AddTicker("gone", 10*time.Millisecond, func(context.Context) error { atomic.AddInt32(&count, 1); return nil })
	s.Remove("gone")
	s.Remove("never-registered")
	time.Sleep(50 * time.Millisecond)

	assert.LessOrEqual(t, atomic.LoadInt32(&count), int32(1))
	assert.Empty(t, s.ListTickers())
}

func TestTasks_RecordFailuresAndPanics(t *testing.T) {
	s := New(zap.NewNop())
	defer s.Stop()

	var calls int32
	s.AddTicker("flaky", 10*time.Millisecond, func(context.Context) error {
		switch atomic.AddInt32(&calls, 1) {
		case 1:
			return errors.New("boom")
		case 2:
			panic("kaboom")
		}
		return nil
	})
	s.AddTicker("a_ok", time.Hour, func(context.Context) error { return nil })

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) >= 3 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		tasks := s.Tasks()
		return len(tasks) == 2 && tasks[1].Runs >= 3
	}, time.Second, 5*time.Millisecond)

	tasks := s.Tasks()
	assert.Equal(t, "a_ok", tasks[0].Name)
	assert.Zero(t, tasks[0].Runs)
	assert.Nil(t, tasks[0].LastRun)

	flaky := tasks[1]
	assert.Equal(t, "flaky", flaky.Name)
	assert.Equal(t, 10*time.Millisecond, flaky.Interval)
	assert.Equal(t, int64(2), flaky.Failures)
	assert.NotNil(t, flaky.LastRun)
	assert.Empty(t, flaky.LastError, "a later success clears the last error")
}

func TestAddTickerWithTimeout_BoundsRun(t *testing.T) {
	s := New(zap.NewNop())
	defer s.Stop()

	errCh := make(chan error, 1)
	s.AddTickerWithTimeout("slow", 10*time.Millisecond, 20*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		select {
		case errCh <- ctx.Err():
		default:
		}
		return ctx.Err()
	})

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(time.Second):
		t.Fatal("timeout never fired")
	}
}

func TestStop_CancelsRunningTask(t *testing.T) {
	s := New(zap.NewNop())

	started := make(chan struct{})
	var once int32
	s.AddTicker("block", 10*time.Millisecond, func(ctx context.Context) error {
		if atomic.CompareAndSwapInt32(&once, 0, 1) {
			close(started)
		}
		<-ctx.Done()
		return ctx.Err()
	})
	<-started

	done := make(chan struct{})
	go func() { s.Stop(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		require.FailNow(t, "Stop did not return")
	}
}
