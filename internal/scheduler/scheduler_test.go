package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// blockingTask runs until its context ends and records that it did.
func blockingTask(started chan<- struct{}, stopped *atomic.Bool) Task {
	return func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		stopped.Store(true)
	}
}

func TestStart_OnePerChat(t *testing.T) {
	s := New(nil)
	started := make(chan struct{})
	var stopped atomic.Bool

	require.NoError(t, s.Start(context.Background(), 1, blockingTask(started, &stopped)))
	<-started
	assert.True(t, s.Running(1))
	assert.ErrorIs(t, s.Start(context.Background(), 1, func(context.Context) {}), ErrAlreadyRunning)

	other := make(chan struct{})
	require.NoError(t, s.Start(context.Background(), 2, func(context.Context) { close(other) }))
	<-other

	assert.True(t, s.Cancel(1))
	s.Wait()
	assert.True(t, stopped.Load())
	assert.False(t, s.Running(1))
	assert.False(t, s.Running(2))
	assert.False(t, s.Cancel(1))
}

func TestStart_AfterFinishIsAllowed(t *testing.T) {
	s := New(nil)
	var runs atomic.Int32
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Start(context.Background(), 7, func(context.Context) { runs.Add(1) }))
		s.Wait()
	}
	assert.Equal(t, int32(3), runs.Load())
}

func TestParentCancellation(t *testing.T) {
	s := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	var stopped atomic.Bool
	require.NoError(t, s.Start(ctx, 1, blockingTask(started, &stopped)))
	<-started
	cancel()
	s.Wait()
	assert.True(t, stopped.Load())
}

func TestPanicIsContained(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.Start(context.Background(), 1, func(context.Context) { panic("boom") }))
	s.Wait()
	assert.False(t, s.Running(1))
	require.NoError(t, s.Start(context.Background(), 1, func(context.Context) {}))
	s.Wait()
}

func TestShutdown(t *testing.T) {
	s := New(nil)
	started := make(chan struct{})
	var stopped atomic.Bool
	require.NoError(t, s.Start(context.Background(), 1, blockingTask(started, &stopped)))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	assert.True(t, stopped.Load())
	assert.ErrorIs(t, s.Start(context.Background(), 2, func(context.Context) {}), ErrClosed)
}

func TestShutdown_Timeout(t *testing.T) {
	s := New(nil)
	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, s.Start(context.Background(), 1, func(context.Context) {
		close(started)
		<-release
	}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Shutdown(ctx), context.DeadlineExceeded)

	close(release)
	s.Wait()
}

func TestRun(t *testing.T) {
	s := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	var stopped atomic.Bool
	require.NoError(t, s.Start(context.Background(), 1, blockingTask(started, &stopped)))
	<-started

	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx, time.Second) }()
	cancel()
	require.NoError(t, <-errc)
	assert.True(t, stopped.Load())
}
