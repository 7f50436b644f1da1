package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func TestStart_RejectsBadSchedule(t *testing.T) {
	s := NewService(func(ctx context.Context) error { return nil }, time.Second, arbor.NewLogger())

	assert.Error(t, s.Start("not a schedule"))
	assert.Error(t, s.Start("* * * * * *"), "every second is below the minimum interval")
	assert.False(t, s.IsRunning())
}

func TestStartStop(t *testing.T) {
	s := NewService(func(ctx context.Context) error { return nil }, time.Second, arbor.NewLogger())

	require.NoError(t, s.Start(""))
	assert.True(t, s.IsRunning())
	assert.Error(t, s.Start(DefaultSchedule), "second start must fail")

	st := s.Status()
	assert.True(t, st.Enabled)
	assert.Equal(t, DefaultSchedule, st.Schedule)
	require.NotNil(t, st.NextRun)
	assert.True(t, st.NextRun.After(time.Now()))

	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
	require.NoError(t, s.Stop())
}

func TestRunNow(t *testing.T) {
	var calls int32
	done := make(chan struct{}, 2)
	s := NewService(func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		done <- struct{}{}
		return errors.New("backend down")
	}, time.Second, arbor.NewLogger())

	s.RunNow()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("refresh did not run")
	}

	require.Eventually(t, func() bool {
		return s.Status().Runs == 1
	}, 2*time.Second, 10*time.Millisecond)

	st := s.Status()
	assert.Equal(t, "backend down", st.LastError)
	assert.NotNil(t, st.LastRun)
	assert.False(t, st.IsRunning)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestRunScheduled_SkipsOverlap(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 2)
	var calls int32

	svc := NewService(func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		started <- struct{}{}
		<-release
		return nil
	}, time.Second, arbor.NewLogger()).(*Service)

	go svc.runScheduled()
	<-started

	// a second run while the first is blocked returns immediately
	svc.runScheduled()
	close(release)

	require.Eventually(t, func() bool {
		return svc.Status().Runs == 1 && !svc.Status().IsRunning
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
