package timers

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunAtFiresOnce(t *testing.T) {
	s := NewScheduler(time.UTC)
	defer s.Stop()

	fired := make(chan struct{}, 2)
	s.RunAt(time.Now().Add(10*time.Millisecond), func() { fired <- struct{}{} })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("RunAt action did not fire")
	}
	select {
	case <-fired:
		t.Fatal("RunAt action fired twice")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRunAtStoppedBeforeDue(t *testing.T) {
	s := NewScheduler(time.UTC)
	defer s.Stop()

	var count int32
	h := s.RunAt(time.Now().Add(50*time.Millisecond), func() { atomic.AddInt32(&count, 1) })
	h.Stop()
	h.Stop()

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&count))
}

func TestRunEveryUntilStopped(t *testing.T) {
	s := NewScheduler(time.UTC)
	defer s.Stop()

	var count int32
	h := s.RunEvery(5*time.Millisecond, func() { atomic.AddInt32(&count, 1) })
	time.Sleep(60 * time.Millisecond)
	h.Stop()
	time.Sleep(10 * time.Millisecond)
	seen := atomic.LoadInt32(&count)
	assert.Greater(t, seen, int32(1))

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, seen, atomic.LoadInt32(&count))
}

func TestSchedulerStopDisposesEverything(t *testing.T) {
	s := NewScheduler(time.UTC)

	var count int32
	s.RunEvery(5*time.Millisecond, func() { atomic.AddInt32(&count, 1) })
	s.RunAt(time.Now().Add(20*time.Millisecond), func() { atomic.AddInt32(&count, 100) })
	_, err := s.ScheduleRecurring("* * * * *", func() {})
	require.NoError(t, err)

	s.Stop()
	time.Sleep(10 * time.Millisecond)
	seen := atomic.LoadInt32(&count)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, seen, atomic.LoadInt32(&count))

	select {
	case <-s.Done():
	default:
		t.Fatal("Done not closed after Stop")
	}

	late := s.RunAt(time.Now(), func() { atomic.AddInt32(&count, 1000) })
	late.Stop()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, seen, atomic.LoadInt32(&count))
}

func TestScheduleRecurringRejectsBadSpec(t *testing.T) {
	s := NewScheduler(time.UTC)
	defer s.Stop()

	_, err := s.ScheduleRecurring("not a cron", func() {})
	assert.Error(t, err)
}

func TestNextRunHonoursLocation(t *testing.T) {
	oslo := time.FixedZone("CET", 3600)
	now := time.Date(2025, 3, 14, 22, 30, 0, 0, time.UTC) // 23:30 local

	next, err := NextRun("0 0 * * *", now, oslo)
	require.NoError(t, err)
	assert.True(t, time.Date(2025, 3, 15, 0, 0, 0, 0, oslo).Equal(next), "got %v", next)

	next, err = NextRun("0 0 1 * *", now, oslo)
	require.NoError(t, err)
	assert.True(t, time.Date(2025, 4, 1, 0, 0, 0, 0, oslo).Equal(next), "got %v", next)

	next, err = NextRun("0 0 1 1 *", now, oslo)
	require.NoError(t, err)
	assert.True(t, time.Date(2026, 1, 1, 0, 0, 0, 0, oslo).Equal(next), "got %v", next)
}
