package timers

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Handle cancels a scheduled action. Stop is safe to call more than once.
type Handle interface {
	Stop()
}

// Scheduler runs actions once, at a fixed interval, or on a cron schedule.
// All handles are owned by the scheduler and are disposed together by Stop.
type Scheduler struct {
	mu       sync.Mutex
	cron     *cron.Cron
	handles  map[*handle]struct{}
	done     chan struct{}
	stopped  bool
	stopOnce sync.Once
}

type handle struct {
	once sync.Once
	stop func()
	s    *Scheduler
}

func (h *handle) Stop() {
	h.once.Do(func() {
		h.stop()
		h.s.forget(h)
	})
}

func NewScheduler(loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	c := cron.New(cron.WithLocation(loc))
	c.Start()
	return &Scheduler{
		cron:    c,
		handles: make(map[*handle]struct{}),
		done:    make(chan struct{}),
	}
}

func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

// RunAt runs fn once at t. A time in the past runs fn immediately.
func (s *Scheduler) RunAt(t time.Time, fn func()) Handle {
	var mu sync.Mutex
	var timer *time.Timer
	h, live := s.track(func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
	})
	if !live {
		return h
	}

	mu.Lock()
	timer = time.AfterFunc(time.Until(t), func() {
		fn()
		s.forget(h)
	})
	mu.Unlock()
	return h
}

func (s *Scheduler) RunEvery(interval time.Duration, fn func()) Handle {
	if s.isStopped() {
		return &handle{s: s, stop: func() {}}
	}
	ticker := time.NewTicker(interval)
	quit := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				fn()
			case <-quit:
				return
			}
		}
	}()
	h, _ := s.track(func() {
		ticker.Stop()
		close(quit)
	})
	return h
}

// ScheduleRecurring runs fn on a standard five field cron spec, evaluated in
// the scheduler's location.
func (s *Scheduler) ScheduleRecurring(spec string, fn func()) (Handle, error) {
	id, err := s.cron.AddFunc(spec, fn)
	if err != nil {
		return nil, fmt.Errorf("timers: invalid cron spec %q: %w", spec, err)
	}
	h, _ := s.track(func() { s.cron.Remove(id) })
	return h, nil
}

func NextRun(spec string, t time.Time, loc *time.Location) (time.Time, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return time.Time{}, fmt.Errorf("timers: invalid cron spec %q: %w", spec, err)
	}
	return schedule.Next(t.In(loc)), nil
}

// Stop cancels every outstanding handle. Pending one-shot actions are
// abandoned.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		handles := make([]*handle, 0, len(s.handles))
		for h := range s.handles {
			handles = append(handles, h)
		}
		s.mu.Unlock()

		for _, h := range handles {
			h.Stop()
		}
		<-s.cron.Stop().Done()
		close(s.done)
	})
}

// track registers a stop func. When the scheduler is already stopped the
// stop func runs immediately and live is false.
func (s *Scheduler) track(stop func()) (h *handle, live bool) {
	h = &handle{stop: stop, s: s}
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		h.once.Do(stop)
		return h, false
	}
	s.handles[h] = struct{}{}
	s.mu.Unlock()
	return h, true
}

func (s *Scheduler) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *Scheduler) forget(h *handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handles, h)
}
