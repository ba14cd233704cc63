package watch

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// IdleScheduler defers work that is not latency-sensitive. Implementations
// must guarantee eventual execution within roughly the timeout budget, but
// give no ordering guarantee relative to reconciliation passes.
type IdleScheduler interface {
	ScheduleIdle(fn func(), timeout time.Duration)
}

// idleTask runs at most once, from whichever side gets there first.
type idleTask struct {
	fn   func()
	done atomic.Bool
}

func (t *idleTask) run() {
	if t.done.CompareAndSwap(false, true) {
		t.fn()
	}
}

// DefaultIdle drains tasks on a single low-priority background goroutine
// that yields between tasks; a deadline timer forces execution if the drain
// goroutine has not reached a task within its timeout budget.
type DefaultIdle struct {
	mu      sync.Mutex
	tasks   []*idleTask
	running bool
}

func (s *DefaultIdle) ScheduleIdle(fn func(), timeout time.Duration) {
	t := &idleTask{fn: fn}
	s.mu.Lock()
	s.tasks = append(s.tasks, t)
	if !s.running {
		s.running = true
		go s.drain()
	}
	s.mu.Unlock()
	if timeout > 0 {
		time.AfterFunc(timeout, t.run)
	}
}

func (s *DefaultIdle) drain() {
	for {
		s.mu.Lock()
		if len(s.tasks) == 0 {
			s.running = false
			s.mu.Unlock()
			return
		}
		t := s.tasks[0]
		s.tasks = s.tasks[1:]
		s.mu.Unlock()
		runtime.Gosched()
		t.run()
	}
}

// ImmediateIdle runs tasks inline. Used in tests where deferred removal
// would make assertions racy.
type ImmediateIdle struct{}

func (ImmediateIdle) ScheduleIdle(fn func(), _ time.Duration) { fn() }
