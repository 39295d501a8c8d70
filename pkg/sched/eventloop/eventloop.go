package eventloop

import (
	"runtime/debug"
	"sync"
	"time"

	"github.com/eapache/queue"
	"github.com/google/uuid"

	"taskloop/pkg/logx"
	"taskloop/pkg/sched"
)

const (
	defaultLateThreshold = time.Second
	lateWarnThrottle     = 5 * time.Second
)

type Option func(*Scheduler)

func WithLogger(log logx.Logger) Option {
	return func(s *Scheduler) { s.log = log }
}

// WithLateThreshold sets how far past its due time a delayed task may be
// promoted before a (throttled) warning is logged. 0 disables the warning.
func WithLateThreshold(d time.Duration) Option {
	return func(s *Scheduler) { s.lateThreshold = d }
}

// Scheduler runs tasks one at a time on the goroutine that calls StartLoop.
//
// All state lives in one block guarded by mu. wake is the condition signal
// paired with mu: it is written (non-blocking, capacity 1) on every mutation
// that could unblock the loop, always while mu is held.
type Scheduler struct {
	name          string
	log           logx.Logger
	late          logx.Logger
	lateThreshold time.Duration

	mu       sync.Mutex
	wake     chan struct{}
	stopped  bool
	running  bool
	exited   bool
	ready    *queue.Queue
	delayed  sched.DelayedQueue
	executed uint64
	promoted uint64

	done chan struct{}
}

var _ sched.Loop = (*Scheduler)(nil)

// New returns an idle scheduler. Nothing runs until StartLoop is called.
func New(name string, opts ...Option) *Scheduler {
	s := &Scheduler{
		name:          name,
		lateThreshold: defaultLateThreshold,
		wake:          make(chan struct{}, 1),
		ready:         queue.New(),
		done:          make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	s.log = s.log.With(logx.String("sched", name), logx.String("sched_id", uuid.NewString()[:8]), logx.String("engine", "eventloop"))
	s.late = s.log.Throttled(lateWarnThrottle, 1)
	return s
}

// Run creates a scheduler, schedules the task built by newTask and drives the
// loop on the calling goroutine until Stop is observed. newTask receives the
// scheduler so the task can resubmit itself or stop the loop.
func Run(name string, newTask func(s sched.Scheduler) sched.Task, opts ...Option) {
	s := New(name, opts...)
	s.Run(newTask(s))
}

// Run schedules t and drives the loop on the calling goroutine until Stop
// is observed.
func (s *Scheduler) Run(t sched.Task) {
	s.Schedule(t)
	s.StartLoop()
}

func (s *Scheduler) Name() string { return s.name }

// Done is closed once the dispatch loop has exited.
func (s *Scheduler) Done() <-chan struct{} { return s.done }

func (s *Scheduler) Schedule(t sched.Task) {
	if t == nil {
		return
	}
	s.submit("schedule", func() { s.ready.Add(t) })
}

func (s *Scheduler) ScheduleAbsolute(at time.Time, t sched.Task) {
	if t == nil {
		return
	}
	s.submit("schedule_absolute", func() { s.delayed.Push(at, t) })
}

func (s *Scheduler) ScheduleRelative(d time.Duration, t sched.Task) {
	s.ScheduleAbsolute(sched.DueAt(time.Now(), d), t)
}

// submit applies mutate to the state block and signals the loop.
//
// Once the loop has exited, submitting is fatal. Between Stop and loop exit
// the work is dropped: the loop will never look at it.
func (s *Scheduler) submit(op string, mutate func()) {
	s.mu.Lock()
	if s.exited {
		s.mu.Unlock()
		err := sched.FatalError(s.name, sched.ErrUnavailable)
		s.log.Error("submit after loop exit", logx.String("op", op), logx.Err(err))
		panic(err)
	}
	if s.stopped {
		s.mu.Unlock()
		s.log.Debug("task dropped; scheduler stopping", logx.String("op", op))
		return
	}
	mutate()
	s.signalLocked()
	s.mu.Unlock()
}

// Stop requests the loop to halt after the current task. Pending tasks are
// discarded. Calling Stop twice is fatal.
func (s *Scheduler) Stop() {
	if !s.TryStop() {
		err := sched.FatalError(s.name, sched.ErrAlreadyStopped)
		s.log.Error("stop called on stopped scheduler", logx.Err(err))
		panic(err)
	}
}

// TryStop is Stop without the fatal double-stop check. It reports whether
// this call performed the stop.
func (s *Scheduler) TryStop() bool {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return false
	}
	s.stopped = true
	ready, delayed := s.discardLocked()
	s.signalLocked()
	s.mu.Unlock()

	s.log.Debug("stop requested", logx.Int("discarded_ready", ready), logx.Int("discarded_delayed", delayed))
	return true
}

func (s *Scheduler) discardLocked() (ready, delayed int) {
	ready = s.ready.Length()
	if ready > 0 {
		s.ready = queue.New()
	}
	return ready, s.delayed.Reset()
}

func (s *Scheduler) signalLocked() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// StartLoop runs the dispatch loop on the calling goroutine until Stop is
// observed. A panicking task terminates the loop and the panic propagates.
func (s *Scheduler) StartLoop() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		panic(sched.FatalError(s.name, sched.ErrLoopRunning))
	}
	if s.exited {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.log.Debug("loop started")

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
		r := recover()
		s.exit()
		if r != nil {
			s.log.Error("task panicked; loop terminated", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			panic(r)
		}
	}()

	for {
		t, wait, ok := s.next()
		if !ok {
			return
		}
		if t != nil {
			t.Run()
			continue
		}
		timer = s.idle(wait, timer)
	}
}

func (s *Scheduler) exit() {
	s.mu.Lock()
	s.stopped = true
	s.exited = true
	s.running = false
	executed := s.executed
	s.discardLocked()
	s.mu.Unlock()

	close(s.done)
	s.log.Debug("loop exited", logx.Uint64("executed", executed))
}

// next picks the next task to run. It returns ok=false once stopped.
// With no task ready it returns the time to wait (negative: no deadline).
func (s *Scheduler) next() (sched.Task, time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Drop stale signals: everything they announced is visible below.
	select {
	case <-s.wake:
	default:
	}

	for {
		if s.stopped {
			return nil, 0, false
		}
		if s.ready.Length() > 0 {
			s.executed++
			return s.ready.Remove().(sched.Task), 0, true
		}

		dt, ok := s.delayed.Peek()
		if !ok {
			return nil, -1, true
		}
		now := time.Now()
		if wait := dt.Due.Sub(now); wait > 0 {
			return nil, wait, true
		}

		s.delayed.Pop()
		s.promoted++
		s.ready.Add(dt.Task)
		if lag := now.Sub(dt.Due); s.lateThreshold > 0 && lag > s.lateThreshold {
			s.late.Warn("delayed task promoted late", logx.Duration("lag", lag), logx.Time("due", dt.Due))
		}
	}
}

// idle blocks until signaled or until wait elapses. It returns the timer
// for reuse on the next idle cycle.
func (s *Scheduler) idle(wait time.Duration, timer *time.Timer) *time.Timer {
	if wait < 0 {
		<-s.wake
		return timer
	}
	if timer == nil {
		timer = time.NewTimer(wait)
	} else {
		timer.Reset(wait)
	}
	select {
	case <-s.wake:
		timer.Stop()
	case <-timer.C:
	}
	return timer
}
