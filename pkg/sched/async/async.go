package async

import (
	"runtime/debug"
	"sync/atomic"
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

// WithLateThreshold sets how long after its due instant a sleeping task may
// wake before a (throttled) warning is logged. 0 disables the warning.
func WithLateThreshold(d time.Duration) Option {
	return func(s *Scheduler) { s.lateThreshold = d }
}

// Scheduler hosts a cooperative executor on the goroutine that calls
// StartLoop. Producers talk to it only through the mailbox; everything below
// the host-owned marker is touched by the host goroutine alone (or by a
// coroutine while it holds the host baton).
type Scheduler struct {
	name          string
	log           logx.Logger
	late          logx.Logger
	lateThreshold time.Duration

	mb      *mailbox
	stopped atomic.Bool
	running atomic.Bool
	exited  atomic.Bool
	done    chan struct{}
	stats   stats

	// host-owned
	runq     *queue.Queue
	sleepers sched.DelayedQueue
	timer    *time.Timer
	cos      map[*Co]struct{}
	coSeq    uint64
	closing  bool
}

type stats struct {
	runnable  atomic.Int64
	sleeping  atomic.Int64
	suspended atomic.Int64
	executed  atomic.Uint64
}

var _ sched.Loop = (*Scheduler)(nil)

// New returns an idle scheduler. Commands queue up in the mailbox until
// StartLoop is called.
func New(name string, opts ...Option) *Scheduler {
	s := &Scheduler{
		name:          name,
		lateThreshold: defaultLateThreshold,
		mb:            newMailbox(),
		done:          make(chan struct{}),
		runq:          queue.New(),
		cos:           map[*Co]struct{}{},
	}
	for _, o := range opts {
		o(s)
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	s.log = s.log.With(logx.String("sched", name), logx.String("sched_id", uuid.NewString()[:8]), logx.String("engine", "async"))
	s.late = s.log.Throttled(lateWarnThrottle, 1)
	return s
}

// Run creates a scheduler, schedules the task built by newTask and hosts the
// executor on the calling goroutine until Stop is observed.
func Run(name string, newTask func(s sched.Scheduler) sched.Task, opts ...Option) {
	s := New(name, opts...)
	s.Run(newTask(s))
}

// Run schedules t and hosts the executor on the calling goroutine.
func (s *Scheduler) Run(t sched.Task) {
	s.Schedule(t)
	s.StartLoop()
}

func (s *Scheduler) Name() string { return s.name }

// Done is closed once the host loop has exited.
func (s *Scheduler) Done() <-chan struct{} { return s.done }

func (s *Scheduler) Schedule(t sched.Task) {
	if t == nil {
		return
	}
	s.submit(command{kind: cmdRun, task: t})
}

// ScheduleAbsolute sends a deferred action that sleeps until at without
// holding the host, then runs t on it.
func (s *Scheduler) ScheduleAbsolute(at time.Time, t sched.Task) {
	if t == nil {
		return
	}
	s.submit(command{kind: cmdRunAt, task: t, at: at})
}

func (s *Scheduler) ScheduleRelative(d time.Duration, t sched.Task) {
	s.ScheduleAbsolute(sched.DueAt(time.Now(), d), t)
}

// Spawn starts fn as a logical task with explicit suspension points. See Co.
func (s *Scheduler) Spawn(fn func(co *Co)) {
	if fn == nil {
		return
	}
	s.submit(command{kind: cmdSpawn, spawn: fn})
}

func (s *Scheduler) submit(c command) {
	if s.mb.send(c) {
		return
	}
	err := sched.FatalError(s.name, sched.ErrUnavailable)
	s.log.Error("submit after host exit", logx.String("op", c.kind.String()), logx.Err(err))
	panic(err)
}

// Stop sends the stop command. Calling Stop twice is fatal.
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
	if !s.stopped.CompareAndSwap(false, true) {
		return false
	}
	s.mb.send(command{kind: cmdStop})
	s.log.Debug("stop requested")
	return true
}

// StartLoop hosts the executor on the calling goroutine until the stop
// command is received. A panic in a task or coroutine terminates the host
// and propagates.
func (s *Scheduler) StartLoop() {
	if s.exited.Load() {
		return
	}
	if !s.running.CompareAndSwap(false, true) {
		panic(sched.FatalError(s.name, sched.ErrLoopRunning))
	}
	if s.exited.Load() {
		s.running.Store(false)
		return
	}

	s.log.Debug("host started")
	defer func() {
		r := recover()
		if p := s.exit(); r == nil {
			r = p
		}
		if r != nil {
			s.log.Error("task panicked; host terminated", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			panic(r)
		}
	}()

	for {
		for {
			c, ok := s.mb.tryRecv()
			if !ok {
				break
			}
			if !s.handle(c) {
				return
			}
		}
		s.promote()
		if s.runq.Length() > 0 {
			run := s.runq.Remove().(func())
			s.stats.executed.Add(1)
			s.publish()
			run()
			continue
		}
		s.arm()
		s.publish()
		if !s.handle(s.mb.recv()) {
			return
		}
	}
}

// handle applies one command. It returns false on stop.
func (s *Scheduler) handle(c command) bool {
	switch c.kind {
	case cmdRun:
		s.runq.Add(c.task.Run)
	case cmdRunAt:
		s.after(c.at, c.task.Run)
	case cmdSpawn:
		s.spawn(c.spawn)
	case cmdWake:
		// promote runs before the next step
	case cmdStop:
		s.log.Debug("stop received")
		return false
	}
	return true
}

// after makes run runnable once at has passed. Sleepers wait in a due-time
// heap behind a single runtime timer that posts a wake command, so the host
// stays free and elapsed sleepers run in due order.
func (s *Scheduler) after(at time.Time, run func()) {
	s.sleepers.Push(at, sched.TaskFunc(run))
}

// promote moves every elapsed sleeper onto the run queue, earliest first.
func (s *Scheduler) promote() {
	now := time.Now()
	for {
		d, ok := s.sleepers.Peek()
		if !ok || d.Due.After(now) {
			return
		}
		s.sleepers.Pop()
		if lag := now.Sub(d.Due); s.lateThreshold > 0 && lag > s.lateThreshold {
			s.late.Warn("sleeping task woke late", logx.Duration("lag", lag), logx.Time("due", d.Due))
		}
		s.runq.Add(d.Task.Run)
	}
}

// arm points the timer at the earliest sleeper. A wake that arrives for an
// instant already promoted is harmless.
func (s *Scheduler) arm() {
	d, ok := s.sleepers.Peek()
	if !ok {
		if s.timer != nil {
			s.timer.Stop()
		}
		return
	}
	wait := time.Until(d.Due)
	if s.timer == nil {
		// After the host exits the mailbox is closed; the wake is moot.
		s.timer = time.AfterFunc(wait, func() { s.mb.send(command{kind: cmdWake}) })
		return
	}
	s.timer.Reset(wait)
}

// exit tears the host down: pending commands, runnables and sleepers are
// dropped, suspended coroutines are resumed with sched.ErrStopped and
// awaited. It returns the first panic raised by a coroutine while unwinding.
func (s *Scheduler) exit() any {
	s.stopped.Store(true)
	dropped := s.mb.close()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.sleepers.Reset()
	runnable := s.runq.Length()
	s.runq = queue.New()
	cos := len(s.cos)
	p := s.unwind()

	s.exited.Store(true)
	s.running.Store(false)
	s.publish()
	close(s.done)

	s.log.Debug("host exited",
		logx.Uint64("executed", s.stats.executed.Load()),
		logx.Int("dropped_commands", dropped),
		logx.Int("dropped_runnable", runnable),
		logx.Int("unwound_coroutines", cos),
	)
	return p
}

func (s *Scheduler) publish() {
	s.stats.runnable.Store(int64(s.runq.Length()))
	s.stats.sleeping.Store(int64(s.sleepers.Len()))
	s.stats.suspended.Store(int64(len(s.cos)))
}
