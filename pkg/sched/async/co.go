package async

import (
	"runtime/debug"
	"time"

	"taskloop/pkg/logx"
	"taskloop/pkg/sched"
)

// Co is the handle of a logical task started with Spawn.
//
// The logical task runs on its own goroutine but only while it holds the
// host baton, so at most one task or coroutine of a Scheduler executes at
// any instant. Sleep, SleepUntil and Yield are its suspension points: they
// hand the baton back to the host so other work can interleave.
//
// A Co must only be used from inside the function it was handed to.
type Co struct {
	s      *Scheduler
	id     uint64
	resume chan error
	yield  chan yieldMsg
}

type yieldMsg struct {
	until    time.Time
	done     bool
	panicked any
	stack    string
}

func (c *Co) ID() uint64 { return c.id }

// Scheduler returns the hosting scheduler.
func (c *Co) Scheduler() *Scheduler { return c.s }

// Sleep suspends the logical task for d. It returns sched.ErrStopped when the
// host is shutting down instead of waking normally.
func (c *Co) Sleep(d time.Duration) error {
	return c.SleepUntil(sched.DueAt(time.Now(), d))
}

// SleepUntil suspends the logical task until at.
func (c *Co) SleepUntil(at time.Time) error {
	if c.s.closing {
		return sched.ErrStopped
	}
	c.yield <- yieldMsg{until: at}
	return <-c.resume
}

// Yield lets every runnable queued on the host go first.
func (c *Co) Yield() error {
	return c.SleepUntil(time.Time{})
}

func (c *Co) main(fn func(*Co)) {
	if err := <-c.resume; err != nil {
		// Host exited before the first step.
		c.yield <- yieldMsg{done: true}
		return
	}
	defer func() {
		msg := yieldMsg{done: true}
		if r := recover(); r != nil {
			msg.panicked = r
			msg.stack = string(debug.Stack())
		}
		c.yield <- msg
	}()
	fn(c)
}

func (s *Scheduler) spawn(fn func(*Co)) {
	s.coSeq++
	c := &Co{s: s, id: s.coSeq, resume: make(chan error), yield: make(chan yieldMsg)}
	s.cos[c] = struct{}{}
	go c.main(fn)
	s.runq.Add(func() { s.step(c) })
}

// step passes the baton to c and blocks until c suspends or returns.
func (s *Scheduler) step(c *Co) {
	c.resume <- nil
	msg := <-c.yield
	if !msg.done {
		if msg.until.IsZero() {
			// Yield
			s.runq.Add(func() { s.step(c) })
			return
		}
		s.after(msg.until, func() { s.step(c) })
		return
	}
	delete(s.cos, c)
	if msg.panicked != nil {
		s.log.Error("coroutine panicked", logx.Uint64("co", c.id), logx.Any("panic", msg.panicked), logx.Stack(msg.stack))
		panic(msg.panicked)
	}
}

// unwind resumes every live coroutine with sched.ErrStopped and waits for it
// to return. Once closing is set a coroutine can no longer suspend, so the
// next message from it is always its final one.
func (s *Scheduler) unwind() (p any) {
	s.closing = true
	for c := range s.cos {
		c.resume <- sched.ErrStopped
		msg := <-c.yield
		delete(s.cos, c)
		if msg.panicked != nil {
			s.log.Error("coroutine panicked while unwinding", logx.Uint64("co", c.id), logx.Any("panic", msg.panicked), logx.Stack(msg.stack))
			if p == nil {
				p = msg.panicked
			}
		}
	}
	return p
}
