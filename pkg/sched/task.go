package sched

import (
	"fmt"
	"runtime/debug"
	"time"
)

// Task is a unit of work that is run exactly once by the engine holding it.
type Task interface {
	Run()
}

// TaskFunc adapts a plain function to Task.
type TaskFunc func()

func (f TaskFunc) Run() { f() }

//go:generate mockgen -destination mock/scheduler.go -package mock -mock_names Scheduler=Scheduler taskloop/pkg/sched Scheduler

// Scheduler is the capability set every engine implements.
//
// All methods are safe to call from any goroutine, including from a task
// currently running on the engine itself.
type Scheduler interface {
	Name() string

	// Schedule enqueues t to run as soon as the engine is next free.
	Schedule(t Task)

	// ScheduleAbsolute enqueues t to run at or after at. Instants in the
	// past make t eligible immediately.
	ScheduleAbsolute(at time.Time, t Task)

	// ScheduleRelative is ScheduleAbsolute(time.Now().Add(d), t).
	// Negative durations are treated as due now.
	ScheduleRelative(d time.Duration, t Task)

	// Stop asks the engine to halt between task executions. Pending tasks
	// are discarded.
	Stop()
}

// Loop is a Scheduler whose dispatch loop is driven by the caller.
type Loop interface {
	Scheduler

	// StartLoop runs the dispatch loop on the calling goroutine until Stop
	// is observed.
	StartLoop()

	// Done is closed once StartLoop has returned.
	Done() <-chan struct{}
}

// DueAt returns the absolute due time for a relative delay.
func DueAt(now time.Time, d time.Duration) time.Time {
	if d < 0 {
		d = 0
	}
	return now.Add(d)
}

// PanicError carries a value recovered from a panicking task.
type PanicError struct {
	Value any
	Stack string
}

func (e *PanicError) Error() string { return fmt.Sprintf("task panic: %v", e.Value) }

// Recover wraps t with a protective boundary: a panic inside t is recovered
// and handed to onPanic instead of terminating the engine.
//
// Engines never do this on their own.
func Recover(t Task, onPanic func(*PanicError)) Task {
	if t == nil {
		return nil
	}
	return TaskFunc(func() {
		defer func() {
			if r := recover(); r != nil {
				if onPanic != nil {
					onPanic(&PanicError{Value: r, Stack: string(debug.Stack())})
				}
			}
		}()
		t.Run()
	})
}
