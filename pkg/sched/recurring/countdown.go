package recurring

import (
	"time"

	"taskloop/pkg/sched"
)

// Countdown returns a task that calls onTick(n), then resubmits itself with
// n-1 after every until n reaches 0, at which point it stops s. Scheduled
// once it executes exactly n+1 times.
func Countdown(s sched.Scheduler, n int, every time.Duration, onTick func(n int)) sched.Task {
	return CountdownThen(s, n, every, onTick, s.Stop)
}

// CountdownThen is Countdown ending with done instead of s.Stop.
func CountdownThen(s sched.Scheduler, n int, every time.Duration, onTick func(n int), done func()) sched.Task {
	return sched.TaskFunc(func() {
		if onTick != nil {
			onTick(n)
		}
		if n > 0 {
			s.ScheduleRelative(every, CountdownThen(s, n-1, every, onTick, done))
			return
		}
		done()
	})
}
