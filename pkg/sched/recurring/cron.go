package recurring

import (
	"time"

	"github.com/robfig/cron/v3"

	"taskloop/pkg/sched"
)

var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseCron parses a 5 or 6 field cron spec ("*/5 * * * * *" has seconds)
// or a descriptor such as "@hourly" or "@every 1m".
func ParseCron(spec string) (cron.Schedule, error) {
	return cronParser.Parse(spec)
}

// Cron returns a task that arms schedule on s. Each firing calls fn with the
// planned instant; while fn returns true the next firing is armed with
// ScheduleAbsolute. A zero Next (no future match) ends the recurrence.
func Cron(s sched.Scheduler, schedule cron.Schedule, fn func(at time.Time) bool) sched.Task {
	return sched.TaskFunc(func() { arm(s, schedule, time.Now(), fn) })
}

func arm(s sched.Scheduler, schedule cron.Schedule, from time.Time, fn func(at time.Time) bool) {
	next := schedule.Next(from)
	if next.IsZero() {
		return
	}
	s.ScheduleAbsolute(next, sched.TaskFunc(func() {
		if !fn(next) {
			return
		}
		// Computed from the later of the planned instant and now, so a late
		// firing skips missed slots instead of bursting through them.
		from := time.Now()
		if from.Before(next) {
			from = next
		}
		arm(s, schedule, from, fn)
	}))
}
