package app

import (
	"fmt"
	"time"

	"taskloop/internal/config"
	"taskloop/pkg/logx"
	"taskloop/pkg/sched"
	"taskloop/pkg/sched/async"
	"taskloop/pkg/sched/recurring"
)

// finish ends a countdown. A signal may stop the engine while the last tick
// runs, so engines that offer TryStop are stopped without the fatal
// double-stop check.
func finish(s sched.Scheduler, log logx.Logger) func() {
	ts, ok := s.(interface{ TryStop() bool })
	if !ok {
		return s.Stop
	}
	return func() {
		if !ts.TryStop() {
			log.Debug("countdown finished after shutdown began")
		}
	}
}

// seed submits the first task of jc to s.
func seed(s sched.Scheduler, jc config.JobConfig, log logx.Logger) error {
	path := fmt.Sprintf("job %s", jc.Name)
	switch jc.Kind {
	case config.JobCountdown:
		every, err := config.ParseDuration(path+".every", jc.Every)
		if err != nil {
			return err
		}
		s.Schedule(recurring.CountdownThen(s, jc.Count, every, func(n int) {
			log.Info("countdown tick", logx.Int("n", n))
		}, finish(s, log)))

	case config.JobCron:
		schedule, err := recurring.ParseCron(jc.Spec)
		if err != nil {
			return fmt.Errorf("%s.spec: %w", path, err)
		}
		s.Schedule(recurring.Cron(s, schedule, firing(jc.Limit, log)))

	case config.JobInterval:
		every, err := config.ParsePositiveDuration(path+".every", jc.Every)
		if err != nil {
			return err
		}
		if jc.Spread {
			schedule, jitter := recurring.Spread(every, time.Now(), s.Name()+"/"+jc.Name)
			log.Debug("interval start spread", logx.Duration("jitter", jitter))
			s.Schedule(recurring.Cron(s, schedule, firing(jc.Limit, log)))
			return nil
		}
		if a, ok := s.(*async.Scheduler); ok {
			a.Spawn(sleeper(every, firing(jc.Limit, log)))
			return nil
		}
		s.Schedule(recurring.Cron(s, recurring.Interval(every), firing(jc.Limit, log)))

	default:
		return fmt.Errorf("%s.kind: unknown kind %q", path, jc.Kind)
	}
	return nil
}

// firing logs each firing and reports whether the job should continue.
// It is only ever called from its scheduler's loop.
func firing(limit int, log logx.Logger) func(at time.Time) bool {
	fired := 0
	return func(at time.Time) bool {
		fired++
		log.Info("job fired", logx.Time("at", at), logx.Int("n", fired))
		return limit == 0 || fired < limit
	}
}

// sleeper runs an interval job as an async coroutine.
func sleeper(every time.Duration, fire func(at time.Time) bool) func(co *async.Co) {
	return func(co *async.Co) {
		next := time.Now()
		for {
			// Missed slots are skipped rather than replayed.
			if now := time.Now(); next.Before(now) {
				next = now
			}
			next = next.Add(every)
			if err := co.SleepUntil(next); err != nil {
				return
			}
			if !fire(next) {
				return
			}
		}
	}
}
