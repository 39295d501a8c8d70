package recurring

import (
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"taskloop/pkg/sched"
)

// Retry returns a task that calls fn and, on error, resubmits itself after
// the next interval from b. Retries end on success, on a backoff.Permanent
// error or when b returns backoff.Stop; done then receives the final result
// (nil on success, the unwrapped error of a permanent failure).
func Retry(s sched.Scheduler, b backoff.BackOff, fn func() error, done func(error)) sched.Task {
	return RetryNotify(s, b, fn, nil, done)
}

// RetryNotify is Retry with notify called before every retry with the
// failure and the wait until the next attempt.
func RetryNotify(s sched.Scheduler, b backoff.BackOff, fn func() error, notify backoff.Notify, done func(error)) sched.Task {
	return sched.TaskFunc(func() {
		b.Reset()
		attempt(s, b, fn, notify, done)
	})
}

func attempt(s sched.Scheduler, b backoff.BackOff, fn func() error, notify backoff.Notify, done func(error)) {
	err := fn()
	if err == nil {
		finish(done, nil)
		return
	}

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		finish(done, permanent.Err)
		return
	}

	wait := b.NextBackOff()
	if wait == backoff.Stop {
		finish(done, err)
		return
	}
	if notify != nil {
		notify(err, wait)
	}
	s.ScheduleRelative(wait, sched.TaskFunc(func() { attempt(s, b, fn, notify, done) }))
}

func finish(done func(error), err error) {
	if done != nil {
		done(err)
	}
}

// Constant is a fixed-interval policy capped at retries retries.
func Constant(interval time.Duration, retries uint64) backoff.BackOff {
	return backoff.WithMaxRetries(backoff.NewConstantBackOff(interval), retries)
}

// Exponential is an exponential policy tuned for in-process retries: no
// randomization, doubling from initial up to maxInterval, giving up after
// maxElapsed (0 means never).
func Exponential(initial, maxInterval, maxElapsed time.Duration) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = initial
	eb.RandomizationFactor = 0
	eb.Multiplier = 2
	eb.MaxInterval = maxInterval
	eb.MaxElapsedTime = maxElapsed
	return eb
}
