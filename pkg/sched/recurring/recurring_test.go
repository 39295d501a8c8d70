package recurring_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"taskloop/pkg/sched"
	"taskloop/pkg/sched/async"
	"taskloop/pkg/sched/eventloop"
	schedmock "taskloop/pkg/sched/mock"
	"taskloop/pkg/sched/recurring"
)

// captured collects continuations handed to a mocked scheduler so the test
// can run them one by one.
type captured struct {
	tasks []sched.Task
}

func (c *captured) push(_ any, t sched.Task) { c.tasks = append(c.tasks, t) }

func (c *captured) pop(t *testing.T) sched.Task {
	t.Helper()
	require.NotEmpty(t, c.tasks)
	next := c.tasks[0]
	c.tasks = c.tasks[1:]
	return next
}

func TestCountdown_ResubmitsThenStops(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := schedmock.NewScheduler(ctrl)
	var c captured
	gomock.InOrder(
		s.EXPECT().ScheduleRelative(10*time.Millisecond, gomock.Any()).Do(func(d time.Duration, task sched.Task) { c.push(d, task) }),
		s.EXPECT().ScheduleRelative(10*time.Millisecond, gomock.Any()).Do(func(d time.Duration, task sched.Task) { c.push(d, task) }),
		s.EXPECT().Stop(),
	)

	var ticks []int
	recurring.Countdown(s, 2, 10*time.Millisecond, func(n int) { ticks = append(ticks, n) }).Run()
	c.pop(t).Run()
	c.pop(t).Run()

	assert.Equal(t, []int{2, 1, 0}, ticks)
	assert.Empty(t, c.tasks)
}

func TestCountdownThen_EndsWithDone(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := schedmock.NewScheduler(ctrl)
	var c captured
	s.EXPECT().ScheduleRelative(time.Millisecond, gomock.Any()).Do(func(d time.Duration, task sched.Task) { c.push(d, task) })

	done := 0
	recurring.CountdownThen(s, 1, time.Millisecond, nil, func() { done++ }).Run()
	assert.Zero(t, done)
	c.pop(t).Run()
	assert.Equal(t, 1, done)
}

func TestCountdown_OnEngines(t *testing.T) {
	engines := map[string]func() sched.Loop{
		"eventloop": func() sched.Loop { return eventloop.New("countdown") },
		"async":     func() sched.Loop { return async.New("countdown") },
	}
	for name, newLoop := range engines {
		newLoop := newLoop
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			s := newLoop()
			var ticks []int
			s.Schedule(recurring.Countdown(s, 3, time.Millisecond, func(n int) { ticks = append(ticks, n) }))
			s.StartLoop()

			assert.Equal(t, []int{3, 2, 1, 0}, ticks)
			select {
			case <-s.Done():
			default:
				t.Fatal("loop not terminated")
			}
		})
	}
}

func TestParseCron(t *testing.T) {
	for _, spec := range []string{"*/5 * * * * *", "0 * * * *", "@every 1m", "@hourly"} {
		_, err := recurring.ParseCron(spec)
		assert.NoError(t, err, spec)
	}
	_, err := recurring.ParseCron("not a cron spec")
	assert.Error(t, err)

	sch, err := recurring.ParseCron("0 0 * * * *")
	require.NoError(t, err)
	from := time.Date(2024, 1, 1, 10, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC), sch.Next(from))
}

// once fires a single time at a fixed instant.
type once time.Time

func (o once) Next(t time.Time) time.Time {
	if at := time.Time(o); t.Before(at) {
		return at
	}
	return time.Time{}
}

func TestCron_ArmsAtNextInstant(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := schedmock.NewScheduler(ctrl)
	at := time.Now().Add(time.Hour)
	var c captured
	s.EXPECT().ScheduleAbsolute(at, gomock.Any()).Do(func(when time.Time, task sched.Task) { c.push(when, task) })

	var fired []time.Time
	recurring.Cron(s, once(at), func(when time.Time) bool {
		fired = append(fired, when)
		return true
	}).Run()
	// Firing re-arms from the planned instant; once has no later match.
	c.pop(t).Run()

	assert.Equal(t, []time.Time{at}, fired)
}

func TestCron_NoMatchNeverSubmits(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := schedmock.NewScheduler(ctrl)

	recurring.Cron(s, once(time.Now().Add(-time.Hour)), func(time.Time) bool {
		t.Fatal("must not fire")
		return false
	}).Run()
}

func TestCron_OnEventLoop(t *testing.T) {
	t.Parallel()
	s := eventloop.New("cron")
	var fired []time.Time
	s.Schedule(recurring.Cron(s, recurring.Interval(5*time.Millisecond), func(at time.Time) bool {
		fired = append(fired, at)
		if len(fired) == 3 {
			s.Stop()
			return false
		}
		return true
	}))
	s.StartLoop()

	require.Len(t, fired, 3)
	for i := 1; i < len(fired); i++ {
		assert.GreaterOrEqual(t, fired[i].Sub(fired[i-1]), 5*time.Millisecond)
	}
}

func TestSpread(t *testing.T) {
	now := time.Now()
	sch, jitter := recurring.Spread(time.Minute, now, "job")
	assert.GreaterOrEqual(t, jitter, time.Duration(0))
	assert.Less(t, jitter, 30*time.Second)

	first := sch.Next(now)
	assert.Equal(t, now.Add(time.Minute+jitter), first)
	assert.Equal(t, first.Add(time.Minute), sch.Next(first))

	base, jitter := recurring.Spread(0, now, "off")
	assert.Zero(t, jitter)
	assert.True(t, base.Next(now).IsZero())
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := schedmock.NewScheduler(ctrl)
	var c captured
	s.EXPECT().ScheduleRelative(5*time.Millisecond, gomock.Any()).Times(2).Do(func(d time.Duration, task sched.Task) { c.push(d, task) })

	calls := 0
	var result error
	finished := false
	recurring.Retry(s, recurring.Constant(5*time.Millisecond, 5), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, func(err error) {
		finished = true
		result = err
	}).Run()
	c.pop(t).Run()
	c.pop(t).Run()

	assert.Equal(t, 3, calls)
	assert.True(t, finished)
	assert.NoError(t, result)
}

func TestRetry_PermanentErrorEndsImmediately(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := schedmock.NewScheduler(ctrl)
	errFatal := errors.New("fatal")

	var result error
	recurring.Retry(s, recurring.Constant(time.Millisecond, 5), func() error {
		return backoff.Permanent(errFatal)
	}, func(err error) { result = err }).Run()

	assert.Same(t, errFatal, result)
}

func TestRetry_GivesUpWhenBackOffStops(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := schedmock.NewScheduler(ctrl)
	var c captured
	s.EXPECT().ScheduleRelative(time.Millisecond, gomock.Any()).Times(2).Do(func(d time.Duration, task sched.Task) { c.push(d, task) })

	errTransient := errors.New("transient")
	var waits []time.Duration
	var result error
	recurring.RetryNotify(s, recurring.Constant(time.Millisecond, 2),
		func() error { return errTransient },
		func(_ error, wait time.Duration) { waits = append(waits, wait) },
		func(err error) { result = err },
	).Run()
	c.pop(t).Run()
	c.pop(t).Run()

	assert.ErrorIs(t, result, errTransient)
	assert.Equal(t, []time.Duration{time.Millisecond, time.Millisecond}, waits)
}

func TestRetry_OnAsync(t *testing.T) {
	t.Parallel()
	s := async.New("retry")
	var mu sync.Mutex
	calls := 0
	var result error
	s.Schedule(recurring.Retry(s, recurring.Exponential(time.Millisecond, 4*time.Millisecond, 0), func() error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls < 4 {
			return errors.New("not yet")
		}
		return nil
	}, func(err error) {
		result = err
		s.Stop()
	}))
	s.StartLoop()

	assert.NoError(t, result)
	assert.Equal(t, 4, calls)
}
