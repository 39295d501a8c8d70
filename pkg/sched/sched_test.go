package sched

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDelayedQueueOrdersByDueTime(t *testing.T) {
	t.Parallel()
	base := time.Now()
	var q DelayedQueue
	var got []int
	push := func(n int, d time.Duration) {
		q.Push(base.Add(d), TaskFunc(func() { got = append(got, n) }))
	}
	push(3, 30*time.Millisecond)
	push(1, 10*time.Millisecond)
	push(4, 40*time.Millisecond)
	push(2, 20*time.Millisecond)

	first, ok := q.Peek()
	require.True(t, ok)
	assert.Equal(t, base.Add(10*time.Millisecond), first.Due)
	require.Equal(t, 4, q.Len())

	for q.Len() > 0 {
		dt, ok := q.Pop()
		require.True(t, ok)
		dt.Task.Run()
	}
	assert.Equal(t, []int{1, 2, 3, 4}, got)

	_, ok = q.Pop()
	assert.False(t, ok)
}

func TestDelayedQueueNanosecondPrecision(t *testing.T) {
	t.Parallel()
	base := time.Now()
	var q DelayedQueue
	q.Push(base.Add(2), TaskFunc(func() {}))
	q.Push(base.Add(1), TaskFunc(func() {}))

	dt, _ := q.Pop()
	assert.Equal(t, base.Add(1), dt.Due)
}

func TestDelayedQueueTieBreakIsInsertionOrder(t *testing.T) {
	t.Parallel()
	due := time.Now()
	var q DelayedQueue
	var got []int
	for i := 0; i < 16; i++ {
		n := i
		q.Push(due, TaskFunc(func() { got = append(got, n) }))
	}
	for q.Len() > 0 {
		dt, _ := q.Pop()
		dt.Task.Run()
	}
	want := make([]int, 16)
	for i := range want {
		want[i] = i
	}
	assert.Equal(t, want, got)
}

func TestDelayedQueueReset(t *testing.T) {
	t.Parallel()
	var q DelayedQueue
	q.Push(time.Now(), TaskFunc(func() {}))
	q.Push(time.Now(), TaskFunc(func() {}))
	assert.Equal(t, 2, q.Reset())
	assert.Equal(t, 0, q.Len())
	_, ok := q.Peek()
	assert.False(t, ok)
}

func TestDueAtClampsNegative(t *testing.T) {
	t.Parallel()
	now := time.Now()
	assert.Equal(t, now, DueAt(now, -time.Second))
	assert.Equal(t, now.Add(time.Second), DueAt(now, time.Second))
}

func TestRecoverHandsPanicToHandler(t *testing.T) {
	t.Parallel()
	var got *PanicError
	task := Recover(TaskFunc(func() { panic("boom") }), func(p *PanicError) { got = p })

	require.NotPanics(t, task.Run)
	require.NotNil(t, got)
	assert.Equal(t, "boom", got.Value)
	assert.Contains(t, got.Error(), "boom")
	assert.NotEmpty(t, got.Stack)
}

func TestFatalErrorWrapsSentinel(t *testing.T) {
	t.Parallel()
	err := FatalError("s1", ErrAlreadyStopped)
	assert.ErrorIs(t, err, ErrAlreadyStopped)
	assert.Equal(t, "s1: scheduler can only be stopped once", err.Error())
}
