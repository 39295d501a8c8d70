package sched

import (
	"container/heap"
	"time"
)

// DelayedTask pairs a task with the instant it becomes eligible to run.
type DelayedTask struct {
	Task Task
	Due  time.Time

	// seq breaks ties between equal due times in insertion order.
	seq uint64
}

// Before reports whether d sorts ahead of o: earlier due time first, then
// earlier insertion.
func (d DelayedTask) Before(o DelayedTask) bool {
	if !d.Due.Equal(o.Due) {
		return d.Due.Before(o.Due)
	}
	return d.seq < o.seq
}

// DelayedQueue is a min-heap of delayed tasks keyed by due time.
//
// It is not safe for concurrent use; engines guard it with their state lock.
// The zero value is ready to use.
type DelayedQueue struct {
	h   delayedHeap
	seq uint64
}

func (q *DelayedQueue) Len() int { return len(q.h) }

// Push adds t due at the given instant.
func (q *DelayedQueue) Push(due time.Time, t Task) {
	q.seq++
	heap.Push(&q.h, DelayedTask{Task: t, Due: due, seq: q.seq})
}

// Peek returns the earliest entry without removing it.
func (q *DelayedQueue) Peek() (DelayedTask, bool) {
	if len(q.h) == 0 {
		return DelayedTask{}, false
	}
	return q.h[0], true
}

// Pop removes and returns the earliest entry.
func (q *DelayedQueue) Pop() (DelayedTask, bool) {
	if len(q.h) == 0 {
		return DelayedTask{}, false
	}
	return heap.Pop(&q.h).(DelayedTask), true
}

// Reset discards every entry. It returns the number of entries dropped.
func (q *DelayedQueue) Reset() int {
	n := len(q.h)
	clear(q.h)
	q.h = q.h[:0]
	return n
}

type delayedHeap []DelayedTask

func (h delayedHeap) Len() int           { return len(h) }
func (h delayedHeap) Less(i, j int) bool { return h[i].Before(h[j]) }
func (h delayedHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *delayedHeap) Push(x any) { *h = append(*h, x.(DelayedTask)) }

func (h *delayedHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = DelayedTask{} // allow GC of the task
	*h = old[:n-1]
	return it
}
