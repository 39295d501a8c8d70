// Package async implements a scheduler hosting a cooperative executor.
//
// Producers on any goroutine send commands through an unbounded mailbox.
// The goroutine running StartLoop receives them in order and turns each into
// a step on its local run queue, then runs queued steps one at a time.
// Delayed work is a deferred action held in a due-time heap behind one
// runtime timer. The timer wakes the host, which moves every elapsed action
// onto the run queue earliest first, so waiting never blocks the host.
//
// Spawn starts logical tasks that suspend explicitly (Co.Sleep, Co.Yield).
// They interleave with plain tasks at those points and never run in
// parallel with them. Ordinary code that never suspends stalls the host
// exactly like a blocking task stalls an event loop.
//
// On stop the receive loop exits. Commands not yet received, queued steps
// and sleeping deferred actions are dropped. Live coroutines are resumed
// with sched.ErrStopped and awaited until they return.
package async
