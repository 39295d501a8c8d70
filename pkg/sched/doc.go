// Package sched defines the scheduling contract shared by every taskloop engine.
//
// A Task is a single-shot unit of work. A Scheduler accepts tasks for
// immediate, absolute or relative execution and runs them under its own
// ordering and concurrency policy:
//   - eventloop: one dispatch goroutine, mutex-guarded FIFO + due-time heap
//   - async: one host goroutine draining a command mailbox, cooperative
//     logical tasks interleaved at explicit suspension points
//
// Periodic behavior is built by a task re-submitting its own continuation
// (see package recurring); no engine stores periodic entries.
//
// Misuse (stopping twice, submitting to a dead engine) is a programming
// error and panics with an error wrapping ErrAlreadyStopped or ErrUnavailable.
package sched
