// Package eventloop implements a thread-safe scheduler with one dispatch loop.
//
// Producers on any goroutine push ready tasks onto a FIFO or delayed tasks
// onto a due-time heap; the goroutine running StartLoop pops them and runs
// them synchronously, one at a time. A long-running task therefore stalls
// every other task on the same instance. Instances never share state.
//
// Loop iteration:
//  1. stopped: exit.
//  2. ready task available: run it outside the lock, restart.
//  3. earliest delayed task due: promote it to the ready queue, restart.
//  4. earliest delayed task in the future: wait until it is due or signaled.
//  5. nothing queued: wait until signaled.
package eventloop
