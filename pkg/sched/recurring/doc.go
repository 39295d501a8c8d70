// Package recurring builds periodic behavior out of one-shot tasks.
//
// Engines have no periodic primitive. Every helper here returns a task that,
// when run, does its work and submits a fresh continuation of itself to the
// same scheduler. Stopping the scheduler discards the pending continuation,
// which ends the recurrence.
package recurring
