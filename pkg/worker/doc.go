// Package worker provides the Worker, a task consumer for the jobnik engine.
//
// This package includes:
//   - Worker: claims tasks per stage type and runs their handlers
//   - TaskSource: the dequeue and report surface a worker consumes
//   - WorkerOption: concurrency, polling and retry configuration
//
// A handler returning nil completes its task; an error records a failed
// attempt, which the engine turns into RETRIED or FAILED. Panics count as
// failures. Workers poll on an interval and, given a wake channel such as
// the one returned by notify.RedisNotifier.Subscribe, as soon as new work
// is announced.
package worker
