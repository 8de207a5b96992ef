// Package worker runs deferred calls out of storage.
//
// A Worker polls the configured queues, locks each due job, dispatches it
// to the handler registered for its type and records the outcome. Failed
// calls are rescheduled on the job backoff until their retry budget runs
// out. Storage calls themselves are retried on transient errors.
//
// Most programs get a worker through the root package's NewWorker or the
// deferredctl work command.
package worker
