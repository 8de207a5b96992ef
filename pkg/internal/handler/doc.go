// Package handler wraps a registered function so the worker can call it
// with a job's raw JSON arguments. The deferred-call handler takes a
// []string holding one payload; other signatures are accepted for jobs
// registered directly on a queue.
package handler
