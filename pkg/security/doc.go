// Package security holds the limits and input checks applied before
// anything reaches storage: identifier shapes, payload size, retry and
// concurrency bounds, and scrubbing of stored error messages.
package security
