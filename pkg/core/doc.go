// Package core holds the types every other package agrees on: the stored
// Job and its statuses, the Storage contract, queue events and the
// sentinel errors for capturing and replaying deferred calls.
package core
