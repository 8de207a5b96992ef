// Package schedule turns recurring rules into concrete run times.
//
// The Delayer uses a Schedule to pick the absolute time of the next
// deferred call, so a recurring job is a call that defers its own next run.
package schedule
