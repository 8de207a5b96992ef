// Package queue stores jobs and dispatches them to registered handlers.
//
// The deferred-call handler is registered under its job type and every
// captured call becomes one stored job carrying a single YAML payload.
// A Queue also fans out lifecycle hooks and events to observers such as
// the metrics collector.
package queue
