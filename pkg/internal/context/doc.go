// Package context carries the running job through a handler's
// context.Context. The worker writes it, the deferred-call handler adds
// the decoded call and pkg/jobctx exposes it read-only.
package context
