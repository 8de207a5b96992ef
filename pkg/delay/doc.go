// Package delay defers method calls to a background worker.
//
// Receivers opt in by registering under a name. A Delayer then returns a
// single-use Proxy that captures one call, serializes it with pkg/codec and
// submits it as a job of type DelayedClass:
//
//	reg := delay.NewRegistry()
//	reg.MustRegister("Report", reports)
//
//	d := delay.Install(q, reg)
//	id, err := d.DelayFor(reports, time.Hour).
//		CallKwargs(ctx, "Generate", delay.Kwargs{"format": "csv"}, 2024)
//
// On the worker, Job.Perform decodes the record, finds the receiver and the
// method and calls it. A leading context.Context parameter receives the job
// context, and keyword arguments are decoded into the method's last
// parameter:
//
//	func (r *Reports) Generate(ctx context.Context, year int, opts ReportOptions) error
//
// The method's error is returned to the queue as is, so retries follow the
// queue's policy.
package delay
