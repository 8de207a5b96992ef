package delay

import (
	"context"
	"fmt"
	"reflect"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jdziat/simple-deferred-calls/pkg/codec"
	"github.com/jdziat/simple-deferred-calls/pkg/core"
	"github.com/jdziat/simple-deferred-calls/pkg/security"
)

// Kwargs are keyword arguments for CallKwargs.
type Kwargs = map[string]any

// Proxy captures exactly one method call on its target. The method is never
// run locally; it is serialized and submitted as a job.
type Proxy struct {
	delayer *Delayer
	target  any
	opts    Options
	err     error
	used    atomic.Bool
}

// Options returns the scheduling options the call will be submitted with.
func (p *Proxy) Options() Options {
	return p.opts
}

// Call captures target.method(args...) and returns the job id.
func (p *Proxy) Call(ctx context.Context, method string, args ...any) (string, error) {
	return p.capture(ctx, method, args, nil)
}

// CallKwargs captures a call with keyword arguments. On replay the keywords
// are decoded into the method's last parameter.
func (p *Proxy) CallKwargs(ctx context.Context, method string, kwargs Kwargs, args ...any) (string, error) {
	return p.capture(ctx, method, args, kwargs)
}

func (p *Proxy) capture(ctx context.Context, method string, args []any, kwargs Kwargs) (string, error) {
	if !p.used.CompareAndSwap(false, true) {
		return "", core.ErrProxyConsumed
	}
	if p.err != nil {
		return "", p.err
	}

	d := p.delayer
	start := time.Now()
	ctx, span := d.settings.tracer.Start(ctx, "deferred.capture",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(attribute.String("deferred.method", method)))
	defer span.End()

	target, id, err := p.submit(ctx, method, args, kwargs)
	if target != "" {
		span.SetAttributes(attribute.String("deferred.target", target))
	}
	d.settings.observer.ObserveCapture(target, method, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetAttributes(attribute.String("deferred.job_id", id))
	return id, nil
}

func (p *Proxy) submit(ctx context.Context, method string, args []any, kwargs Kwargs) (string, string, error) {
	d := p.delayer

	name, receiver, err := d.registry.resolve(p.target)
	if err != nil {
		return "", "", err
	}
	if err := security.ValidateMethodName(method); err != nil {
		return name, "", fmt.Errorf("%w: %s#%q", err, name, method)
	}
	if _, ok := findMethod(reflect.ValueOf(receiver), method); !ok {
		return name, "", fmt.Errorf("%w: %s#%s", core.ErrUnknownMethod, name, method)
	}

	payload, err := d.encoder.Encode(codec.Record{
		Target: codec.Class(name),
		Method: codec.Symbol(method),
		Args:   args,
		Kwargs: kwargs,
	})
	if err != nil {
		return name, "", err
	}
	if len(payload) > security.MaxJobArgsSize {
		return name, "", fmt.Errorf("%w: %d bytes", core.ErrJobArgsTooLarge, len(payload))
	}

	id, err := d.submitter.Submit(ctx, d.settings.jobType, []string{payload}, p.opts)
	if err != nil {
		return name, "", err
	}

	ev := &core.CallDeferred{
		JobID:     id,
		Target:    name,
		Method:    method,
		RunAt:     p.opts.RunAt(),
		Timestamp: time.Now(),
	}
	if ev.Scheduled() {
		d.settings.logger.Debug("call deferred", "job_id", id, "call", ev.Call(), "run_at", *ev.RunAt)
	} else {
		d.settings.logger.Debug("call deferred", "job_id", id, "call", ev.Call())
	}
	if e, ok := d.submitter.(emitter); ok {
		e.Emit(ev)
	}
	return name, id, nil
}
