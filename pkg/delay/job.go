package delay

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jdziat/simple-deferred-calls/pkg/codec"
	"github.com/jdziat/simple-deferred-calls/pkg/core"
	intctx "github.com/jdziat/simple-deferred-calls/pkg/internal/context"
	"github.com/jdziat/simple-deferred-calls/pkg/jobctx"
)

// Job replays deferred calls on a worker.
type Job struct {
	registry *Registry
	decoder  *codec.Decoder
	settings settings
}

// NewJob returns a Job resolving targets in reg.
func NewJob(reg *Registry, opts ...DelayerOption) *Job {
	return newJob(reg, newSettings(opts))
}

func newJob(reg *Registry, s settings) *Job {
	return &Job{
		registry: reg,
		decoder:  codec.NewDecoder(s.allow),
		settings: s,
	}
}

// Handle is the queue handler for the deferred job type. The job
// arguments must hold exactly one payload.
func (j *Job) Handle(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: job carries %d payloads, want 1", core.ErrMalformedRecord, len(args))
	}
	return j.Perform(ctx, args[0])
}

// Perform decodes payload and invokes the recorded method on its target.
// The method's error is returned unchanged.
func (j *Job) Perform(ctx context.Context, payload string) error {
	start := time.Now()
	ctx, span := j.settings.tracer.Start(ctx, "deferred.perform",
		trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	rec, err := j.decoder.Decode(payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		j.settings.observer.ObservePerform("", "", time.Since(start), err)
		return err
	}

	target, method := string(rec.Target), string(rec.Method)
	ctx = intctx.WithCall(ctx, target+"."+method)
	span.SetAttributes(
		attribute.String("deferred.target", target),
		attribute.String("deferred.method", method),
	)

	err = j.invoke(ctx, rec)
	j.settings.observer.ObservePerform(target, method, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	jobctx.Logger(ctx).Debug("deferred call performed", "duration", time.Since(start))
	return nil
}

func (j *Job) invoke(ctx context.Context, rec codec.Record) error {
	receiver, ok := j.registry.Lookup(string(rec.Target))
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrUnknownTarget, rec.Target)
	}

	m, ok := findMethod(reflect.ValueOf(receiver), string(rec.Method))
	if !ok {
		return fmt.Errorf("%w: %s#%s", core.ErrUnknownMethod, rec.Target, rec.Method)
	}

	in, err := bindArgs(ctx, m.Type(), rec)
	if err != nil {
		return fmt.Errorf("%s#%s: %w", rec.Target, rec.Method, err)
	}

	out := m.Call(in)
	if n := len(out); n > 0 && m.Type().Out(n-1) == errorType {
		if e := out[n-1].Interface(); e != nil {
			return e.(error)
		}
	}
	return nil
}

// findMethod looks up an exported method by its exact name, then by the
// CamelCase form of a snake_case name.
func findMethod(v reflect.Value, name string) (reflect.Value, bool) {
	if !v.IsValid() || name == "" {
		return reflect.Value{}, false
	}
	if m := v.MethodByName(name); m.IsValid() {
		return m, true
	}
	if alt := camelize(name); alt != name {
		if m := v.MethodByName(alt); m.IsValid() {
			return m, true
		}
	}
	return reflect.Value{}, false
}

// camelize turns delete_inactive into DeleteInactive. A trailing ? or ! is
// dropped.
func camelize(name string) string {
	name = strings.TrimRight(name, "?!")
	var b strings.Builder
	upper := true
	for _, r := range name {
		if r == '_' {
			upper = true
			continue
		}
		if upper {
			r = unicode.ToUpper(r)
			upper = false
		}
		b.WriteRune(r)
	}
	return b.String()
}
