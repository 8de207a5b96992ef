// Command deferredctl runs and inspects deferred method calls.
//
// The stock binary only knows the Deferred::Log target, which is handy for
// smoke tests. Applications register their own receivers and call
// cli.Execute from their own main package.
package main

import (
	"context"
	"log/slog"

	"github.com/jdziat/simple-deferred-calls/internal/cli"
	"github.com/jdziat/simple-deferred-calls/pkg/delay"
	"github.com/jdziat/simple-deferred-calls/pkg/jobctx"
)

// logTarget writes replayed calls to the job logger.
type logTarget struct{}

// Info logs message with fields as attributes.
func (logTarget) Info(ctx context.Context, message string, fields map[string]any) {
	attrs := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		attrs = append(attrs, k, v)
	}
	jobctx.Logger(ctx).Info(message, attrs...)
}

// Warn logs message at warn level.
func (logTarget) Warn(ctx context.Context, message string) {
	jobctx.Logger(ctx).Log(ctx, slog.LevelWarn, message)
}

func main() {
	reg := delay.NewRegistry()
	reg.MustRegister("Deferred::Log", &logTarget{})

	cli.Execute(context.Background(), reg)
}
