package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/jdziat/simple-deferred-calls/internal/config"
	"github.com/jdziat/simple-deferred-calls/pkg/codec"
	"github.com/jdziat/simple-deferred-calls/pkg/delay"
	"github.com/jdziat/simple-deferred-calls/pkg/queue"
	"github.com/jdziat/simple-deferred-calls/pkg/sidekiq"
)

func (a *App) enqueueCmd() *cobra.Command {
	var (
		in       time.Duration
		at       string
		queueOpt string
		priority int
		retries  int
		unique   string
		kwargs   []string
	)

	cmd := &cobra.Command{
		Use:   "enqueue <target> <method> [args...]",
		Short: "Defer a call on a registered target",
		Long: `Defer a call on a registered target. Each argument and --kwarg value is
parsed as a YAML scalar or flow collection, so 2024 is an integer,
2024-03-01 is a date, :weekly is a symbol and '[1, 2]' is a list.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			positional, err := parseValues(args[2:])
			if err != nil {
				return err
			}
			kw, err := parseKwargs(kwargs)
			if err != nil {
				return err
			}

			var opts []delay.Option
			if queueOpt != "" {
				opts = append(opts, delay.Queue(queueOpt))
			}
			if cmd.Flags().Changed("priority") {
				opts = append(opts, delay.Priority(priority))
			}
			if cmd.Flags().Changed("retries") {
				opts = append(opts, delay.Retries(retries))
			}
			if unique != "" {
				opts = append(opts, delay.Unique(unique))
			}

			d, closeFn, err := a.delayer(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			target := codec.Class(args[0])
			var proxy *delay.Proxy
			switch {
			case at != "" && in != 0:
				return fmt.Errorf("--at and --in are mutually exclusive")
			case at != "":
				t, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("--at: %w", err)
				}
				proxy = d.DelayUntil(target, t, opts...)
			case in != 0:
				proxy = d.DelayFor(target, in, opts...)
			default:
				proxy = d.Delay(target, opts...)
			}

			id, err := proxy.CallKwargs(cmd.Context(), args[1], kw, positional...)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}

	cmd.Flags().DurationVar(&in, "in", 0, "Run after this interval")
	cmd.Flags().StringVar(&at, "at", "", "Run at this RFC 3339 time")
	cmd.Flags().StringVar(&queueOpt, "queue", "", "Queue name")
	cmd.Flags().IntVar(&priority, "priority", 0, "Priority (queue submitter only)")
	cmd.Flags().IntVar(&retries, "retries", 0, "Retry limit")
	cmd.Flags().StringVar(&unique, "unique", "", "Deduplication key")
	cmd.Flags().StringArrayVarP(&kwargs, "kwarg", "k", nil, "Keyword argument as key=value (repeatable)")

	return cmd
}

// delayer builds a Delayer for the configured submitter. The returned func
// releases its connections.
func (a *App) delayer(ctx context.Context) (*delay.Delayer, func(), error) {
	opts := []delay.DelayerOption{
		delay.WithAllowList(a.allowList()),
		delay.WithLogger(a.logger),
	}

	if a.cfg.Submitter == config.SubmitterSidekiq {
		rdb := redis.NewClient(&redis.Options{
			Addr:     a.cfg.Redis.Addr,
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
		})
		client := sidekiq.NewClient(rdb,
			sidekiq.WithNamespace(a.cfg.Redis.Namespace),
			sidekiq.WithDefaultQueue(a.cfg.Redis.Queue),
			sidekiq.WithLogger(a.logger))
		return delay.New(a.registry, client, opts...), func() { _ = rdb.Close() }, nil
	}

	store, err := a.openStorage(ctx)
	if err != nil {
		return nil, nil, err
	}
	q := queue.New(store)
	d := delay.New(a.registry, delay.NewQueueSubmitter(q), opts...)
	q.RegisterIfAbsent(delay.JobType, d.Job().Handle)
	return d, func() { closeStorage(store) }, nil
}

func parseValues(raw []string) ([]any, error) {
	out := make([]any, 0, len(raw))
	for _, r := range raw {
		v, err := parseValue(r)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func parseKwargs(raw []string) (delay.Kwargs, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	kw := make(delay.Kwargs, len(raw))
	for _, r := range raw {
		key, value, ok := strings.Cut(r, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("kwarg %q: want key=value", r)
		}
		v, err := parseValue(value)
		if err != nil {
			return nil, err
		}
		kw[key] = v
	}
	return kw, nil
}

// parseValue reads a command-line argument the way a payload element is
// read, so dates, times and :symbols keep their kinds.
func parseValue(raw string) (any, error) {
	v, err := codec.DecodeValue(raw)
	if err != nil {
		return nil, fmt.Errorf("argument %q: %w", raw, err)
	}
	return v, nil
}
