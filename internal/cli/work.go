package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/jdziat/simple-deferred-calls/pkg/delay"
	"github.com/jdziat/simple-deferred-calls/pkg/metrics"
	"github.com/jdziat/simple-deferred-calls/pkg/queue"
	"github.com/jdziat/simple-deferred-calls/pkg/worker"
)

func (a *App) workCmd() *cobra.Command {
	var (
		queues      []string
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "work",
		Short: "Run a worker that replays deferred calls",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(queues) == 0 {
				queues = a.cfg.Worker.Queues
			}
			if concurrency <= 0 {
				concurrency = a.cfg.Worker.Concurrency
			}
			return a.work(cmd.Context(), queues, concurrency)
		},
	}

	cmd.Flags().StringSliceVarP(&queues, "queue", "q", nil, "Queue to process (repeatable, default from config)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Handlers per queue (default from config)")

	return cmd
}

func (a *App) work(ctx context.Context, queues []string, concurrency int) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := a.openStorage(ctx)
	if err != nil {
		return err
	}
	defer closeStorage(store)

	reg := prometheus.NewRegistry()
	collector := metrics.New(reg)
	reg.MustRegister(metrics.NewDepthCollector(store))

	q := queue.New(store)
	collector.Instrument(q)
	go collector.Watch(ctx, q, nil)
	delay.Install(q, a.registry,
		delay.WithAllowList(a.allowList()),
		delay.WithLogger(a.logger),
		delay.WithObserver(collector))

	if a.cfg.Metrics.Enabled {
		srv := a.serveMetrics(reg)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	opts := []worker.WorkerOption{
		worker.PollInterval(a.cfg.Worker.PollInterval),
		worker.WithLogger(a.logger),
		worker.WithStaleLockReaper(a.cfg.Worker.ReapInterval, a.cfg.Worker.StaleAfter),
	}
	for _, name := range queues {
		opts = append(opts, worker.WorkerQueue(name))
	}
	opts = append(opts, worker.Concurrency(concurrency))

	w := worker.NewWorker(q, opts...)
	a.logger.Info("deferredctl worker starting",
		"worker_id", w.ID(), "targets", a.registry.Names(), "storage", a.cfg.Storage.Driver)

	err = w.Start(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func (a *App) serveMetrics(reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(a.cfg.Metrics.Path, metrics.Handler(reg))
	srv := &http.Server{
		Addr:              a.cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.logger.Info("metrics listening", "addr", srv.Addr, "path", a.cfg.Metrics.Path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", "error", err)
		}
	}()
	return srv
}
