// Package cli implements deferredctl. Host applications embed it with their
// own registry so that `work` can replay calls on their receivers.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jdziat/simple-deferred-calls/internal/config"
	"github.com/jdziat/simple-deferred-calls/pkg/codec"
	"github.com/jdziat/simple-deferred-calls/pkg/delay"
	"github.com/jdziat/simple-deferred-calls/pkg/storage"
)

// App holds state shared by every subcommand.
type App struct {
	registry *delay.Registry

	cfgPath string
	envFile string

	cfg    *config.Config
	logger *slog.Logger
}

// NewRootCommand builds the deferredctl command tree around reg.
func NewRootCommand(reg *delay.Registry) *cobra.Command {
	if reg == nil {
		reg = delay.NewRegistry()
	}
	app := &App{registry: reg}

	root := &cobra.Command{
		Use:           "deferredctl",
		Short:         "Run and inspect deferred method calls",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return app.load(cmd)
		},
	}

	root.PersistentFlags().StringVarP(&app.cfgPath, "config", "c", "", "Config file (default ./deferred.yaml)")
	root.PersistentFlags().StringVar(&app.envFile, "env-file", ".env", "dotenv file loaded before the config")

	root.AddCommand(app.workCmd())
	root.AddCommand(app.enqueueCmd())
	root.AddCommand(app.inspectCmd())
	root.AddCommand(app.decodeCmd())
	root.AddCommand(app.statsCmd())
	root.AddCommand(app.retryCmd())
	root.AddCommand(app.purgeCmd())
	root.AddCommand(app.targetsCmd())

	return root
}

// Execute runs deferredctl with os.Args and exits non-zero on failure.
func Execute(ctx context.Context, reg *delay.Registry) {
	if err := NewRootCommand(reg).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (a *App) load(cmd *cobra.Command) error {
	if err := config.LoadDotEnv(a.envFile); err != nil {
		return err
	}
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return err
	}
	logger, err := cfg.Logging.Logger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

func (a *App) allowList() codec.AllowList {
	allow, err := a.cfg.AllowList()
	if err != nil {
		// Validate already rejected unknown kinds.
		return codec.DefaultAllowList()
	}
	return allow
}

func (a *App) openStorage(ctx context.Context) (*storage.GormStorage, error) {
	pool, err := storage.PoolPreset(a.cfg.Storage.Pool)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(a.cfg.Storage.Driver, a.cfg.Storage.DSN, a.logger, storage.WithPoolConfig(pool))
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		closeStorage(store)
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return store, nil
}

func closeStorage(s *storage.GormStorage) {
	if sqlDB, err := s.DB().DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func (a *App) targetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "targets",
		Short: "List receivers registered for deferred calls",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, name := range a.registry.Names() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}
