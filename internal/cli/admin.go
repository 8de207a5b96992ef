package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jdziat/simple-deferred-calls/pkg/core"
)

func (a *App) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show job counts per queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.openStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStorage(store)

			stats, err := store.GetQueueStats(cmd.Context())
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "QUEUE\tPENDING\tRUNNING\tCOMPLETED\tFAILED")
			for _, s := range stats {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\n", s.Name, s.Pending, s.Running, s.Completed, s.Failed)
			}
			return tw.Flush()
		},
	}
}

func (a *App) retryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry <job-id>...",
		Short: "Requeue failed jobs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStorage(store)

			for _, id := range args {
				job, err := store.RetryJob(cmd.Context(), id)
				if err != nil {
					return err
				}
				a.logger.Info("job requeued", "job_id", job.ID, "queue", job.Queue)
				fmt.Fprintln(cmd.OutOrStdout(), job.ID)
			}
			return nil
		},
	}
}

func (a *App) purgeCmd() *cobra.Command {
	var (
		queue  string
		status string
	)

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete finished jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st := core.JobStatus(status)
			if !st.Finished() {
				return fmt.Errorf("--status must be %s or %s", core.StatusCompleted, core.StatusFailed)
			}

			store, err := a.openStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStorage(store)

			n, err := store.PurgeJobs(cmd.Context(), queue, st)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d jobs\n", n)
			return nil
		},
	}

	cmd.Flags().StringVar(&queue, "queue", "", "Only purge this queue")
	cmd.Flags().StringVar(&status, "status", string(core.StatusCompleted), "completed or failed")

	return cmd
}
