package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jdziat/simple-deferred-calls/pkg/codec"
	"github.com/jdziat/simple-deferred-calls/pkg/core"
	"github.com/jdziat/simple-deferred-calls/pkg/delay"
	"github.com/jdziat/simple-deferred-calls/pkg/storage"
)

func (a *App) inspectCmd() *cobra.Command {
	var (
		status  string
		queue   string
		jobType string
		search  string
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "List deferred jobs with their decoded calls",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.openStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStorage(store)

			jobs, total, err := store.SearchJobs(cmd.Context(), storage.JobFilter{
				Status: core.JobStatus(status),
				Queue:  queue,
				Type:   jobType,
				Search: search,
				Limit:  limit,
			})
			if err != nil {
				return err
			}

			dec := codec.NewDecoder(a.allowList())
			now := time.Now()
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTATUS\tQUEUE\tATTEMPT\tRUN AT\tCALL")
			for _, j := range jobs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
					j.ID, j.Status, j.Queue, j.Attempt, formatRunAt(j, now), describeJob(dec, j))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d of %d jobs\n", len(jobs), total)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status")
	cmd.Flags().StringVar(&queue, "queue", "", "Filter by queue")
	cmd.Flags().StringVar(&jobType, "type", delay.JobType, "Job type holding deferred calls")
	cmd.Flags().StringVar(&search, "search", "", "Substring of the job ID or payload")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum jobs to list")

	return cmd
}

func (a *App) decodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode [payload|-]",
		Short: "Validate and print a deferred call payload",
		Long: `Validate a payload against the configured allow-list and print the call it
describes. The payload is read from stdin when omitted or "-". A JSON job
argument array holding one payload is unwrapped first.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var raw string
			if len(args) == 0 || args[0] == "-" {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				raw = string(b)
			} else {
				raw = args[0]
			}

			rec, err := codec.NewDecoder(a.allowList()).Decode(unwrapJobArgs(raw))
			if err != nil {
				return err
			}
			printRecord(cmd.OutOrStdout(), rec)
			return nil
		},
	}
}

func unwrapJobArgs(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, `["`) {
		return raw
	}
	if payload, ok := (&core.Job{Args: []byte(trimmed)}).Payload(); ok {
		return payload
	}
	return raw
}

func printRecord(w io.Writer, rec codec.Record) {
	fmt.Fprintf(w, "target: %s\n", rec.Target)
	fmt.Fprintf(w, "method: %s\n", rec.Method)
	fmt.Fprintf(w, "args:   %s\n", formatArgs(rec.Args, 0))
	if rec.HasKwargs() {
		fmt.Fprintf(w, "kwargs: %s\n", formatKwargs(rec.Kwargs, 0))
	}
	fmt.Fprintf(w, "call:   %s\n", describe(rec))
}

func describeJob(dec *codec.Decoder, j *core.Job) string {
	payload, ok := j.Payload()
	if !ok {
		return "<not a deferred call>"
	}
	rec, err := dec.Decode(payload)
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	return describe(rec)
}

// maxDepth bounds nested rendering; decoded payloads may contain cycles.
const maxDepth = 8

// describe renders rec as Target.method(arg, key: value).
func describe(rec codec.Record) string {
	parts := make([]string, 0, len(rec.Args)+len(rec.Kwargs))
	for _, a := range rec.Args {
		parts = append(parts, formatValue(a, 0))
	}
	for _, k := range sortedKeys(rec.Kwargs) {
		parts = append(parts, k+": "+formatValue(rec.Kwargs[k], 0))
	}
	return fmt.Sprintf("%s.%s(%s)", rec.Target, rec.Method, strings.Join(parts, ", "))
}

func formatArgs(args []any, depth int) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = formatValue(a, depth)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func formatKwargs(kw map[string]any, depth int) string {
	parts := make([]string, 0, len(kw))
	for _, k := range sortedKeys(kw) {
		parts = append(parts, k+": "+formatValue(kw[k], depth))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func formatValue(v any, depth int) string {
	switch t := v.(type) {
	case nil:
		return "nil"
	case string:
		return fmt.Sprintf("%q", t)
	case codec.Symbol:
		return ":" + string(t)
	case time.Time:
		return t.Format(time.RFC3339)
	case []any:
		if depth >= maxDepth {
			return "[...]"
		}
		return formatArgs(t, depth+1)
	case map[string]any:
		if depth >= maxDepth {
			return "{...}"
		}
		return formatKwargs(t, depth+1)
	default:
		return fmt.Sprint(t)
	}
}

func formatRunAt(j *core.Job, now time.Time) string {
	switch {
	case j.Due(now):
		return "due"
	case j.RunAt == nil:
		return "-"
	}
	return j.RunAt.Local().Format(time.DateTime)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

