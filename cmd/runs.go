package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

// newRunsCmd creates the 'runs' command
func newRunsCmd(a *app) *cobra.Command {
	var (
		limit int
		tag   string
	)

	cmd := &cobra.Command{
		Use:     "runs",
		Aliases: []string{"history"},
		Short:   "List recorded runs",
		Long:    "Display the run ledger: every samples, sessions and sigs run with its counts, duration and output files.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), defaultTimeout)
			defer cancel()

			ledger, err := a.openLedger()
			if err != nil {
				return err
			}
			defer ledger.Close()

			if tag != "" {
				run, err := ledger.Latest(ctx, tag)
				if err != nil {
					return err
				}
				if a.opts.outputJSON {
					return a.outputAsJSON(run)
				}
				printSection(a.out, "RUN "+run.Tag)
				printField(a.out, "ID", run.ID)
				printField(a.out, "Kind", run.Kind)
				printField(a.out, "Pass", run.Pass)
				printField(a.out, "Started", run.StartedAt.Local().Format("2006-01-02 15:04:05"))
				printField(a.out, "Duration", run.Duration())
				printField(a.out, "Found", run.Found)
				printField(a.out, "Not found", run.NotFound)
				printField(a.out, "Stalled", run.Stalled)
				printField(a.out, "Bulk file", run.BulkPath)
				printField(a.out, "Snapshot", run.PrettyPath)
				return nil
			}

			runs, err := ledger.List(ctx, limit)
			if err != nil {
				return err
			}
			if a.opts.outputJSON {
				return a.outputAsJSON(runs)
			}
			renderRunsTable(a.out, runs, a.now())
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Show at most this many runs (0 for all)")
	cmd.Flags().StringVarP(&tag, "tag", "t", "", "Show the latest run with this tag")

	return cmd
}
