package cmd

import (
	"fmt"
	"time"

	"afdata/autofocus"
	"afdata/core"
	"afdata/search"
	"afdata/sink"
	"afdata/stats"
	"afdata/taxonomy"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// newStatsCmd creates the 'stats' command group
func newStatsCmd(a *app) *cobra.Command {
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Count samples by month, upload source and tag group",
		Long: `Run count-only AutoFocus searches and write the totals as CSV tables or
Elasticsearch bulk files. Monthly jobs cover every month from stats.start through
the current month.`,
	}

	statsCmd.AddCommand(newStatsMonthlyCmd(a))
	statsCmd.AddCommand(newStatsSourceCmd(a))
	statsCmd.AddCommand(newStatsTagGroupsCmd(a))

	return statsCmd
}

// newStatsMonthlyCmd creates the 'stats monthly' subcommand
func newStatsMonthlyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "monthly",
		Short: "Monthly malware totals with and without manual API uploads",
		RunE: func(cmd *cobra.Command, args []string) error {
			jobs, err := a.newStatsJobs("")
			if err != nil {
				return err
			}
			report, err := jobs.MonthlyMalware(cmd.Context())
			return a.finishStats(report, err, false)
		},
	}
}

// newStatsSourceCmd creates the 'stats source' subcommand
func newStatsSourceCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "source",
		Short: "Monthly malware and total counts per upload source",
		RunE: func(cmd *cobra.Command, args []string) error {
			jobs, err := a.newStatsJobs("")
			if err != nil {
				return err
			}
			report, err := jobs.UploadSource(cmd.Context(), a.cfg.Stats.UploadSources)
			return a.finishStats(report, err, true)
		},
	}
}

// newStatsTagGroupsCmd creates the 'stats tag-groups' subcommand
func newStatsTagGroupsCmd(a *app) *cobra.Command {
	var (
		daily bool
		role  string
	)

	cmd := &cobra.Command{
		Use:   "tag-groups",
		Short: "Malware counts per tag group, monthly or daily",
		Long: `Count malware per tag group. The monthly job uses stats.tag_groups or the
built-in group list. The daily job uses stats.tag_groups or the group list written by
'afdata tags refresh', covers stats.start through stats.end in steps of
stats.interval_days, and filters by the analyst role.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jobs, err := a.newStatsJobs(role)
			if err != nil {
				return err
			}
			if !daily {
				report, err := jobs.TagGroupMonthly(cmd.Context(), a.cfg.Stats.TagGroups)
				return a.finishStats(report, err, true)
			}

			groups := a.cfg.Stats.TagGroups
			if len(groups) == 0 {
				if groups, err = taxonomy.LoadGroupList(a.cfg.DataPaths.GroupList); err != nil {
					return err
				}
			}
			report, err := jobs.TagGroupDaily(cmd.Context(), groups)
			return a.finishStats(report, err, true)
		},
	}

	cmd.Flags().BoolVar(&daily, "daily", false, "Count per day instead of per month")
	cmd.Flags().StringVar(&role, "role", "", "Analyst role for the daily filter: standard or researcher (default: stats.role)")

	return cmd
}

func (a *app) newStatsJobs(role string) (*stats.Jobs, error) {
	start, end, err := a.cfg.StatsRange(a.now())
	if err != nil {
		return nil, err
	}
	if err := a.prepareDirs(); err != nil {
		return nil, err
	}

	keys, err := a.resolveKeys()
	if err != nil {
		return nil, err
	}
	client, err := a.newClient(keys)
	if err != nil {
		return nil, err
	}

	counter := search.NewCounter(a.newPoller(core.KindSamples), func(q core.Query) search.Session {
		return autofocus.NewSession(client, core.KindSamples, q, core.CountParams())
	})

	jobs := stats.NewJobs(counter, stats.Config{
		Start:        start,
		End:          end,
		IntervalDays: a.cfg.Stats.IntervalDays,
		OutJSON:      a.cfg.Stats.OutJSON,
		OutCSV:       a.cfg.Stats.OutCSV,
		Role:         stats.Role(firstNonEmpty(role, a.cfg.Stats.Role)),
	}, a.sugar)
	jobs.OnStep(func(s stats.Step) {
		a.printf(infoColor, "%-60s %s\n", s.Label, humanize.Comma(int64(s.Count)))
	})
	return jobs, nil
}

func (a *app) finishStats(report *stats.Report, err error, bulk bool) error {
	if err != nil {
		if report != nil && report.Rows > 0 {
			a.printf(warningColor, "Partial results (%d rows) kept in %s\n", report.Rows, report.Path)
		}
		return a.searchFailed(err)
	}

	if a.opts.outputJSON {
		return a.outputAsJSON(report)
	}
	if a.opts.quiet {
		return nil
	}
	printSection(a.out, "STATISTICS")
	printField(a.out, "Output", report.Path)
	printField(a.out, "Rows", humanize.Comma(int64(report.Rows)))
	printField(a.out, "Elapsed", report.Elapsed.Round(time.Second))
	if bulk {
		fmt.Fprintln(a.out)
		fmt.Fprintln(a.out, "Load into Elasticsearch with:")
		successColor.Fprintln(a.out, sink.BulkCommand(a.cfg.Output.ElasticURL, report.Path))
	}
	return nil
}
