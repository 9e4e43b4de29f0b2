package cmd

import (
	"context"
	"errors"

	"afdata/core"
	"afdata/enrich"
	"afdata/sink"
	"afdata/util"

	"github.com/spf13/cobra"
)

// newSigsCmd creates the 'sigs' command
func newSigsCmd(a *app) *cobra.Command {
	var tag string

	cmd := &cobra.Command{
		Use:   "sigs",
		Short: "Add signature coverage to the saved results of a samples run",
		Long: `Read the pretty snapshot written by 'afdata samples --tag TAG', look up the
DNS, WildFire AV and file URL signature coverage of every found sample, and write
the results as a separate sigs bulk file and snapshot.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if tag == "" {
				var err error
				if tag, err = promptRunTag(a.in, a.out); err != nil {
					return err
				}
			}
			if err := util.ValidateRunTag(tag); err != nil {
				return err
			}
			if err := a.prepareDirs(); err != nil {
				return err
			}

			keys, err := a.resolveKeys()
			if err != nil {
				return err
			}
			client, err := a.newClient(keys)
			if err != nil {
				return err
			}
			return a.runCoverage(cmd.Context(), client, tag)
		},
	}

	cmd.Flags().StringVarP(&tag, "tag", "t", "", "Tag of the samples run to extend")

	return cmd
}

// runCoverage restores a samples run from its snapshot and runs the coverage pass on it
func (a *app) runCoverage(ctx context.Context, fetcher enrich.CoverageFetcher, tag string) error {
	state, err := sink.LoadRun(a.layout(), tag, core.KindSamples, sink.PassNoSigs, a.now())
	if err != nil {
		if errors.Is(err, core.ErrMissingArtifact) {
			errorColor.Fprintf(a.out, "No saved samples run for tag %q.\n", tag)
			a.printf(infoColor, "Run 'afdata samples --tag %s' first, then repeat this command.\n", tag)
		}
		return err
	}
	a.sugar.Infow("Restored samples run", "tag", tag, "records", state.Len())
	return a.coverageFor(ctx, fetcher, state)
}

// coverageFor looks up coverage for every found sample in state and persists the sigs pass
func (a *app) coverageFor(ctx context.Context, fetcher enrich.CoverageFetcher, state *core.RunState) error {
	pass := enrich.NewCoveragePass(fetcher, a.cfg.Enrich.CoverageWorkers, a.sugar)
	pass.OnProgress(a.printCoverageProgress)

	a.printf(headerColor, "Looking up signature coverage for %s\n", state.Tag)
	report, err := pass.Run(ctx, state.Snapshot())
	if err != nil {
		return a.searchFailed(err)
	}

	out := sink.New(a.layout(), a.index(core.KindSamples), sink.PassSigs, a.sugar)
	if err := out.Persist(state); err != nil {
		return err
	}
	bulk, pretty := out.Paths(state)

	if a.opts.outputJSON {
		o := newRunOutput(state, nil, bulk, pretty)
		if err := a.outputAsJSON(o); err != nil {
			return err
		}
	} else if !a.opts.quiet {
		writeSummary(a.out, state, nil)
		printField(a.out, "Looked up", report.Looked)
		printField(a.out, "Skipped", report.Skipped)
		writeBulkCommand(a.out, a.cfg.Output.ElasticURL, bulk, pretty)
	}

	return a.recordRun(ctx, state, sink.PassSigs, false, bulk, pretty)
}
