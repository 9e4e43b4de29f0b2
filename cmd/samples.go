package cmd

import (
	"afdata/core"

	"github.com/spf13/cobra"
)

// newSamplesCmd creates the 'samples' command
func newSamplesCmd(a *app) *cobra.Command {
	var flags searchFlags

	cmd := &cobra.Command{
		Use:   "samples",
		Short: "Search AutoFocus samples and export the enriched results",
		Long: `Search AutoFocus samples by a list of hashes, a list of threat names, or a
query exported from the AutoFocus UI. Every hit is enriched with verdict, file type
group and tag classification and streamed to an Elasticsearch bulk file while a pretty
snapshot of the whole run is kept up to date.

Hashes without a matching sample are written as "No Sample Found" records.`,
		Example: `  afdata samples --tag apt-march --input hashes.txt --hash-type md5
  afdata samples --tag emotet --mode threat --input threat_names.txt --sigs
  afdata samples --tag elf --mode query --query-file elf_query.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSearch(cmd.Context(), core.KindSamples, &flags)
		},
	}

	flags.bind(cmd, core.KindSamples)

	return cmd
}
