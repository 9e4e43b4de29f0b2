package cmd

import (
	"afdata/core"

	"github.com/spf13/cobra"
)

// newSessionsCmd creates the 'sessions' command
func newSessionsCmd(a *app) *cobra.Command {
	var flags searchFlags

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Search AutoFocus sessions and export the enriched results",
		Long: `Search the AutoFocus sessions in which samples were observed. Session records
carry the upload source, industry, device and file details, plus the coordinates of the
reporting device's country resolved through the local geocoding cache.`,
		Example: `  afdata sessions --tag apt-march --input hashes.txt
  afdata sessions --tag uploads --mode query --query-file sessions_query.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSearch(cmd.Context(), core.KindSessions, &flags)
		},
	}

	flags.bind(cmd, core.KindSessions)

	return cmd
}
