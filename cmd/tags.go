package cmd

import (
	"context"
	"fmt"
	"time"

	"afdata/taxonomy"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"
)

// newTagsCmd creates the 'tags' command group
func newTagsCmd(a *app) *cobra.Command {
	tagsCmd := &cobra.Command{
		Use:   "tags",
		Short: "Manage the cached AutoFocus tag data",
		Long: `Manage the local copy of the AutoFocus tag catalogue used to classify the
tags of every sample into malware, campaign, actor and exploit tags.`,
	}

	tagsCmd.AddCommand(newTagsRefreshCmd(a))
	tagsCmd.AddCommand(newTagsGroupsCmd(a))

	return tagsCmd
}

// newTagsRefreshCmd creates the 'tags refresh' subcommand
func newTagsRefreshCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Download the tag catalogue",
		Long:  "Page through every visible tag and rewrite the tag data, group list and ungrouped tag files.",
		RunE: func(cmd *cobra.Command, args []string) error {
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
			return a.refreshTags(cmd.Context(), client)
		},
	}
}

func (a *app) refreshTags(ctx context.Context, source taxonomy.TagSource) error {
	refresher := taxonomy.NewRefresher(source, a.taxonomyPaths(), a.sugar)

	var s *spinner.Spinner
	if !a.opts.outputJSON && !a.opts.quiet {
		s = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(a.out))
		s.Suffix = " Refreshing tag data..."
		s.Start()
		refresher.OnPage(func(page, pages int) {
			s.Lock()
			s.Suffix = fmt.Sprintf(" Refreshing tag data, page %d of %d...", page, pages)
			s.Unlock()
		})
	}

	res, err := refresher.Refresh(ctx)

	if s != nil {
		s.Stop()
	}

	if err != nil {
		return a.searchFailed(err)
	}

	if a.opts.outputJSON {
		return a.outputAsJSON(res)
	}
	a.printf(successColor, "✓ Refreshed %d tags in %d groups (%d without a group)\n", res.Tags, len(res.Groups), len(res.NoGroup))
	return nil
}

// newTagsGroupsCmd creates the 'tags groups' subcommand
func newTagsGroupsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "groups",
		Short: "List the tag groups from the last refresh",
		RunE: func(cmd *cobra.Command, args []string) error {
			groups, err := taxonomy.LoadGroupList(a.cfg.DataPaths.GroupList)
			if err != nil {
				return err
			}
			if a.opts.outputJSON {
				return a.outputAsJSON(groups)
			}
			headerColor.Fprintf(a.out, "TAG GROUPS (%d)\n", len(groups))
			for _, g := range groups {
				fmt.Fprintf(a.out, "  %s\n", g)
			}
			return nil
		},
	}
}
