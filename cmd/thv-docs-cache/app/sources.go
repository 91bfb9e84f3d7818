package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	docsapp "github.com/stacklok/toolhive-docs-cache/internal/app"
	"github.com/stacklok/toolhive-docs-cache/internal/search"
)

func newSourcesCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List configured sources and their cached state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withComponents(cmd, v, func(ctx context.Context, c *docsapp.AppComponents) error {
				infos, err := c.Service.ListSources(ctx)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), v.GetString("format"), infos, func(t *table) {
					t.headers("ID", "Category", "Path", "Size", "Fetched", "Updates", "Stale")
					for _, info := range infos {
						size, fetched, updates := "-", "never", "-"
						if md := info.Metadata; md != nil {
							size = humanize.Bytes(uint64(max(md.Size, 0)))
							fetched = relativeTime(md.LastFetched)
							updates = strconv.Itoa(md.UpdateCount)
						}
						t.row(info.Source.ID, string(info.Source.Category), info.Source.Path,
							size, fetched, updates, strconv.FormatBool(info.Stale))
					}
				})
			})
		},
	}
}

func newSearchCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search QUERY...",
		Short: "Search the cached documentation",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			category, _ := cmd.Flags().GetString("category")
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}

			q := search.Query{Text: strings.Join(args, " "), Limit: limit}
			if category != "" {
				q.Filters = map[string]string{"category": category}
			}

			return withComponents(cmd, v, func(ctx context.Context, c *docsapp.AppComponents) error {
				resp, err := c.Service.Search(ctx, q)
				if err != nil {
					return err
				}
				if resp.StalenessWarning != "" {
					fmt.Fprintln(cmd.ErrOrStderr(), resp.StalenessWarning)
				}
				return render(cmd.OutOrStdout(), v.GetString("format"), resp, func(t *table) {
					t.headers("Score", "ID", "Title", "Snippet")
					for _, r := range resp.Results {
						t.row(strconv.FormatFloat(r.Score, 'f', -1, 64), r.SourceID, r.Title, r.Snippet)
					}
				})
			})
		},
	}

	cmd.Flags().Int("limit", search.DefaultLimit, "Maximum number of results")
	cmd.Flags().String("category", "", "Only search sources of this category")
	return cmd
}
