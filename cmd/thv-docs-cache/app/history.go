package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	docsapp "github.com/stacklok/toolhive-docs-cache/internal/app"
	"github.com/stacklok/toolhive-docs-cache/internal/metadata"
	"github.com/stacklok/toolhive-docs-cache/internal/service"
	"github.com/stacklok/toolhive-docs-cache/internal/sources"
)

func newHistoryCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded source changes, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := historyOptions(cmd, time.Now())
			if err != nil {
				return err
			}

			return withComponents(cmd, v, func(ctx context.Context, c *docsapp.AppComponents) error {
				page, err := c.Service.History(ctx, opts...)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), v.GetString("format"), page, func(t *table) {
					t.headers("Time", "Source", "Type", "Previous", "New")
					for _, rec := range page.Records {
						t.row(rec.Timestamp.Format(time.RFC3339), rec.SourceID, string(rec.Type),
							shortFingerprint(rec.PreviousFingerprint), shortFingerprint(rec.NewFingerprint))
					}
					if page.NextCursor != "" {
						t.row("", "", "", "", "more: --cursor "+page.NextCursor)
					}
				})
			})
		},
	}

	cmd.Flags().String("source", "", "Only show changes of this source")
	cmd.Flags().String("type", "", "Only show changes of this type (created, updated, deleted)")
	cmd.Flags().String("since", "", "Only show changes since an RFC3339 time or a duration ago (e.g. 24h)")
	cmd.Flags().Int("limit", 0, "Maximum number of records")
	cmd.Flags().String("cursor", "", "Continue from a previous page")
	return cmd
}

// historyOptions translates the history flags into service options
func historyOptions(cmd *cobra.Command, now time.Time) ([]service.Option[service.HistoryOptions], error) {
	var opts []service.Option[service.HistoryOptions]
	flags := cmd.Flags()

	if id, _ := flags.GetString("source"); id != "" {
		opts = append(opts, service.WithSourceID(id))
	}
	if t, _ := flags.GetString("type"); t != "" {
		opts = append(opts, service.WithChangeType(metadata.ChangeType(strings.ToLower(t))))
	}
	if s, _ := flags.GetString("since"); s != "" {
		since, err := parseSince(s, now)
		if err != nil {
			return nil, err
		}
		opts = append(opts, service.WithSince(since))
	}
	if flags.Changed("limit") {
		limit, _ := flags.GetInt("limit")
		opts = append(opts, service.WithLimit(limit))
	}
	if cursor, _ := flags.GetString("cursor"); cursor != "" {
		opts = append(opts, service.WithCursor(cursor))
	}
	return opts, nil
}

func parseSince(s string, now time.Time) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return time.Time{}, fmt.Errorf("invalid --since %q: want an RFC3339 time or a positive duration", s)
	}
	return now.Add(-d), nil
}

func newStaleCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stale",
		Short: "List sources not fetched within the maximum age",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var opts []service.Option[service.StaleOptions]
			if cmd.Flags().Changed("max-age") {
				maxAge, _ := cmd.Flags().GetDuration("max-age")
				opts = append(opts, service.WithMaxAge(maxAge))
			}
			if categories, _ := cmd.Flags().GetStringSlice("category"); len(categories) > 0 {
				cats := make([]sources.Category, 0, len(categories))
				for _, category := range categories {
					cats = append(cats, sources.Category(category))
				}
				opts = append(opts, service.WithCategories(cats...))
			}

			return withComponents(cmd, v, func(ctx context.Context, c *docsapp.AppComponents) error {
				ids, err := c.Service.StaleSources(ctx, opts...)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), v.GetString("format"), ids, func(t *table) {
					t.headers("Stale source")
					for _, id := range ids {
						t.row(id)
					}
				})
			})
		},
	}

	cmd.Flags().Duration("max-age", service.DefaultStaleMaxAge, "Age after which a source is stale")
	cmd.Flags().StringSlice("category", nil, "Only check sources of these categories")
	return cmd
}
