package app

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	docsapp "github.com/stacklok/toolhive-docs-cache/internal/app"
	"github.com/stacklok/toolhive-docs-cache/internal/sources"
	pkgsync "github.com/stacklok/toolhive-docs-cache/internal/sync"
)

func newSyncCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync the cache with the upstream once",
		Long: `Sync fetches every configured source, or the sources of the given categories,
and records what changed. With --source only that source is synced. The command
exits non-zero when any source failed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			force, _ := cmd.Flags().GetBool("force")
			categories, _ := cmd.Flags().GetStringSlice("category")
			sourceID, _ := cmd.Flags().GetString("source")
			if sourceID != "" && (force || len(categories) > 0) {
				return fmt.Errorf("--source cannot be combined with --force or --category")
			}

			return withComponents(cmd, v, func(ctx context.Context, c *docsapp.AppComponents) error {
				if sourceID != "" {
					return syncSource(ctx, cmd, v, c, sourceID)
				}

				opts := pkgsync.SyncOptions{Force: force}
				for _, category := range categories {
					opts.Categories = append(opts.Categories, sources.Category(category))
				}
				result, err := c.Service.Sync(ctx, opts)
				if err != nil {
					return err
				}
				if err := render(cmd.OutOrStdout(), v.GetString("format"), result, func(t *table) {
					fillBatch(t, result)
				}); err != nil {
					return err
				}
				if len(result.Failed) > 0 {
					return fmt.Errorf("%d of %d sources failed to sync", len(result.Failed), batchSize(result))
				}
				return nil
			})
		},
	}

	cmd.Flags().Bool("force", false, "Bypass the upstream probe and conditional requests")
	cmd.Flags().StringSlice("category", nil, "Only sync sources of these categories")
	cmd.Flags().String("source", "", "Only sync the source with this id")
	return cmd
}

func syncSource(ctx context.Context, cmd *cobra.Command, v *viper.Viper, c *docsapp.AppComponents, id string) error {
	out, err := c.Service.SyncSource(ctx, id)
	if err != nil {
		return err
	}
	if err := render(cmd.OutOrStdout(), v.GetString("format"), out, func(t *table) {
		t.headers("Source", "Result", "Fingerprint", "Size")
		t.row(out.SourceID, outcomeText(out), shortFingerprint(out.Fingerprint), humanize.Bytes(uint64(max(out.Size, 0))))
	}); err != nil {
		return err
	}
	if out.Err != nil {
		return fmt.Errorf("source %s failed to sync: %w", id, out.Err)
	}
	return nil
}

func outcomeText(out *pkgsync.Outcome) string {
	switch {
	case out.Err != nil:
		return "failed: " + out.Err.Error()
	case out.Changed:
		return string(out.Type)
	default:
		return "unchanged"
	}
}

func batchSize(r *pkgsync.BatchResult) int {
	return len(r.Updated) + len(r.Unchanged) + len(r.Failed) + len(r.Deleted)
}

func fillBatch(t *table, r *pkgsync.BatchResult) {
	t.headers("Source", "Result")
	if r.Skipped {
		t.row("*", "skipped (upstream unchanged)")
		return
	}
	for _, id := range r.Updated {
		t.row(id, "updated")
	}
	for _, id := range r.Deleted {
		t.row(id, "deleted")
	}
	for _, id := range r.Failed {
		t.row(id, "failed: "+r.Errors[id])
	}
	for _, id := range r.Unchanged {
		t.row(id, "unchanged")
	}
}

func newStatusCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the sync state of the cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withComponents(cmd, v, func(ctx context.Context, c *docsapp.AppComponents) error {
				status, err := c.Service.Status(ctx)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), v.GetString("format"), status, func(t *table) {
					t.headers("Field", "Value")
					t.row("Last check", relativeTime(status.LastCheck))
					t.row("Last update", relativeTime(status.LastUpdate))
					t.row("Last indexed", status.DataFreshness.LastIndexedRelative)
					t.row("Upstream fingerprint", shortFingerprint(status.UpstreamFingerprint))
					t.row("Configured sources", strconv.Itoa(status.ConfiguredSources))
					t.row("Tracked sources", strconv.Itoa(status.TrackedSources))
					t.row("History", fmt.Sprintf("%d/%d", status.HistoryEntries, status.HistoryCapacity))
					if status.DataFreshness.Warning != "" {
						t.row("Warning", status.DataFreshness.Warning)
					}
				})
			})
		},
	}
}

func relativeTime(ts time.Time) string {
	if ts.IsZero() {
		return "never"
	}
	return humanize.Time(ts)
}
