// Package app provides the command line interface of the docs cache.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	docsapp "github.com/stacklok/toolhive-docs-cache/internal/app"
	"github.com/stacklok/toolhive-docs-cache/internal/config"
	"github.com/stacklok/toolhive-docs-cache/internal/logging"
	"github.com/stacklok/toolhive-docs-cache/internal/versions"
)

// NewRootCmd creates the root command. Flags fall back to THV_DOCS_* environment variables.
func NewRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(config.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	rootCmd := &cobra.Command{
		Use:               "thv-docs-cache",
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		Short:             "ToolHive documentation cache",
		Long: `ToolHive documentation cache keeps a local copy of a fixed set of documentation
pages in sync with their upstream, records what changed, and serves the cached
content and search results over a REST API.`,
		Run: func(cmd *cobra.Command, _ []string) {
			if err := cmd.Help(); err != nil {
				slog.Error("Error displaying help", "error", err)
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Path to configuration file (YAML format)")
	flags.Bool("debug", false, "Enable debug logging")
	flags.StringP("format", "o", formatTable, "Output format (table, json, yaml)")
	bindFlags(v, flags, "config", "debug", "format")

	rootCmd.AddCommand(
		newServeCmd(v),
		newSyncCmd(v),
		newStatusCmd(v),
		newHistoryCmd(v),
		newStaleCmd(v),
		newSourcesCmd(v),
		newSearchCmd(v),
		newExportCmd(v),
		newImportCmd(v),
		newValidateCmd(v),
		newVersionCmd(v),
	)

	return rootCmd
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet, names ...string) {
	for _, name := range names {
		if err := v.BindPFlag(name, flags.Lookup(name)); err != nil {
			slog.Error("Error binding flag", "flag", name, "error", err)
		}
	}
}

func newVersionCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := versions.GetVersionInfo()
			return render(cmd.OutOrStdout(), v.GetString("format"), info, func(t *table) {
				t.row("Version", info.Version)
				t.row("Commit", info.Commit)
				t.row("Built", info.BuildDate)
				t.row("Go", info.GoVersion)
				t.row("Platform", info.Platform)
			})
		},
	}
}

func newValidateCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, flush, err := loadConfig(v)
			if err != nil {
				return err
			}
			defer func() { _ = flush() }()

			return render(cmd.OutOrStdout(), v.GetString("format"), cfg, func(t *table) {
				t.headers("Field", "Value")
				t.row("Name", cfg.GetName())
				t.row("Sources", strconv.Itoa(len(cfg.Sources)))
				t.row("Upstream", cfg.Upstream.Type)
				t.row("Storage", cfg.Storage.GetType())
				t.row("Check interval", cfg.Scheduler.GetCheckInterval().String())
				t.row("Force interval", cfg.Scheduler.GetForceInterval().String())
			})
		},
	}
}

// loadConfig reads the configuration file and applies its logging section
func loadConfig(v *viper.Viper) (*config.Config, func() error, error) {
	path := v.GetString("config")
	if path == "" {
		return nil, nil, fmt.Errorf("a configuration file is required (--config or %s_CONFIG)", config.EnvPrefix)
	}

	cfg, err := config.LoadConfig(config.WithConfigPath(path))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	level := logging.ParseLevel(cfg.Logging.Level)
	if v.GetBool("debug") {
		level = slog.LevelDebug
	}
	flush := logging.Setup(logging.Options{
		Level:      level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})

	slog.Info("Loaded configuration", "path", path, "name", cfg.GetName(), "sources", len(cfg.Sources))
	return cfg, flush, nil
}

// withComponents builds the components for a one-shot command and releases them afterwards
func withComponents(
	cmd *cobra.Command,
	v *viper.Viper,
	fn func(ctx context.Context, c *docsapp.AppComponents) error,
) error {
	cfg, flush, err := loadConfig(v)
	if err != nil {
		return err
	}
	defer func() { _ = flush() }()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	components, err := docsapp.NewComponents(ctx, docsapp.WithConfig(cfg))
	if err != nil {
		return err
	}
	defer func() {
		if err := components.Close(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("Failed to release components", "error", err)
		}
	}()

	return fn(ctx, components)
}
