package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	docsapp "github.com/stacklok/toolhive-docs-cache/internal/app"
)

const defaultGracefulTimeout = 30 * time.Second

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the docs cache server",
		Long: `Start the docs cache server. The background scheduler keeps the cache in sync
with the upstream and the REST API serves cached content, search, history and
sync controls.

The server requires a configuration file (--config) that lists the sources and
the upstream they are fetched from. See examples/ for sample configurations.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, v)
		},
	}

	cmd.Flags().String("address", ":8080", "Address to listen on")
	cmd.Flags().String("data-dir", "", "Directory for file and sqlite storage when the configuration sets no path")
	cmd.Flags().Duration("graceful-timeout", defaultGracefulTimeout, "Time allowed for shutdown")
	bindFlags(v, cmd.Flags(), "address", "data-dir", "graceful-timeout")

	return cmd
}

func runServe(cmd *cobra.Command, v *viper.Viper) error {
	cfg, flush, err := loadConfig(v)
	if err != nil {
		return err
	}
	defer func() { _ = flush() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []docsapp.DocsAppOptions{
		docsapp.WithConfig(cfg),
		docsapp.WithAddress(v.GetString("address")),
	}
	if dir := v.GetString("data-dir"); dir != "" {
		opts = append(opts, docsapp.WithDataDirectory(dir))
	}

	app, err := docsapp.NewDocsApp(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to build docs cache: %w", err)
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- app.Start(context.WithoutCancel(ctx))
	}()

	select {
	case err := <-errChan:
		if stopErr := app.Stop(v.GetDuration("graceful-timeout")); stopErr != nil {
			slog.Error("Shutdown failed", "error", stopErr)
		}
		return err
	case <-ctx.Done():
	}

	if err := app.Stop(v.GetDuration("graceful-timeout")); err != nil {
		return err
	}
	return <-errChan
}
