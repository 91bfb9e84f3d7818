package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	docsapp "github.com/stacklok/toolhive-docs-cache/internal/app"
)

func newExportCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the sync state as a JSON snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			output, _ := cmd.Flags().GetString("output")
			return withComponents(cmd, v, func(ctx context.Context, c *docsapp.AppComponents) error {
				data, err := c.Service.Export(ctx)
				if err != nil {
					return err
				}
				if output == "" || output == "-" {
					_, err = cmd.OutOrStdout().Write(data)
					return err
				}
				if err := os.WriteFile(output, data, 0o600); err != nil {
					return fmt.Errorf("failed to write snapshot: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Snapshot written to %s\n", output)
				return nil
			})
		},
	}

	cmd.Flags().String("output", "", "File to write the snapshot to (default stdout)")
	return cmd
}

func newImportCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Replace the sync state with a JSON snapshot (use - for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readSnapshot(cmd, args[0])
			if err != nil {
				return err
			}
			return withComponents(cmd, v, func(ctx context.Context, c *docsapp.AppComponents) error {
				if err := c.Service.Import(ctx, data); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Snapshot imported from %s\n", args[0])
				return nil
			})
		},
	}
}

func readSnapshot(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("failed to read snapshot from stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return data, nil
}
