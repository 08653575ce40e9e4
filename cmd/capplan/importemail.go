package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"capplan/internal/app"
)

func newImportEmailCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import-email <file|->",
		Short: "Create a project from a HubSpot deal e-mail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				content []byte
				err     error
			)
			if args[0] == "-" {
				content, err = io.ReadAll(cmd.InOrStdin())
			} else {
				content, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fmt.Errorf("read e-mail: %w", err)
			}
			return opts.run(cmd, func(ctx context.Context, a *app.App) error {
				project, res, err := a.Service.ImportHubSpotEmail(ctx, string(content))
				if err != nil {
					return err
				}
				return report(cmd.OutOrStdout(), project, res)
			})
		},
	}
}
