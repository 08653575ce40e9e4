package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"capplan/internal/app"
)

func newExportCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Write one tabular export of the current document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app.App) error {
				if err := a.Service.Export(ctx, a.Exporter); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "export written next to", a.Writer.Store().Path())
				return nil
			})
		},
	}
}
