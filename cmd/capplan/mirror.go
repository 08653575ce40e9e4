package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"capplan/internal/app"
)

func newMirrorCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mirror",
		Short: "Copy the document to or from the relational mirror",
	}
	push := &cobra.Command{
		Use:   "push",
		Short: "Copy the canonical document into the mirror",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app.App) error {
				if err := a.Service.MirrorPush(ctx); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "pushed to %s mirror\n", a.Mirror.Driver())
				return nil
			})
		},
	}
	pull := &cobra.Command{
		Use:   "pull",
		Short: "Replace the canonical document with the mirrored copy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app.App) error {
				res, err := a.Service.MirrorPull(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), outcomeOf(res))
			})
		},
	}
	cmd.AddCommand(push, pull)
	return cmd
}
