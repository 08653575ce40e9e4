package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"capplan/internal/app"
)

func newBackupsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backups",
		Short: "List and restore document backups",
	}
	var archived bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List backups, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app.App) error {
				var (
					names []string
					err   error
				)
				if archived {
					names, err = a.Service.ArchivedBackups(ctx)
				} else {
					names, err = a.Service.Backups(ctx)
				}
				if err != nil {
					return err
				}
				for _, n := range names {
					fmt.Fprintln(cmd.OutOrStdout(), n)
				}
				return nil
			})
		},
	}
	list.Flags().BoolVar(&archived, "archived", false, "list the offsite archive instead of local files")

	restore := &cobra.Command{
		Use:   "restore <name>",
		Short: "Replace the canonical document with a backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app.App) error {
				res, err := a.Service.Restore(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), outcomeOf(res))
			})
		},
	}
	cmd.AddCommand(list, restore)
	return cmd
}
