package main

import (
	"context"

	"github.com/spf13/cobra"

	"capplan/internal/app"
)

func newReconcileCmd(opts *rootOptions) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Reinsert allocations recorded as created in history but missing from the live set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app.App) error {
				rep, res, err := a.Service.Reconcile(ctx, dryRun)
				if err != nil {
					return err
				}
				return report(cmd.OutOrStdout(), rep, res)
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report without writing")
	return cmd
}

func newNormalizeCmd(opts *rootOptions) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "normalize",
		Short: "Rename legacy field names in the canonical document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app.App) error {
				rep, res, err := a.Service.Normalize(ctx, dryRun)
				if err != nil {
					return err
				}
				return report(cmd.OutOrStdout(), rep, res)
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report without writing")
	return cmd
}

func newMigrateIDsCmd(opts *rootOptions) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "migrate-ids",
		Short: "Replace non-UUID identifiers with deterministic UUIDv5 values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app.App) error {
				rep, res, err := a.Service.MigrateIDs(ctx, dryRun)
				if err != nil {
					return err
				}
				return report(cmd.OutOrStdout(), rep, res)
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report without writing")
	return cmd
}

func newRecoverCmd(opts *rootOptions) *cobra.Command {
	var write bool
	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Salvage the balanced prefix of a truncated canonical document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app.App) error {
				rep, res, err := a.Service.Recover(ctx, write)
				if err != nil {
					return err
				}
				return report(cmd.OutOrStdout(), rep, res)
			})
		},
	}
	cmd.Flags().BoolVar(&write, "write", false, "replace the canonical file with the recovered document")
	return cmd
}
