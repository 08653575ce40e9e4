package main

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"capplan/internal/app"
	"capplan/internal/config"
	"capplan/internal/logger"
	"capplan/internal/writer"
)

type rootOptions struct {
	envFile  string
	dataFile string
	logLevel string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "capplan",
		Short:         "Capacity planning document server and maintenance tool",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", config.DefaultEnvFile, "optional dotenv file read before the environment")
	cmd.PersistentFlags().StringVar(&opts.dataFile, "data-file", "", "canonical document path (overrides data.file)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (overrides logging.level)")

	cmd.AddCommand(
		newServeCmd(opts),
		newReconcileCmd(opts),
		newNormalizeCmd(opts),
		newMigrateIDsCmd(opts),
		newRecoverCmd(opts),
		newBackupsCmd(opts),
		newImportEmailCmd(opts),
		newMirrorCmd(opts),
		newExportCmd(opts),
	)
	return cmd
}

// load reads configuration and applies flag overrides.
func (o *rootOptions) load() (*config.Config, *zap.SugaredLogger, error) {
	cfg, err := config.Load(o.envFile)
	if err != nil {
		return nil, nil, err
	}
	if o.dataFile != "" {
		cfg.Data.File = o.dataFile
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	log, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

// run wires the components, runs fn, then drains the writer.
func (o *rootOptions) run(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, log, err := o.load()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	runErr := fn(ctx, a)
	closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.Close(closeCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeOutcome summarizes a write for CLI output.
type writeOutcome struct {
	Written bool    `json:"written"`
	Backup  *string `json:"backup,omitempty"`
}

func outcomeOf(res writer.Result) writeOutcome {
	out := writeOutcome{Written: !res.Skipped}
	if res.Backup != nil {
		name := res.Backup.Name
		out.Backup = &name
	}
	return out
}

func report(w io.Writer, v any, res writer.Result) error {
	return printJSON(w, struct {
		Report any          `json:"report"`
		Write  writeOutcome `json:"write"`
	}{Report: v, Write: outcomeOf(res)})
}
