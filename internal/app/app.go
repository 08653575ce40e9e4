// Package app wires the capacity components from configuration. The server
// and every CLI subcommand share one App, so all mutations go through the
// same write serializer.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"capplan/internal/backup"
	"capplan/internal/blob"
	"capplan/internal/config"
	"capplan/internal/document"
	"capplan/internal/export"
	"capplan/internal/infra/persistence"
	"capplan/internal/server"
	"capplan/internal/service"
	"capplan/internal/writer"
	"capplan/pkg/capacity"
)

// App holds the wired components.
type App struct {
	Config   *config.Config
	Registry *prometheus.Registry
	Writer   *writer.Serializer
	Service  *service.Service
	Exporter *export.Exporter
	Mirror   persistence.Mirror
	Archive  *backup.Archive

	log *zap.SugaredLogger
}

// New builds the components described by cfg.
func New(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) (*App, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	store, err := document.NewStore(cfg.Data.File, document.Options{RecoverOnLoad: cfg.Data.RecoverOnLoad}, log)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a := &App{Config: cfg, Registry: reg, log: log}
	var sinks []writer.Sink

	a.Exporter = export.New(store.Path(), export.Options{Keep: cfg.Data.ExportKeep, Workbook: cfg.Data.ExportWorkbook}, log)
	if cfg.Data.ExportEnabled {
		sinks = append(sinks, writer.PushSink(capacity.StepExport, a.Exporter))
	}

	a.Mirror, err = persistence.Open(ctx, persistence.Config{
		Driver:      cfg.Mirror.Driver,
		SQLitePath:  cfg.Mirror.SQLitePath,
		PostgresDSN: cfg.Mirror.PostgresDSN,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("open mirror: %w", err)
	}
	if a.Mirror != nil && cfg.Mirror.OnWrite {
		sinks = append(sinks, writer.PushSink(capacity.StepMirror, a.Mirror))
	}

	blobStore, err := blob.Open(ctx, blob.Config{
		Driver:      cfg.Archive.Driver,
		FSRoot:      cfg.Archive.FSRoot,
		S3Bucket:    cfg.Archive.S3Bucket,
		S3Region:    cfg.Archive.S3Region,
		S3Endpoint:  cfg.Archive.S3Endpoint,
		S3PathStyle: cfg.Archive.S3PathStyle,
	})
	if err != nil {
		a.closeMirror()
		return nil, fmt.Errorf("open archive: %w", err)
	}
	a.Archive = backup.NewArchive(blobStore, log).WithRetention(cfg.Archive.Keep)
	if a.Archive != nil {
		sinks = append(sinks, writer.ArchiveSink(a.Archive))
	}

	a.Writer = writer.New(store, backup.NewRotation(store.Path(), cfg.Data.BackupKeep, log), writer.Options{
		SinkTimeout: cfg.Data.SinkTimeout,
		Sinks:       sinks,
		Metrics:     writer.NewMetrics(reg),
	}, log)
	a.Service = service.New(a.Writer, service.Options{Archive: a.Archive, Mirror: a.Mirror}, log)

	log.Infow("components ready",
		"file", store.Path(),
		"backup_keep", cfg.Data.BackupKeep,
		"export", cfg.Data.ExportEnabled,
		"mirror", cfg.Mirror.Driver,
		"archive", cfg.Archive.Driver,
	)
	return a, nil
}

// Server builds the HTTP surface.
func (a *App) Server() *server.Server {
	return server.New(a.Service, server.Options{
		RequestTimeout: a.Config.HTTP.RequestTimeout,
		Gatherer:       a.Registry,
	}, a.log)
}

// Close drains pending writes and releases the mirror.
func (a *App) Close(ctx context.Context) error {
	err := a.Writer.Close(ctx)
	if a.Mirror != nil {
		err = errors.Join(err, a.Mirror.Close())
	}
	return err
}

func (a *App) closeMirror() {
	if a.Mirror != nil {
		_ = a.Mirror.Close()
	}
}
