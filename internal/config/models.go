package config

import (
	"errors"
	"fmt"
	"time"
)

// Config is the full application configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Data    DataConfig    `mapstructure:"data"`
	Logging LoggingConfig `mapstructure:"logging"`
	Mirror  MirrorConfig  `mapstructure:"mirror"`
	Archive ArchiveConfig `mapstructure:"archive"`
}

// Validate ensures required fields are present and driver names are known.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return errors.New("server.port is required")
	}
	if c.Data.File == "" {
		return errors.New("data.file is required")
	}
	if c.Data.BackupKeep < 1 {
		return errors.New("data.backup_keep must be at least 1")
	}
	switch c.Logging.Output {
	case "stdout", "file":
	default:
		return fmt.Errorf("logging.output %q is not stdout or file", c.Logging.Output)
	}
	switch c.Mirror.Driver {
	case "none", "", "memory", "sqlite":
	case "postgres":
		if c.Mirror.PostgresDSN == "" {
			return errors.New("mirror.postgres_dsn is required for the postgres mirror")
		}
	default:
		return fmt.Errorf("unknown mirror.driver %q", c.Mirror.Driver)
	}
	if c.Archive.Keep < 0 {
		return errors.New("archive.keep must be zero or positive")
	}
	switch c.Archive.Driver {
	case "none", "", "memory", "fs":
	case "s3":
		if c.Archive.S3Bucket == "" {
			return errors.New("archive.s3_bucket is required for the s3 archive")
		}
	default:
		return fmt.Errorf("unknown archive.driver %q", c.Archive.Driver)
	}
	return nil
}

// ServerAddr returns host:port for HTTP server binding.
func (c Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// ServerConfig contains HTTP server options.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// HTTPConfig contains transport settings.
type HTTPConfig struct {
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// DataConfig locates the canonical document and tunes the write path.
type DataConfig struct {
	File           string        `mapstructure:"file"`
	BackupKeep     int           `mapstructure:"backup_keep"`
	RecoverOnLoad  bool          `mapstructure:"recover_on_load"`
	ExportEnabled  bool          `mapstructure:"export_enabled"`
	ExportKeep     int           `mapstructure:"export_keep"`
	ExportWorkbook bool          `mapstructure:"export_workbook"`
	SinkTimeout    time.Duration `mapstructure:"sink_timeout"`
}

// LoggingConfig contains logger preferences.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Output     string `mapstructure:"output"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// MirrorConfig selects the relational mirror.
type MirrorConfig struct {
	Driver      string `mapstructure:"driver"`
	SQLitePath  string `mapstructure:"sqlite_path"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
	// OnWrite pushes every committed document to the mirror.
	OnWrite bool `mapstructure:"on_write"`
}

// ArchiveConfig selects the offsite backup archive.
type ArchiveConfig struct {
	Driver      string `mapstructure:"driver"`
	FSRoot      string `mapstructure:"fs_root"`
	S3Bucket    string `mapstructure:"s3_bucket"`
	S3Region    string `mapstructure:"s3_region"`
	S3Endpoint  string `mapstructure:"s3_endpoint"`
	S3PathStyle bool   `mapstructure:"s3_path_style"`
	Keep        int    `mapstructure:"keep"`
}
