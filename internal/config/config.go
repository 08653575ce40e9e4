// Package config loads application configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultEnvFile is read, when present, before the environment.
const DefaultEnvFile = ".env"

// EnvPrefix prefixes every environment variable, e.g. CAPPLAN_SERVER_PORT.
const EnvPrefix = "CAPPLAN"

// Load reads configuration from envFile (optional) and the environment, with
// typed defaults and validation. Variables already set in the environment win
// over the file.
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = DefaultEnvFile
	}
	if envMap, err := godotenv.Read(envFile); err == nil {
		for k, val := range envMap {
			if _, exists := os.LookupEnv(k); !exists {
				_ = os.Setenv(k, val)
			}
		}
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var keys = []string{
	"server.host",
	"server.port",
	"server.shutdown_timeout",
	"http.request_timeout",
	"data.file",
	"data.backup_keep",
	"data.recover_on_load",
	"data.export_enabled",
	"data.export_keep",
	"data.export_workbook",
	"data.sink_timeout",
	"logging.level",
	"logging.output",
	"logging.path",
	"logging.max_size_mb",
	"logging.max_backups",
	"mirror.driver",
	"mirror.sqlite_path",
	"mirror.postgres_dsn",
	"mirror.on_write",
	"archive.driver",
	"archive.fs_root",
	"archive.s3_bucket",
	"archive.s3_region",
	"archive.s3_endpoint",
	"archive.s3_path_style",
	"archive.keep",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3001)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)

	v.SetDefault("http.request_timeout", 10*time.Second)

	v.SetDefault("data.file", "./data/capacity.json")
	v.SetDefault("data.backup_keep", 10)
	v.SetDefault("data.recover_on_load", false)
	v.SetDefault("data.export_enabled", true)
	v.SetDefault("data.export_keep", 10)
	v.SetDefault("data.export_workbook", true)
	v.SetDefault("data.sink_timeout", 5*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.path", "./logs")
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 5)

	v.SetDefault("mirror.driver", "none")
	v.SetDefault("mirror.sqlite_path", "./data/capacity.db")
	v.SetDefault("mirror.postgres_dsn", "")
	v.SetDefault("mirror.on_write", true)

	v.SetDefault("archive.driver", "none")
	v.SetDefault("archive.fs_root", "./archive")
	v.SetDefault("archive.s3_bucket", "")
	v.SetDefault("archive.s3_region", "us-east-1")
	v.SetDefault("archive.s3_endpoint", "")
	v.SetDefault("archive.s3_path_style", false)
	v.SetDefault("archive.keep", 0)
}
