package blob

import (
	"context"
	"fmt"

	"capplan/internal/infra/blob/fs"
	"capplan/internal/infra/blob/memory"
	"capplan/internal/infra/blob/s3"
)

// Config selects and parameterizes the archive backend.
type Config struct {
	Driver      string
	FSRoot      string
	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3PathStyle bool
}

// Open returns the configured store, or nil when the driver is "none" or empty.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch Driver(cfg.Driver) {
	case "", DriverNone:
		return nil, nil
	case DriverFilesystem:
		st, err := fs.New(cfg.FSRoot)
		if err != nil {
			return nil, err
		}
		return st, nil
	case DriverS3:
		st, err := s3.New(ctx, s3.Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			PathStyle: cfg.S3PathStyle,
		})
		if err != nil {
			return nil, err
		}
		return st, nil
	case DriverMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Driver)
	}
}
