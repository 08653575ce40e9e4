// Package persistence selects the relational mirror of the capacity document.
package persistence

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"capplan/internal/infra/persistence/memory"
	"capplan/internal/infra/persistence/postgres"
	"capplan/internal/infra/persistence/snapshot"
	"capplan/internal/infra/persistence/sqlite"
	"capplan/pkg/capacity"
)

// Driver identifiers accepted by Open.
const (
	DriverNone     = "none"
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ErrEmpty is returned by Pull when nothing has been pushed.
var ErrEmpty = snapshot.ErrEmpty

// Mirror is a secondary copy of the document. The JSON file stays canonical.
type Mirror interface {
	Driver() string
	Push(ctx context.Context, doc capacity.Document) error
	Pull(ctx context.Context) (capacity.Document, error)
	Close() error
}

// Config selects and parameterizes a mirror.
type Config struct {
	Driver      string
	SQLitePath  string
	PostgresDSN string
}

// Open returns the configured mirror, or nil when the driver is none.
func Open(ctx context.Context, cfg Config, log *zap.SugaredLogger) (Mirror, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", DriverNone:
		return nil, nil
	case DriverMemory:
		return memory.New(), nil
	case DriverSQLite:
		s, err := sqlite.Open(ctx, cfg.SQLitePath, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverPostgres:
		s, err := postgres.Open(ctx, cfg.PostgresDSN, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: unknown mirror driver %q", capacity.ErrInvalidArgument, cfg.Driver)
	}
}
