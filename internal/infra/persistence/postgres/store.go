// Package postgres mirrors the document into PostgreSQL, one JSONB row per
// collection.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"capplan/internal/infra/persistence/snapshot"
	"capplan/pkg/capacity"
)

//go:embed migrations/*.sql
var migrations embed.FS

// DefaultTimeout bounds connect and migrate.
const DefaultTimeout = 30 * time.Second

// Store is a PostgreSQL-backed mirror.
type Store struct {
	pool *pgxpool.Pool
	log  *zap.SugaredLogger
}

// Open connects to dsn and applies pending migrations.
func Open(ctx context.Context, dsn string, log *zap.SugaredLogger) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn required")
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}
	connectCtx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(connectCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping pool: %w", err)
	}
	if err := migrate(connectCtx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool, log: log.Named("mirror.postgres")}, nil
}

func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer func() { _ = db.Close() }()
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, sub)
	if err != nil {
		return fmt.Errorf("configure goose: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Driver names the mirror backend.
func (s *Store) Driver() string { return "postgres" }

// Push replaces every collection row in one transaction.
func (s *Store) Push(ctx context.Context, doc capacity.Document) error {
	buckets, err := snapshot.Buckets(doc)
	if err != nil {
		return err
	}
	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, b := range buckets {
			batch.Queue(`INSERT INTO collections(name, payload, updated_at) VALUES($1, $2::jsonb, now())
				ON CONFLICT(name) DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`,
				string(b.Name), string(b.Payload))
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("push collections: %w", err)
	}
	s.log.Debugw("mirror pushed", "collections", len(buckets))
	return nil
}

// Pull reads the mirrored document.
func (s *Store) Pull(ctx context.Context) (capacity.Document, error) {
	rows, err := s.pool.Query(ctx, `SELECT name, payload::text FROM collections`)
	if err != nil {
		return capacity.Document{}, fmt.Errorf("select collections: %w", err)
	}
	buckets, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (snapshot.Bucket, error) {
		var name, payload string
		if err := row.Scan(&name, &payload); err != nil {
			return snapshot.Bucket{}, err
		}
		return snapshot.Bucket{Name: capacity.CollectionName(name), Payload: []byte(payload)}, nil
	})
	if err != nil {
		return capacity.Document{}, fmt.Errorf("scan collections: %w", err)
	}
	return snapshot.Assemble(buckets)
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
