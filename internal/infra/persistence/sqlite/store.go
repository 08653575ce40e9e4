// Package sqlite mirrors the document into an embedded SQLite database, one
// row per collection.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // pure go sqlite driver

	"capplan/internal/infra/persistence/snapshot"
	"capplan/pkg/capacity"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store is a SQLite-backed mirror.
type Store struct {
	db   *sql.DB
	path string
	log  *zap.SugaredLogger
}

// Open creates (if needed) and migrates the database at path.
func Open(ctx context.Context, path string, log *zap.SugaredLogger) (*Store, error) {
	if path == "" {
		path = "capacity.db"
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer; avoids SQLITE_BUSY between pooled connections
	db.SetMaxOpenConns(1)
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, path: path, log: log.Named("mirror.sqlite")}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, sub)
	if err != nil {
		return fmt.Errorf("configure goose: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Driver names the mirror backend.
func (s *Store) Driver() string { return "sqlite" }

// Push replaces every collection row in one transaction.
func (s *Store) Push(ctx context.Context, doc capacity.Document) (retErr error) {
	buckets, err := snapshot.Buckets(doc)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, b := range buckets {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO collections(name,payload,updated_at) VALUES(?,?,?)
			 ON CONFLICT(name) DO UPDATE SET payload=excluded.payload, updated_at=excluded.updated_at`,
			string(b.Name), b.Payload, now); err != nil {
			return fmt.Errorf("upsert %s: %w", b.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.log.Debugw("mirror pushed", "collections", len(buckets))
	return nil
}

// Pull reads the mirrored document.
func (s *Store) Pull(ctx context.Context) (capacity.Document, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, payload FROM collections`)
	if err != nil {
		return capacity.Document{}, fmt.Errorf("select collections: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var buckets []snapshot.Bucket
	for rows.Next() {
		var name string
		var payload []byte
		if err := rows.Scan(&name, &payload); err != nil {
			return capacity.Document{}, fmt.Errorf("scan: %w", err)
		}
		buckets = append(buckets, snapshot.Bucket{Name: capacity.CollectionName(name), Payload: payload})
	}
	if err := rows.Err(); err != nil {
		return capacity.Document{}, fmt.Errorf("iterate collections: %w", err)
	}
	return snapshot.Assemble(buckets)
}

// DB exposes the underlying sql.DB for tests.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close releases the database.
func (s *Store) Close() error { return s.db.Close() }
