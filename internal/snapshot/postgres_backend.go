package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/mimic-cli/api/schemas"
)

// DBPool abstracts pgxpool.Pool so the backend can be tested with pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const (
	sqlCreateTable = `
        CREATE TABLE IF NOT EXISTS mimic_files (
            location   TEXT PRIMARY KEY,
            document   JSONB NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL
        );
    `
	sqlSelectFile = `SELECT document FROM mimic_files WHERE location = $1;`
	sqlUpsertFile = `
        INSERT INTO mimic_files (location, document, updated_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (location) DO UPDATE SET
            document = EXCLUDED.document,
            updated_at = EXCLUDED.updated_at;
    `
)

// PostgresBackend keeps one JSONB document per test file location, so a
// fleet of CI runners can share snapshots.
type PostgresBackend struct {
	pool DBPool
	log  *zap.Logger
}

// NewPostgresBackend verifies the connection and creates the table if needed.
func NewPostgresBackend(ctx context.Context, pool DBPool, logger *zap.Logger) (*PostgresBackend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, sqlCreateTable); err != nil {
		return nil, fmt.Errorf("failed to create mimic_files table: %w", err)
	}
	return &PostgresBackend{pool: pool, log: logger.Named("postgres_backend")}, nil
}

func (b *PostgresBackend) Load(ctx context.Context, location string) (*schemas.MimicFile, error) {
	var document []byte
	err := b.pool.QueryRow(ctx, sqlSelectFile, location).Scan(&document)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots for %s: %w", location, err)
	}

	var file schemas.MimicFile
	if err := codec.Unmarshal(document, &file); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, location, err)
	}
	return &file, nil
}

func (b *PostgresBackend) Store(ctx context.Context, location string, file *schemas.MimicFile) error {
	document, err := codec.Marshal(file)
	if err != nil {
		return fmt.Errorf("failed to encode snapshots: %w", err)
	}
	if _, err := b.pool.Exec(ctx, sqlUpsertFile, location, document, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to upsert snapshots for %s: %w", location, err)
	}
	b.log.Debug("Upserted snapshot document", zap.String("location", location), zap.Int("tests", len(file.Tests)))
	return nil
}
