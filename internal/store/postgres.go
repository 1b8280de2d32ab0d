package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formsurge/internal/formschema"
)

// DBPool abstracts pgxpool.Pool so the store can be tested with pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	sqlCreateTable = `
        CREATE TABLE IF NOT EXISTS form_schemas (
            form_key     TEXT PRIMARY KEY,
            form_url     TEXT NOT NULL,
            schema       JSONB NOT NULL,
            extracted_at TIMESTAMPTZ NOT NULL
        );
    `
	sqlSelectSchema = `
        SELECT schema FROM form_schemas WHERE form_key = $1;
    `
	sqlUpsertSchema = `
        INSERT INTO form_schemas (form_key, form_url, schema, extracted_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (form_key) DO UPDATE SET
            form_url = EXCLUDED.form_url,
            schema = EXCLUDED.schema,
            extracted_at = EXCLUDED.extracted_at;
    `
)

// PostgresStore keeps schemas in the form_schemas table.
type PostgresStore struct {
	pool DBPool
	log  *zap.Logger
	now  func() time.Time
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore verifies the connection and creates the table if missing.
func NewPostgresStore(ctx context.Context, pool DBPool, logger *zap.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, sqlCreateTable); err != nil {
		return nil, fmt.Errorf("failed to ensure form_schemas table: %w", err)
	}
	return &PostgresStore{pool: pool, log: logger.Named("store"), now: time.Now}, nil
}

// Load fetches the schema row for formURL.
func (s *PostgresStore) Load(ctx context.Context, formURL string) (*formschema.Schema, error) {
	key := KeyForURL(formURL)

	var raw []byte
	if err := s.pool.QueryRow(ctx, sqlSelectSchema, key).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query schema %s: %w", key, err)
	}

	schema, err := decodeSchema(raw)
	if err != nil {
		s.log.Warn("Ignoring unusable stored schema.", zap.String("form_key", key), zap.Error(err))
		return nil, ErrNotFound
	}
	if schema.FormURL == "" {
		schema.FormURL = formURL
	}
	return schema, nil
}

// Save upserts the schema row.
func (s *PostgresStore) Save(ctx context.Context, schema *formschema.Schema) error {
	if schema == nil {
		return errors.New("cannot save a nil schema")
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("failed to encode schema: %w", err)
	}

	extractedAt := schema.ExtractedAt
	if extractedAt.IsZero() {
		extractedAt = s.now()
	}

	key := KeyForURL(schema.FormURL)
	if _, err := s.pool.Exec(ctx, sqlUpsertSchema, key, schema.FormURL, data, extractedAt.UTC()); err != nil {
		return fmt.Errorf("failed to upsert schema %s: %w", key, err)
	}
	s.log.Info("Schema stored.", zap.String("form_key", key))
	return nil
}
