package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formsurge/internal/config"
)

// Open builds the backend selected in cfg. The returned close func releases
// any pooled connections and is never nil.
func Open(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (Store, func(), error) {
	switch strings.ToLower(cfg.Backend) {
	case config.StoreBackendPostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, func() {}, fmt.Errorf("failed to create database pool: %w", err)
		}
		s, err := NewPostgresStore(ctx, pool, logger)
		if err != nil {
			pool.Close()
			return nil, func() {}, err
		}
		return s, pool.Close, nil
	case config.StoreBackendFile, "":
		s, err := NewFileStore(cfg.CacheDir, logger)
		if err != nil {
			return nil, func() {}, err
		}
		return s, func() {}, nil
	default:
		return nil, func() {}, fmt.Errorf("unsupported store backend %q", cfg.Backend)
	}
}
