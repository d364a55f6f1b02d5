package storage

import (
	"context"
	"fmt"

	"resume-matcher/internal/config"

	"go.uber.org/zap"
)

// Open connects the configured backend.
func Open(ctx context.Context, cfg config.IndexConfig, log *zap.Logger) (VectorIndex, error) {
	switch cfg.Backend {
	case "", "sqlite":
		return NewSQLiteIndex(cfg.SQLitePath, cfg.Dimension, log)
	case "postgres":
		return NewPostgresIndex(ctx, cfg.PostgresDSN, cfg.Dimension, log)
	default:
		return nil, fmt.Errorf("unknown index backend %q", cfg.Backend)
	}
}
