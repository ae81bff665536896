package repo

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"fetchd/internal/domain"
	"fetchd/internal/infra"
)

// OpenStore builds the job store selected by cfg.StoreBackend. The returned
// close func releases the database pool when one was opened.
func OpenStore(ctx context.Context, cfg *infra.Config, logger zerolog.Logger) (domain.JobStore, func(), error) {
	switch cfg.StoreBackend {
	case infra.StoreBackendPostgres:
		pg, closeFn, err := OpenPostgres(ctx, cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			closeFn()
			return nil, nil, err
		}
		return pg, closeFn, nil
	default:
		store, err := NewJobFileRepository(cfg.RecordsDir, cfg.LocksDir, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	}
}

// OpenPostgres connects the postgres store without touching the schema.
func OpenPostgres(ctx context.Context, cfg *infra.Config, logger zerolog.Logger) (*JobRepositoryPG, func(), error) {
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("repo: open postgres: %w", err)
	}
	return NewJobRepository(infra.NewSQLRunner(pool, logger), logger), pool.Close, nil
}
