package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/risk-sentinel/sentinel-cli/internal/model"
	"github.com/risk-sentinel/sentinel-cli/internal/registry"
	"github.com/risk-sentinel/sentinel-cli/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "sentinel.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openStore initializes and migrates the configured backend.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// loadRun fetches a specific run, or the most recent one when runID is
// empty.
func loadRun(ctx context.Context, st store.Store, runID string) (*model.AnalysisRun, error) {
	if runID != "" {
		run, err := st.GetRun(ctx, runID)
		return run, eris.Wrapf(err, "get run %s", runID)
	}
	run, err := st.LatestRun(ctx)
	if eris.Is(err, store.ErrNotFound) {
		return nil, eris.Wrap(err, "no analysis runs recorded; run `sentinel analyze` first")
	}
	return run, eris.Wrap(err, "latest run")
}

func loadTaxonomy() (*registry.Taxonomy, error) {
	if cfg.Registry.TaxonomyPath != "" {
		return registry.LoadTaxonomyFromFile(cfg.Registry.TaxonomyPath)
	}
	return registry.LoadTaxonomy()
}

func loadFrameworks() ([]model.ComplianceFramework, error) {
	if cfg.Registry.FrameworksPath != "" {
		return registry.LoadFrameworksFromFile(cfg.Registry.FrameworksPath)
	}
	return registry.LoadFrameworks()
}
