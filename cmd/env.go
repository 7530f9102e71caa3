package main

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/rooftop-cli/internal/aggregate"
	"github.com/sells-group/rooftop-cli/internal/boundary"
	"github.com/sells-group/rooftop-cli/internal/building"
	"github.com/sells-group/rooftop-cli/internal/config"
	"github.com/sells-group/rooftop-cli/internal/containment"
	"github.com/sells-group/rooftop-cli/internal/postgis"
	"github.com/sells-group/rooftop-cli/internal/resilience"
	"github.com/sells-group/rooftop-cli/internal/store"
)

func poolConfig() *store.PoolConfig {
	return &store.PoolConfig{MaxConns: cfg.Store.MaxConns, MinConns: cfg.Store.MinConns}
}

// openStore opens the configured results store and applies its schema.
func openStore(ctx context.Context) (store.Store, error) {
	dsn := cfg.Store.DatabaseURL
	if strings.EqualFold(cfg.Store.Driver, store.DriverSQLite) {
		dsn = cfg.Store.SQLitePath
	}
	st, err := store.Open(ctx, cfg.Store.Driver, dsn, poolConfig())
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// openPostGIS returns a PostGIS connection, reusing the results store's pool
// when the store is already PostgreSQL. The returned func releases it.
func openPostGIS(ctx context.Context, st store.Store) (*store.PostgresStore, func(), error) {
	if pg, ok := st.(*store.PostgresStore); ok {
		return pg, func() {}, nil
	}
	if cfg.Store.DatabaseURL == "" {
		return nil, nil, eris.New("postgis: store.database_url is required")
	}
	pg, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, poolConfig())
	if err != nil {
		return nil, nil, err
	}
	if err := pg.Migrate(ctx); err != nil {
		_ = pg.Close()
		return nil, nil, eris.Wrap(err, "migrate postgis")
	}
	return pg, func() { _ = pg.Close() }, nil
}

func usesPostGIS() bool {
	return !strings.EqualFold(cfg.Sources.Backend, "file")
}

func fieldMap() boundary.FieldMap {
	fm := boundary.DefaultFieldMap()
	f := cfg.Sources.Fields
	for dst, src := range map[*string]string{
		&fm.Code:      f.Code,
		&fm.Name:      f.Name,
		&fm.DeptName:  f.DeptName,
		&fm.Region:    f.Region,
		&fm.Subregion: f.Subregion,
		&fm.Area:      f.Area,
	} {
		if src != "" {
			*dst = src
		}
	}
	return fm
}

func boundaryFile() boundary.FileSource {
	return boundary.FileSource{
		Path:     cfg.Sources.Boundaries,
		Fields:   fieldMap(),
		Catalog:  cfg.Sources.RegionCatalog,
		Restrict: cfg.Sources.CatalogOnly,
	}
}

// boundarySource reads from PostGIS when a pool is given and from the
// configured boundary file otherwise.
func boundarySource(pg *store.PostgresStore) boundary.Source {
	if pg != nil {
		return postgis.NewBoundaryStore(pg.Pool())
	}
	return boundaryFile()
}

// fileSources reads both provider extracts in parallel.
func fileSources(ctx context.Context) (building.Source, building.Source, error) {
	providers := []config.ProviderConfig{cfg.Sources.ProviderA, cfg.Sources.ProviderB}
	out := make([]*building.Dataset, len(providers))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range providers {
		g.Go(func() error {
			ds, err := readDataset(gctx, p)
			if err != nil {
				return err
			}
			out[i] = ds
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return out[0], out[1], nil
}

func readDataset(ctx context.Context, p config.ProviderConfig) (*building.Dataset, error) {
	recs, _, err := building.ReadFile(ctx, p.Path, strings.ToLower(p.Format), cfg.Aggregate.MinConfidence)
	if err != nil {
		return nil, eris.Wrapf(err, "read %s", p.Name)
	}

	ds := building.NewDataset(p.Name, recs)
	if cfg.Aggregate.BuildCentroidIndex {
		if err := ds.BuildCentroidIndex(); err != nil {
			zap.L().Warn("centroid index not built", zap.String("provider", p.Name), zap.Error(err))
		}
	}
	return ds, nil
}

// postgisSources binds both providers to their PostGIS tables.
func postgisSources(pg *store.PostgresStore) (building.Source, building.Source, error) {
	var out [2]*postgis.BuildingSource
	for i, p := range []config.ProviderConfig{cfg.Sources.ProviderA, cfg.Sources.ProviderB} {
		table, err := postgis.BuildingTable(p.Table)
		if err != nil {
			return nil, nil, err
		}
		src, err := postgis.NewBuildingSource(pg.Pool(), p.Name, table, cfg.Aggregate.QueriesPerSecond)
		if err != nil {
			return nil, nil, err
		}
		out[i] = src
	}
	return out[0], out[1], nil
}

func aggregateOptions() (aggregate.Options, error) {
	mode, err := containment.ParseMode(strings.ToLower(cfg.Aggregate.Strategy))
	if err != nil {
		return aggregate.Options{}, err
	}
	a := cfg.Aggregate
	retry := resilience.FromConfig(cfg.Retry.MaxAttempts, cfg.Retry.InitialBackoffMs)
	return aggregate.Options{
		Policy: containment.Policy{
			Mode:            mode,
			ExactMaxRecords: a.ExactMaxRecords,
			RequireExact:    a.RequireExact,
		},
		Count: containment.Options{
			SampleLimit:   a.SampleLimit,
			MinConfidence: a.MinConfidence,
		},
		Retry:            retry,
		QueryTimeout:     time.Duration(a.QueryTimeoutSecs) * time.Second,
		BreakerThreshold: a.BreakerThreshold,
		BreakerCooldown:  time.Duration(a.BreakerCooldownS) * time.Second,
	}, nil
}
