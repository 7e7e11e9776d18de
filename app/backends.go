package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/smallnest/tenantflow/config"
	"github.com/smallnest/tenantflow/ingestion"
	"github.com/smallnest/tenantflow/log"
	"github.com/smallnest/tenantflow/rag"
	"github.com/smallnest/tenantflow/store"
	badgerstore "github.com/smallnest/tenantflow/store/badger"
	memorystore "github.com/smallnest/tenantflow/store/memory"
	pgstore "github.com/smallnest/tenantflow/store/postgres"
	redisstore "github.com/smallnest/tenantflow/store/redis"
	sqlitestore "github.com/smallnest/tenantflow/store/sqlite"
)

func noopClose() error { return nil }

// newCheckpointer opens the configured snapshot backend.
func newCheckpointer(ctx context.Context, cfg config.CheckpointerConfig, logger log.Logger) (store.Checkpointer, func() error, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return memorystore.NewMemoryCheckpointStoreWithOptions(memorystore.Options{
			Capacity: cfg.Capacity,
			TTL:      cfg.TTL,
		}), noopClose, nil

	case config.BackendRedis:
		cp := redisstore.NewRedisCheckpointStore(redisstore.RedisOptions{Addr: cfg.DSN, TTL: cfg.TTL})
		return cp, cp.Close, nil

	case config.BackendSQLite:
		cp, err := sqlitestore.NewSqliteCheckpointStore(sqlitestore.SqliteOptions{Path: cfg.DSN})
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite checkpointer: %w", err)
		}
		return cp, cp.Close, nil

	case config.BackendPostgres:
		cp, err := pgstore.NewPostgresCheckpointStore(ctx, pgstore.PostgresOptions{ConnString: cfg.DSN})
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres checkpointer: %w", err)
		}
		return cp, func() error { cp.Close(); return nil }, nil

	case config.BackendBadger:
		cp, err := badgerstore.NewBadgerCheckpointStore(badgerstore.BadgerOptions{Path: cfg.DSN, TTL: cfg.TTL, Logger: logger})
		if err != nil {
			return nil, nil, fmt.Errorf("open badger checkpointer: %w", err)
		}
		return cp, cp.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown checkpointer backend %q", cfg.Backend)
}

// newRepositories builds one repository per data kind. Articles always go
// to vectors.
func newRepositories(ctx context.Context, cfg config.IngestionConfig, vectors rag.VectorStore) (ingestion.Repositories, func() error, error) {
	repos := ingestion.Repositories{
		ingestion.KindArticles: ingestion.NewVectorRepository(vectors, ingestion.KindArticles),
	}
	relational := []ingestion.Kind{ingestion.KindPlayers, ingestion.KindTeams, ingestion.KindMatches}

	switch cfg.Repository {
	case config.BackendMemory:
		for _, k := range relational {
			repos[k] = ingestion.NewMemoryRepository()
		}
		return repos, noopClose, nil

	case config.BackendSQLite:
		db, err := ingestion.OpenSQLite(cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		for _, k := range relational {
			r, err := ingestion.NewSQLiteRepository(ctx, db, k)
			if err != nil {
				db.Close()
				return nil, nil, err
			}
			repos[k] = r
		}
		return repos, db.Close, nil

	case config.BackendPostgres:
		pool, err := pgxpool.New(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("unable to create connection pool: %w", err)
		}
		for _, k := range relational {
			r, err := ingestion.NewPostgresRepository(ctx, pool, k)
			if err != nil {
				pool.Close()
				return nil, nil, err
			}
			repos[k] = r
		}
		return repos, func() error { pool.Close(); return nil }, nil
	}
	return nil, nil, fmt.Errorf("unknown repository backend %q", cfg.Repository)
}
