// Package postgres provides a PostgreSQL-backed store.Checkpointer using
// github.com/jackc/pgx/v5.
//
// The pool is held behind the DBPool interface so tests can supply
// github.com/pashagolub/pgxmock/v3.
//
//	cp, err := postgres.NewPostgresCheckpointStore(ctx, postgres.PostgresOptions{
//		ConnString: "postgres://localhost:5432/tenantflow",
//	})
package postgres
