// Package sqlite provides a SQLite-backed store.Checkpointer using
// github.com/mattn/go-sqlite3.
//
// One row per thread id is kept and replaced on every Put.
//
//	cp, err := sqlite.NewSqliteCheckpointStore(sqlite.SqliteOptions{Path: "./tenantflow.db"})
//	if err != nil {
//		return err
//	}
//	defer cp.Close()
package sqlite
