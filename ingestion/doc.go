// Package ingestion implements the tabular upload graph: per-record
// validation, a strategy choice between schema rules and model-assisted
// normalization, and a save step with a bounded retry loop. Relational
// kinds are written through a Repository (memory, SQLite or PostgreSQL);
// articles go to a vector store.
package ingestion
