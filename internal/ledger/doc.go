// Package ledger persists pipeline state in SQLite: the append-once
// processed-file ledger and the outbound report queue with its retry
// counters.
//
// The processed_files table is the restart-safety contract: one row per
// file identity, written by the processing engine before a result is handed
// downstream and never updated afterwards. The reports table carries each
// sealed window through dispatch; attempt counts are persisted per attempt
// so a restart resumes the backoff schedule instead of starting over.
//
// Schema changes bump schemaVersion in schema.go; operators clear the state
// directory to adopt a new schema.
package ledger
