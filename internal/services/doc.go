// Package services defines the shared error taxonomy for the pipeline.
//
// Errors are tagged with sentinel markers so callers can classify failures
// without string matching: transient environment failures are retried with
// backoff, per-file failures are recorded and skipped, permanent dispatch
// failures are surfaced once, and configuration errors abort startup.
package services
