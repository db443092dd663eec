// Package logging builds the slog loggers used across rapidkrill.
//
// Two output formats are supported: a human-oriented console handler for
// interactive runs and a JSON handler for unattended deployments where the
// log file is the primary record. Helpers wrap slog attribute constructors
// so call sites stay terse, and NewNop returns a logger whose output is
// discarded for tests.
package logging
