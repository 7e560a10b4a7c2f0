// Package types holds the data model shared across the indexer: revision
// identifiers, dotted revnos, persisted row shapes, and the sentinel errors
// every layer wraps with %w.
package types

import "errors"

// Sentinel errors returned by the store, interner, importer and querier.
// Callers match with errors.Is; messages are wrapped with context at each
// boundary via fmt.Errorf("...: %w", err).
var (
	// ErrNotFound is returned when a revision id or db_id is absent from
	// the store.
	ErrNotFound = errors.New("revindex: not found")

	// ErrCorruptIndex is returned when an invariant violation is
	// discovered at read or write time: a missing expected row, a cycle,
	// or a gdfo contradiction.
	ErrCorruptIndex = errors.New("revindex: corrupt index")

	// ErrConcurrentWriter is raised internally when a unique-constraint
	// violation on dotted_revno(tip, merged) is observed during an
	// Importer's insert phase. The Importer recovers from it silently;
	// it should never reach a caller.
	ErrConcurrentWriter = errors.New("revindex: concurrent writer")

	// ErrOracleFailure wraps any error raised by a RepositoryOracle.
	ErrOracleFailure = errors.New("revindex: oracle failure")

	// ErrSchemaMismatch indicates the persisted schema_version differs
	// from the code's CurrentSchemaVersion.
	ErrSchemaMismatch = errors.New("revindex: schema mismatch")
)
