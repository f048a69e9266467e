// Package cache defines the persistent content store shared by the
// interception loader and the orchestration manager. Records are keyed by
// manifest key and carry the content hash they were downloaded under; the
// store itself never compares hashes against a manifest, callers do that
// through Matches so both sides apply one validity rule.
//
// The SQLite implementation keeps two tables: cached_assets (one row per
// key, secondary indexes on hash, cached_at, size and path) and
// manifest_info (a single row holding the last-known manifest version). The
// schema version is fixed at 1; opening a database with another version
// fails instead of migrating. Exactly one writer process is allowed, guarded
// by a lock file next to the database; readers open it read-only.
package cache
