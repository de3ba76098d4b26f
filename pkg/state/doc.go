// Package state persists the live-state representation the driver owns:
// versioned snapshots of policy definitions and assignments, scope locks,
// run records, events, an audit trail, and the inventory of admitted
// resources.
//
// The backend is a SQLite database (modernc.org/sqlite, WAL mode) with a
// schema managed by golang-migrate from embedded migration files. Snapshot
// writes are transactional read-modify-write operations guarded by a
// monotonic serial: a write whose expected serial does not match the
// stored one fails with ErrStaleSerial and changes nothing. Locks are one
// row per scope with a UNIQUE constraint, so mutual exclusion is enforced
// by the schema rather than by convention.
package state
