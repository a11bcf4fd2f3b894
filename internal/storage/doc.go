// Package storage keeps the job journal: one record per finished job, for
// auditing and the debug endpoint.
//
// Drivers:
//   - "file": JSON Lines, append-only
//   - "sqlite": SQLite database file (pure Go driver)
//   - "" or "none": disabled
package storage
