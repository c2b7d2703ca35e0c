// Package persist provides SQLite-backed durability for the version ledger.
//
// Every committed ledger entry becomes one row of ledger_entries keyed by
// its seq. A store commit writes all of its entries in one SQLite
// transaction, so a crash never leaves half a fhirkit transaction on disk.
// On open the store replays rows in seq order; the ledger rejects gaps in
// either seq or per-identity versions.
//
// # Drivers
//
//   - "sqlite3": github.com/mattn/go-sqlite3 (cgo)
//   - "sqlite":  modernc.org/sqlite (pure Go)
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Bodies are stored as JSON with sorted keys next to their content hash
// (ir.BodyHash); Load verifies the hash of every body it returns.
package persist
