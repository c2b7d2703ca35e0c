// Package ledger implements the append-only version history that backs the
// resource store: dense per-identity versions, tombstones, a logical seq
// clock, and header-copy snapshots for transaction rollback.
package ledger
