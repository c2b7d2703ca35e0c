// Package store is the resource store: the version ledger and the search
// index behind one store-wide lock.
//
// Readers run concurrently under the read lock through View. Every mutation
// runs inside a Tx, which holds the write lock from Begin until Commit or
// Rollback. Begin captures a snapshot of the ledger chains and index rows;
// Rollback reinstalls it verbatim, so version numbering resumes exactly where
// it stood before the transaction.
//
// # Write path
//
// A write computes the next version, stamps the body, builds its index row
// and only then appends to the ledger and installs the row. Validation
// failures therefore never leave partial state behind, even outside a
// transaction.
//
// # Persistence
//
// A Persister receives the entries a Tx appended when it commits. If the
// persister fails the Tx is rolled back. Recover replays persisted entries
// into an empty store in seq order and rebuilds the index.
package store
