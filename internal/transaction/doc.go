// Package transaction executes batch and transaction Bundles against the
// store.
//
// A batch runs every entry as an independent store operation and reports a
// response per entry. A transaction runs every entry inside one store.Tx:
//
//	Idle -> SnapshotTaken -> Applying -> Committed
//	                                  -> RolledBack
//
// The first failing entry rolls the whole Tx back and the executor returns
// fhir.TransactionAborted citing the zero-based index of that entry.
package transaction
