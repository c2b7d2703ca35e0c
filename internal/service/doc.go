// Package service is the operation surface of the store: single-record
// CRUD, history, search, $everything and $document, batch and
// transaction. Results that travel as Bundles are rendered here, with
// fullUrl values relative to the configured base URL.
//
// Reader is the read-only subset consumed by the terminology adapter.
package service
