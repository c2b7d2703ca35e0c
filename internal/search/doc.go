// Package search implements the parameter index: value extraction for
// token, string, date, reference and number parameters, query parsing,
// filter matching, stable multi-key sorting, pagination and projection.
//
// The index holds one immutable Row per current record. The store keeps it
// in step with the ledger inside its write critical section; snapshots copy
// only the row tables.
package search
