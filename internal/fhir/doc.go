// Package fhir defines the wire vocabulary shared by the store and its
// callers: record identities and reference literals, the error taxonomy,
// OperationOutcome, Bundle shapes and record metadata stamping.
package fhir
