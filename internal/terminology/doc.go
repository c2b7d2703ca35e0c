// Package terminology answers code lookups and value set membership
// checks from CodeSystem and ValueSet records held in the store.
//
// It only reads: definitions are fetched by canonical url through
// service.Reader and decoded into github.com/gofhir/fhir/r4 types on
// every call, so edits to a CodeSystem or ValueSet take effect at once.
package terminology
