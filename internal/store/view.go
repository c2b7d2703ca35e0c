package store

import (
	"github.com/winterop-com/fhirkit-sub003/internal/fhir"
	"github.com/winterop-com/fhirkit-sub003/internal/ledger"
	"github.com/winterop-com/fhirkit-sub003/internal/search"
)

// View is read access to a consistent store state. A View is only valid
// inside the Store.View callback or while its Tx is open.
type View struct {
	s *Store
}

// Registry returns the search parameter registry.
func (v *View) Registry() *search.Registry {
	return v.s.index.Registry()
}

// Read returns the current version of id. Deleted records are NotFound.
func (v *View) Read(id fhir.Identity) (*Record, error) {
	e, ok := v.s.ledger.Current(id)
	if !ok {
		return nil, fhir.NewNotFound(id)
	}
	return recordOf(e), nil
}

// Exists reports whether id is live.
func (v *View) Exists(id fhir.Identity) bool {
	_, ok := v.s.ledger.Current(id)
	return ok
}

// ReadVersion returns version of id, including tombstones.
func (v *View) ReadVersion(id fhir.Identity, version int) (*Record, error) {
	e, err := v.s.ledger.Get(id, version)
	if err != nil {
		return nil, err
	}
	return recordOf(e), nil
}

// History returns every version of id, newest first.
func (v *View) History(id fhir.Identity) ([]*Record, error) {
	entries, err := v.s.ledger.History(id)
	if err != nil {
		return nil, err
	}
	return records(entries), nil
}

// TypeHistory returns every entry of resourceType, newest first.
func (v *View) TypeHistory(resourceType string) []*Record {
	return records(v.s.ledger.TypeHistory(resourceType))
}

// SystemHistory returns every entry, newest first.
func (v *View) SystemHistory() []*Record {
	return records(v.s.ledger.SystemHistory())
}

// Search evaluates q against the index.
func (v *View) Search(q *search.Query) search.Result {
	return v.s.index.Search(q)
}

// Row returns the index row of a live record.
func (v *View) Row(id fhir.Identity) (*search.Row, bool) {
	return v.s.index.Row(id)
}

// Rows returns the index rows of resourceType in creation order.
func (v *View) Rows(resourceType string) []*search.Row {
	return v.s.index.Rows(resourceType)
}

func records(entries []*ledger.Entry) []*Record {
	out := make([]*Record, len(entries))
	for i, e := range entries {
		out[i] = recordOf(e)
	}
	return out
}
