package search

import (
	"cmp"
	"slices"
	"strings"

	"github.com/winterop-com/fhirkit-sub003/internal/fhir"
	"github.com/winterop-com/fhirkit-sub003/internal/ir"
)

// Row holds the extracted values of one current record.
// Rows are immutable; an update replaces the row.
type Row struct {
	Identity fhir.Identity
	// Created is the ledger seq of version 1 and the base result order.
	Created int64
	Values  map[string][]Value
}

// Index is the secondary index over every current, non-deleted record.
//
// Index is not safe for concurrent use. The store maintains it inside the
// same critical section as the ledger append.
type Index struct {
	reg  *Registry
	rows map[string]map[string]*Row
}

// NewIndex creates an empty index.
func NewIndex(reg *Registry) *Index {
	return &Index{reg: reg, rows: make(map[string]map[string]*Row)}
}

// Registry returns the parameter registry.
func (x *Index) Registry() *Registry {
	return x.reg
}

// Build extracts a row for body without installing it, so a caller can
// fail before mutating anything.
func (x *Index) Build(id fhir.Identity, created int64, body ir.IRObject) (*Row, error) {
	vals, err := x.reg.Extract(id.Type, body)
	if err != nil {
		return nil, err
	}
	return &Row{Identity: id, Created: created, Values: vals}, nil
}

// Put installs row, replacing the previous row of the same identity.
func (x *Index) Put(row *Row) {
	byID := x.rows[row.Identity.Type]
	if byID == nil {
		byID = make(map[string]*Row)
		x.rows[row.Identity.Type] = byID
	}
	byID[row.Identity.ID] = row
}

// Remove retracts every value of id.
func (x *Index) Remove(id fhir.Identity) {
	delete(x.rows[id.Type], id.ID)
}

// Row returns the current row of id.
func (x *Index) Row(id fhir.Identity) (*Row, bool) {
	r, ok := x.rows[id.Type][id.ID]
	return r, ok
}

// Rows returns every row of resourceType in creation order.
func (x *Index) Rows(resourceType string) []*Row {
	byID := x.rows[resourceType]
	out := make([]*Row, 0, len(byID))
	for _, r := range byID {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b *Row) int { return cmp.Compare(a.Created, b.Created) })
	return out
}

// Result is the ordered page of matching identities and the filtered total.
type Result struct {
	IDs   []fhir.Identity
	Total int
}

// Search evaluates q: filter, sort, then paginate. Total counts every match
// before pagination.
func (x *Index) Search(q *Query) Result {
	var matched []*Row
	for _, r := range x.Rows(q.ResourceType) {
		if x.matches(r, q.Filters) {
			matched = append(matched, r)
		}
	}
	if len(q.Sort) > 0 {
		slices.SortStableFunc(matched, func(a, b *Row) int {
			return compareRows(a, b, q.Sort)
		})
	}

	res := Result{Total: len(matched), IDs: []fhir.Identity{}}
	start := min(q.Offset, len(matched))
	end := len(matched)
	if q.Count > 0 {
		end = min(start+q.Count, len(matched))
	}
	for _, r := range matched[start:end] {
		res.IDs = append(res.IDs, r.Identity)
	}
	return res
}

func (x *Index) matches(r *Row, filters []Filter) bool {
	for _, f := range filters {
		if !f.Matches(r.Values[f.Param.Name]) {
			return false
		}
	}
	return true
}

// compareRows orders by each sort key in turn. A record without a value
// for a key sorts after every record that has one, in both directions.
func compareRows(a, b *Row, keys []SortKey) int {
	for _, k := range keys {
		av, bv := a.Values[k.Param.Name], b.Values[k.Param.Name]
		switch {
		case len(av) == 0 && len(bv) == 0:
			continue
		case len(av) == 0:
			return 1
		case len(bv) == 0:
			return -1
		}
		c := compareValues(av[0], bv[0])
		if c == 0 {
			continue
		}
		if k.Descending {
			return -c
		}
		return c
	}
	return 0
}

func compareValues(a, b Value) int {
	switch av := a.(type) {
	case StringValue:
		bv, _ := b.(StringValue)
		if c := strings.Compare(av.Folded, bv.Folded); c != 0 {
			return c
		}
		return strings.Compare(av.Raw, bv.Raw)
	case TokenValue:
		bv, _ := b.(TokenValue)
		if c := strings.Compare(strings.ToLower(av.Code), strings.ToLower(bv.Code)); c != 0 {
			return c
		}
		return strings.Compare(av.System, bv.System)
	case DateValue:
		bv, _ := b.(DateValue)
		if c := av.Lo.Compare(bv.Lo); c != 0 {
			return c
		}
		return av.Hi.Compare(bv.Hi)
	case NumberValue:
		bv, _ := b.(NumberValue)
		return cmp.Compare(av.Value, bv.Value)
	case ReferenceValue:
		bv, _ := b.(ReferenceValue)
		return strings.Compare(av.Raw, bv.Raw)
	}
	return 0
}

// Snapshot is an opaque copy of the index row tables.
type Snapshot struct {
	rows map[string]map[string]*Row
}

// Snapshot captures the current row tables. Rows are shared.
func (x *Index) Snapshot() *Snapshot {
	return &Snapshot{rows: cloneRows(x.rows)}
}

// Restore reinstalls s.
func (x *Index) Restore(s *Snapshot) {
	x.rows = cloneRows(s.rows)
}

func cloneRows(src map[string]map[string]*Row) map[string]map[string]*Row {
	out := make(map[string]map[string]*Row, len(src))
	for t, byID := range src {
		cp := make(map[string]*Row, len(byID))
		for id, r := range byID {
			cp[id] = r
		}
		out[t] = cp
	}
	return out
}
