package resolve

import (
	"github.com/winterop-com/fhirkit-sub003/internal/catalog"
	"github.com/winterop-com/fhirkit-sub003/internal/fhir"
	"github.com/winterop-com/fhirkit-sub003/internal/ir"
	"github.com/winterop-com/fhirkit-sub003/internal/search"
	"github.com/winterop-com/fhirkit-sub003/internal/store"
)

// Page is a materialized search result: the matching page plus the
// records its includes pulled in.
type Page struct {
	Query    *search.Query
	Total    int
	Matches  []*store.Record
	Included []*store.Record
}

// Search runs q and materializes its page. Under _summary=count nothing is
// materialized and includes are not expanded.
func (r *Resolver) Search(v *store.View, q *search.Query) (*Page, error) {
	res := v.Search(q)
	page := &Page{Query: q, Total: res.Total}
	if q.Summary == search.SummaryCount {
		return page, nil
	}

	var err error
	if page.Matches, err = readAll(v, res.IDs); err != nil {
		return nil, err
	}
	included, err := r.Expand(v, res.IDs, q.Include, q.RevInclude)
	if err != nil {
		return nil, err
	}
	if page.Included, err = readAll(v, included); err != nil {
		return nil, err
	}
	return page, nil
}

// Bundle renders the page as a searchset. Projection applies to matches
// and included records alike; total is omitted under _total=none.
func (p *Page) Bundle(base string, cat *catalog.Catalog) *fhir.Bundle {
	b := &fhir.Bundle{Type: fhir.BundleSearchset}
	if !p.Query.NoTotal || p.Query.Summary == search.SummaryCount {
		b.Total = fhir.IntPtr(p.Total)
	}
	proj := search.ProjectionOf(p.Query)
	for _, rec := range p.Matches {
		b.Entries = append(b.Entries, Entry(base, rec, proj.Apply(cat, rec.Body), fhir.ModeMatch))
	}
	for _, rec := range p.Included {
		b.Entries = append(b.Entries, Entry(base, rec, proj.Apply(cat, rec.Body), fhir.ModeInclude))
	}
	return b
}

// Entry builds a bundle entry for rec with the given rendered body.
func Entry(base string, rec *store.Record, body ir.IRObject, mode fhir.SearchMode) fhir.Entry {
	return fhir.Entry{FullURL: FullURL(base, rec.Identity), Resource: body, Mode: mode}
}

// FullURL joins base and id. An empty base yields the relative Type/id.
func FullURL(base string, id fhir.Identity) string {
	if base == "" {
		return id.String()
	}
	return base + "/" + id.String()
}

func readAll(v *store.View, ids []fhir.Identity) ([]*store.Record, error) {
	out := make([]*store.Record, 0, len(ids))
	for _, id := range ids {
		rec, err := v.Read(id)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
