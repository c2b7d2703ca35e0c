package service

import (
	"context"
	"net/url"
	"strconv"

	"github.com/winterop-com/fhirkit-sub003/internal/fhir"
	"github.com/winterop-com/fhirkit-sub003/internal/resolve"
	"github.com/winterop-com/fhirkit-sub003/internal/search"
	"github.com/winterop-com/fhirkit-sub003/internal/store"
)

// Search evaluates params over resourceType and returns a searchset with
// self, next and previous links.
func (o *Operations) Search(ctx context.Context, resourceType string, params url.Values) (*fhir.Bundle, error) {
	q, err := search.ParseQuery(o.store.Registry(), resourceType, params, o.limits)
	if err != nil {
		return nil, err
	}

	var page *resolve.Page
	err = o.store.View(ctx, func(v *store.View) error {
		var err error
		page, err = o.resolver.Search(v, q)
		return err
	})
	if err != nil {
		return nil, err
	}

	b := page.Bundle(o.base, o.store.Registry().Catalog())
	b.Links = o.pageLinks(resourceType, params, q.Offset, q.Count, page.Total, q.Summary == search.SummaryCount)
	return b, nil
}

// Expand returns the records the include and revinclude specs add to
// primary, deduplicated against primary.
func (o *Operations) Expand(ctx context.Context, primary []fhir.Identity, includes, revincludes []search.IncludeSpec) ([]fhir.Identity, error) {
	var out []fhir.Identity
	err := o.store.View(ctx, func(v *store.View) error {
		var err error
		out, err = o.resolver.Expand(v, primary, includes, revincludes)
		return err
	})
	return out, err
}

// pageLinks renders self plus next when records remain after this page
// and previous when the page does not start at zero. Count-only results
// get self alone.
func (o *Operations) pageLinks(path string, params url.Values, offset, count, total int, countOnly bool) []fhir.Link {
	links := []fhir.Link{{Relation: "self", URL: o.link(path, params)}}
	if countOnly || count <= 0 {
		return links
	}
	if offset+count < total {
		links = append(links, fhir.Link{Relation: "next", URL: o.link(path, withPage(params, offset+count, count))})
	}
	if offset > 0 {
		links = append(links, fhir.Link{Relation: "previous", URL: o.link(path, withPage(params, max(offset-count, 0), count))})
	}
	return links
}

func (o *Operations) link(path string, params url.Values) string {
	u := path
	if o.base != "" {
		u = o.base + "/" + path
	}
	if enc := params.Encode(); enc != "" {
		u += "?" + enc
	}
	return u
}

func withPage(params url.Values, offset, count int) url.Values {
	out := make(url.Values, len(params)+2)
	for k, v := range params {
		out[k] = v
	}
	out.Set("_offset", strconv.Itoa(offset))
	out.Set("_count", strconv.Itoa(count))
	return out
}
