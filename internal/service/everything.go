package service

import (
	"context"
	"net/url"
	"strings"

	"github.com/winterop-com/fhirkit-sub003/internal/fhir"
	"github.com/winterop-com/fhirkit-sub003/internal/resolve"
	"github.com/winterop-com/fhirkit-sub003/internal/search"
	"github.com/winterop-com/fhirkit-sub003/internal/store"
)

// everythingParams are the parameters $everything accepts. All but _type
// share their meaning with search.
var everythingParams = map[string]bool{
	"_type":     true,
	"_count":    true,
	"_offset":   true,
	"_elements": true,
	"_summary":  true,
}

// Everything returns the compartment of resourceType/id as a searchset:
// the root first with mode match, then one page of members with mode
// include. Total counts the root and every member.
func (o *Operations) Everything(ctx context.Context, resourceType, id string, params url.Values) (*fhir.Bundle, error) {
	root, err := o.identity(resourceType, id)
	if err != nil {
		return nil, err
	}

	control := url.Values{}
	var types []string
	for name, values := range params {
		if !everythingParams[name] {
			return nil, fhir.NewInvalidRequest("unsupported $everything parameter %q", name)
		}
		if name != "_type" {
			control[name] = values
			continue
		}
		for _, raw := range values {
			for _, t := range strings.Split(raw, ",") {
				if !fhir.ValidResourceType(t) {
					return nil, fhir.NewInvalidRequest("invalid _type %q", t)
				}
				types = append(types, t)
			}
		}
	}
	q, err := search.ParseQuery(o.store.Registry(), resourceType, control, o.limits)
	if err != nil {
		return nil, err
	}

	cat := o.store.Registry().Catalog()
	proj := search.ProjectionOf(q)
	countOnly := q.Summary == search.SummaryCount
	b := &fhir.Bundle{Type: fhir.BundleSearchset}

	err = o.store.View(ctx, func(v *store.View) error {
		opts := resolve.SweepOptions{Types: types, Offset: q.Offset, Count: q.Count}
		sweep, err := o.resolver.Everything(v, root, opts)
		if err != nil {
			return err
		}
		b.Total = fhir.IntPtr(sweep.Total)
		if countOnly {
			return nil
		}

		rec, err := v.Read(sweep.Root)
		if err != nil {
			return err
		}
		b.Entries = append(b.Entries, resolve.Entry(o.base, rec, proj.Apply(cat, rec.Body), fhir.ModeMatch))
		for _, member := range sweep.Members {
			rec, err := v.Read(member)
			if err != nil {
				return err
			}
			b.Entries = append(b.Entries, resolve.Entry(o.base, rec, proj.Apply(cat, rec.Body), fhir.ModeInclude))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Links page over members; the root is not counted against _count.
	b.Links = o.pageLinks(root.String()+"/$everything", params, q.Offset, q.Count, *b.Total-1, countOnly)
	return b, nil
}
