package service

import (
	"context"

	"github.com/winterop-com/fhirkit-sub003/internal/fhir"
	"github.com/winterop-com/fhirkit-sub003/internal/resolve"
	"github.com/winterop-com/fhirkit-sub003/internal/store"
)

// Document assembles a document Bundle rooted at resourceType/id. The
// Bundle gets a fresh id, a matching urn:uuid identifier and the current
// timestamp. With document persistence enabled it is also stored as a
// Bundle record.
func (o *Operations) Document(ctx context.Context, resourceType, id string) (*fhir.Bundle, error) {
	root, err := o.identity(resourceType, id)
	if err != nil {
		return nil, err
	}

	b := &fhir.Bundle{Type: fhir.BundleDocument}
	err = o.store.View(ctx, func(v *store.View) error {
		ids, err := o.resolver.Document(v, root)
		if err != nil {
			return err
		}
		for _, id := range ids {
			rec, err := v.Read(id)
			if err != nil {
				return err
			}
			b.Entries = append(b.Entries, fhir.Entry{FullURL: resolve.FullURL(o.base, id), Resource: rec.Body})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	docID := o.ids.Generate()
	b.ID = docID
	b.Identifier = "urn:uuid:" + docID
	b.Timestamp = fhir.FormatInstant(o.now())

	if o.persistDocuments {
		rec, err := o.store.Create(ctx, "Bundle", b.ToIR())
		if err != nil {
			return nil, err
		}
		o.logger.Info("document persisted", "root", root.String(), "id", rec.Identity.ID, "entries", len(b.Entries))
	}
	return b, nil
}
