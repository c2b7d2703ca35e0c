package service

import (
	"context"
	"net/http"

	"github.com/winterop-com/fhirkit-sub003/internal/fhir"
	"github.com/winterop-com/fhirkit-sub003/internal/resolve"
	"github.com/winterop-com/fhirkit-sub003/internal/store"
)

// History returns every version of one record, newest first.
func (o *Operations) History(ctx context.Context, resourceType, id string) (*fhir.Bundle, error) {
	recs, err := o.store.History(ctx, resourceType, id)
	if err != nil {
		return nil, err
	}
	return o.historyBundle(recs), nil
}

// TypeHistory returns every version of every record of resourceType,
// newest first.
func (o *Operations) TypeHistory(ctx context.Context, resourceType string) (*fhir.Bundle, error) {
	recs, err := o.store.TypeHistory(ctx, resourceType)
	if err != nil {
		return nil, err
	}
	return o.historyBundle(recs), nil
}

// SystemHistory returns every version in the store, newest first.
func (o *Operations) SystemHistory(ctx context.Context) (*fhir.Bundle, error) {
	recs, err := o.store.SystemHistory(ctx)
	if err != nil {
		return nil, err
	}
	return o.historyBundle(recs), nil
}

func (o *Operations) historyBundle(recs []*store.Record) *fhir.Bundle {
	b := &fhir.Bundle{
		Type:    fhir.BundleHistory,
		Total:   fhir.IntPtr(len(recs)),
		Entries: make([]fhir.Entry, len(recs)),
	}
	for i, rec := range recs {
		b.Entries[i] = historyEntry(o.base, rec)
	}
	return b
}

// historyEntry reconstructs the interaction that produced rec: version 1
// was a create, a tombstone a delete, anything else an update.
func historyEntry(base string, rec *store.Record) fhir.Entry {
	req := &fhir.EntryRequest{Method: http.MethodPut, URL: rec.Identity.String()}
	status := http.StatusOK
	switch {
	case rec.Deleted:
		req.Method = http.MethodDelete
		status = http.StatusNoContent
	case rec.Version == 1:
		req.Method = http.MethodPost
		req.URL = rec.Identity.Type
		status = http.StatusCreated
	}
	return fhir.Entry{
		FullURL:  resolve.FullURL(base, rec.Identity),
		Resource: rec.Body,
		Request:  req,
		Response: &fhir.EntryResponse{
			Status:       fhir.StatusLine(status),
			Etag:         fhir.ETag(rec.Version),
			LastModified: fhir.FormatInstant(rec.LastUpdated),
		},
	}
}
