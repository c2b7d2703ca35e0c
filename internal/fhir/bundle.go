package fhir

import (
	"strconv"

	"github.com/winterop-com/fhirkit-sub003/internal/ir"
)

// BundleType is Bundle.type.
type BundleType string

const (
	BundleSearchset           BundleType = "searchset"
	BundleDocument            BundleType = "document"
	BundleBatch               BundleType = "batch"
	BundleTransaction         BundleType = "transaction"
	BundleBatchResponse       BundleType = "batch-response"
	BundleTransactionResponse BundleType = "transaction-response"
	BundleHistory             BundleType = "history"
)

// SearchMode is Bundle.entry.search.mode.
type SearchMode string

const (
	ModeMatch   SearchMode = "match"
	ModeInclude SearchMode = "include"
)

// Link is a Bundle.link element.
type Link struct {
	Relation string
	URL      string
}

// EntryRequest is Bundle.entry.request.
type EntryRequest struct {
	Method  string
	URL     string
	IfMatch string
}

// EntryResponse is Bundle.entry.response.
type EntryResponse struct {
	Status       string
	Location     string
	Etag         string
	LastModified string
	Outcome      ir.IRObject
}

// Entry is one Bundle entry.
type Entry struct {
	FullURL  string
	Resource ir.IRObject
	Mode     SearchMode
	Request  *EntryRequest
	Response *EntryResponse
}

// Bundle is a container of entries produced per request.
type Bundle struct {
	ID         string
	Type       BundleType
	Timestamp  string
	Identifier string // urn:uuid value of a document bundle
	Total      *int
	Links      []Link
	Entries    []Entry
}

// ToIR renders the bundle as a resource body.
func (b *Bundle) ToIR() ir.IRObject {
	out := ir.IRObject{
		"resourceType": ir.IRString("Bundle"),
		"type":         ir.IRString(b.Type),
	}
	if b.ID != "" {
		out["id"] = ir.IRString(b.ID)
	}
	if b.Timestamp != "" {
		out["timestamp"] = ir.IRString(b.Timestamp)
	}
	if b.Identifier != "" {
		out["identifier"] = ir.IRObject{
			"system": ir.IRString("urn:ietf:rfc:3986"),
			"value":  ir.IRString(b.Identifier),
		}
	}
	if b.Total != nil {
		out["total"] = ir.IRInt(*b.Total)
	}
	if len(b.Links) > 0 {
		links := make(ir.IRArray, len(b.Links))
		for i, l := range b.Links {
			links[i] = ir.IRObject{"relation": ir.IRString(l.Relation), "url": ir.IRString(l.URL)}
		}
		out["link"] = links
	}
	if len(b.Entries) > 0 {
		entries := make(ir.IRArray, len(b.Entries))
		for i, e := range b.Entries {
			entries[i] = e.toIR()
		}
		out["entry"] = entries
	}
	return out
}

func (e Entry) toIR() ir.IRObject {
	out := ir.IRObject{}
	if e.FullURL != "" {
		out["fullUrl"] = ir.IRString(e.FullURL)
	}
	if e.Resource != nil {
		out["resource"] = e.Resource
	}
	if e.Mode != "" {
		out["search"] = ir.IRObject{"mode": ir.IRString(e.Mode)}
	}
	if e.Request != nil {
		req := ir.IRObject{
			"method": ir.IRString(e.Request.Method),
			"url":    ir.IRString(e.Request.URL),
		}
		if e.Request.IfMatch != "" {
			req["ifMatch"] = ir.IRString(e.Request.IfMatch)
		}
		out["request"] = req
	}
	if e.Response != nil {
		resp := ir.IRObject{"status": ir.IRString(e.Response.Status)}
		if e.Response.Location != "" {
			resp["location"] = ir.IRString(e.Response.Location)
		}
		if e.Response.Etag != "" {
			resp["etag"] = ir.IRString(e.Response.Etag)
		}
		if e.Response.LastModified != "" {
			resp["lastModified"] = ir.IRString(e.Response.LastModified)
		}
		if e.Response.Outcome != nil {
			resp["outcome"] = e.Response.Outcome
		}
		out["response"] = resp
	}
	return out
}

// ParseBundle decodes a submitted Bundle body. Only the elements the
// executor consumes are read: type, entry.fullUrl, entry.resource and
// entry.request.
func ParseBundle(obj ir.IRObject) (*Bundle, error) {
	if rt := obj.String("resourceType"); rt != "Bundle" {
		return nil, NewInvalidRequest("expected resourceType Bundle, got %q", rt)
	}
	b := &Bundle{
		ID:   obj.String("id"),
		Type: BundleType(obj.String("type")),
	}
	raw, ok := obj["entry"]
	if !ok {
		return b, nil
	}
	entries, ok := raw.(ir.IRArray)
	if !ok {
		return nil, NewInvalidRequest("Bundle.entry must be an array")
	}
	for i, rawEntry := range entries {
		eo, ok := rawEntry.(ir.IRObject)
		if !ok {
			return nil, NewInvalidRequest("Bundle.entry[%d] must be an object", i)
		}
		e := Entry{
			FullURL:  eo.String("fullUrl"),
			Resource: eo.Object("resource"),
		}
		if req := eo.Object("request"); req != nil {
			e.Request = &EntryRequest{
				Method:  req.String("method"),
				URL:     req.String("url"),
				IfMatch: req.String("ifMatch"),
			}
		}
		b.Entries = append(b.Entries, e)
	}
	return b, nil
}

// IntPtr returns a pointer to n, for Bundle.Total.
func IntPtr(n int) *int {
	return &n
}

// VersionOf reads meta.versionId from a stamped body; 0 when absent.
func VersionOf(body ir.IRObject) int {
	v, err := strconv.Atoi(body.Object("meta").String("versionId"))
	if err != nil {
		return 0
	}
	return v
}
