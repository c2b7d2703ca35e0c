package transaction

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/winterop-com/fhirkit-sub003/internal/fhir"
	"github.com/winterop-com/fhirkit-sub003/internal/ir"
)

type opKind int

const (
	opRead opKind = iota
	opVRead
	opSearch
	opCreate
	opUpdate
	opDelete
)

// request is a decoded Bundle.entry.request.
type request struct {
	kind            opKind
	resourceType    string
	id              string
	version         int
	query           url.Values
	expectedVersion int
	body            ir.IRObject
}

// parseRequest decodes the request of e. The url is relative to the
// server base: Type, Type/id, Type/id/_history/n or Type?query.
func parseRequest(e fhir.Entry) (*request, error) {
	if e.Request == nil {
		return nil, fhir.NewInvalidRequest("entry.request is required")
	}
	method := strings.ToUpper(e.Request.Method)
	raw := strings.TrimPrefix(e.Request.URL, "/")
	if raw == "" {
		return nil, fhir.NewInvalidRequest("entry.request.url is required")
	}
	if strings.Contains(raw, "://") {
		return nil, fhir.NewInvalidRequest("entry.request.url must be relative: %q", raw)
	}

	path, rawQuery, hasQuery := strings.Cut(raw, "?")
	segs := strings.Split(path, "/")
	req := &request{resourceType: segs[0], body: e.Resource}
	if !fhir.ValidResourceType(req.resourceType) {
		return nil, fhir.NewInvalidRequest("invalid resource type in url %q", raw)
	}
	if hasQuery && method != http.MethodGet {
		return nil, fhir.NewInvalidRequest("conditional %s is not supported: %q", method, raw)
	}

	switch len(segs) {
	case 1:
	case 2:
		req.id = segs[1]
	case 4:
		if segs[2] != "_history" {
			return nil, fhir.NewInvalidRequest("malformed url %q", raw)
		}
		n, err := strconv.Atoi(segs[3])
		if err != nil || n < 1 {
			return nil, fhir.NewInvalidRequest("malformed version in url %q", raw)
		}
		req.id, req.version = segs[1], n
	default:
		return nil, fhir.NewInvalidRequest("malformed url %q", raw)
	}
	if req.id != "" && !fhir.ValidID(req.id) {
		return nil, fhir.NewInvalidRequest("invalid id in url %q", raw)
	}

	switch method {
	case http.MethodGet:
		switch {
		case req.version > 0:
			req.kind = opVRead
		case req.id != "":
			req.kind = opRead
		default:
			req.kind = opSearch
			q, err := url.ParseQuery(rawQuery)
			if err != nil {
				return nil, fhir.NewInvalidRequest("malformed query in %q: %v", raw, err)
			}
			req.query = q
		}
	case http.MethodPost:
		if req.id != "" || req.version > 0 {
			return nil, fhir.NewInvalidRequest("POST url must name a type only: %q", raw)
		}
		req.kind = opCreate
	case http.MethodPut:
		if req.id == "" || req.version > 0 {
			return nil, fhir.NewInvalidRequest("PUT url must be Type/id: %q", raw)
		}
		req.kind = opUpdate
		if e.Request.IfMatch != "" {
			v, err := fhir.ParseETag(e.Request.IfMatch)
			if err != nil {
				return nil, fhir.NewInvalidRequest("malformed ifMatch %q", e.Request.IfMatch)
			}
			req.expectedVersion = v
		}
	case http.MethodDelete:
		if req.id == "" || req.version > 0 {
			return nil, fhir.NewInvalidRequest("DELETE url must be Type/id: %q", raw)
		}
		req.kind = opDelete
	default:
		return nil, fhir.NewInvalidRequest("unsupported method %q", e.Request.Method)
	}

	if (req.kind == opCreate || req.kind == opUpdate) && req.body == nil {
		return nil, fhir.NewInvalidRequest("%s %s: entry.resource is required", method, raw)
	}
	return req, nil
}
