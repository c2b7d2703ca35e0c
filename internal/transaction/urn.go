package transaction

import (
	"strings"

	"github.com/winterop-com/fhirkit-sub003/internal/fhir"
	"github.com/winterop-com/fhirkit-sub003/internal/ir"
	"github.com/winterop-com/fhirkit-sub003/internal/store"
)

const urnPrefix = "urn:uuid:"

// rewriteURNs assigns server ids to POST entries whose fullUrl is a
// urn:uuid and rewrites every reference to such a fullUrl, in every entry
// body, to the assigned Type/id. Bodies are copied before rewriting.
func rewriteURNs(tx *store.Tx, entries []fhir.Entry, reqs []*request) map[string]string {
	targets := make(map[string]string)
	for i, e := range entries {
		if reqs[i].kind != opCreate || !strings.HasPrefix(e.FullURL, urnPrefix) {
			continue
		}
		if _, dup := targets[e.FullURL]; dup {
			continue
		}
		id := tx.NewID()
		body := ir.CloneObject(reqs[i].body)
		body["id"] = ir.IRString(id)
		reqs[i].body = body
		targets[e.FullURL] = fhir.NewIdentity(reqs[i].resourceType, id).String()
	}
	if len(targets) == 0 {
		return targets
	}

	for _, req := range reqs {
		if req.body == nil {
			continue
		}
		req.body = ir.CloneObject(req.body)
		ir.Walk(req.body, func(obj ir.IRObject) {
			if to, ok := targets[obj.String("reference")]; ok {
				obj["reference"] = ir.IRString(to)
			}
		})
	}
	return targets
}
