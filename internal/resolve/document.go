package resolve

import (
	"github.com/winterop-com/fhirkit-sub003/internal/fhir"
	"github.com/winterop-com/fhirkit-sub003/internal/store"
)

// Document returns root followed by every record reachable from it through
// the catalog's document params, breadth first. Each record appears once
// even when references form cycles. Records MaxDepth hops from the root
// are included; their references are not followed.
func (r *Resolver) Document(v *store.View, root fhir.Identity) ([]fhir.Identity, error) {
	if !v.Exists(root) {
		return nil, fhir.NewNotFound(root)
	}
	cat := v.Registry().Catalog()

	visited := newIdentitySet()
	visited.add(root)
	frontier := []fhir.Identity{root}

	for depth := 0; depth < r.limits.MaxDepth && len(frontier) > 0; depth++ {
		var next []fhir.Identity
		for _, id := range frontier {
			for _, param := range cat.DocumentParams(id.Type) {
				for _, target := range references(v, id, param) {
					if visited.add(target) {
						next = append(next, target)
					}
				}
			}
		}
		frontier = next
	}

	if n := len(frontier); n > 0 {
		r.logger.Debug("document truncated at depth limit", "root", root.String(), "unexpanded", n)
	}
	return visited.order, nil
}
