package resolve

import (
	"github.com/winterop-com/fhirkit-sub003/internal/fhir"
	"github.com/winterop-com/fhirkit-sub003/internal/search"
	"github.com/winterop-com/fhirkit-sub003/internal/store"
)

// Expand returns the records added to primary by includes and revincludes,
// deduplicated against each other and against primary, in discovery order.
//
// The first round applies every spec to primary. Each further round applies
// only the iterate specs to the records added by the previous round, up to
// MaxDepth rounds. More than MaxInclude additions is TooCostly.
func (r *Resolver) Expand(v *store.View, primary []fhir.Identity, includes, revincludes []search.IncludeSpec) ([]fhir.Identity, error) {
	if len(includes) == 0 && len(revincludes) == 0 {
		return nil, nil
	}

	seen := newIdentitySet()
	for _, id := range primary {
		seen.add(id)
	}
	added := newIdentitySet()

	frontier := primary
	for round := 0; len(frontier) > 0 && round < r.limits.MaxDepth; round++ {
		var next []fhir.Identity
		add := func(id fhir.Identity) error {
			if !seen.add(id) {
				return nil
			}
			added.add(id)
			next = append(next, id)
			if len(added.order) > r.limits.MaxInclude {
				return fhir.NewTooCostly("included resources", r.limits.MaxInclude)
			}
			return nil
		}

		for _, spec := range includes {
			if round > 0 && !spec.Iterate {
				continue
			}
			for _, target := range r.forward(v, frontier, spec) {
				if err := add(target); err != nil {
					return nil, err
				}
			}
		}

		inFrontier := make(map[fhir.Identity]bool, len(frontier))
		for _, id := range frontier {
			inFrontier[id] = true
		}
		for _, spec := range revincludes {
			if round > 0 && !spec.Iterate {
				continue
			}
			targets := func(id fhir.Identity) bool {
				return inFrontier[id] && (spec.TargetType == "" || id.Type == spec.TargetType)
			}
			for _, source := range r.reverse(v, spec, targets) {
				if err := add(source); err != nil {
					return nil, err
				}
			}
		}

		frontier = next
	}

	return added.order, nil
}

// forward follows spec.Param (or every reference param for a wildcard) out
// of the SourceType records of frontier.
func (r *Resolver) forward(v *store.View, frontier []fhir.Identity, spec search.IncludeSpec) []fhir.Identity {
	var out []fhir.Identity
	for _, id := range frontier {
		if id.Type != spec.SourceType {
			continue
		}
		for _, param := range specParams(v, spec) {
			for _, target := range references(v, id, param) {
				if spec.TargetType != "" && target.Type != spec.TargetType {
					continue
				}
				out = append(out, target)
			}
		}
	}
	return out
}

// reverse returns the current SourceType records whose spec.Param points at
// an identity accepted by targets, in creation order.
func (r *Resolver) reverse(v *store.View, spec search.IncludeSpec, targets func(fhir.Identity) bool) []fhir.Identity {
	params := specParams(v, spec)
	var out []fhir.Identity
	for _, row := range v.Rows(spec.SourceType) {
		for _, param := range params {
			if pointsAt(row, param, targets) {
				out = append(out, row.Identity)
				break
			}
		}
	}
	return out
}

func specParams(v *store.View, spec search.IncludeSpec) []string {
	if spec.Wildcard {
		return v.Registry().Catalog().ReferenceParams(spec.SourceType)
	}
	return []string{spec.Param}
}
