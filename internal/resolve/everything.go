package resolve

import (
	"slices"

	"github.com/winterop-com/fhirkit-sub003/internal/fhir"
	"github.com/winterop-com/fhirkit-sub003/internal/store"
)

// SweepOptions restrict and page a compartment sweep.
type SweepOptions struct {
	// Types restricts member types; empty keeps all.
	Types  []string
	Offset int
	// Count <= 0 returns every member.
	Count int
}

// Sweep is one page of a compartment sweep. Root leads every page; Total
// counts the root and every member.
type Sweep struct {
	Root    fhir.Identity
	Members []fhir.Identity
	Total   int
}

// Everything sweeps the compartment of root: every current record of the
// compartment member types whose configured params reference root, then
// the records reached by one hop out of the root or those members.
func (r *Resolver) Everything(v *store.View, root fhir.Identity, opts SweepOptions) (*Sweep, error) {
	if !v.Exists(root) {
		return nil, fhir.NewNotFound(root)
	}
	comp, ok := v.Registry().Catalog().Compartment(root.Type)
	if !ok {
		return nil, fhir.NewInvalidRequest("no compartment is defined for %s", root.Type)
	}

	members := newIdentitySet()
	members.add(root)
	isRoot := func(id fhir.Identity) bool { return id == root }

	for _, memberType := range comp.MemberTypes() {
		params := comp.Members[memberType]
		for _, row := range v.Rows(memberType) {
			for _, param := range params {
				if pointsAt(row, param, isRoot) {
					members.add(row.Identity)
					break
				}
			}
		}
	}

	// One-hop sources are the root and the direct members only.
	direct := slices.Clone(members.order)
	for _, hop := range comp.OneHop {
		for _, src := range direct {
			if src.Type != hop.From {
				continue
			}
			for _, target := range references(v, src, hop.Param) {
				members.add(target)
			}
		}
	}

	all := members.order[1:]
	if len(opts.Types) > 0 {
		all = slices.DeleteFunc(slices.Clone(all), func(id fhir.Identity) bool {
			return !slices.Contains(opts.Types, id.Type)
		})
	}
	start := min(opts.Offset, len(all))
	end := len(all)
	if opts.Count > 0 {
		end = min(start+opts.Count, len(all))
	}
	// The ceiling bounds the page returned, not the compartment.
	if end-start > r.limits.MaxInclude {
		return nil, fhir.NewTooCostly("compartment members", r.limits.MaxInclude)
	}
	return &Sweep{
		Root:    root,
		Members: all[start:end],
		Total:   1 + len(all),
	}, nil
}
