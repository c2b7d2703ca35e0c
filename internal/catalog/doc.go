// Package catalog loads the declarative resource catalog: per-type search
// parameters, compartment membership for $everything, the reference map
// walked by $document, and _summary element sets.
//
// The catalog is written in CUE and embedded in the binary. Deployments can
// unify an overlay file into it to declare more types or parameters.
package catalog
