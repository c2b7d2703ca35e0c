package search

import (
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/gofhir/fhirpath"

	"github.com/winterop-com/fhirkit-sub003/internal/catalog"
	"github.com/winterop-com/fhirkit-sub003/internal/ir"
)

// Parameters every resource type supports.
var commonParams = map[string]catalog.Param{
	"_id":          {Name: "_id", Type: catalog.TypeToken, Paths: []string{"id"}},
	"_lastUpdated": {Name: "_lastUpdated", Type: catalog.TypeDate, Paths: []string{"meta.lastUpdated"}},
}

// Registry resolves search parameters for each resource type and extracts
// their values from bodies.
//
// FHIRPath expressions are compiled once when the registry is built and
// cached; evaluation runs against the JSON encoding of the body.
//
// Thread-safety: Registry is safe for concurrent use.
type Registry struct {
	cat *catalog.Catalog

	mu    sync.RWMutex
	exprs map[string]*fhirpath.Expression
}

// NewRegistry builds a registry over cat and compiles every expression it
// declares. A malformed expression fails construction.
func NewRegistry(cat *catalog.Catalog) (*Registry, error) {
	r := &Registry{
		cat:   cat,
		exprs: make(map[string]*fhirpath.Expression),
	}
	for _, t := range cat.Types() {
		for _, p := range cat.Params(t) {
			if p.Expression == "" {
				continue
			}
			if _, err := r.compiled(p.Expression); err != nil {
				return nil, fmt.Errorf("search param %s.%s: %w", t, p.Name, err)
			}
		}
	}
	return r, nil
}

// Catalog returns the catalog the registry was built from.
func (r *Registry) Catalog() *catalog.Catalog {
	return r.cat
}

// Lookup finds a param by name, including the common params.
func (r *Registry) Lookup(resourceType, name string) (catalog.Param, bool) {
	if p, ok := commonParams[name]; ok {
		return p, true
	}
	return r.cat.Param(resourceType, name)
}

// Params returns every param of resourceType, common params included,
// sorted by name.
func (r *Registry) Params(resourceType string) []catalog.Param {
	declared := r.cat.Params(resourceType)
	out := make([]catalog.Param, 0, len(declared)+len(commonParams))
	for _, p := range commonParams {
		out = append(out, p)
	}
	for _, p := range declared {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b catalog.Param) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})
	return out
}

// Extract computes the index values of every param of resourceType from body.
// Params that yield no values are absent from the result.
func (r *Registry) Extract(resourceType string, body ir.IRObject) (map[string][]Value, error) {
	out := make(map[string][]Value)
	var encoded []byte

	for _, p := range r.Params(resourceType) {
		var nodes []ir.IRValue
		if p.Expression != "" {
			if encoded == nil {
				var err error
				if encoded, err = json.Marshal(body); err != nil {
					return nil, fmt.Errorf("encode body: %w", err)
				}
			}
			var err error
			if nodes, err = r.evaluate(p.Expression, encoded); err != nil {
				return nil, fmt.Errorf("search param %s.%s: %w", resourceType, p.Name, err)
			}
		} else {
			for _, path := range p.Paths {
				nodes = append(nodes, ir.Select(body, path)...)
			}
		}

		var vals []Value
		for _, n := range nodes {
			vals = extractValues(vals, p.Type, n)
		}
		if len(vals) > 0 {
			out[p.Name] = vals
		}
	}
	return out, nil
}

func extractValues(dst []Value, t catalog.ParamType, node ir.IRValue) []Value {
	switch t {
	case catalog.TypeToken:
		return extractTokens(dst, node)
	case catalog.TypeString:
		return extractStrings(dst, node)
	case catalog.TypeDate:
		return extractDates(dst, node)
	case catalog.TypeReference:
		return extractReferences(dst, node)
	case catalog.TypeNumber:
		return extractNumbers(dst, node)
	}
	return dst
}

// evaluate runs a FHIRPath expression and converts each result item to a
// string node; expression params index primitive values only.
func (r *Registry) evaluate(expr string, resource []byte) ([]ir.IRValue, error) {
	compiled, err := r.compiled(expr)
	if err != nil {
		return nil, err
	}
	result, err := compiled.Evaluate(resource)
	if err != nil {
		return nil, err
	}
	nodes := make([]ir.IRValue, 0, len(result))
	for _, item := range result {
		nodes = append(nodes, ir.IRString(fmt.Sprint(item)))
	}
	return nodes, nil
}

// compiled returns a cached compiled expression or compiles a new one.
func (r *Registry) compiled(expr string) (*fhirpath.Expression, error) {
	r.mu.RLock()
	compiled, ok := r.exprs[expr]
	r.mu.RUnlock()
	if ok {
		return compiled, nil
	}

	compiled, err := fhirpath.Compile(expr)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.exprs[expr] = compiled
	r.mu.Unlock()
	return compiled, nil
}
