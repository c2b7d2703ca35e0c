package catalog

import (
	"fmt"
	"strings"
)

// ValidationResult lists the cross-reference problems of a catalog.
type ValidationResult struct {
	Problems []string
}

// OK reports whether the catalog is consistent.
func (r ValidationResult) OK() bool {
	return len(r.Problems) == 0
}

// Error joins the problems into one message.
func (r ValidationResult) Error() string {
	return strings.Join(r.Problems, "; ")
}

// Validate checks the references between catalog sections:
//  1. compartment member params and one-hop params exist and are references
//  2. document params exist on their type and are references
//  3. reference targets name declared resource types
//
// The CUE schema already enforces field shapes; Validate covers what a
// schema cannot express.
func (c *Catalog) Validate() ValidationResult {
	v := &validator{c: c}
	for _, t := range c.Types() {
		for name, p := range c.params[t] {
			for _, target := range p.Targets {
				if _, ok := c.params[target]; !ok {
					v.add("%s.%s: target %q is not a declared type", t, name, target)
				}
			}
		}
	}
	for root, comp := range c.compartments {
		if _, ok := c.params[root]; !ok {
			v.add("compartment %s: root type has no params", root)
		}
		for member, names := range comp.Members {
			for _, name := range names {
				v.requireReference("compartment "+root, member, name)
			}
		}
		for _, h := range comp.OneHop {
			v.requireReference("compartment "+root+" oneHop", h.From, h.Param)
		}
	}
	for t, names := range c.document {
		for _, name := range names {
			v.requireReference("document", t, name)
		}
	}
	return ValidationResult{Problems: v.problems}
}

type validator struct {
	c        *Catalog
	problems []string
}

func (v *validator) add(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) requireReference(section, resourceType, name string) {
	p, ok := v.c.Param(resourceType, name)
	if !ok {
		v.add("%s: %s.%s is not a declared param", section, resourceType, name)
		return
	}
	if p.Type != TypeReference {
		v.add("%s: %s.%s is a %s param, want reference", section, resourceType, name, p.Type)
	}
}
