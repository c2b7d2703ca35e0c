package search

import (
	"github.com/winterop-com/fhirkit-sub003/internal/catalog"
	"github.com/winterop-com/fhirkit-sub003/internal/fhir"
	"github.com/winterop-com/fhirkit-sub003/internal/ir"
)

// mandatoryElements survive every projection.
var mandatoryElements = []string{"resourceType", "id", "meta"}

// Projection trims materialized bodies. When Summary is set it takes
// precedence over Elements; SummaryCount never reaches projection.
type Projection struct {
	Elements []string
	Summary  SummaryMode
}

// ProjectionOf returns the projection requested by q.
func ProjectionOf(q *Query) Projection {
	return Projection{Elements: q.Elements, Summary: q.Summary}
}

// Active reports whether the projection changes bodies.
func (p Projection) Active() bool {
	switch p.Summary {
	case SummaryTrue, SummaryText, SummaryData:
		return true
	}
	return len(p.Elements) > 0
}

// Apply returns a projected copy of body tagged SUBSETTED, or body itself
// when the projection is inactive.
func (p Projection) Apply(cat *catalog.Catalog, body ir.IRObject) ir.IRObject {
	if !p.Active() {
		return body
	}

	var out ir.IRObject
	switch p.Summary {
	case SummaryTrue:
		out = keep(body, cat.SummaryElements(body.String("resourceType")))
	case SummaryText:
		out = keep(body, []string{"text"})
	case SummaryData:
		out = ir.CloneObject(body)
		delete(out, "text")
	default:
		out = keep(body, p.Elements)
	}
	fhir.MarkSubsetted(out)
	return out
}

func keep(body ir.IRObject, keys []string) ir.IRObject {
	out := make(ir.IRObject, len(keys)+len(mandatoryElements))
	for _, k := range mandatoryElements {
		if v, ok := body[k]; ok {
			out[k] = ir.Clone(v)
		}
	}
	for _, k := range keys {
		if v, ok := body[k]; ok {
			out[k] = ir.Clone(v)
		}
	}
	return out
}
