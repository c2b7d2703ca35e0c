package resolve

import (
	"log/slog"

	"github.com/winterop-com/fhirkit-sub003/internal/fhir"
	"github.com/winterop-com/fhirkit-sub003/internal/search"
	"github.com/winterop-com/fhirkit-sub003/internal/store"
)

// DocumentDepth is the hop limit of document assembly. Records at this
// depth are included but their references are not followed.
const DocumentDepth = 10

// Limits bound the size of resolved results.
type Limits struct {
	// MaxInclude caps the records added by one expansion or sweep.
	MaxInclude int
	// MaxDepth caps _include:iterate rounds and document hops.
	MaxDepth int
}

// DefaultLimits are used when no limits are configured.
var DefaultLimits = Limits{MaxInclude: 1000, MaxDepth: DocumentDepth}

// Resolver walks references.
type Resolver struct {
	limits Limits
	logger *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLimits overrides DefaultLimits. Non-positive fields keep their
// default.
func WithLimits(l Limits) Option {
	return func(r *Resolver) {
		if l.MaxInclude > 0 {
			r.limits.MaxInclude = l.MaxInclude
		}
		if l.MaxDepth > 0 {
			r.limits.MaxDepth = l.MaxDepth
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = l
	}
}

// New creates a Resolver.
func New(opts ...Option) *Resolver {
	r := &Resolver{limits: DefaultLimits, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Limits returns the effective limits.
func (r *Resolver) Limits() Limits {
	return r.limits
}

// identitySet preserves insertion order.
type identitySet struct {
	seen  map[fhir.Identity]bool
	order []fhir.Identity
}

func newIdentitySet() *identitySet {
	return &identitySet{seen: make(map[fhir.Identity]bool)}
}

func (s *identitySet) add(id fhir.Identity) bool {
	if s.seen[id] {
		return false
	}
	s.seen[id] = true
	s.order = append(s.order, id)
	return true
}

func (s *identitySet) has(id fhir.Identity) bool {
	return s.seen[id]
}

// references returns the live targets of param in the row of id, in
// document order.
func references(v *store.View, id fhir.Identity, param string) []fhir.Identity {
	row, ok := v.Row(id)
	if !ok {
		return nil
	}
	var out []fhir.Identity
	for _, val := range row.Values[param] {
		rv, ok := val.(search.ReferenceValue)
		if !ok || rv.Target.IsZero() {
			continue
		}
		if v.Exists(rv.Target) {
			out = append(out, rv.Target)
		}
	}
	return out
}

// pointsAt reports whether param of row references any identity in targets.
func pointsAt(row *search.Row, param string, targets func(fhir.Identity) bool) bool {
	for _, val := range row.Values[param] {
		if rv, ok := val.(search.ReferenceValue); ok && !rv.Target.IsZero() && targets(rv.Target) {
			return true
		}
	}
	return false
}
