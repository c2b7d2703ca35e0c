package terminology

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/gofhir/fhir/r4"

	"github.com/winterop-com/fhirkit-sub003/internal/fhir"
	"github.com/winterop-com/fhirkit-sub003/internal/ir"
	"github.com/winterop-com/fhirkit-sub003/internal/service"
)

// Concept is one code of a code system.
type Concept struct {
	System  string
	Code    string
	Display string
}

// Validation is the outcome of ValidateCode.
type Validation struct {
	Valid   bool
	Concept Concept
	Message string
}

// Service resolves terminology through a Reader.
type Service struct {
	reader service.Reader
	logger *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// New creates a Service reading from r.
func New(r service.Reader, opts ...Option) *Service {
	s := &Service{reader: r, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Lookup finds code in the CodeSystem whose url is system, searching
// nested concepts too. A missing code system or code is NotFound.
func (s *Service) Lookup(ctx context.Context, system, code string) (*Concept, error) {
	var cs r4.CodeSystem
	if err := s.fetch(ctx, "CodeSystem", system, &cs); err != nil {
		return nil, err
	}
	if c, ok := findConcept(cs.Concept, code); ok {
		return &Concept{System: system, Code: code, Display: deref(c.Display)}, nil
	}
	return nil, notFound("code %q not found in %s", code, system)
}

// ValidateCode reports whether system|code is a member of the ValueSet
// whose url is valueSetURL. An empty system matches any system.
//
// The expansion is used when present. Otherwise compose.include is
// evaluated: listed concepts match directly, and an include naming only a
// system admits every code that system defines.
func (s *Service) ValidateCode(ctx context.Context, valueSetURL, system, code string) (*Validation, error) {
	var vs r4.ValueSet
	if err := s.fetch(ctx, "ValueSet", valueSetURL, &vs); err != nil {
		return nil, err
	}

	if vs.Expansion != nil {
		if c, ok := findContains(vs.Expansion.Contains, system, code); ok {
			return &Validation{Valid: true, Concept: c}, nil
		}
		return invalid(valueSetURL, system, code), nil
	}
	if vs.Compose == nil {
		return invalid(valueSetURL, system, code), nil
	}

	for i := range vs.Compose.Include {
		inc := &vs.Compose.Include[i]
		incSystem := deref(inc.System)
		if incSystem == "" || (system != "" && system != incSystem) {
			continue
		}
		if len(inc.Concept) > 0 {
			for j := range inc.Concept {
				c := &inc.Concept[j]
				if deref(c.Code) == code {
					return &Validation{Valid: true, Concept: Concept{System: incSystem, Code: code, Display: deref(c.Display)}}, nil
				}
			}
			continue
		}
		concept, err := s.Lookup(ctx, incSystem, code)
		switch {
		case err == nil:
			return &Validation{Valid: true, Concept: *concept}, nil
		case !fhir.IsNotFound(err):
			return nil, err
		}
	}
	return invalid(valueSetURL, system, code), nil
}

// fetch decodes the first resourceType record whose url equals canonical.
func (s *Service) fetch(ctx context.Context, resourceType, canonical string, dst any) error {
	if canonical == "" {
		return fhir.NewInvalidRequest("%s url is required", resourceType)
	}
	b, err := s.reader.Search(ctx, resourceType, url.Values{"url": {canonical}})
	if err != nil {
		return fmt.Errorf("search %s: %w", resourceType, err)
	}
	if len(b.Entries) == 0 {
		return notFound("%s %s not found", resourceType, canonical)
	}
	if len(b.Entries) > 1 {
		s.logger.Debug("several definitions share a url, using the first",
			"type", resourceType, "url", canonical, "matches", len(b.Entries))
	}

	data, err := ir.MarshalIRValue(b.Entries[0].Resource)
	if err != nil {
		return fmt.Errorf("encode %s: %w", resourceType, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to parse %s: %w", resourceType, err)
	}
	return nil
}

func findConcept(concepts []r4.CodeSystemConcept, code string) (*r4.CodeSystemConcept, bool) {
	for i := range concepts {
		c := &concepts[i]
		if deref(c.Code) == code {
			return c, true
		}
		if nested, ok := findConcept(c.Concept, code); ok {
			return nested, true
		}
	}
	return nil, false
}

func findContains(contains []r4.ValueSetExpansionContains, system, code string) (Concept, bool) {
	for i := range contains {
		c := &contains[i]
		if deref(c.Code) == code && (system == "" || deref(c.System) == system) {
			return Concept{System: deref(c.System), Code: code, Display: deref(c.Display)}, true
		}
		if found, ok := findContains(c.Contains, system, code); ok {
			return found, true
		}
	}
	return Concept{}, false
}

func invalid(valueSetURL, system, code string) *Validation {
	return &Validation{
		Concept: Concept{System: system, Code: code},
		Message: fmt.Sprintf("code %s|%s is not in value set %s", system, code, valueSetURL),
	}
}

func notFound(format string, args ...any) error {
	return &fhir.Error{Code: fhir.ErrCodeNotFound, Message: fmt.Sprintf(format, args...)}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
