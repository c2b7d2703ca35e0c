package fhir

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Identity addresses one logical record: (resourceType, id).
type Identity struct {
	Type string `json:"resourceType" yaml:"type"`
	ID   string `json:"id" yaml:"id"`
}

// NewIdentity creates an Identity.
func NewIdentity(resourceType, id string) Identity {
	return Identity{Type: resourceType, ID: id}
}

// String renders the relative reference form "Type/id".
func (i Identity) String() string {
	return i.Type + "/" + i.ID
}

// IsZero reports whether the identity is unset.
func (i Identity) IsZero() bool {
	return i.Type == "" && i.ID == ""
}

// Compare orders identities by type then id, bytewise.
func (i Identity) Compare(o Identity) int {
	if c := strings.Compare(i.Type, o.Type); c != 0 {
		return c
	}
	return strings.Compare(i.ID, o.ID)
}

var (
	resourceTypePattern = regexp.MustCompile(`^[A-Z][A-Za-z]{1,63}$`)
	idPattern           = regexp.MustCompile(`^[A-Za-z0-9\-.]{1,64}$`)

	// Type/id or Type/id/_history/vid, optionally prefixed by a base URL.
	relativeRefPattern = regexp.MustCompile(`^([A-Z][A-Za-z]+)/([A-Za-z0-9\-.]{1,64})(?:/_history/([0-9]+))?$`)
	absoluteRefPattern = regexp.MustCompile(`^https?://\S+?/([A-Z][A-Za-z]+)/([A-Za-z0-9\-.]{1,64})(?:/_history/([0-9]+))?$`)
)

// ValidResourceType reports whether s is shaped like a resource type name.
func ValidResourceType(s string) bool {
	return resourceTypePattern.MatchString(s)
}

// ValidID reports whether s is a legal logical id.
func ValidID(s string) bool {
	return idPattern.MatchString(s)
}

// ParseIdentity parses the "Type/id" form.
func ParseIdentity(s string) (Identity, error) {
	m := relativeRefPattern.FindStringSubmatch(s)
	if m == nil || m[3] != "" {
		return Identity{}, fmt.Errorf("malformed identity %q: want Type/id", s)
	}
	return Identity{Type: m[1], ID: m[2]}, nil
}

// ReferenceKind classifies the literal form of a reference string.
type ReferenceKind int

const (
	RefRelative ReferenceKind = iota
	RefAbsolute
	RefFragment
	RefURN
)

// Reference is a parsed reference literal.
type Reference struct {
	Raw     string
	Kind    ReferenceKind
	Target  Identity
	Version int
}

// Resolvable reports whether the reference names a record that the store
// could hold. Fragments and URNs are never resolvable against the store.
func (r Reference) Resolvable() bool {
	return r.Kind == RefRelative || r.Kind == RefAbsolute
}

// ParseReference parses a reference literal. ok is false when the string
// matches none of the known forms.
func ParseReference(raw string) (ref Reference, ok bool) {
	ref.Raw = raw
	switch {
	case strings.HasPrefix(raw, "#"):
		ref.Kind = RefFragment
		return ref, len(raw) > 1
	case strings.HasPrefix(raw, "urn:uuid:"), strings.HasPrefix(raw, "urn:oid:"):
		ref.Kind = RefURN
		return ref, true
	}

	m := relativeRefPattern.FindStringSubmatch(raw)
	ref.Kind = RefRelative
	if m == nil {
		m = absoluteRefPattern.FindStringSubmatch(raw)
		ref.Kind = RefAbsolute
	}
	if m == nil {
		return Reference{Raw: raw}, false
	}
	ref.Target = Identity{Type: m[1], ID: m[2]}
	if m[3] != "" {
		v, err := strconv.Atoi(m[3])
		if err != nil {
			return Reference{Raw: raw}, false
		}
		ref.Version = v
	}
	return ref, true
}
