package fhir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReference(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		ok      bool
		kind    ReferenceKind
		target  Identity
		version int
	}{
		{"relative", "Patient/p1", true, RefRelative, NewIdentity("Patient", "p1"), 0},
		{"relative history", "Patient/p1/_history/3", true, RefRelative, NewIdentity("Patient", "p1"), 3},
		{"absolute", "http://example.org/fhir/Observation/o-1", true, RefAbsolute, NewIdentity("Observation", "o-1"), 0},
		{"absolute history", "https://x.test/Patient/p1/_history/2", true, RefAbsolute, NewIdentity("Patient", "p1"), 2},
		{"fragment", "#med1", true, RefFragment, Identity{}, 0},
		{"urn uuid", "urn:uuid:61ebe359-bfdc-4613-8bf2-c5e300945f0a", true, RefURN, Identity{}, 0},
		{"bare id", "p1", false, RefRelative, Identity{}, 0},
		{"lowercase type", "patient/p1", false, RefRelative, Identity{}, 0},
		{"empty fragment", "#", false, RefFragment, Identity{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, ok := ParseReference(tt.raw)
			assert.Equal(t, tt.ok, ok)
			if !tt.ok {
				return
			}
			assert.Equal(t, tt.kind, ref.Kind)
			assert.Equal(t, tt.target, ref.Target)
			assert.Equal(t, tt.version, ref.Version)
		})
	}
}

func TestReferenceResolvable(t *testing.T) {
	rel, _ := ParseReference("Patient/p1")
	frag, _ := ParseReference("#x")
	urn, _ := ParseReference("urn:uuid:abc")

	assert.True(t, rel.Resolvable())
	assert.False(t, frag.Resolvable())
	assert.False(t, urn.Resolvable())
}

func TestParseIdentity(t *testing.T) {
	id, err := ParseIdentity("Encounter/e1")
	require.NoError(t, err)
	assert.Equal(t, "Encounter/e1", id.String())

	_, err = ParseIdentity("Encounter/e1/_history/1")
	assert.Error(t, err)
	_, err = ParseIdentity("nope")
	assert.Error(t, err)
}

func TestValidators(t *testing.T) {
	assert.True(t, ValidResourceType("Patient"))
	assert.False(t, ValidResourceType("patient"))
	assert.False(t, ValidResourceType(""))

	assert.True(t, ValidID("a-1.b"))
	assert.False(t, ValidID("a/b"))
	assert.False(t, ValidID(""))
}

func TestIdentityCompare(t *testing.T) {
	a := NewIdentity("Observation", "z")
	b := NewIdentity("Patient", "a")

	assert.Negative(t, a.Compare(b))
	assert.Positive(t, b.Compare(a))
	assert.Zero(t, a.Compare(a))
}
