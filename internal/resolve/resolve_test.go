package resolve

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/winterop-com/fhirkit-sub003/internal/catalog"
	"github.com/winterop-com/fhirkit-sub003/internal/fhir"
	"github.com/winterop-com/fhirkit-sub003/internal/ir"
	"github.com/winterop-com/fhirkit-sub003/internal/search"
	"github.com/winterop-com/fhirkit-sub003/internal/store"
	"github.com/winterop-com/fhirkit-sub003/internal/testutil"
)

type fixture struct {
	t *testing.T
	s *store.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg, err := search.NewRegistry(catalog.Default())
	require.NoError(t, err)
	s := store.New(reg,
		store.WithClock(testutil.NewDeterministicClock()),
		store.WithIDGenerator(testutil.NewSequentialIDs("id")),
		store.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	return &fixture{t: t, s: s}
}

func (f *fixture) put(ref, js string) {
	f.t.Helper()
	id, err := fhir.ParseIdentity(ref)
	require.NoError(f.t, err)
	body, err := ir.UnmarshalObject([]byte(js))
	require.NoError(f.t, err)
	_, err = f.s.Update(context.Background(), id.Type, id.ID, body, 0)
	require.NoError(f.t, err)
}

func (f *fixture) view(fn func(v *store.View)) {
	f.t.Helper()
	require.NoError(f.t, f.s.View(context.Background(), func(v *store.View) error {
		fn(v)
		return nil
	}))
}

// clinic loads a small patient record graph:
//
//	p1 -> org1 (managingOrganization), dr1 (generalPractitioner)
//	e1 -> p1, dr2 (participant), org2 (serviceProvider)
//	o1 -> p1, e1; o3 -> p1 (subject and performer); o2 -> p2; o4 -> ghost
//	m1 -> p1, med1
func clinic(t *testing.T) *fixture {
	f := newFixture(t)
	f.put("Organization/org1", `{"name":"Acme"}`)
	f.put("Organization/org2", `{"name":"General Hospital"}`)
	f.put("Practitioner/dr1", `{"name":[{"family":"House"}]}`)
	f.put("Practitioner/dr2", `{"name":[{"family":"Grey"}]}`)
	f.put("Medication/med1", `{"code":{"text":"aspirin"}}`)
	f.put("Patient/p1", `{"managingOrganization":{"reference":"Organization/org1"},"generalPractitioner":[{"reference":"Practitioner/dr1"}]}`)
	f.put("Patient/p2", `{}`)
	f.put("Encounter/e1", `{"subject":{"reference":"Patient/p1"},"participant":[{"individual":{"reference":"Practitioner/dr2"}}],"serviceProvider":{"reference":"Organization/org2"}}`)
	f.put("Observation/o1", `{"subject":{"reference":"Patient/p1"},"encounter":{"reference":"Encounter/e1"}}`)
	f.put("Observation/o2", `{"subject":{"reference":"Patient/p2"}}`)
	f.put("Observation/o3", `{"subject":{"reference":"Patient/p1"},"performer":[{"reference":"Patient/p1"}]}`)
	f.put("Observation/o4", `{"subject":{"reference":"Patient/ghost"}}`)
	f.put("MedicationRequest/m1", `{"subject":{"reference":"Patient/p1"},"medicationReference":{"reference":"Medication/med1"}}`)
	return f
}

func idents(t *testing.T, refs ...string) []fhir.Identity {
	t.Helper()
	out := make([]fhir.Identity, len(refs))
	for i, r := range refs {
		id, err := fhir.ParseIdentity(r)
		require.NoError(t, err)
		out[i] = id
	}
	return out
}

func strs(ids []fhir.Identity) []string {
	out := []string{}
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}

func TestExpand(t *testing.T) {
	f := clinic(t)
	r := New()

	tests := []struct {
		name        string
		primary     []string
		includes    []search.IncludeSpec
		revincludes []search.IncludeSpec
		want        []string
	}{
		{
			name:     "include skips dangling references",
			primary:  []string{"Observation/o1", "Observation/o2", "Observation/o4"},
			includes: []search.IncludeSpec{{SourceType: "Observation", Param: "subject"}},
			want:     []string{"Patient/p1", "Patient/p2"},
		},
		{
			name:     "include target type",
			primary:  []string{"Observation/o1"},
			includes: []search.IncludeSpec{{SourceType: "Observation", Param: "encounter", TargetType: "Patient"}},
			want:     []string{},
		},
		{
			name:     "wildcard follows every reference param",
			primary:  []string{"Observation/o1"},
			includes: []search.IncludeSpec{{SourceType: "Observation", Wildcard: true}},
			want:     []string{"Encounter/e1", "Patient/p1"},
		},
		{
			name:        "revinclude",
			primary:     []string{"Patient/p1"},
			revincludes: []search.IncludeSpec{{SourceType: "Observation", Param: "subject"}},
			want:        []string{"Observation/o1", "Observation/o3"},
		},
		{
			name:    "iterate",
			primary: []string{"Observation/o1"},
			includes: []search.IncludeSpec{
				{SourceType: "Observation", Param: "encounter"},
				{SourceType: "Encounter", Param: "participant", Iterate: true},
			},
			want: []string{"Encounter/e1", "Practitioner/dr2"},
		},
		{
			name:     "non-iterate specs apply to the primary set only",
			primary:  []string{"Observation/o1"},
			includes: []search.IncludeSpec{{SourceType: "Observation", Param: "encounter"}, {SourceType: "Encounter", Param: "participant"}},
			want:     []string{"Encounter/e1"},
		},
		{
			name:     "dedup against primary",
			primary:  []string{"Observation/o1", "Patient/p1"},
			includes: []search.IncludeSpec{{SourceType: "Observation", Param: "subject"}},
			want:     []string{},
		},
		{
			name:        "dedup across specs",
			primary:     []string{"Observation/o3"},
			includes:    []search.IncludeSpec{{SourceType: "Observation", Param: "subject"}, {SourceType: "Observation", Param: "performer"}},
			revincludes: []search.IncludeSpec{{SourceType: "Encounter", Param: "subject"}},
			want:        []string{"Patient/p1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.view(func(v *store.View) {
				got, err := r.Expand(v, idents(t, tt.primary...), tt.includes, tt.revincludes)
				require.NoError(t, err)
				assert.Equal(t, tt.want, strs(got))
			})
		})
	}
}

func TestExpand_TooCostly(t *testing.T) {
	f := clinic(t)
	r := New(WithLimits(Limits{MaxInclude: 1}))

	f.view(func(v *store.View) {
		_, err := r.Expand(v, idents(t, "Patient/p1"), nil, []search.IncludeSpec{{SourceType: "Observation", Param: "subject"}})
		assert.True(t, fhir.IsTooCostly(err))
	})
}

func TestEverything(t *testing.T) {
	f := clinic(t)
	r := New()

	f.view(func(v *store.View) {
		sweep, err := r.Everything(v, idents(t, "Patient/p1")[0], SweepOptions{})
		require.NoError(t, err)

		assert.Equal(t, "Patient/p1", sweep.Root.String())
		assert.Equal(t, []string{
			"Encounter/e1", "MedicationRequest/m1", "Observation/o1", "Observation/o3",
			"Practitioner/dr2", "Organization/org2", "Organization/org1", "Practitioner/dr1", "Medication/med1",
		}, strs(sweep.Members))
		assert.Equal(t, 10, sweep.Total)
	})
}

func TestEverything_TypesAndPaging(t *testing.T) {
	f := clinic(t)
	r := New()
	root := idents(t, "Patient/p1")[0]

	f.view(func(v *store.View) {
		sweep, err := r.Everything(v, root, SweepOptions{Types: []string{"Observation"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"Observation/o1", "Observation/o3"}, strs(sweep.Members))
		assert.Equal(t, 3, sweep.Total)

		var pages []string
		for offset := 0; offset < 9; offset += 4 {
			sweep, err := r.Everything(v, root, SweepOptions{Offset: offset, Count: 4})
			require.NoError(t, err)
			assert.Equal(t, root, sweep.Root, "root leads every page")
			assert.Equal(t, 10, sweep.Total)
			pages = append(pages, strs(sweep.Members)...)
		}
		assert.Len(t, pages, 9, "pages cover every member exactly once")
	})
}

func TestEverything_Errors(t *testing.T) {
	f := clinic(t)
	r := New()

	f.view(func(v *store.View) {
		_, err := r.Everything(v, idents(t, "Patient/ghost")[0], SweepOptions{})
		assert.True(t, fhir.IsNotFound(err))

		_, err = r.Everything(v, idents(t, "Organization/org1")[0], SweepOptions{})
		assert.True(t, fhir.IsInvalidRequest(err))
	})

	tight := New(WithLimits(Limits{MaxInclude: 2}))
	f.view(func(v *store.View) {
		_, err := tight.Everything(v, idents(t, "Patient/p1")[0], SweepOptions{})
		assert.True(t, fhir.IsTooCostly(err))

		sweep, err := tight.Everything(v, idents(t, "Patient/p1")[0], SweepOptions{Count: 2})
		require.NoError(t, err, "a page within the ceiling is served")
		assert.Len(t, sweep.Members, 2)
	})
}

func TestEverything_PagesPastCeiling(t *testing.T) {
	f := newFixture(t)
	f.put("Patient/p1", `{}`)
	const n = 1001
	for i := 0; i < n; i++ {
		f.put(fmt.Sprintf("Observation/o%d", i), `{"subject":{"reference":"Patient/p1"}}`)
	}
	r := New()
	root := idents(t, "Patient/p1")[0]

	f.view(func(v *store.View) {
		_, err := r.Everything(v, root, SweepOptions{})
		assert.True(t, fhir.IsTooCostly(err), "an unpaged sweep over the ceiling is refused")

		seen := map[string]bool{}
		for offset := 0; offset < n; offset += 10 {
			sweep, err := r.Everything(v, root, SweepOptions{Offset: offset, Count: 10})
			require.NoError(t, err)
			assert.Equal(t, n+1, sweep.Total)
			for _, m := range sweep.Members {
				seen[m.String()] = true
			}
		}
		assert.Len(t, seen, n)
	})
}

func TestDocument(t *testing.T) {
	f := clinic(t)
	f.put("Composition/c1", `{
		"subject": {"reference": "Patient/p1"},
		"author": [{"reference": "Practitioner/dr1"}],
		"section": [{"entry": [{"reference": "Observation/o1"}, {"reference": "Observation/o3"}, {"reference": "Observation/missing"}]}]
	}`)
	r := New()

	f.view(func(v *store.View) {
		got, err := r.Document(v, idents(t, "Composition/c1")[0])
		require.NoError(t, err)
		assert.Equal(t, []string{
			"Composition/c1",
			"Patient/p1", "Practitioner/dr1", "Observation/o1", "Observation/o3",
			"Organization/org1", "Encounter/e1",
			"Practitioner/dr2", "Organization/org2",
		}, strs(got))
	})
}

func TestDocument_Cycle(t *testing.T) {
	f := newFixture(t)
	f.put("Observation/a", `{"hasMember":[{"reference":"Observation/b"}]}`)
	f.put("Observation/b", `{"hasMember":[{"reference":"Observation/a"}, {"reference":"Observation/b"}]}`)

	f.view(func(v *store.View) {
		got, err := New().Document(v, idents(t, "Observation/a")[0])
		require.NoError(t, err)
		assert.Equal(t, []string{"Observation/a", "Observation/b"}, strs(got))
	})
}

func TestDocument_DepthLimit(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 13; i++ {
		f.put(fmt.Sprintf("Observation/c%d", i), fmt.Sprintf(`{"hasMember":[{"reference":"Observation/c%d"}]}`, i+1))
	}

	f.view(func(v *store.View) {
		got, err := New().Document(v, idents(t, "Observation/c0")[0])
		require.NoError(t, err)
		require.Len(t, got, DocumentDepth+1)
		assert.Equal(t, "Observation/c10", got[len(got)-1].String())
	})
}

func TestSearchPage(t *testing.T) {
	f := clinic(t)
	r := New()
	cat := catalog.Default()

	run := func(query string) (*Page, *fhir.Bundle) {
		t.Helper()
		vals, err := url.ParseQuery(query)
		require.NoError(t, err)
		var page *Page
		f.view(func(v *store.View) {
			q, err := search.ParseQuery(v.Registry(), "Observation", vals, search.DefaultLimits)
			require.NoError(t, err)
			page, err = r.Search(v, q)
			require.NoError(t, err)
		})
		return page, page.Bundle("http://x/fhir", cat)
	}

	page, b := run("subject=Patient/p1&_include=Observation:subject&_count=1")
	assert.Equal(t, 2, page.Total)
	require.Len(t, b.Entries, 2)
	assert.Equal(t, fhir.ModeMatch, b.Entries[0].Mode)
	assert.Equal(t, "http://x/fhir/Observation/o1", b.Entries[0].FullURL)
	assert.Equal(t, fhir.ModeInclude, b.Entries[1].Mode)
	assert.Equal(t, "http://x/fhir/Patient/p1", b.Entries[1].FullURL)
	assert.Equal(t, 2, *b.Total, "total ignores includes")

	_, b = run("subject=Patient/p1&_summary=count")
	assert.Empty(t, b.Entries)
	assert.Equal(t, 2, *b.Total)

	_, b = run("subject=Patient/p1&_total=none")
	assert.Nil(t, b.Total)

	_, b = run("_id=o1&_elements=status")
	require.Len(t, b.Entries, 1)
	assert.NotContains(t, b.Entries[0].Resource, "subject")
	assert.Equal(t, "SUBSETTED", b.Entries[0].Resource.Object("meta")["tag"].(ir.IRArray)[0].(ir.IRObject).String("code"))
}

func TestFullURL(t *testing.T) {
	id := fhir.NewIdentity("Patient", "p1")
	assert.Equal(t, "Patient/p1", FullURL("", id))
	assert.Equal(t, "http://x/Patient/p1", FullURL("http://x", id))
}
