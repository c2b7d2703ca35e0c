package store

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/winterop-com/fhirkit-sub003/internal/fhir"
	"github.com/winterop-com/fhirkit-sub003/internal/ir"
	"github.com/winterop-com/fhirkit-sub003/internal/search"
)

func TestCreate_AssignsIDAndStamps(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	rec, err := s.Create(ctx, "Patient", body(t, `{"resourceType":"Patient","gender":"female"}`))
	require.NoError(t, err)

	assert.Equal(t, fhir.NewIdentity("Patient", "id-1"), rec.Identity)
	assert.Equal(t, 1, rec.Version)
	assert.Equal(t, "id-1", rec.Body.String("id"))
	meta := rec.Body.Object("meta")
	assert.Equal(t, "1", meta.String("versionId"))
	assert.Equal(t, "2024-01-01T00:00:00.000Z", meta.String("lastUpdated"))
}

func TestCreate_StampsMissingResourceType(t *testing.T) {
	s := createTestStore(t)

	rec, err := s.Create(context.Background(), "Organization", body(t, `{"name":"Acme"}`))
	require.NoError(t, err)

	assert.Equal(t, "Organization", rec.Body.String("resourceType"))
}

func TestCreate_SuppliedID(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "Patient", body(t, `{"resourceType":"Patient","id":"p1"}`))
	require.NoError(t, err)

	_, err = s.Create(ctx, "Patient", body(t, `{"resourceType":"Patient","id":"p1"}`))
	assert.True(t, fhir.IsConflict(err), "live id: %v", err)

	v, err := s.Delete(ctx, "Patient", "p1")
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	rec, err := s.Create(ctx, "Patient", body(t, `{"resourceType":"Patient","id":"p1"}`))
	require.NoError(t, err)
	assert.Equal(t, 3, rec.Version, "numbering continues after the tombstone")
}

func TestPatientLifecycle(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	rec, err := s.Update(ctx, "Patient", "p1", body(t, `{"resourceType":"Patient","gender":"female"}`), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Version, "upsert on an absent id creates version 1")

	rec, err = s.Update(ctx, "Patient", "p1", body(t, `{"resourceType":"Patient","gender":"male"}`), 1)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Version)

	_, err = s.Update(ctx, "Patient", "p1", body(t, `{"resourceType":"Patient"}`), 1)
	require.Error(t, err)
	assert.True(t, fhir.IsVersionConflict(err))
	fe, _ := fhir.AsError(err)
	assert.Equal(t, 1, fe.Expected)
	assert.Equal(t, 2, fe.Current)

	rec, err = s.Read(ctx, "Patient", "p1")
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Version)
	assert.Equal(t, "male", rec.Body.String("gender"))

	hist, err := s.History(ctx, "Patient", "p1")
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, 2, hist[0].Version)
	assert.Equal(t, 1, hist[1].Version)

	v, err := s.Delete(ctx, "Patient", "p1")
	require.NoError(t, err)
	assert.Equal(t, 3, v)

	_, err = s.Read(ctx, "Patient", "p1")
	assert.True(t, fhir.IsNotFound(err))

	tomb, err := s.ReadVersion(ctx, "Patient", "p1", 3)
	require.NoError(t, err)
	assert.True(t, tomb.Deleted)
	assert.Nil(t, tomb.Body)

	old, err := s.ReadVersion(ctx, "Patient", "p1", 1)
	require.NoError(t, err)
	assert.Equal(t, "female", old.Body.String("gender"))

	v, err = s.Delete(ctx, "Patient", "p1")
	require.NoError(t, err)
	assert.Equal(t, 3, v, "second delete appends nothing")

	rec, err = s.Update(ctx, "Patient", "p1", body(t, `{"resourceType":"Patient"}`), 0)
	require.NoError(t, err)
	assert.Equal(t, 4, rec.Version, "update resurrects after the tombstone")
}

func TestUpdate_ExpectedVersionOnMissing(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.Update(ctx, "Patient", "nope", body(t, `{"resourceType":"Patient"}`), 1)
	assert.True(t, fhir.IsNotFound(err))

	_, err = s.Update(ctx, "Patient", "p1", body(t, `{}`), 0)
	require.NoError(t, err)
	_, err = s.Delete(ctx, "Patient", "p1")
	require.NoError(t, err)

	_, err = s.Update(ctx, "Patient", "p1", body(t, `{}`), 2)
	assert.True(t, fhir.IsNotFound(err), "tombstoned target")
}

func TestWrite_InvalidRequests(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name string
		run  func() error
	}{
		{"resourceType mismatch", func() error {
			_, err := s.Create(ctx, "Patient", body(t, `{"resourceType":"Observation"}`))
			return err
		}},
		{"non-string resourceType", func() error {
			_, err := s.Create(ctx, "Patient", body(t, `{"resourceType":1}`))
			return err
		}},
		{"invalid type", func() error {
			_, err := s.Create(ctx, "patient", body(t, `{}`))
			return err
		}},
		{"invalid id", func() error {
			_, err := s.Update(ctx, "Patient", "bad id", body(t, `{}`), 0)
			return err
		}},
		{"body id mismatch", func() error {
			_, err := s.Update(ctx, "Patient", "p1", body(t, `{"id":"p2"}`), 0)
			return err
		}},
		{"nil body", func() error {
			_, err := s.Create(ctx, "Patient", nil)
			return err
		}},
	}

	before := digest(t, s)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			require.Error(t, err)
			assert.True(t, fhir.IsInvalidRequest(err), "got %v", err)
		})
	}
	assert.Equal(t, before, digest(t, s), "failed writes leave no trace")
}

func TestDelete_StrictPolicy(t *testing.T) {
	s := createTestStore(t, WithDeletePolicy(DeleteStrict))
	ctx := context.Background()

	_, err := s.Delete(ctx, "Patient", "ghost")
	assert.True(t, fhir.IsNotFound(err))

	_, err = s.Update(ctx, "Patient", "p1", body(t, `{}`), 0)
	require.NoError(t, err)
	_, err = s.Delete(ctx, "Patient", "p1")
	require.NoError(t, err)

	_, err = s.Delete(ctx, "Patient", "p1")
	assert.True(t, fhir.IsNotFound(err))
}

func TestDelete_IdempotentAbsent(t *testing.T) {
	s := createTestStore(t)

	v, err := s.Delete(context.Background(), "Patient", "ghost")
	require.NoError(t, err)
	assert.Equal(t, 0, v)
}

func TestParseDeletePolicy(t *testing.T) {
	p, err := ParseDeletePolicy("")
	require.NoError(t, err)
	assert.Equal(t, DeleteIdempotent, p)

	p, err = ParseDeletePolicy("strict")
	require.NoError(t, err)
	assert.Equal(t, DeleteStrict, p)

	_, err = ParseDeletePolicy("lenient")
	assert.Error(t, err)
}

func TestIndexFollowsWrites(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	find := func(query string) []string {
		t.Helper()
		vals, err := url.ParseQuery(query)
		require.NoError(t, err)
		q, err := search.ParseQuery(s.Registry(), "Patient", vals, search.DefaultLimits)
		require.NoError(t, err)
		res, err := s.Search(ctx, q)
		require.NoError(t, err)
		ids := []string{}
		for _, id := range res.IDs {
			ids = append(ids, id.ID)
		}
		return ids
	}

	_, err := s.Update(ctx, "Patient", "p1", body(t, `{"gender":"female"}`), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, find("gender=female"))

	_, err = s.Update(ctx, "Patient", "p1", body(t, `{"gender":"male"}`), 0)
	require.NoError(t, err)
	assert.Empty(t, find("gender=female"), "previous version retracted")
	assert.Equal(t, []string{"p1"}, find("gender=male"))

	_, err = s.Delete(ctx, "Patient", "p1")
	require.NoError(t, err)
	assert.Empty(t, find("gender=male"))
	assert.Empty(t, find("_id=p1"))
}

func TestReturnedBodiesArePrivate(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	in := body(t, `{"name":[{"family":"Smith"}]}`)
	rec, err := s.Update(ctx, "Patient", "p1", in, 0)
	require.NoError(t, err)

	in["name"] = ir.IRString("changed")
	rec.Body["gender"] = ir.IRString("other")

	again, err := s.Read(ctx, "Patient", "p1")
	require.NoError(t, err)
	assert.IsType(t, ir.IRArray{}, again.Body["name"])
	assert.NotContains(t, again.Body, "gender")
}

func TestTypeAndSystemHistory(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.Update(ctx, "Patient", "p1", body(t, `{}`), 0)
	require.NoError(t, err)
	_, err = s.Update(ctx, "Observation", "o1", body(t, `{"status":"final"}`), 0)
	require.NoError(t, err)
	_, err = s.Update(ctx, "Patient", "p2", body(t, `{}`), 0)
	require.NoError(t, err)
	_, err = s.Update(ctx, "Patient", "p1", body(t, `{}`), 0)
	require.NoError(t, err)

	th, err := s.TypeHistory(ctx, "Patient")
	require.NoError(t, err)
	var got []string
	for _, r := range th {
		got = append(got, r.Identity.ID+"/"+r.Body.Object("meta").String("versionId"))
	}
	assert.Equal(t, []string{"p1/2", "p2/1", "p1/1"}, got)

	sh, err := s.SystemHistory(ctx)
	require.NoError(t, err)
	require.Len(t, sh, 4)
	assert.Equal(t, "Observation", sh[2].Identity.Type)
}

func TestHistory_UnknownIdentity(t *testing.T) {
	s := createTestStore(t)

	_, err := s.History(context.Background(), "Patient", "nobody")
	assert.True(t, fhir.IsNotFound(err))
}

func TestCanceledContext(t *testing.T) {
	s := createTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Create(ctx, "Patient", body(t, `{}`))
	assert.True(t, errors.Is(err, context.Canceled))

	_, err = s.Read(ctx, "Patient", "p1")
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestConcurrentWriters(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	const writers = 20
	var wg sync.WaitGroup
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Update(ctx, "Patient", "shared", body(t, `{}`), 0)
			assert.NoError(t, err)
			_, err = s.Create(ctx, "Patient", body(t, `{}`))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	hist, err := s.History(ctx, "Patient", "shared")
	require.NoError(t, err)
	require.Len(t, hist, writers)
	for i, r := range hist {
		assert.Equal(t, writers-i, r.Version, "versions stay dense")
	}
}
