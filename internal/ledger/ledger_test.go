package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/winterop-com/fhirkit-sub003/internal/fhir"
	"github.com/winterop-com/fhirkit-sub003/internal/ir"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func body(name string) ir.IRObject {
	return ir.IRObject{"name": ir.IRString(name)}
}

func TestAppendAssignsDenseVersions(t *testing.T) {
	l := New()
	p1 := fhir.NewIdentity("Patient", "p1")

	e1 := l.Append(p1, body("a"), false, t0)
	e2 := l.Append(p1, body("b"), false, t0)
	e3 := l.Append(p1, nil, true, t0)

	assert.Equal(t, []int{1, 2, 3}, []int{e1.Version, e2.Version, e3.Version})
	assert.True(t, e3.Deleted)
	assert.Nil(t, e3.Body)
	assert.Less(t, e1.Seq, e2.Seq)
	assert.Less(t, e2.Seq, e3.Seq)
}

func TestAppendVersionsPerIdentity(t *testing.T) {
	l := New()

	a := l.Append(fhir.NewIdentity("Patient", "a"), body("a"), false, t0)
	b := l.Append(fhir.NewIdentity("Patient", "b"), body("b"), false, t0)
	o := l.Append(fhir.NewIdentity("Observation", "a"), body("o"), false, t0)

	assert.Equal(t, 1, a.Version)
	assert.Equal(t, 1, b.Version)
	assert.Equal(t, 1, o.Version)
	assert.Equal(t, 3, l.Len())
}

func TestHeadAndCurrent(t *testing.T) {
	l := New()
	p1 := fhir.NewIdentity("Patient", "p1")

	_, ok := l.Head(p1)
	assert.False(t, ok)

	l.Append(p1, body("a"), false, t0)
	cur, ok := l.Current(p1)
	require.True(t, ok)
	assert.Equal(t, 1, cur.Version)

	l.Append(p1, nil, true, t0)
	_, ok = l.Current(p1)
	assert.False(t, ok, "tombstoned head is not current")
	head, ok := l.Head(p1)
	require.True(t, ok)
	assert.Equal(t, 2, head.Version)
}

func TestGetVersion(t *testing.T) {
	l := New()
	p1 := fhir.NewIdentity("Patient", "p1")
	l.Append(p1, body("a"), false, t0)
	l.Append(p1, nil, true, t0)

	e, err := l.Get(p1, 1)
	require.NoError(t, err)
	assert.Equal(t, ir.IRString("a"), e.Body["name"])

	tomb, err := l.Get(p1, 2)
	require.NoError(t, err)
	assert.True(t, tomb.Deleted)

	_, err = l.Get(p1, 3)
	assert.True(t, fhir.IsNotFound(err))
	_, err = l.Get(p1, 0)
	assert.True(t, fhir.IsNotFound(err))
}

func TestHistoryNewestFirst(t *testing.T) {
	l := New()
	p1 := fhir.NewIdentity("Patient", "p1")
	l.Append(p1, body("a"), false, t0)
	l.Append(p1, body("b"), false, t0)
	l.Append(p1, nil, true, t0)

	hist, err := l.History(p1)
	require.NoError(t, err)
	require.Len(t, hist, 3)
	assert.Equal(t, []int{3, 2, 1}, []int{hist[0].Version, hist[1].Version, hist[2].Version})

	_, err = l.History(fhir.NewIdentity("Patient", "nope"))
	assert.True(t, fhir.IsNotFound(err))
}

func TestTypeAndSystemHistory(t *testing.T) {
	l := New()
	l.Append(fhir.NewIdentity("Patient", "a"), body("1"), false, t0)
	l.Append(fhir.NewIdentity("Observation", "o"), body("2"), false, t0)
	l.Append(fhir.NewIdentity("Patient", "b"), body("3"), false, t0)
	l.Append(fhir.NewIdentity("Patient", "a"), body("4"), false, t0)

	th := l.TypeHistory("Patient")
	require.Len(t, th, 3)
	assert.Equal(t, ir.IRString("4"), th[0].Body["name"])
	assert.Equal(t, ir.IRString("1"), th[2].Body["name"])

	assert.Len(t, l.SystemHistory(), 4)
	assert.Empty(t, l.TypeHistory("Encounter"))
	assert.Equal(t, []string{"Observation", "Patient"}, l.Types())
}

func TestHeadsInCreationOrder(t *testing.T) {
	l := New()
	l.Append(fhir.NewIdentity("Patient", "z"), body("z"), false, t0)
	l.Append(fhir.NewIdentity("Patient", "a"), body("a"), false, t0)
	l.Append(fhir.NewIdentity("Patient", "z"), body("z2"), false, t0)

	heads := l.Heads("Patient")
	require.Len(t, heads, 2)
	assert.Equal(t, "z", heads[0].Identity.ID)
	assert.Equal(t, 2, heads[0].Version)
	assert.Equal(t, "a", heads[1].Identity.ID)
}

func TestSnapshotRestore(t *testing.T) {
	l := New()
	p1 := fhir.NewIdentity("Patient", "p1")
	l.Append(p1, body("a"), false, t0)
	l.Append(p1, body("b"), false, t0)

	snap := l.Snapshot()
	seqBefore := l.Seq()

	l.Append(p1, body("c"), false, t0)
	l.Append(fhir.NewIdentity("Patient", "p2"), body("x"), false, t0)
	l.Restore(snap)

	head, ok := l.Head(p1)
	require.True(t, ok)
	assert.Equal(t, 2, head.Version)
	_, ok = l.Head(fhir.NewIdentity("Patient", "p2"))
	assert.False(t, ok)
	assert.Equal(t, seqBefore, l.Seq())
	assert.Equal(t, 2, l.Len())

	// Numbering resumes from the restored value.
	next := l.Append(p1, body("d"), false, t0)
	assert.Equal(t, 3, next.Version)
	assert.Equal(t, seqBefore+1, next.Seq)
	assert.Equal(t, ir.IRString("d"), next.Body["name"])
}

func TestSnapshotIsolatedFromSharedCapacity(t *testing.T) {
	l := New()
	p1 := fhir.NewIdentity("Patient", "p1")
	for i := 0; i < 3; i++ {
		l.Append(p1, body("v"), false, t0)
	}

	snap := l.Snapshot()
	l.Append(p1, body("after-1"), false, t0)
	l.Restore(snap)
	l.Append(p1, body("after-2"), false, t0)
	l.Restore(snap)

	// Restoring twice yields the same three versions.
	hist, err := l.History(p1)
	require.NoError(t, err)
	assert.Len(t, hist, 3)
}

func TestReplayChecksDensity(t *testing.T) {
	l := New()
	p1 := fhir.NewIdentity("Patient", "p1")

	require.NoError(t, l.Replay(&Entry{Identity: p1, Version: 1, Seq: 1, Body: body("a")}))
	require.NoError(t, l.Replay(&Entry{Identity: p1, Version: 2, Seq: 5, Body: body("b")}))

	err := l.Replay(&Entry{Identity: p1, Version: 4, Seq: 6})
	assert.ErrorContains(t, err, "version density")

	err = l.Replay(&Entry{Identity: fhir.NewIdentity("Patient", "p2"), Version: 1, Seq: 5})
	assert.Error(t, err, "seq must advance")

	assert.Equal(t, int64(5), l.Seq())
	next := l.Append(p1, body("c"), false, t0)
	assert.Equal(t, int64(6), next.Seq)
	assert.Equal(t, 3, next.Version)
}

func TestClock(t *testing.T) {
	c := NewClockAt(10)
	assert.Equal(t, int64(11), c.Next())
	assert.Equal(t, int64(11), c.Current())
}
