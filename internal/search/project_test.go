package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/winterop-com/fhirkit-sub003/internal/catalog"
	"github.com/winterop-com/fhirkit-sub003/internal/ir"
)

func patientBody(t *testing.T) ir.IRObject {
	t.Helper()
	body, err := ir.UnmarshalObject([]byte(`{
		"resourceType": "Patient",
		"id": "p1",
		"meta": {"versionId": "1"},
		"text": {"status": "generated", "div": "<div>Ann</div>"},
		"name": [{"family": "Smith"}],
		"gender": "female",
		"birthDate": "1980-01-01",
		"photo": [{"url": "x"}]
	}`))
	require.NoError(t, err)
	return body
}

func keys(obj ir.IRObject) []string {
	return obj.SortedKeys()
}

func TestProjectionElements(t *testing.T) {
	body := patientBody(t)

	out := Projection{Elements: []string{"gender", "nonexistent"}}.Apply(catalog.Default(), body)

	assert.Equal(t, []string{"gender", "id", "meta", "resourceType"}, keys(out))
	assert.Equal(t, "SUBSETTED", out.Object("meta")["tag"].(ir.IRArray)[0].(ir.IRObject).String("code"))
	assert.Nil(t, body.Object("meta")["tag"], "input body untouched")
}

func TestProjectionSummaryModes(t *testing.T) {
	cat := catalog.Default()

	tests := []struct {
		mode SummaryMode
		want []string
	}{
		{SummaryTrue, []string{"birthDate", "gender", "id", "meta", "name", "resourceType"}},
		{SummaryText, []string{"id", "meta", "resourceType", "text"}},
		{SummaryData, []string{"birthDate", "gender", "id", "meta", "name", "photo", "resourceType"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			out := Projection{Summary: tt.mode}.Apply(cat, patientBody(t))
			assert.Equal(t, tt.want, keys(out))
		})
	}
}

func TestProjectionSummaryWinsOverElements(t *testing.T) {
	out := Projection{Summary: SummaryText, Elements: []string{"gender"}}.Apply(catalog.Default(), patientBody(t))

	assert.NotContains(t, out, "gender")
	assert.Contains(t, out, "text")
}

func TestProjectionInactive(t *testing.T) {
	body := patientBody(t)

	for _, p := range []Projection{{}, {Summary: SummaryFalse}} {
		assert.False(t, p.Active())
		out := p.Apply(catalog.Default(), body)
		assert.Equal(t, body, out)
	}
}
