package harness

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, src string) *Scenario {
	t.Helper()
	s, err := ParseScenario([]byte(src))
	require.NoError(t, err)
	return s
}

func TestRun_ServerAssignedIDs(t *testing.T) {
	s := mustParse(t, `
name: ids
description: server assigned ids are sequential
steps:
  - op: create
    target: Patient
    resource: { resourceType: Patient, gender: female }
  - op: create
    target: Patient
    resource: { resourceType: Patient }
  - op: read
    target: Patient/id-1
    expect:
      body: { gender: female, meta: { versionId: "1", lastUpdated: "2024-01-01T00:00:00.000Z" } }
`)
	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	require.True(t, result.Pass, result.Errors)

	assert.Equal(t, "Patient/id-1", result.Trace[0].Target)
	assert.Equal(t, "Patient/id-2", result.Trace[1].Target)
	assert.Equal(t, 1, result.Trace[2].Version)
	assert.NotEmpty(t, result.Digest)
}

func TestRun_ExpectMismatchFailsScenario(t *testing.T) {
	s := mustParse(t, `
name: mismatch
description: wrong expectations are reported per step
steps:
  - op: update
    target: Patient/p1
    resource: { resourceType: Patient, id: p1 }
    expect:
      version: 2
  - op: read
    target: Patient/p1
    expect:
      body: { gender: male }
  - op: read
    target: Patient/p2
`)
	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 3)
	assert.Contains(t, result.Errors[0], "version = 1, expected 2")
	assert.Contains(t, result.Errors[1], "gender: missing")
	assert.Contains(t, result.Errors[2], `outcome = "not-found", expected "ok"`)
	assert.Len(t, result.Trace, 3)
}

func TestRun_SetupFailureIsAnError(t *testing.T) {
	s := mustParse(t, `
name: setup
description: setup must succeed
setup:
  - op: read
    target: Patient/p1
steps:
  - op: history
`)
	_, err := Run(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "setup[0] read Patient/p1 failed")
}

func TestRun_DeletePolicy(t *testing.T) {
	const steps = `
steps:
  - op: delete
    target: Patient/absent
    expect:
      outcome: %s
`
	idempotent := mustParse(t, "name: a\ndescription: d\n"+fmt.Sprintf(steps, "ok"))
	result, err := Run(context.Background(), idempotent)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
	assert.Equal(t, 0, result.Trace[0].Version)

	strict := mustParse(t, "name: b\ndescription: d\ndelete_policy: strict\n"+fmt.Sprintf(steps, "not-found"))
	result, err = Run(context.Background(), strict)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
}

func TestRun_HistoryTargets(t *testing.T) {
	s := mustParse(t, `
name: history
description: history at every level
setup:
  - op: update
    target: Patient/p1
    resource: { resourceType: Patient, id: p1 }
  - op: update
    target: Observation/o1
    resource: { resourceType: Observation, id: o1, status: final }
  - op: update
    target: Patient/p1
    resource: { resourceType: Patient, id: p1, active: true }
steps:
  - op: history
    expect:
      total: 3
      ids: [Patient/p1, Observation/o1, Patient/p1]
  - op: history
    target: Patient
    expect:
      total: 2
  - op: history
    target: Observation/o1
    expect:
      total: 1
`)
	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
}

func TestRun_Assertions(t *testing.T) {
	s := mustParse(t, `
name: assertions
description: failing assertions are collected
steps:
  - op: update
    target: Patient/p1
    resource: { resourceType: Patient, id: p1, gender: female }
    checkpoint: one
  - op: update
    target: Patient/p1
    resource: { resourceType: Patient, id: p1, gender: male }
    checkpoint: two
assertions:
  - type: current_version
    target: Patient/p1
    version: 2
  - type: current_version
    target: Patient/p1
    version: 5
  - type: history_count
    target: Patient/p1
    count: 2
  - type: not_found
    target: Patient/p1
  - type: resource
    target: Patient/p1
    expect: { gender: female }
  - type: digest_equal
    checkpoints: [one, two]
`)
	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 4)
	assert.Contains(t, result.Errors[0], "assertions[1]")
	assert.Contains(t, result.Errors[0], "Actual: version 2")
	assert.Contains(t, result.Errors[1], "assertions[3]")
	assert.Contains(t, result.Errors[2], "assertions[4]")
	assert.Contains(t, result.Errors[2], `gender: got male, expected female`)
	assert.Contains(t, result.Errors[3], "assertions[5]")
	assert.NotEqual(t, result.Checkpoints["one"], result.Checkpoints["two"])
	assert.Equal(t, result.Digest, result.Checkpoints["two"])
}

func TestMatchSubset(t *testing.T) {
	body := map[string]any{
		"name":   []any{map[string]any{"family": "Doe"}},
		"weight": 72.5,
		"active": true,
	}
	actual, err := resourceOf(Step{Resource: body})
	require.NoError(t, err)

	tests := []struct {
		name string
		want map[string]any
		err  string
	}{
		{name: "scalar", want: map[string]any{"active": true}},
		{name: "decimal", want: map[string]any{"weight": 72.5}},
		{name: "nested array", want: map[string]any{"name": []any{map[string]any{"family": "Doe"}}}},
		{name: "wrong scalar", want: map[string]any{"active": false}, err: "active: got true, expected false"},
		{name: "array length", want: map[string]any{"name": []any{}}, err: "name: expected 0 elements, got 1"},
		{name: "nested missing", want: map[string]any{"name": []any{map[string]any{"given": "J"}}}, err: "name[0].given: missing"},
		{name: "type mismatch", want: map[string]any{"active": map[string]any{}}, err: "active: expected object"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := matchBody(actual, tt.want)
			if tt.err == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.err)
		})
	}

	assert.ErrorContains(t, matchBody(nil, map[string]any{"a": 1}), "no resource body")
}
