package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenario(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/patient_lifecycle.yaml")
	require.NoError(t, err)

	assert.Equal(t, "patient_lifecycle", s.Name)
	assert.True(t, s.Persist)
	require.NotEmpty(t, s.Steps)
	assert.Equal(t, OpCreate, s.Steps[0].Op)
	assert.Equal(t, "Patient", s.Steps[0].Target)
	assert.Equal(t, "p1", s.Steps[0].Resource["id"])
	require.NotNil(t, s.Steps[0].Expect)
	assert.Equal(t, 1, s.Steps[0].Expect.Version)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: s
description: d
steps:
  - op: read
    target: Patient/p1
    expect:
      outcome: not-found
`), 0o644))

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "not-found", s.Steps[0].Expect.Outcome)
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "unknown field",
			yaml: "name: s\ndescription: d\nsteps:\n  - op: read\n    target: Patient/p1\n    targte: x\n",
			want: "failed to parse YAML",
		},
		{
			name: "missing name",
			yaml: "description: d\nsteps:\n  - op: read\n    target: Patient/p1\n",
			want: "name is required",
		},
		{
			name: "missing description",
			yaml: "name: s\nsteps:\n  - op: read\n    target: Patient/p1\n",
			want: "description is required",
		},
		{
			name: "no steps",
			yaml: "name: s\ndescription: d\n",
			want: "steps list is required",
		},
		{
			name: "unknown op",
			yaml: "name: s\ndescription: d\nsteps:\n  - op: patch\n    target: Patient/p1\n",
			want: `unknown op "patch"`,
		},
		{
			name: "read needs identity",
			yaml: "name: s\ndescription: d\nsteps:\n  - op: read\n    target: Patient\n",
			want: "read requires a Type/id target",
		},
		{
			name: "create needs type",
			yaml: "name: s\ndescription: d\nsteps:\n  - op: create\n    target: Patient/p1\n    resource: {resourceType: Patient}\n",
			want: "create requires a resource type target",
		},
		{
			name: "update needs resource",
			yaml: "name: s\ndescription: d\nsteps:\n  - op: update\n    target: Patient/p1\n",
			want: "update requires a resource",
		},
		{
			name: "vread needs version",
			yaml: "name: s\ndescription: d\nsteps:\n  - op: vread\n    target: Patient/p1\n",
			want: "vread requires a positive version",
		},
		{
			name: "bad setup step",
			yaml: "name: s\ndescription: d\nsetup:\n  - op: read\n    target: nope\nsteps:\n  - op: read\n    target: Patient/p1\n",
			want: "setup[0]",
		},
		{
			name: "duplicate checkpoint",
			yaml: "name: s\ndescription: d\nsteps:\n  - op: read\n    target: Patient/p1\n    checkpoint: a\n  - op: read\n    target: Patient/p1\n    checkpoint: a\n",
			want: `duplicate checkpoint "a"`,
		},
		{
			name: "unknown checkpoint",
			yaml: "name: s\ndescription: d\nsteps:\n  - op: read\n    target: Patient/p1\n    checkpoint: a\nassertions:\n  - type: digest_equal\n    checkpoints: [a, b]\n",
			want: `unknown checkpoint "b"`,
		},
		{
			name: "replay without persist",
			yaml: "name: s\ndescription: d\nsteps:\n  - op: read\n    target: Patient/p1\nassertions:\n  - type: replay_matches\n",
			want: "replay_matches requires persist: true",
		},
		{
			name: "unknown assertion",
			yaml: "name: s\ndescription: d\nsteps:\n  - op: read\n    target: Patient/p1\nassertions:\n  - type: trace_contains\n",
			want: `unknown assertion type "trace_contains"`,
		},
		{
			name: "bad delete policy",
			yaml: "name: s\ndescription: d\ndelete_policy: lenient\nsteps:\n  - op: read\n    target: Patient/p1\n",
			want: "lenient",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
