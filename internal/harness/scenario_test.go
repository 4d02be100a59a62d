package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenario(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/scenario_a.yaml")
	require.NoError(t, err)

	assert.Equal(t, "scenario_a", s.Name)
	assert.Equal(t, 2, s.Threshold)
	assert.Equal(t, []string{BackendCSV}, s.Backends)
	require.Len(t, s.Steps, 2)
	assert.Equal(t, "DumbTitle", s.Steps[0].Commit)
	require.Len(t, s.Steps[0].Fields, 3)
	assert.Equal(t, "animal", s.Steps[0].Fields[0].Name)
	require.NotNil(t, s.Steps[0].Fields[1].Int)
	assert.Equal(t, int64(10), *s.Steps[0].Fields[1].Int)
	require.NotNil(t, s.Steps[0].Fields[2].Real)
	assert.Equal(t, 5.5, *s.Steps[0].Fields[2].Real)
	assert.Len(t, s.Assertions, 3)
}

func TestLoadScenario_Missing(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "failed to read scenario file")
}

func TestLoadScenario_UnknownField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "typo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: typo
description: "misspelled key"
steps:
  - flush: true
assertion:
  - type: trace_count
    event: flush
    count: 1
`), 0o644))

	_, err := LoadScenario(path)
	assert.ErrorContains(t, err, "failed to parse YAML")
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing name",
			yaml: `
description: d
steps: [{flush: true}]
assertions: [{type: trace_count, event: flush, count: 1}]`,
			want: "name is required",
		},
		{
			name: "missing description",
			yaml: `
name: n
steps: [{flush: true}]
assertions: [{type: trace_count, event: flush, count: 1}]`,
			want: "description is required",
		},
		{
			name: "no steps",
			yaml: `
name: n
description: d
assertions: [{type: trace_count, event: flush, count: 1}]`,
			want: "steps list is required",
		},
		{
			name: "no assertions",
			yaml: `
name: n
description: d
steps: [{flush: true}]`,
			want: "assertions list is required",
		},
		{
			name: "negative threshold",
			yaml: `
name: n
description: d
threshold: -1
steps: [{flush: true}]
assertions: [{type: trace_count, event: flush, count: 1}]`,
			want: "threshold must be non-negative",
		},
		{
			name: "unknown backend",
			yaml: `
name: n
description: d
backends: [parquet]
steps: [{flush: true}]
assertions: [{type: trace_count, event: flush, count: 1}]`,
			want: `backends[0]: unknown backend "parquet"`,
		},
		{
			name: "duplicate backend",
			yaml: `
name: n
description: d
backends: [csv, csv]
steps: [{flush: true}]
assertions: [{type: trace_count, event: flush, count: 1}]`,
			want: "backends[1]: csv listed twice",
		},
		{
			name: "step with two actions",
			yaml: `
name: n
description: d
steps: [{flush: true, close: true}]
assertions: [{type: trace_count, event: flush, count: 1}]`,
			want: "steps[0]: exactly one of commit, flush, close is required",
		},
		{
			name: "fields without commit",
			yaml: `
name: n
description: d
steps: [{flush: true, fields: [{name: x, int: 1}]}]
assertions: [{type: trace_count, event: flush, count: 1}]`,
			want: "steps[0]: fields require commit",
		},
		{
			name: "unknown error code",
			yaml: `
name: n
description: d
steps: [{flush: true, expect_error: BOOM}]
assertions: [{type: trace_count, event: flush, count: 1}]`,
			want: `steps[0]: unknown error code "BOOM"`,
		},
		{
			name: "unknown assertion",
			yaml: `
name: n
description: d
steps: [{flush: true}]
assertions: [{type: final_state}]`,
			want: `assertions[0]: unknown assertion type "final_state"`,
		},
		{
			name: "unknown event",
			yaml: `
name: n
description: d
steps: [{flush: true}]
assertions: [{type: trace_count, event: invocation, count: 1}]`,
			want: `unknown event "invocation"`,
		},
		{
			name: "table required",
			yaml: `
name: n
description: d
steps: [{flush: true}]
assertions: [{type: schema, columns: ["SimID:runid"]}]`,
			want: "assertions[0]: table is required for schema",
		},
		{
			name: "backend not registered",
			yaml: `
name: n
description: d
backends: [csv]
steps: [{flush: true}]
assertions: [{type: sql_rows, table: T}]`,
			want: "assertions[0]: sql_rows requires the sqlite backend",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid scenario")
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
