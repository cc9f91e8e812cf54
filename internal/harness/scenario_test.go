package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenario_Fixtures(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		s, err := LoadScenario(path)
		require.NoError(t, err, path)
		assert.Equal(t, s.Name+".yaml", filepath.Base(path), "scenario name should match file name")
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_FromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalScenario), 0o600))

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "minimal", s.Name)
	require.Len(t, s.Setup, 1)
	assert.Equal(t, ActionCreateSession, s.Setup[0].Action)
	assert.Equal(t, "LOCAL-S1", s.Setup[0].Args["id"])
	require.Len(t, s.Flow, 1)
	require.NotNil(t, s.Flow[0].Expect)
	assert.Equal(t, 1, s.Flow[0].Expect.Pass["succeeded"])
}

const minimalScenario = `
name: minimal
description: one session
setup:
  - action: create_session
    args: {id: LOCAL-S1}
flow:
  - invoke: sync
    args: {}
    expect:
      pass: {succeeded: 1}
assertions:
  - type: trace_count
    action: InsertSession
    count: 1
`

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "unknown field",
			yaml: "name: x\ndescription: d\nflw: []\n",
			want: "field flw not found",
		},
		{
			name: "missing name",
			yaml: "description: d\nflow: [{invoke: sync}]\nassertions: [{type: trace_count, action: Ping}]\n",
			want: "name is required",
		},
		{
			name: "missing description",
			yaml: "name: x\nflow: [{invoke: sync}]\nassertions: [{type: trace_count, action: Ping}]\n",
			want: "description is required",
		},
		{
			name: "empty flow",
			yaml: "name: x\ndescription: d\nassertions: [{type: trace_count, action: Ping}]\n",
			want: "flow list is required",
		},
		{
			name: "no assertions",
			yaml: "name: x\ndescription: d\nflow: [{invoke: sync}]\n",
			want: "assertions list is required",
		},
		{
			name: "negative max retries",
			yaml: "name: x\ndescription: d\nmax_retries: -1\nflow: [{invoke: sync}]\nassertions: [{type: trace_count, action: Ping}]\n",
			want: "max_retries must be non-negative",
		},
		{
			name: "unknown setup action",
			yaml: "name: x\ndescription: d\nsetup: [{action: teleport}]\nflow: [{invoke: sync}]\nassertions: [{type: trace_count, action: Ping}]\n",
			want: `setup[0]: unknown action "teleport"`,
		},
		{
			name: "missing invoke",
			yaml: "name: x\ndescription: d\nflow: [{args: {}}]\nassertions: [{type: trace_count, action: Ping}]\n",
			want: "flow[0]: invoke is required",
		},
		{
			name: "pass expect on non-sync step",
			yaml: "name: x\ndescription: d\nflow: [{invoke: retry_failed, expect: {pass: {processed: 1}}}]\nassertions: [{type: trace_count, action: Ping}]\n",
			want: "pass is only valid for sync",
		},
		{
			name: "unknown assertion type",
			yaml: "name: x\ndescription: d\nflow: [{invoke: sync}]\nassertions: [{type: eventually}]\n",
			want: `unknown assertion type "eventually"`,
		},
		{
			name: "trace_order without actions",
			yaml: "name: x\ndescription: d\nflow: [{invoke: sync}]\nassertions: [{type: trace_order}]\n",
			want: "actions list is required for trace_order",
		},
		{
			name: "final_state without expect",
			yaml: "name: x\ndescription: d\nflow: [{invoke: sync}]\nassertions: [{type: final_state, table: sessions}]\n",
			want: "expect is required for final_state",
		},
		{
			name: "final_state without table",
			yaml: "name: x\ndescription: d\nflow: [{invoke: sync}]\nassertions: [{type: final_state, expect: {id: x}}]\n",
			want: "table is required for final_state",
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
