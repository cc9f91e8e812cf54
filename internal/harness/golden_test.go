package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceSnapshot_Marshal(t *testing.T) {
	s := TraceSnapshot{
		ScenarioName: "tiny",
		Trace: []TraceEvent{
			{Seq: 1, Type: EventCall, Op: "InsertSession", Ref: "LOCAL-S1", ServerID: "srv-session-1"},
			{Seq: 2, Type: EventRefresh, Ref: "customers", Count: 2},
		},
	}

	got, err := s.Marshal()
	require.NoError(t, err)
	assert.Equal(t, `{
  "scenario_name": "tiny",
  "trace": [
    {
      "op": "InsertSession",
      "ref": "LOCAL-S1",
      "seq": 1,
      "server_id": "srv-session-1",
      "type": "call"
    },
    {
      "count": 2,
      "ref": "customers",
      "seq": 2,
      "type": "refresh"
    }
  ]
}
`, string(got))
}

func TestTraceSnapshot_MarshalEmptyTraceAndNoEscaping(t *testing.T) {
	s := TraceSnapshot{ScenarioName: "a<b>&c", Trace: []TraceEvent{}}

	got, err := s.Marshal()
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"scenario_name\": \"a<b>&c\",\n  \"trace\": []\n}\n", string(got))
}

func TestAssertGolden_ExistingFixture(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/dead_letter_retry.yaml")
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	require.True(t, result.Pass, result.Errors)
	require.NoError(t, AssertGolden(t, s.Name, result))
}
