package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/samplerec/internal/ir"
	"github.com/roach88/samplerec/internal/vm"
)

func TestLoadScenario_Fixture(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/record_lifecycle.yaml")
	require.NoError(t, err)

	assert.Equal(t, "record_lifecycle", scenario.Name)
	assert.Equal(t, 8000, scenario.SampleRate)
	require.Len(t, scenario.Setup, 1)
	assert.Equal(t, "kick", scenario.Setup[0].External)

	require.Len(t, scenario.Flow, 6)
	assert.Equal(t, [][]float32{{0.5, -0.5}}, scenario.Flow[0].Channels)
	rec := scenario.Flow[1].Record
	require.NotNil(t, rec)
	assert.Equal(t, []vm.Dependency{{Slot: 1}}, rec.Dependencies)
	assert.Equal(t, "load 0\ndup\nout\nload 1\nadd\nstore 0", rec.Loop)
	assert.Equal(t, ir.Handle(9), scenario.Flow[5].Handle)
	assert.Equal(t, "UNKNOWN_HANDLE", scenario.Flow[5].Expect.Error)

	require.Len(t, scenario.Assertions, 5)
	assert.Equal(t, []ir.Handle{3}, scenario.Assertions[4].Handles)
}

func TestParseScenario_Registrations(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: sync
flow:
  - send: sync_registrations
    invalidated: [4]
    registrations:
      - handle: 2
        origin: {kind: external, external_id: snare}
      - handle: 4
        origin: {kind: record, project_id: demo, seconds: 2, callback_id: 1}
`))
	require.NoError(t, err)
	step := scenario.Flow[0]
	assert.Equal(t, []ir.Handle{4}, step.Invalidated)
	require.Len(t, step.Registrations, 2)
	assert.Equal(t, ir.ExternalRef("snare"), step.Registrations[0].Origin)
	assert.Equal(t, ir.RecordRequest("demo", 2, 1), step.Registrations[1].Origin)
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"missing name", "flow: [{send: required_samples}]", "name is required"},
		{"empty flow", "name: x", "flow must contain"},
		{"unknown field", "name: x\nbogus: 1\nflow: [{send: required_samples}]", "failed to parse YAML"},
		{"unknown send", "name: x\nflow: [{send: ack}]", `unknown send kind "ack"`},
		{"data without handle", "name: x\nflow: [{send: set_sample_data, channels: [[1]]}]", "handle is required for set_sample_data"},
		{"data without channels", "name: x\nflow: [{send: set_sample_data, handle: 1}]", "channels are required"},
		{"error without handle", "name: x\nflow: [{send: set_sample_error}]", "handle is required for set_sample_error"},
		{"record without body", "name: x\nflow: [{send: record}]", "record is required"},
		{"two setup kinds", "name: x\nsetup: [{external: a, synthesized: true}]\nflow: [{send: required_samples}]", "exactly one of"},
		{"empty inline", "name: x\nsetup: [{inline: {sample_rate: 8000}}]\nflow: [{send: required_samples}]", "inline needs channels"},
		{"negative rate", "name: x\nsample_rate: -1\nflow: [{send: required_samples}]", "sample_rate must be non-negative"},
		{"unknown assertion", "name: x\nflow: [{send: required_samples}]\nassertions: [{type: nope}]", `unknown assertion type "nope"`},
		{"order without handle", "name: x\nflow: [{send: required_samples}]\nassertions: [{type: publish_order}]", "handle is required for publish_order"},
		{"final without expect", "name: x\nflow: [{send: required_samples}]\nassertions: [{type: final_sample, handle: 1}]", "expect is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_TempFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: tmp\nsetup: [{synthesized: true}, {inline: {sample_rate: 8000, channels: [[1, 2]]}}]\nflow: [{send: memory_info}]\n"), 0o644))

	scenario, err := LoadScenario(path)
	require.NoError(t, err)
	assert.True(t, scenario.Setup[0].Synthesized)
	assert.Equal(t, [][]float32{{1, 2}}, scenario.Setup[1].Inline.Channels)
}
