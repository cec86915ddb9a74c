package harness

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/samplerec/internal/ir"
	"github.com/roach88/samplerec/internal/sample"
	"github.com/roach88/samplerec/internal/vm"
)

func rampRecord(callback int64) *RecordStep {
	return &RecordStep{
		ProjectID:    "demo",
		Seconds:      0.001,
		CallbackID:   callback,
		Program:      "push 0.25\ncapture 1 0",
		ScopeID:      1,
		Dependencies: depsAt(1),
		Setup:        "push 0\nstore 0",
		Loop:         "load 0\ndup\nout\nload 1\nadd\nstore 0",
		SampleRate:   8000,
	}
}

func depsAt(slots ...int) []vm.Dependency {
	deps := make([]vm.Dependency, len(slots))
	for i, s := range slots {
		deps[i] = vm.Dependency{Slot: s}
	}
	return deps
}

func TestRun_SetSampleData(t *testing.T) {
	scenario := &Scenario{
		Name:  "set_data",
		Setup: []SetupStep{{External: "kick"}},
		Flow: []FlowStep{{
			Send:       "set_sample_data",
			Handle:     1,
			SampleRate: 8000,
			Channels:   [][]float32{{0.5, -0.5}},
		}},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)

	require.Len(t, result.Trace, 3)
	assert.Equal(t, EventRequest, result.Trace[0].Type)
	assert.Equal(t, EventPublish, result.Trace[1].Type)
	assert.Equal(t, ir.Version(1), result.Trace[1].Version)
	assert.Equal(t, 2, result.Trace[1].Length)
	assert.Len(t, result.Trace[1].Digest, digestLen)
	assert.Equal(t, EventReply, result.Trace[2].Type)
	assert.Equal(t, "ack", result.Trace[2].Kind)

	for i, e := range result.Trace {
		assert.Equal(t, int64(i+1), e.Seq, "events are stamped in order")
	}
}

func TestRun_RecordMemoizesCapture(t *testing.T) {
	step := rampRecord(1)
	scenario := &Scenario{
		Name:       "memo",
		SampleRate: 8000,
		Flow: []FlowStep{
			{Send: "record", Record: step},
			{Send: "record", Record: step},
		},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
	assert.Equal(t, 1, result.Captures)
	assert.Equal(t, 2, result.Renders)

	publishes := result.Publishes(1)
	require.Len(t, publishes, 2)
	assert.Equal(t, ir.Version(1), publishes[0].Version)
	assert.Equal(t, ir.Version(2), publishes[1].Version)
	assert.Equal(t, publishes[0].Digest, publishes[1].Digest, "same program renders the same audio")
}

func TestRun_ExpectMismatch(t *testing.T) {
	scenario := &Scenario{
		Name:  "mismatch",
		Setup: []SetupStep{{External: "kick"}},
		Flow: []FlowStep{
			{Send: "required_samples", Expect: &ExpectClause{Result: map[string]any{"required": []any{2}}}},
			{Send: "set_sample_error", Handle: 1, Error: "gone", Expect: &ExpectClause{Error: "UNKNOWN"}},
		},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "required: expected [2], got [1]")
	assert.Contains(t, result.Errors[1], `expected error containing "UNKNOWN"`)
}

func TestRun_UnexpectedError(t *testing.T) {
	scenario := &Scenario{
		Name: "unexpected",
		Flow: []FlowStep{{Send: "set_sample_data", Handle: 4, Channels: [][]float32{{1}}}},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "UNKNOWN_HANDLE")
}

func TestRun_SyncRegistrations(t *testing.T) {
	scenario := &Scenario{
		Name: "sync",
		Flow: []FlowStep{
			{Send: "sync_registrations", Registrations: []sample.Registration{
				{Handle: 2, Origin: ir.ExternalRef("snare")},
				{Handle: 5, Origin: ir.RecordRequest("demo", 1, 3)},
			}},
			{Send: "required_samples", Expect: &ExpectClause{Result: map[string]any{"required": []any{2, 5}}}},
			{Send: "memory_info", Expect: &ExpectClause{Result: map[string]any{"kind": "memory_report", "length": 2}}},
		},
		Assertions: []Assertion{
			{Type: AssertRequired, Handles: []ir.Handle{5, 2}},
			{Type: AssertPublishCount, Count: 0},
		},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
}

func TestRun_BadProgram(t *testing.T) {
	step := rampRecord(1)
	step.Loop = "bogus"
	scenario := &Scenario{Name: "bad", Flow: []FlowStep{{Send: "record", Record: step}}}

	_, err := Run(context.Background(), scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "assemble loop")
}

func TestRun_ScenarioFiles(t *testing.T) {
	files, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		t.Run(filepath.Base(file), func(t *testing.T) {
			scenario, err := LoadScenario(file)
			require.NoError(t, err)

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, result.Errors)
		})
	}
}
