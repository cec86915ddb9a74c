package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/samplerec/internal/ir"
)

// TraceSnapshot is the golden-file form of a scenario run.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Captures     int          `json:"captures"`
	Renders      int          `json:"renders"`
	Trace        []TraceEvent `json:"trace"`
}

// toCanonicalMap converts the snapshot for ir.MarshalCanonical, which only
// accepts primitives, slices and maps.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	events := make([]any, len(s.Trace))
	for i, event := range s.Trace {
		events[i] = event.fields()
	}
	return map[string]any{
		"scenario_name": s.ScenarioName,
		"captures":      s.Captures,
		"renders":       s.Renders,
		"trace":         events,
	}
}

// RunWithGolden runs a scenario and compares its trace with
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result with its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := MarshalTrace(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}

// MarshalTrace returns the canonical JSON golden form of a result.
func MarshalTrace(scenarioName string, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{
		ScenarioName: scenarioName,
		Captures:     result.Captures,
		Renders:      result.Renders,
		Trace:        result.Trace,
	}
	return ir.MarshalCanonical(snapshot.toCanonicalMap())
}
