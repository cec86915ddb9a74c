package harness

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/roach88/samplerec/internal/ir"
	"github.com/roach88/samplerec/internal/sample"
)

// AssertionContext gives assertions access to the stores after the flow
// has run.
type AssertionContext struct {
	// Control is the store the controller owns.
	Control *sample.Store
	// Realtime is the store the publishes were applied to.
	Realtime *sample.Store
}

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nPublishes:\n")
		for _, event := range e.Trace {
			if event.Type == EventPublish {
				fmt.Fprintf(&buf, "  [%d] %s handle=%s version=%d\n", event.Seq, event.Kind, event.Handle, event.Version)
			}
		}
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion and returns one message per
// failure.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result, a, actx); err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d (%s): %v", i, a.Type, err))
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertPublishCount:
		return assertPublishCount(result.Trace, a)
	case AssertPublishOrder:
		return assertPublishOrder(result.Trace, a)
	case AssertFinalSample:
		return assertFinalSample(result.Trace, a, actx)
	case AssertRequired:
		return assertRequired(result.Trace, a, actx)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertPublishCount counts publishes, optionally for one handle and kind.
func assertPublishCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, e := range trace {
		if e.Type != EventPublish {
			continue
		}
		if a.Handle.Valid() && e.Handle != a.Handle {
			continue
		}
		if a.Kind != "" && e.Kind != a.Kind {
			continue
		}
		count++
	}
	if count == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertPublishCount,
		Expected: fmt.Sprintf("%d publishes", a.Count),
		Actual:   fmt.Sprintf("%d publishes", count),
		Trace:    trace,
	}
}

// assertPublishOrder requires the publish kinds of one handle to be exactly
// a.Kinds.
func assertPublishOrder(trace []TraceEvent, a Assertion) error {
	var kinds []string
	for _, e := range trace {
		if e.Type == EventPublish && e.Handle == a.Handle {
			kinds = append(kinds, e.Kind)
		}
	}
	if slices.Equal(kinds, a.Kinds) {
		return nil
	}
	return &AssertionError{
		Type:     AssertPublishOrder,
		Expected: fmt.Sprintf("%v", a.Kinds),
		Actual:   fmt.Sprintf("%v", kinds),
		Trace:    trace,
	}
}

// assertFinalSample matches a handle's snapshot on the realtime side.
func assertFinalSample(trace []TraceEvent, a Assertion, actx *AssertionContext) error {
	if actx == nil || actx.Realtime == nil {
		return fmt.Errorf("final_sample needs the realtime store")
	}
	snap := actx.Realtime.Sample(a.Handle)
	if snap == nil {
		return &AssertionError{
			Type:     AssertFinalSample,
			Expected: fmt.Sprintf("handle %s on the realtime side", a.Handle),
			Actual:   "handle was never published",
			Trace:    trace,
		}
	}
	actual := map[string]any{
		"ready":       snap.Ready,
		"length":      snap.Length,
		"sample_rate": snap.SampleRate,
		"error":       snap.Error,
		"version":     uint64(actx.Realtime.Version(a.Handle)),
	}
	if diff := matchFields(actual, a.Expect); diff != "" {
		return &AssertionError{
			Type:     AssertFinalSample,
			Expected: fmt.Sprintf("%v", a.Expect),
			Actual:   diff,
			Trace:    trace,
		}
	}
	return nil
}

// assertRequired requires the control store's pending handles to be exactly
// a.Handles, in handle order.
func assertRequired(trace []TraceEvent, a Assertion, actx *AssertionContext) error {
	if actx == nil || actx.Control == nil {
		return fmt.Errorf("required needs the control store")
	}
	var got []ir.Handle
	for _, r := range actx.Control.Required() {
		got = append(got, r.Handle)
	}
	want := slices.Clone(a.Handles)
	sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })
	if slices.Equal(got, want) {
		return nil
	}
	return &AssertionError{
		Type:     AssertRequired,
		Expected: fmt.Sprintf("%v", want),
		Actual:   fmt.Sprintf("%v", got),
		Trace:    trace,
	}
}

// matchFields checks that every expected key is present in actual with the
// same printed value. YAML numbers and typed Go values compare equal when
// they print the same.
func matchFields(actual, expected map[string]any) string {
	keys := make([]string, 0, len(expected))
	for k := range expected {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var diffs []string
	for _, k := range keys {
		got, ok := actual[k]
		if !ok {
			diffs = append(diffs, fmt.Sprintf("%s: missing", k))
			continue
		}
		if fmt.Sprint(got) != fmt.Sprint(expected[k]) {
			diffs = append(diffs, fmt.Sprintf("%s: expected %v, got %v", k, expected[k], got))
		}
	}
	return strings.Join(diffs, "; ")
}
