package ir

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/text/unicode/norm"
)

// OriginKind names where a sample's audio comes from.
type OriginKind string

const (
	// OriginExternal is audio fetched from an external library by id.
	OriginExternal OriginKind = "external"
	// OriginRecord is audio rendered offline from a running program.
	OriginRecord OriginKind = "record"
	// OriginInline is audio supplied directly with the registration.
	OriginInline OriginKind = "inline"
	// OriginSynthesized is audio produced by a synthesizer (e.g. speech).
	OriginSynthesized OriginKind = "synthesized"
)

// Origin is the registration metadata of a handle. Only the fields of the
// matching Kind are meaningful.
type Origin struct {
	Kind       OriginKind `json:"kind" yaml:"kind"`
	ExternalID string     `json:"external_id,omitempty" yaml:"external_id,omitempty"`
	ProjectID  string     `json:"project_id,omitempty" yaml:"project_id,omitempty"`
	Seconds    float64    `json:"seconds,omitempty" yaml:"seconds,omitempty"`
	CallbackID int64      `json:"callback_id,omitempty" yaml:"callback_id,omitempty"`
}

// ExternalRef returns the origin of an externally hosted sample.
func ExternalRef(id string) Origin {
	return Origin{Kind: OriginExternal, ExternalID: NormalizeID(id)}
}

// RecordRequest returns the origin of an offline recording.
func RecordRequest(projectID string, seconds float64, callbackID int64) Origin {
	return Origin{
		Kind:       OriginRecord,
		ProjectID:  NormalizeID(projectID),
		Seconds:    seconds,
		CallbackID: callbackID,
	}
}

// Inline returns the origin of inline sample data.
func Inline() Origin {
	return Origin{Kind: OriginInline}
}

// Synthesized returns the origin of synthesized sample data.
func Synthesized() Origin {
	return Origin{Kind: OriginSynthesized}
}

// NormalizeID returns the NFC form of an identity string so that visually
// identical ids always map to the same handle.
func NormalizeID(s string) string {
	return norm.NFC.String(s)
}

// Validate checks that the fields required by Kind are present.
func (o Origin) Validate() error {
	switch o.Kind {
	case OriginExternal:
		if o.ExternalID == "" {
			return errors.New("external origin requires an id")
		}
	case OriginRecord:
		if math.IsNaN(o.Seconds) || math.IsInf(o.Seconds, 0) || o.Seconds < 0 {
			return fmt.Errorf("record origin has invalid duration %v", o.Seconds)
		}
	case OriginInline, OriginSynthesized:
	default:
		return fmt.Errorf("unknown origin kind %q", o.Kind)
	}
	return nil
}

// RecordKey is the reverse-index key of a record origin: the exact
// (projectID, seconds, callbackID) triple.
type RecordKey struct {
	ProjectID   string
	SecondsBits uint64
	CallbackID  int64
}

// RecordKey returns the reverse-index key for o. Negative zero seconds is
// folded into positive zero so both spell the same request.
func (o Origin) RecordKey() RecordKey {
	secs := o.Seconds
	if secs == 0 {
		secs = 0
	}
	return RecordKey{
		ProjectID:   NormalizeID(o.ProjectID),
		SecondsBits: math.Float64bits(secs),
		CallbackID:  o.CallbackID,
	}
}

// NumSamples converts the recording duration of a record origin into a
// sample count at sampleRate. Counts too large for an int saturate at
// math.MaxInt.
func (o Origin) NumSamples(sampleRate int) int {
	if !(o.Seconds > 0) || sampleRate <= 0 {
		return 0
	}
	n := math.Round(o.Seconds * float64(sampleRate))
	if n >= math.MaxInt {
		return math.MaxInt
	}
	return int(n)
}
