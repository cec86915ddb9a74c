package ir

// CapturedValue is the value of one dependency slot read back from a running
// program. Undefined values are skipped when the slot is written into the
// render context, so the offline program's own defaults apply.
type CapturedValue struct {
	Value     float64 `json:"value"`
	Undefined bool    `json:"undefined,omitempty"`
}

// CapturedValueSet is the ordered snapshot of every dependency slot of one
// capture, together with the CaptureKey it was memoized under.
type CapturedValueSet struct {
	Values []CapturedValue `json:"values"`
	Key    string          `json:"key"`
}

// Len returns the number of captured slots.
func (s CapturedValueSet) Len() int {
	return len(s.Values)
}

// Clone returns a deep copy so memoized sets cannot be mutated by callers.
func (s CapturedValueSet) Clone() CapturedValueSet {
	values := make([]CapturedValue, len(s.Values))
	copy(values, s.Values)
	return CapturedValueSet{Values: values, Key: s.Key}
}
