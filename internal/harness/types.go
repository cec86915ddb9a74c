package harness

import (
	"github.com/roach88/samplerec/internal/ir"
)

// Trace event types.
const (
	EventRequest = "request"
	EventPublish = "publish"
	EventReply   = "reply"
)

// digestLen is how much of an audio digest traces keep.
const digestLen = 16

// TraceEvent is one observable step of a scenario.
type TraceEvent struct {
	Seq        int64      `json:"seq"`
	Type       string     `json:"type"`
	Kind       string     `json:"kind,omitempty"`
	Handle     ir.Handle  `json:"handle,omitempty"`
	Version    ir.Version `json:"version,omitempty"`
	Length     int        `json:"length,omitempty"`
	SampleRate int        `json:"sample_rate,omitempty"`
	Digest     string     `json:"digest,omitempty"`
	Error      string     `json:"error,omitempty"`
	// Required lists the pending handles of a required_list reply.
	Required []ir.Handle `json:"required,omitempty"`
}

// fields returns the event as a map of its non-zero fields, the shape used
// by both expect matching and golden files.
func (e TraceEvent) fields() map[string]any {
	m := map[string]any{
		"seq":  e.Seq,
		"type": e.Type,
	}
	if e.Kind != "" {
		m["kind"] = e.Kind
	}
	if e.Handle.Valid() {
		m["handle"] = e.Handle
	}
	if e.Version != 0 {
		m["version"] = uint64(e.Version)
	}
	if e.Length != 0 {
		m["length"] = e.Length
	}
	if e.SampleRate != 0 {
		m["sample_rate"] = e.SampleRate
	}
	if e.Digest != "" {
		m["digest"] = e.Digest
	}
	if e.Error != "" {
		m["error"] = e.Error
	}
	if e.Required != nil {
		handles := make([]any, len(e.Required))
		for i, h := range e.Required {
			handles[i] = h
		}
		m["required"] = handles
	}
	return m
}

// Result is the outcome of one scenario.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass   bool         `json:"pass"`
	Trace  []TraceEvent `json:"trace"`
	Errors []string     `json:"errors,omitempty"`

	// Captures and Renders count VM invocations, so memoized captures show.
	Captures int `json:"captures"`
	Renders  int `json:"renders"`
}

// NewResult creates a passing result with an empty trace.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Publishes returns the publish events, optionally for one handle.
func (r *Result) Publishes(h ir.Handle) []TraceEvent {
	var out []TraceEvent
	for _, e := range r.Trace {
		if e.Type == EventPublish && (!h.Valid() || e.Handle == h) {
			out = append(out, e)
		}
	}
	return out
}
