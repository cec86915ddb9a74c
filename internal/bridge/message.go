package bridge

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/samplerec/internal/ir"
	"github.com/roach88/samplerec/internal/sample"
	"github.com/roach88/samplerec/internal/vm"
)

// Kind tags a Message variant on the wire.
type Kind string

const (
	KindSetSampleData     Kind = "set_sample_data"
	KindSetSampleError    Kind = "set_sample_error"
	KindRecord            Kind = "record"
	KindRecordResult      Kind = "record_result"
	KindSyncRegistrations Kind = "sync_registrations"
	KindRequiredSamples   Kind = "required_samples"
	KindRequiredList      Kind = "required_list"
	KindMemoryInfo        Kind = "memory_info"
	KindMemoryReport      Kind = "memory_report"
	KindAck               Kind = "ack"
)

// Message is the tagged union of everything bridge carries.
type Message interface {
	Kind() Kind
}

// SetSampleData publishes finished audio for a handle. Channels are shared
// and must be treated as read-only by every receiver.
type SetSampleData struct {
	Handle     ir.Handle   `json:"handle"`
	Version    ir.Version  `json:"version"`
	SampleRate int         `json:"sample_rate"`
	Channels   [][]float32 `json:"channels"`
}

// SetSampleError publishes a failed load or render for a handle.
type SetSampleError struct {
	Handle  ir.Handle  `json:"handle"`
	Version ir.Version `json:"version"`
	Error   string     `json:"error"`
}

// Record asks the control thread to render a callback offline into the
// record-origin handle for (ProjectID, Seconds, CallbackID).
type Record struct {
	ProjectID    string          `json:"project_id"`
	Seconds      float64         `json:"seconds"`
	CallbackID   int64           `json:"callback_id"`
	Program      []byte          `json:"program"`
	ScopeID      uint32          `json:"scope_id"`
	Dependencies []vm.Dependency `json:"dependencies"`
	Setup        []byte          `json:"setup"`
	Loop         []byte          `json:"loop"`
	SampleRate   int             `json:"sample_rate,omitempty"`
	BPM          float64         `json:"bpm,omitempty"`
}

// RecordResult is the reply to a successful Record.
type RecordResult struct {
	Handle  ir.Handle  `json:"handle"`
	Version ir.Version `json:"version"`
	Length  int        `json:"length"`
}

// SyncRegistrations replays persisted registrations: every Invalidated
// handle is cleared first, then each registration is ensured.
type SyncRegistrations struct {
	Invalidated   []ir.Handle           `json:"invalidated,omitempty"`
	Registrations []sample.Registration `json:"registrations"`
}

// RequiredSamples asks which handles still need data.
type RequiredSamples struct{}

// RequiredList is the reply to RequiredSamples.
type RequiredList struct {
	Samples []sample.Registration `json:"samples"`
}

// MemoryInfo asks for allocation statistics.
type MemoryInfo struct{}

// MemoryReport is the reply to MemoryInfo.
type MemoryReport struct {
	Buffers AllocationSnapshot `json:"buffers"`
	Samples sample.MemoryInfo  `json:"samples"`
}

// Ack acknowledges a request that has no other result.
type Ack struct{}

func (SetSampleData) Kind() Kind     { return KindSetSampleData }
func (SetSampleError) Kind() Kind    { return KindSetSampleError }
func (Record) Kind() Kind            { return KindRecord }
func (RecordResult) Kind() Kind      { return KindRecordResult }
func (SyncRegistrations) Kind() Kind { return KindSyncRegistrations }
func (RequiredSamples) Kind() Kind   { return KindRequiredSamples }
func (RequiredList) Kind() Kind      { return KindRequiredList }
func (MemoryInfo) Kind() Kind        { return KindMemoryInfo }
func (MemoryReport) Kind() Kind      { return KindMemoryReport }
func (Ack) Kind() Kind               { return KindAck }

// decodePayload unmarshals raw into the variant named by k.
func decodePayload(k Kind, raw json.RawMessage) (Message, error) {
	switch k {
	case KindSetSampleData:
		return decodeAs[SetSampleData](raw)
	case KindSetSampleError:
		return decodeAs[SetSampleError](raw)
	case KindRecord:
		return decodeAs[Record](raw)
	case KindRecordResult:
		return decodeAs[RecordResult](raw)
	case KindSyncRegistrations:
		return decodeAs[SyncRegistrations](raw)
	case KindRequiredSamples:
		return decodeAs[RequiredSamples](raw)
	case KindRequiredList:
		return decodeAs[RequiredList](raw)
	case KindMemoryInfo:
		return decodeAs[MemoryInfo](raw)
	case KindMemoryReport:
		return decodeAs[MemoryReport](raw)
	case KindAck:
		return decodeAs[Ack](raw)
	default:
		return nil, fmt.Errorf("unknown message kind %q", k)
	}
}

func decodeAs[T Message](raw json.RawMessage) (Message, error) {
	var m T
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
	}
	return m, nil
}
