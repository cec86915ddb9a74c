package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/samplerec/internal/bridge"
	"github.com/roach88/samplerec/internal/ir"
	"github.com/roach88/samplerec/internal/sample"
	"github.com/roach88/samplerec/internal/vm"
)

// Scenario is a scripted conversation with the controller.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// SampleRate is the default rate of the stores and the orchestrator.
	// Zero means 44100.
	SampleRate int `yaml:"sample_rate,omitempty"`

	// Setup registers handles before the controller starts.
	Setup []SetupStep `yaml:"setup,omitempty"`

	// Flow is sent to the controller in order, one request at a time.
	Flow []FlowStep `yaml:"flow"`

	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// SetupStep registers one handle. Exactly one field is set.
type SetupStep struct {
	External    string        `yaml:"external,omitempty"`
	Record      *RecordOrigin `yaml:"record,omitempty"`
	Inline      *InlineData   `yaml:"inline,omitempty"`
	Synthesized bool          `yaml:"synthesized,omitempty"`
}

// RecordOrigin names a record-origin registration.
type RecordOrigin struct {
	ProjectID  string  `yaml:"project_id"`
	Seconds    float64 `yaml:"seconds"`
	CallbackID int64   `yaml:"callback_id,omitempty"`
}

// InlineData is audio registered together with its handle.
type InlineData struct {
	SampleRate int         `yaml:"sample_rate"`
	Channels   [][]float32 `yaml:"channels"`
}

// FlowStep is one request. Which fields apply depends on Send.
type FlowStep struct {
	// Send is the request kind, e.g. "record" or "set_sample_data".
	Send string `yaml:"send"`

	// Handle targets set_sample_data and set_sample_error.
	Handle ir.Handle `yaml:"handle,omitempty"`

	// set_sample_data
	SampleRate int         `yaml:"sample_rate,omitempty"`
	Channels   [][]float32 `yaml:"channels,omitempty"`

	// set_sample_error
	Error string `yaml:"error,omitempty"`

	// record
	Record *RecordStep `yaml:"record,omitempty"`

	// sync_registrations
	Invalidated   []ir.Handle           `yaml:"invalidated,omitempty"`
	Registrations []sample.Registration `yaml:"registrations,omitempty"`

	// Expect checks the reply. Without it any successful reply passes.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// RecordStep is a record request with programs in assembly.
type RecordStep struct {
	ProjectID    string          `yaml:"project_id"`
	Seconds      float64         `yaml:"seconds"`
	CallbackID   int64           `yaml:"callback_id,omitempty"`
	Program      string          `yaml:"program"`
	ScopeID      uint32          `yaml:"scope_id"`
	Dependencies []vm.Dependency `yaml:"dependencies,omitempty"`
	Setup        string          `yaml:"setup,omitempty"`
	Loop         string          `yaml:"loop"`
	SampleRate   int             `yaml:"sample_rate,omitempty"`
	BPM          float64         `yaml:"bpm,omitempty"`
}

// ExpectClause describes the expected reply.
type ExpectClause struct {
	// Error, when set, must be a substring of the reply error. When empty
	// the reply must succeed.
	Error string `yaml:"error,omitempty"`

	// Result is a subset match against the reply event's fields.
	Result map[string]any `yaml:"result,omitempty"`
}

// Assertion checks the finished run.
type Assertion struct {
	Type string `yaml:"type"`

	// Handle scopes publish_count and is required by publish_order and
	// final_sample.
	Handle ir.Handle `yaml:"handle,omitempty"`

	// Kind filters publish_count.
	Kind string `yaml:"kind,omitempty"`

	// Count is the expected publish_count.
	Count int `yaml:"count,omitempty"`

	// Kinds is the exact publish_order.
	Kinds []string `yaml:"kinds,omitempty"`

	// Expect is a subset match for final_sample.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Handles is the exact required list.
	Handles []ir.Handle `yaml:"handles,omitempty"`
}

// Assertion types.
const (
	AssertPublishCount = "publish_count"
	AssertPublishOrder = "publish_order"
	AssertFinalSample  = "final_sample"
	AssertRequired     = "required"
)

var sendKinds = map[string]bool{
	string(bridge.KindSetSampleData):     true,
	string(bridge.KindSetSampleError):    true,
	string(bridge.KindRecord):            true,
	string(bridge.KindSyncRegistrations): true,
	string(bridge.KindRequiredSamples):   true,
	string(bridge.KindMemoryInfo):        true,
}

// LoadScenario reads a scenario file. Unknown fields are rejected so typos
// fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow must contain at least one step")
	}
	if s.SampleRate < 0 {
		return fmt.Errorf("sample_rate must be non-negative")
	}
	for i, step := range s.Setup {
		if err := validateSetup(i, step); err != nil {
			return err
		}
	}
	for i, step := range s.Flow {
		if err := validateFlowStep(i, step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateSetup(index int, step SetupStep) error {
	set := 0
	if step.External != "" {
		set++
	}
	if step.Record != nil {
		set++
	}
	if step.Inline != nil {
		set++
		if len(step.Inline.Channels) == 0 {
			return fmt.Errorf("setup[%d]: inline needs channels", index)
		}
	}
	if step.Synthesized {
		set++
	}
	if set != 1 {
		return fmt.Errorf("setup[%d]: exactly one of external, record, inline or synthesized is required", index)
	}
	return nil
}

func validateFlowStep(index int, step FlowStep) error {
	if !sendKinds[step.Send] {
		return fmt.Errorf("flow[%d]: unknown send kind %q", index, step.Send)
	}
	switch bridge.Kind(step.Send) {
	case bridge.KindSetSampleData:
		if !step.Handle.Valid() {
			return fmt.Errorf("flow[%d]: handle is required for set_sample_data", index)
		}
		if len(step.Channels) == 0 {
			return fmt.Errorf("flow[%d]: channels are required for set_sample_data", index)
		}
	case bridge.KindSetSampleError:
		if !step.Handle.Valid() {
			return fmt.Errorf("flow[%d]: handle is required for set_sample_error", index)
		}
	case bridge.KindRecord:
		if step.Record == nil {
			return fmt.Errorf("flow[%d]: record is required for record", index)
		}
	}
	return nil
}

func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case AssertPublishCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for publish_count", index)
		}
	case AssertPublishOrder:
		if !a.Handle.Valid() {
			return fmt.Errorf("assertions[%d]: handle is required for publish_order", index)
		}
	case AssertFinalSample:
		if !a.Handle.Valid() {
			return fmt.Errorf("assertions[%d]: handle is required for final_sample", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_sample", index)
		}
	case AssertRequired:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
