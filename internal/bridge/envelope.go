package bridge

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/samplerec/internal/ir"
)

// Envelope wraps a Message with its correlation id. A reply carries the id
// of its request in ReplyTo; a failed request is answered with Error set
// and no Message.
type Envelope struct {
	ID      string
	ReplyTo string
	Message Message
	Error   string
}

// wireEnvelope is the JSON form of an Envelope.
type wireEnvelope struct {
	Protocol string          `json:"protocol"`
	ID       string          `json:"id"`
	ReplyTo  string          `json:"reply_to,omitempty"`
	Kind     Kind            `json:"kind,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// NewEnvelope wraps msg with a fresh id from ids.
func NewEnvelope(ids IDGenerator, msg Message) Envelope {
	return Envelope{ID: ids.Generate(), Message: msg}
}

// Reply builds the answer to req. A non-nil err wins over msg.
func Reply(ids IDGenerator, req Envelope, msg Message, err error) Envelope {
	env := Envelope{ID: ids.Generate(), ReplyTo: req.ID}
	if err != nil {
		env.Error = err.Error()
		return env
	}
	env.Message = msg
	return env
}

// Kind returns the kind of the wrapped message, or "" for a bare error.
func (e Envelope) Kind() Kind {
	if e.Message == nil {
		return ""
	}
	return e.Message.Kind()
}

// MarshalJSON encodes e with its message payload tagged by kind.
func (e Envelope) MarshalJSON() ([]byte, error) {
	w := wireEnvelope{
		Protocol: ir.ProtocolVersion,
		ID:       e.ID,
		ReplyTo:  e.ReplyTo,
		Error:    e.Error,
	}
	if e.Message != nil {
		payload, err := json.Marshal(e.Message)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", e.Message.Kind(), err)
		}
		w.Kind = e.Message.Kind()
		w.Payload = payload
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes an envelope, dispatching the payload by kind.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Protocol != "" && w.Protocol != ir.ProtocolVersion {
		return fmt.Errorf("unsupported protocol version %q", w.Protocol)
	}
	*e = Envelope{ID: w.ID, ReplyTo: w.ReplyTo, Error: w.Error}
	if w.Kind == "" {
		return nil
	}
	msg, err := decodePayload(w.Kind, w.Payload)
	if err != nil {
		return fmt.Errorf("decode %s payload: %w", w.Kind, err)
	}
	e.Message = msg
	return nil
}
