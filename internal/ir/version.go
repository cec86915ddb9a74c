package ir

// Version constants for persisted records and the wire protocol.
const (
	// SchemaVersion is the version of the persisted registration format.
	SchemaVersion = "1"

	// ProtocolVersion is the version of the bridge message envelope.
	ProtocolVersion = "1"
)
