// Package bridge carries samplerec's cross-thread traffic.
//
// Every message is a variant of the Message tagged union and travels inside
// an Envelope with a correlation id, whether it stays in process (Port) or
// goes over a websocket (Hub). Receivers dispatch with a type switch.
//
// Rendered audio crosses as a SharedBuffer: allocated once per publish,
// tracked by resource key so a re-record releases the previous buffer, and
// never written after it is published.
//
// Consumers apply publishes through a VersionGate so a stale publish (lower
// or equal version for the same handle) is dropped rather than applied.
package bridge
