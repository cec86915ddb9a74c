// Package persist stores sample handle registrations in SQLite.
//
// The in-memory sample.Store is rebuilt on every start. Registry records
// the origin each handle was registered from, plus handles whose audio was
// invalidated, so the control loop can replay them into a fresh store with
// ensure* calls (or ship them as a bridge.SyncRegistrations message). A
// Journal can be added to the publish fanout to keep an audit trail of
// every SetSampleData and SetSampleError delivered.
//
// The database runs in WAL mode with a single open connection, the same
// single-writer shape as the control loop that owns it.
package persist
