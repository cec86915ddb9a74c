// Package record renders a running program's callback offline into a
// sample handle.
//
// An invocation walks a fixed state machine:
//
//	Idle → Capturing → {CaptureFailed | Captured}
//	     → Rendering → {RenderFailed | Rendered}
//	     → Publishing → Done
//
// Capture runs the main program once on a temporary VM instance and reads
// the callback's free variables back out of an explicit capture store.
// Captures are memoized by program, scope and slot count. Render runs the
// callback's setup and loop programs on a dedicated instance with the
// captured values written into its globals. The result is written into the
// sample.Store and published to the realtime engine and to broadcast
// listeners; failures are published the same way and returned.
//
// Orchestrator.Record holds a mutex for the whole invocation, so requests
// never interleave their use of VM instances.
package record
