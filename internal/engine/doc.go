// Package engine runs the samplerec control thread.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// Every request that touches the control-side sample.Store or the VM
// instances is processed by Controller.Run in one goroutine. This keeps
// record invocations, sample writes and registration syncs strictly
// ordered and never interleaved.
//
// Event Processing Flow:
//  1. Requests arrive as bridge envelopes (from a bridge.Port, the
//     websocket hub, or the CLI) and are enqueued with a reply callback.
//  2. Controller.Run dequeues them one at a time in FIFO order.
//  3. The message is dispatched by type and answered through the callback.
//
// Failures are answered with an error envelope and the loop continues;
// one bad request never stops the controller.
package engine
