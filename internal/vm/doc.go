// Package vm is the contract between samplerec and a bytecode runtime.
//
// The runtime itself is external. samplerec only needs it to:
//   - run a program once on a throwaway instance and report the live values
//     of one scope's dependencies (Capture)
//   - render N samples from a setup/loop program pair on a dedicated
//     instance (Render)
//   - reclaim instance memory on demand (Collect)
//
// While running, a runtime calls back into samplerec through Host for sample
// reads and slice queries.
//
// Slots replaces the runtime's ambient per-scope capture store with an
// explicit array owned by the caller and bounds-checked on every access.
package vm
