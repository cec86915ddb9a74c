// Package ir defines the foundational value types shared by every samplerec
// package: sample handles, publication versions, sample origins and captured
// value sets, plus the content hashes derived from them.
//
// ir imports nothing internal. Every other internal package may import ir.
//
// Key constraints:
//   - Handles are issued from 1 upward; 0 is never a valid handle
//   - Versions are logical counters, never wall-clock timestamps
//   - Identity strings (external ids, project ids) are NFC normalized before
//     they take part in a lookup key or a hash
package ir
