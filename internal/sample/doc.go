// Package sample owns every audio buffer the runtime can reference by handle.
//
// A Store issues handles, keeps one Sample per handle in an arena indexed by
// handle-1, remembers where each handle's audio comes from (its ir.Origin) and
// caches slice points per handle.
//
// Thread-safety model:
//   - Register*, Ensure*, Set*, RecordSample, ClearHandle, Clear and Slices
//     serialize on an internal mutex and may be called from any goroutine
//   - ReadChunkInto, ChannelCount, Length, Version and Sample never lock; the
//     arena and each sample are published through atomic pointers and are
//     immutable once visible
//
// Reads never fail: an unknown, pending or errored handle reads as silence
// and slices as a single point at 0.
package sample
