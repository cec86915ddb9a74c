package ir

import (
	"math"
	"strconv"
)

// Handle identifies a sample buffer across its whole lifetime.
// Handles are opaque to callers and are never reused while the owning store
// lives. The zero value is NoHandle.
type Handle uint32

// NoHandle is the zero Handle. No store ever issues it.
const NoHandle Handle = 0

// MaxHandle is the largest Handle a store can issue.
const MaxHandle Handle = math.MaxUint32

// Valid reports whether h could have been issued by a store.
func (h Handle) Valid() bool {
	return h != NoHandle
}

// Index returns the arena slot of h (handle-1).
// Callers must check Valid first.
func (h Handle) Index() int {
	return int(h) - 1
}

func (h Handle) String() string {
	return strconv.FormatUint(uint64(h), 10)
}

// HandleAt is the inverse of Handle.Index.
func HandleAt(index int) Handle {
	return Handle(index + 1)
}

// Version orders mutations of one handle. It is bumped exactly once per
// successful mutating call, so a higher Version always supersedes a lower one.
// Zero means the handle has never been written.
type Version uint64
