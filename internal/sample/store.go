package sample

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roach88/samplerec/internal/ir"
	"github.com/roach88/samplerec/internal/slicer"
)

// DefaultSampleRate is the rate reported for handles that have no data yet.
const DefaultSampleRate = 44100

// DefaultSliceCacheSize bounds the number of thresholds cached per handle.
const DefaultSliceCacheSize = 16

// DefaultMaxHandleGap bounds how far past the next issued handle an
// ensure may create a handle.
const DefaultMaxHandleGap = 1 << 16

// minArena is the initial arena capacity.
const minArena = 16

// Sample is an immutable snapshot of one handle's audio.
// Channels are shared with the store and must not be modified.
type Sample struct {
	ID         ir.Handle   `json:"id"`
	Channels   [][]float32 `json:"-"`
	Length     int         `json:"length"`
	SampleRate int         `json:"sample_rate"`
	Ready      bool        `json:"ready"`
	Error      string      `json:"error,omitempty"`
}

// Registration pairs a handle with the origin it was registered from.
type Registration struct {
	Handle ir.Handle `json:"handle"`
	Origin ir.Origin `json:"origin"`
}

// MemoryInfo summarizes what the store holds.
type MemoryInfo struct {
	HandleCount       int   `json:"handle_count"`
	TotalChannelBytes int64 `json:"total_channel_bytes"`
}

// entry is one arena slot. origin never changes after creation.
type entry struct {
	origin  ir.Origin
	snap    atomic.Pointer[Sample]
	version atomic.Uint64
	slices  *sliceCache // guarded by Store.mu
}

// Store is the handle registry.
//
// The arena is a fixed-size slice of atomic slots. Inserts store into a free
// slot in place; only growth allocates, doubling the capacity, and readers
// holding the old arena keep a consistent view.
type Store struct {
	mu    sync.Mutex
	arena atomic.Pointer[[]atomic.Pointer[entry]]
	next  uint64 // wider than Handle so it cannot wrap

	byExternal map[string]ir.Handle
	byRecord   map[ir.RecordKey]ir.Handle

	defaultRate int
	maxSlices   int
	cacheSize   int
	maxGap      uint64
	logger      *slog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithDefaultSampleRate sets the rate reported for pending handles.
func WithDefaultSampleRate(rate int) StoreOption {
	return func(s *Store) {
		if rate > 0 {
			s.defaultRate = rate
		}
	}
}

// WithMaxSlices sets the maximum number of slice points per detection.
func WithMaxSlices(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.maxSlices = n
		}
	}
}

// WithSliceCacheSize bounds the per-handle slice cache.
func WithSliceCacheSize(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.cacheSize = n
		}
	}
}

// WithMaxHandleGap bounds how far beyond the next issued handle an
// Ensure call may reach. Handles past the bound are refused.
func WithMaxHandleGap(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.maxGap = uint64(n)
		}
	}
}

// WithLogger sets the logger used for registration events.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates an empty Store. The first issued handle is 1.
func New(opts ...StoreOption) *Store {
	s := &Store{
		next:        1,
		byExternal:  make(map[string]ir.Handle),
		byRecord:    make(map[ir.RecordKey]ir.Handle),
		defaultRate: DefaultSampleRate,
		maxSlices:   slicer.DefaultMax,
		cacheSize:   DefaultSliceCacheSize,
		maxGap:      DefaultMaxHandleGap,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.resetArena()
	return s
}

func (s *Store) resetArena() {
	empty := make([]atomic.Pointer[entry], minArena)
	s.arena.Store(&empty)
}

// lookup returns the entry for h without locking, or nil.
func (s *Store) lookup(h ir.Handle) *entry {
	if !h.Valid() {
		return nil
	}
	arena := *s.arena.Load()
	i := h.Index()
	if i >= len(arena) {
		return nil
	}
	return arena[i].Load()
}

// each calls fn for every registered handle in handle order.
func (s *Store) each(fn func(ir.Handle, *entry)) {
	arena := *s.arena.Load()
	for i := range arena {
		if e := arena[i].Load(); e != nil {
			fn(ir.HandleAt(i), e)
		}
	}
}

// pending returns the snapshot of a handle that has no data.
func (s *Store) pending(h ir.Handle) *Sample {
	return &Sample{ID: h, SampleRate: s.defaultRate}
}

// inWindowLocked reports whether h may be created by an ensure: it must not
// lie more than maxGap handles past the next issued one. s.mu must be held.
func (s *Store) inWindowLocked(h ir.Handle) bool {
	return h.Valid() && uint64(h) < s.next+s.maxGap
}

// insertLocked places a new entry at h, growing the arena when h is past
// its end. s.mu must be held and h must be free.
func (s *Store) insertLocked(h ir.Handle, origin ir.Origin, snap *Sample) *entry {
	e := &entry{origin: origin, slices: newSliceCache(s.cacheSize)}
	e.snap.Store(snap)

	arena := *s.arena.Load()
	i := h.Index()
	if i >= len(arena) {
		grown := make([]atomic.Pointer[entry], max(i+1, 2*len(arena), minArena))
		for j := range arena {
			grown[j].Store(arena[j].Load())
		}
		grown[i].Store(e)
		s.arena.Store(&grown)
	} else {
		arena[i].Store(e)
	}

	if uint64(h) >= s.next {
		s.next = uint64(h) + 1
	}

	switch origin.Kind {
	case ir.OriginExternal:
		if _, ok := s.byExternal[origin.ExternalID]; !ok {
			s.byExternal[origin.ExternalID] = h
		}
	case ir.OriginRecord:
		key := origin.RecordKey()
		if _, ok := s.byRecord[key]; !ok {
			s.byRecord[key] = h
		}
	}
	return e
}

// issueLocked allocates the next handle. It returns false once every
// handle has been issued. s.mu must be held.
func (s *Store) issueLocked() (ir.Handle, bool) {
	if s.next > uint64(ir.MaxHandle) {
		s.logger.Error("handle space exhausted")
		return ir.NoHandle, false
	}
	h := ir.Handle(s.next)
	s.next++
	return h, true
}
