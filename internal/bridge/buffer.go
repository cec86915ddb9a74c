package bridge

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/roach88/samplerec/internal/ir"
)

// ResourceKey names an allocation slot. Allocating under a key that is
// already held releases the previous buffer.
type ResourceKey string

// SampleKey is the resource key of a handle's published audio.
func SampleKey(h ir.Handle) ResourceKey {
	return ResourceKey(fmt.Sprintf("sample:%d", h))
}

// Allocation categories.
const (
	CategoryRecord = "record"
	CategoryInline = "inline"
	CategoryDecode = "decode"
)

// SharedBuffer is PCM audio shared by reference across threads. It is
// written once, before it is published, and read-only afterwards.
type SharedBuffer struct {
	Key        ResourceKey
	Category   string
	Source     string
	Channels   [][]float32
	SampleRate int

	released atomic.Bool
}

// Bytes returns the size of the channel data.
func (b *SharedBuffer) Bytes() int64 {
	var n int64
	for _, ch := range b.Channels {
		n += int64(len(ch)) * 4
	}
	return n
}

// Released reports whether the registry has dropped b.
func (b *SharedBuffer) Released() bool {
	return b.released.Load()
}

// Usage aggregates allocations.
type Usage struct {
	Count int   `json:"count"`
	Bytes int64 `json:"bytes"`
}

// AllocationSnapshot reports live buffers grouped by category and source.
type AllocationSnapshot struct {
	Total      Usage            `json:"total"`
	ByCategory map[string]Usage `json:"by_category"`
	BySource   map[string]Usage `json:"by_source"`
	Keys       []ResourceKey    `json:"keys"`
}

// BufferRegistry tracks live shared buffers by resource key.
//
// Thread-safety: all methods are safe for concurrent use.
type BufferRegistry struct {
	mu      sync.Mutex
	buffers map[ResourceKey]*SharedBuffer
	freed   int
}

// NewBufferRegistry creates an empty registry.
func NewBufferRegistry() *BufferRegistry {
	return &BufferRegistry{buffers: make(map[ResourceKey]*SharedBuffer)}
}

// Allocate copies channels into a fresh SharedBuffer held under key,
// releasing whatever key held before.
func (r *BufferRegistry) Allocate(key ResourceKey, category, source string, channels [][]float32, sampleRate int) *SharedBuffer {
	copied := make([][]float32, len(channels))
	for i, ch := range channels {
		copied[i] = append(make([]float32, 0, len(ch)), ch...)
	}
	buf := &SharedBuffer{
		Key:        key,
		Category:   category,
		Source:     source,
		Channels:   copied,
		SampleRate: sampleRate,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.releaseLocked(key)
	r.buffers[key] = buf
	return buf
}

// Release drops the buffer held under key. It reports whether one existed.
func (r *BufferRegistry) Release(key ResourceKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.releaseLocked(key)
}

func (r *BufferRegistry) releaseLocked(key ResourceKey) bool {
	prev, ok := r.buffers[key]
	if !ok {
		return false
	}
	prev.released.Store(true)
	delete(r.buffers, key)
	r.freed++
	return true
}

// Get returns the live buffer under key.
func (r *BufferRegistry) Get(key ResourceKey) (*SharedBuffer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.buffers[key]
	return b, ok
}

// Freed returns how many buffers have been released.
func (r *BufferRegistry) Freed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.freed
}

// Snapshot summarizes the live buffers.
func (r *BufferRegistry) Snapshot() AllocationSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := AllocationSnapshot{
		ByCategory: make(map[string]Usage),
		BySource:   make(map[string]Usage),
		Keys:       make([]ResourceKey, 0, len(r.buffers)),
	}
	for key, b := range r.buffers {
		n := b.Bytes()
		snap.Total.Count++
		snap.Total.Bytes += n

		u := snap.ByCategory[b.Category]
		u.Count++
		u.Bytes += n
		snap.ByCategory[b.Category] = u

		u = snap.BySource[b.Source]
		u.Count++
		u.Bytes += n
		snap.BySource[b.Source] = u

		snap.Keys = append(snap.Keys, key)
	}
	sort.Slice(snap.Keys, func(i, j int) bool { return snap.Keys[i] < snap.Keys[j] })
	return snap
}
