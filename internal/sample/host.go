package sample

import (
	"github.com/roach88/samplerec/internal/ir"
	"github.com/roach88/samplerec/internal/vm"
)

var _ vm.Host = (*Host)(nil)

// Host exposes a Store to a bytecode runtime as its host-call surface.
type Host struct {
	store *Store
}

// NewHost returns a vm.Host backed by s.
func NewHost(s *Store) *Host {
	return &Host{store: s}
}

// ReadChunk fills dst from channel ch of h starting at offset, zero-padded.
func (h *Host) ReadChunk(handle ir.Handle, ch, offset int, dst []float32) int {
	return h.store.ReadChunkInto(handle, ch, offset, dst)
}

func (h *Host) ChannelCount(handle ir.Handle) int {
	return h.store.ChannelCount(handle)
}

func (h *Host) Length(handle ir.Handle, ch int) int {
	return h.store.Length(handle, ch)
}

func (h *Host) Version(handle ir.Handle) ir.Version {
	return h.store.Version(handle)
}

func (h *Host) SliceCount(handle ir.Handle, threshold float64) int {
	return h.store.SliceCount(handle, threshold)
}

// SlicePoint returns 0 when i is out of range.
func (h *Host) SlicePoint(handle ir.Handle, threshold float64, i int) int {
	return h.store.SlicePoint(handle, threshold, i)
}
