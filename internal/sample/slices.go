package sample

import (
	"math"

	"github.com/roach88/samplerec/internal/ir"
	"github.com/roach88/samplerec/internal/slicer"
)

// ThresholdKey quantizes a threshold to the cache key used by Slices.
// The threshold is clamped to [0,1] first, the range the detector accepts,
// and thresholds that round to the same thousandth share one detection.
func ThresholdKey(threshold float64) int {
	if math.IsNaN(threshold) || threshold <= 0 {
		return 0
	}
	if threshold >= 1 {
		return 1000
	}
	return int(math.Round(threshold * 1000))
}

// Slices returns the onset points of channel 0 of h at threshold.
//
// Results are cached per handle and quantized threshold. The cache is tagged
// with the handle's version: new data (SetSampleData, RecordSample) makes
// cached points stale and they are recomputed on the next lookup. Unready or
// unknown handles return slicer.Fallback and nothing is cached.
func (s *Store) Slices(h ir.Handle, threshold float64) slicer.Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.lookup(h)
	if e == nil {
		return slicer.Fallback()
	}

	snap := e.snap.Load()
	if !snap.Ready || len(snap.Channels) == 0 {
		return slicer.Fallback()
	}

	version := ir.Version(e.version.Load())
	key := ThresholdKey(threshold)
	if r, ok := e.slices.get(version, key); ok {
		return r
	}
	r := slicer.Detect(snap.Channels[0], float64(key)/1000, s.maxSlices)
	e.slices.put(key, r)
	return r
}

// SliceCount returns the number of slice points of h at threshold.
func (s *Store) SliceCount(h ir.Handle, threshold float64) int {
	return s.Slices(h, threshold).Count
}

// SlicePoint returns slice point i of h at threshold, or 0 if i is out of
// range.
func (s *Store) SlicePoint(h ir.Handle, threshold float64, i int) int {
	return s.Slices(h, threshold).Point(i)
}

// sliceCache is a bounded FIFO of detection results for one handle, valid
// for a single handle version.
type sliceCache struct {
	version ir.Version
	order   []int
	results map[int]slicer.Result
	limit   int
}

func newSliceCache(limit int) *sliceCache {
	return &sliceCache{results: make(map[int]slicer.Result), limit: limit}
}

func (c *sliceCache) get(v ir.Version, key int) (slicer.Result, bool) {
	if c.version != v {
		c.reset(v)
		return slicer.Result{}, false
	}
	r, ok := c.results[key]
	return r, ok
}

func (c *sliceCache) put(key int, r slicer.Result) {
	if _, ok := c.results[key]; ok {
		c.results[key] = r
		return
	}
	if len(c.order) >= c.limit {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.results, oldest)
	}
	c.order = append(c.order, key)
	c.results[key] = r
}

func (c *sliceCache) reset(v ir.Version) {
	c.version = v
	c.order = c.order[:0]
	clear(c.results)
}

func (c *sliceCache) len() int {
	return len(c.results)
}
