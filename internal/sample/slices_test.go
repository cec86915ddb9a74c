package sample

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/samplerec/internal/slicer"
	"github.com/roach88/samplerec/internal/testutil"
)

func clickTrack() []float32 {
	return testutil.Clicks(44100, 0, 11025, 22050, 33075)
}

func TestStore_Slices_SilenceFallsBack(t *testing.T) {
	s := createTestStore(t)
	h := s.RegisterInline([][]float32{make([]float32, 44100)}, 44100)

	for _, thr := range []float64{0, 0.3, 0.5, 1} {
		assert.Equal(t, slicer.Fallback(), s.Slices(h, thr))
	}
}

func TestStore_Slices_UnreadyFallsBackWithoutCaching(t *testing.T) {
	s := createTestStore(t)
	h := s.RegisterExternalRef("pending")

	assert.Equal(t, slicer.Fallback(), s.Slices(h, 0.1))
	assert.Equal(t, 0, s.lookup(h).slices.len())
	assert.Equal(t, slicer.Fallback(), s.Slices(99, 0.1))
}

func TestStore_Slices_MatchesDetector(t *testing.T) {
	s := createTestStore(t)
	data := clickTrack()
	h := s.RegisterInline([][]float32{data}, 44100)

	got := s.Slices(h, 0.1)
	assert.Equal(t, slicer.Detect(data, 0.1, slicer.DefaultMax), got)
	assert.Equal(t, 3, s.SliceCount(h, 0.1))
	assert.Equal(t, 22050, s.SlicePoint(h, 0.1, 1))
	assert.Equal(t, 0, s.SlicePoint(h, 0.1, 3), "out of range point is 0")
}

func TestStore_Slices_CachedPerQuantizedThreshold(t *testing.T) {
	s := createTestStore(t)
	h := s.RegisterInline([][]float32{clickTrack()}, 44100)

	first := s.Slices(h, 0.1)
	again := s.Slices(h, 0.1)
	assert.Equal(t, first, again)
	assert.Equal(t, 1, s.lookup(h).slices.len())

	s.Slices(h, 0.1004) // rounds to the same key
	assert.Equal(t, 1, s.lookup(h).slices.len())

	s.Slices(h, 0.5)
	assert.Equal(t, 2, s.lookup(h).slices.len())
}

func TestStore_Slices_CacheIsBounded(t *testing.T) {
	s := createTestStore(t, WithSliceCacheSize(4))
	h := s.RegisterInline([][]float32{clickTrack()}, 44100)

	for i := 0; i < 10; i++ {
		s.Slices(h, float64(i)/10)
	}
	c := s.lookup(h).slices
	assert.Equal(t, 4, c.len())
	assert.Equal(t, []int{600, 700, 800, 900}, c.order, "oldest thresholds are evicted first")
}

// New data makes cached slice points stale: the cache is tagged with the
// handle version, so a re-recorded sample is sliced again.
func TestStore_Slices_InvalidatedByNewData(t *testing.T) {
	s := createTestStore(t)
	h := s.RegisterRecordRequest("p", 1, 1)
	require.True(t, s.RecordSample(h, [][]float32{clickTrack()}, 44100))

	before := s.Slices(h, 0.1)
	require.Equal(t, 3, before.Count)

	step := make([]float32, 128)
	for i := 64; i < 128; i++ {
		step[i] = 1
	}
	require.True(t, s.RecordSample(h, [][]float32{step}, 44100))

	after := s.Slices(h, 0.1)
	assert.Equal(t, []int{64}, after.Points)
}

func TestStore_Slices_EvictedByClearHandle(t *testing.T) {
	s := createTestStore(t)
	h := s.RegisterInline([][]float32{clickTrack()}, 44100)
	s.Slices(h, 0.1)
	s.Slices(h, 0.2)

	s.ClearHandle(h)

	assert.Equal(t, 0, s.lookup(h).slices.len())
	assert.Equal(t, slicer.Fallback(), s.Slices(h, 0.1))
}

func TestStore_Slices_RespectsMaxSlices(t *testing.T) {
	s := createTestStore(t, WithMaxSlices(1))
	h := s.RegisterInline([][]float32{clickTrack()}, 44100)
	assert.Equal(t, 1, s.SliceCount(h, 0))
}

func TestThresholdKey(t *testing.T) {
	assert.Equal(t, 500, ThresholdKey(0.5))
	assert.Equal(t, 100, ThresholdKey(0.1004))
	assert.Equal(t, 101, ThresholdKey(0.1006))
	assert.Equal(t, 0, ThresholdKey(0))
	assert.Equal(t, 1000, ThresholdKey(math.Inf(1)))
	assert.Equal(t, 1000, ThresholdKey(7))
	assert.Equal(t, 0, ThresholdKey(math.Inf(-1)))
	assert.Equal(t, 0, ThresholdKey(math.NaN()))
}

func TestStore_Slices_OutOfRangeThresholdsClamp(t *testing.T) {
	s := createTestStore(t)
	data := clickTrack()
	h := s.RegisterInline([][]float32{data}, 44100)

	assert.Equal(t, slicer.Detect(data, 1, slicer.DefaultMax), s.Slices(h, math.Inf(1)))
	assert.Equal(t, slicer.Detect(data, 0, slicer.DefaultMax), s.Slices(h, math.Inf(-1)))
	assert.Equal(t, 2, s.lookup(h).slices.len())
}

func TestStore_Slices_ConcurrentWithClear(t *testing.T) {
	s := createTestStore(t)
	data := clickTrack()

	var wg sync.WaitGroup
	for range 4 {
		wg.Go(func() {
			for range 20 {
				h := s.RegisterInline([][]float32{data}, 44100)
				r := s.Slices(h, 0.5)
				assert.GreaterOrEqual(t, r.Count, 1)
			}
		})
	}
	wg.Go(func() {
		for range 20 {
			s.Clear()
		}
	})
	wg.Wait()
}
