package slicer

import "math"

// DefaultMax is the default cap on the number of slice points.
const DefaultMax = 256

// Bucket sizing.
const (
	minBuckets        = 256
	maxBuckets        = 16384
	bucketsPerSlice   = 16
	samplesPerBucket  = 32
	fastCoefficient   = 0.25
	slowCoefficient   = 0.02
	ratioFloorScale   = 1e-5
	initialLastBucket = -1073741823
)

// Result is the outcome of one detection. Points are sample offsets,
// strictly increasing, and Count == len(Points) with 1 <= Count <= maxPoints.
type Result struct {
	Points []int `json:"points"`
	Count  int   `json:"count"`
}

// Fallback is the result for silent, empty or unready samples: a single
// slice starting at offset 0.
func Fallback() Result {
	return Result{Points: []int{0}, Count: 1}
}

// Point returns the i-th slice offset, or 0 when i is out of range.
func (r Result) Point(i int) int {
	if i < 0 || i >= len(r.Points) {
		return 0
	}
	return r.Points[i]
}

// BucketCount returns the number of peak buckets used for a sample of
// length n when at most maxPoints points are requested.
func BucketCount(n, maxPoints int) int {
	desired := maxPoints * bucketsPerSlice
	if desired > maxBuckets {
		desired = maxBuckets
	}
	if desired < minBuckets {
		desired = minBuckets
	}
	bc := n
	if desired < bc {
		bc = desired
	}
	if byLength := n / samplesPerBucket; byLength < bc {
		bc = byLength
	}
	return clampInt(bc, 1, n)
}

// Detect returns onset points of samples. threshold is clamped to [0,1]
// (higher finds fewer onsets) and maxPoints < 1 is treated as 1.
func Detect(samples []float32, threshold float64, maxPoints int) Result {
	n := len(samples)
	if n == 0 {
		return Fallback()
	}
	if maxPoints < 1 {
		maxPoints = 1
	}
	thr := threshold
	if math.IsNaN(thr) || thr < 0 {
		thr = 0
	}
	if thr > 1 {
		thr = 1
	}

	bc := BucketCount(n, maxPoints)
	if bc <= 1 {
		return Fallback()
	}

	rise, riseMax := riseEnvelope(ComputePeaks(samples, bc))
	if riseMax <= 0 {
		return Fallback()
	}

	minRise := riseMax * (0.02 + thr*0.28)
	noveltyMin := riseMax * (0.01 + thr*0.18)
	ratioMin := thr * 0.9
	minDistance := 1 + int(thr*24)
	rearmLevel := riseMax * (0.006 + thr*0.06)
	cooldownFrames := 1 + int(thr*10)
	tightDistance := 4 + int(thr*8)
	gainDecay := 0.995 + thr*0.01
	gainScale := 10 + thr*12

	fast := float64(rise[0])
	slow := fast
	prevNovelty2, prevNovelty1 := 0.0, 0.0
	prevFast, prevSlow := fast, slow

	lastBucket := initialLastBucket
	armed := true
	cooldown := 0
	gain := 0.0
	points := make([]int, 0, 8)

	for frame := 1; frame < bc; frame++ {
		if len(points) >= maxPoints {
			break
		}
		energy := float64(rise[frame])
		// Explicit conversions keep the EMA from being fused into FMA
		// instructions, which would change rounding per platform.
		fast += float64((energy - fast) * fastCoefficient)
		slow += float64((energy - slow) * slowCoefficient)
		novelty := math.Max(0, fast-slow)

		gain *= gainDecay
		mul := 1 + float64(gain*gainScale)
		effMinRise := minRise * mul
		effNoveltyMin := noveltyMin * mul
		effDistance := int(math.Floor(float64(minDistance) * float64(1+gain*2)))
		if effDistance < 2 {
			effDistance = 2
		}
		if len(points) <= 2 && tightDistance > effDistance {
			effDistance = tightDistance
		}

		if !armed && novelty <= rearmLevel {
			armed = true
		}
		if cooldown > 0 {
			cooldown--
		}

		if frame >= 2 && prevNovelty1 > prevNovelty2 && prevNovelty1 >= novelty {
			pos := frame - 1
			base := math.Max(prevSlow, riseMax*ratioFloorScale)
			ratio := prevFast / base
			if armed && cooldown <= 0 && pos-lastBucket >= effDistance &&
				prevFast >= effMinRise && ratio >= 1+ratioMin && prevNovelty1 >= effNoveltyMin {
				start := pos * n / bc
				if len(points) == 0 || start > points[len(points)-1] {
					points = append(points, start)
					lastBucket = pos
					armed = false
					cooldown = cooldownFrames
					gain = math.Min(1, gain+0.75)
				}
			}
		}

		prevNovelty2 = prevNovelty1
		prevNovelty1 = novelty
		prevFast = fast
		prevSlow = slow
	}

	if len(points) == 0 {
		return Fallback()
	}
	return Result{Points: points, Count: len(points)}
}

// riseEnvelope returns the positive amplitude increase of each bucket over
// the previous one (0 for the first) and its maximum.
func riseEnvelope(peaks []Peak) ([]float32, float64) {
	rise := make([]float32, len(peaks))
	riseMax := 0.0
	prev := 0.0
	for i, p := range peaks {
		amp := math.Max(math.Abs(float64(p.Min)), math.Abs(float64(p.Max)))
		d := 0.0
		if i > 0 {
			d = math.Max(0, amp-prev)
		}
		rise[i] = float32(d)
		if float64(rise[i]) > riseMax {
			riseMax = float64(rise[i])
		}
		prev = amp
	}
	return rise, riseMax
}
