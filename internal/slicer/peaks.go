package slicer

// Peak is the amplitude range of one bucket.
type Peak struct {
	Min float32
	Max float32
}

// ComputePeaks splits ch into width buckets with boundaries at
// floor(i*len/width) and returns the min/max of each. Every bucket covers at
// least one sample, so short inputs repeat their last sample.
func ComputePeaks(ch []float32, width int) []Peak {
	n := len(ch)
	if n == 0 || width <= 0 {
		return nil
	}
	out := make([]Peak, width)
	for i := 0; i < width; i++ {
		from := i * n / width
		to := (i + 1) * n / width
		start := clampInt(from, 0, n-1)
		end := clampInt(to, start+1, n)

		lo := ch[start]
		hi := lo
		for _, v := range ch[start+1 : end] {
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		out[i] = Peak{Min: lo, Max: hi}
	}
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
