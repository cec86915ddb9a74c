package testutil

import "math"

// Clicks returns n samples of silence with a full-scale single-sample click
// at every offset.
func Clicks(n int, offsets ...int) []float32 {
	s := make([]float32, n)
	for _, o := range offsets {
		s[o] = 1
	}
	return s
}

// Bursts returns n samples with an exponentially decaying alternating burst
// of 400 samples at every offset.
func Bursts(n int, offsets ...int) []float32 {
	s := make([]float32, n)
	for _, o := range offsets {
		for k := 0; k < 400 && o+k < n; k++ {
			v := float32(math.Exp(-float64(k) / 80))
			if k%2 == 1 {
				v = -v
			}
			s[o+k] = v
		}
	}
	return s
}

// Constant returns n copies of v.
func Constant(n int, v float32) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = v
	}
	return s
}

// Ramp returns start, start+step, start+2*step and so on.
func Ramp(n int, start, step float32) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = start + float32(i)*step
	}
	return s
}

// Sine returns n samples of a unit sine at freq Hz.
func Sine(n int, freq float64, rate int) []float32 {
	s := make([]float32, n)
	w := 2 * math.Pi * freq / float64(rate)
	for i := range s {
		s[i] = float32(math.Sin(w * float64(i)))
	}
	return s
}
