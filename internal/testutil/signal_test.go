package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClicks(t *testing.T) {
	assert.Equal(t, []float32{1, 0, 0, 1, 0}, Clicks(5, 0, 3))
}

func TestBursts(t *testing.T) {
	s := Bursts(1000, 100)
	assert.Equal(t, float32(0), s[99])
	assert.Equal(t, float32(1), s[100])
	assert.Less(t, s[101], float32(0), "bursts alternate sign")
	assert.Equal(t, float32(0), s[500], "bursts last 400 samples")

	assert.Len(t, Bursts(150, 100), 150, "bursts near the end are truncated")
}

func TestBuilders(t *testing.T) {
	assert.Equal(t, []float32{0.5, 0.5, 0.5}, Constant(3, 0.5))
	assert.Equal(t, []float32{1, 1.5, 2}, Ramp(3, 1, 0.5))

	s := Sine(8, 1000, 8000)
	assert.InDelta(t, 0, s[0], 1e-6)
	assert.InDelta(t, 1, s[2], 1e-6)
	assert.InDelta(t, -1, s[6], 1e-6)
}
