package vm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlots_SetGet(t *testing.T) {
	s := NewSlots(3)
	require.Equal(t, 3, s.Len())

	require.NoError(t, s.Set(1, 2.5))
	v, defined, err := s.Get(1)
	require.NoError(t, err)
	assert.True(t, defined)
	assert.Equal(t, 2.5, v)

	v, defined, err = s.Get(0)
	require.NoError(t, err)
	assert.True(t, defined, "new slots start defined")
	assert.Equal(t, 0.0, v)
}

func TestSlots_Undefined(t *testing.T) {
	s := NewSlots(2)
	require.NoError(t, s.SetUndefined(0))
	assert.True(t, s.IsUndefined(0))
	assert.False(t, s.IsUndefined(1))

	require.NoError(t, s.Set(0, 1))
	assert.False(t, s.IsUndefined(0), "Set clears the undefined flag")
}

func TestSlots_BoundsChecked(t *testing.T) {
	s := NewSlots(2)

	assert.ErrorIs(t, s.Set(2, 1), ErrSlotOutOfRange)
	assert.ErrorIs(t, s.Set(-1, 1), ErrSlotOutOfRange)
	assert.ErrorIs(t, s.SetUndefined(5), ErrSlotOutOfRange)
	_, _, err := s.Get(2)
	assert.ErrorIs(t, err, ErrSlotOutOfRange)
	assert.True(t, s.IsUndefined(9))
	assert.Equal(t, 2, s.Len(), "slots never grow")
}

func TestSlots_Fill(t *testing.T) {
	s := NewSlots(3)
	require.NoError(t, s.SetUndefined(2))
	s.Fill(math.NaN())
	for i := 0; i < 3; i++ {
		v, defined, err := s.Get(i)
		require.NoError(t, err)
		assert.True(t, defined)
		assert.True(t, math.IsNaN(v))
	}
}

func TestNewSlots_Negative(t *testing.T) {
	assert.Equal(t, 0, NewSlots(-4).Len())
}

func TestNewTransport(t *testing.T) {
	tr := NewTransport(44100, 0)
	assert.Equal(t, 44100.0, tr.SampleRate)
	assert.Equal(t, 22050.0, tr.Nyquist)
	assert.InDelta(t, math.Pi/22050, tr.PiOverNyquist, 1e-15)
	assert.Equal(t, float64(DefaultBPM), tr.BPM)

	assert.Equal(t, 0.0, NewTransport(0, 90).PiOverNyquist)
}

func TestInstance_String(t *testing.T) {
	assert.Equal(t, "capture", CaptureInstance.String())
	assert.Equal(t, "render", RenderInstance.String())
	assert.Equal(t, "realtime", RealtimeInstance.String())
}
