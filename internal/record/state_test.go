package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrail(t *testing.T) {
	var empty Trail
	assert.Equal(t, StateIdle, empty.Last())

	trail := Trail{StateIdle, StateCapturing, StateCaptureFailed}
	assert.Equal(t, StateCaptureFailed, trail.Last())
	assert.Equal(t, "idle → capturing → capture_failed", trail.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestError_Describe(t *testing.T) {
	err := NewNotScalarError(3, 2)
	assert.Equal(t, "CAPTURE_FAILED: captured variable at slot 2 is not a scalar (handle=3)", err.Error())
	assert.True(t, IsCaptureError(err))

	render := newRenderError(3, assert.AnError)
	assert.Equal(t, "render failed: "+assert.AnError.Error(), render.Describe())
	assert.ErrorIs(t, render, assert.AnError)
}
