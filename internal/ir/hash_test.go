package ir

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaptureKey_Deterministic(t *testing.T) {
	program := []byte{0x01, 0x02, 0x03}

	k1 := CaptureKey(program, 4, 2)
	k2 := CaptureKey([]byte{0x01, 0x02, 0x03}, 4, 2)

	assert.Equal(t, k1, k2, "CaptureKey must be deterministic")
	assert.Len(t, k1, 64, "SHA-256 hex is 64 characters")
}

func TestCaptureKey_ChangesWithInput(t *testing.T) {
	program := []byte{0x01, 0x02, 0x03}
	base := CaptureKey(program, 4, 2)

	assert.NotEqual(t, base, CaptureKey([]byte{0x01, 0x02, 0x04}, 4, 2), "program bytes")
	assert.NotEqual(t, base, CaptureKey(program, 5, 2), "scope id")
	assert.NotEqual(t, base, CaptureKey(program, 4, 3), "slot count")
}

func TestCaptureKey_LengthPrefixPreventsAmbiguity(t *testing.T) {
	// Without the length prefix, trailing program bytes could be confused
	// with the scope id encoding.
	a := CaptureKey([]byte{0x00, 0x00, 0x00, 0x01}, 0, 0)
	b := CaptureKey([]byte{0x00, 0x00, 0x00}, 0x01000000, 0)
	assert.NotEqual(t, a, b)
}

func TestHashWithDomain_Separation(t *testing.T) {
	data := []byte("payload")
	assert.NotEqual(t, hashWithDomain(DomainCapture, data), hashWithDomain(DomainOrigin, data))
	assert.Equal(t,
		hashWithDomain(DomainOrigin, []byte("pay"), []byte("load")),
		hashWithDomain(DomainOrigin, data),
		"parts are concatenated")
}

func TestOriginID_Record(t *testing.T) {
	id1, err := OriginID(RecordRequest("proj", 2, 7))
	require.NoError(t, err)
	id2 := MustOriginID(RecordRequest("proj", 2.0, 7))

	assert.Equal(t, id1, id2)
	assert.NotEqual(t, id1, MustOriginID(RecordRequest("proj", 2.5, 7)))
	assert.NotEqual(t, id1, MustOriginID(RecordRequest("proj", 2, 8)))
	assert.NotEqual(t, id1, MustOriginID(RecordRequest("other", 2, 7)))
}

func TestOriginID_NFCEquivalentIDs(t *testing.T) {
	assert.Equal(t,
		MustOriginID(ExternalRef("cafe\u0301")),
		MustOriginID(ExternalRef("caf\u00e9")))
}

func TestOriginID_KindsDistinct(t *testing.T) {
	assert.NotEqual(t, MustOriginID(Inline()), MustOriginID(Synthesized()))
	assert.NotEqual(t, MustOriginID(ExternalRef("1")), MustOriginID(RecordRequest("1", 0, 0)))
}

func TestAudioDigest(t *testing.T) {
	a := AudioDigest([][]float32{{0.5, 0.25}})
	assert.Len(t, a, 64)
	assert.Equal(t, a, AudioDigest([][]float32{{0.5, 0.25}}))
	assert.NotEqual(t, a, AudioDigest([][]float32{{0.5}, {0.25}}), "channel layout is part of identity")
	assert.NotEqual(t, a, AudioDigest([][]float32{{0.5, 0.25, 0}}))
	assert.NotEqual(t, AudioDigest([][]float32{{0}}), AudioDigest([][]float32{{float32(math.Copysign(0, -1))}}))
}
