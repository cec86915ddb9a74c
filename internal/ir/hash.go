package ir

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
)

// Domain prefixes for content-addressed identity.
// The version suffix leaves room for algorithm migration.
const (
	DomainCapture = "samplerec/capture/v1"
	DomainOrigin  = "samplerec/origin/v1"
	DomainAudio   = "samplerec/audio/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + parts...).
// The null byte keeps the domain/data boundary unambiguous.
func hashWithDomain(domain string, parts ...[]byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	for _, p := range parts {
		h.Write(p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// CaptureKey identifies one capture of a program: the compiled bytecode, the
// callback scope that was entered and the number of dependency slots read.
// Two captures with the same key are interchangeable.
func CaptureKey(program []byte, scopeID uint32, slotCount int) string {
	var tail [12]byte
	binary.BigEndian.PutUint32(tail[0:4], scopeID)
	binary.BigEndian.PutUint64(tail[4:12], uint64(slotCount))
	var size [8]byte
	binary.BigEndian.PutUint64(size[:], uint64(len(program)))
	return hashWithDomain(DomainCapture, size[:], program, tail[:])
}

// OriginID computes the content-addressed identity of a registration origin.
// Registrations with equal OriginID resolve to the same handle.
func OriginID(o Origin) (string, error) {
	obj := map[string]any{"kind": string(o.Kind)}
	switch o.Kind {
	case OriginExternal:
		obj["external_id"] = o.ExternalID
	case OriginRecord:
		obj["project_id"] = o.ProjectID
		obj["seconds"] = CanonicalFloat(o.Seconds)
		obj["callback_id"] = o.CallbackID
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("OriginID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainOrigin, canonical), nil
}

// MustOriginID is like OriginID but panics on error.
// Use only in tests or when the origin is known to be valid.
func MustOriginID(o Origin) string {
	id, err := OriginID(o)
	if err != nil {
		panic(err)
	}
	return id
}

// AudioDigest identifies channel data by content: channel count, each
// channel's length and the IEEE-754 bits of every sample.
func AudioDigest(channels [][]float32) string {
	parts := make([][]byte, 0, 1+2*len(channels))
	var count [8]byte
	binary.BigEndian.PutUint64(count[:], uint64(len(channels)))
	parts = append(parts, count[:])
	for _, ch := range channels {
		head := make([]byte, 8)
		binary.BigEndian.PutUint64(head, uint64(len(ch)))
		body := make([]byte, 4*len(ch))
		for i, v := range ch {
			binary.BigEndian.PutUint32(body[4*i:], math.Float32bits(v))
		}
		parts = append(parts, head, body)
	}
	return hashWithDomain(DomainAudio, parts...)
}
