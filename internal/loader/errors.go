package loader

import "errors"

var (
	// ErrUnsupportedFormat is returned for file extensions with no decoder.
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	// ErrInvalidWAV is returned when a stream is not a RIFF/WAVE file.
	ErrInvalidWAV = errors.New("not a valid WAV file")
	// ErrUnsupportedEncoding is returned for WAV files that are not integer PCM.
	ErrUnsupportedEncoding = errors.New("only integer PCM WAV is supported")
	// ErrUnsupportedBitDepth is returned for bit depths other than 8, 16, 24 or 32.
	ErrUnsupportedBitDepth = errors.New("unsupported bit depth")
	// ErrNoChannels is returned when decoding yields no audio channels.
	ErrNoChannels = errors.New("audio has no channels")
	// ErrSampleNotFound is returned when an external id has no file in the sample directory.
	ErrSampleNotFound = errors.New("sample file not found")
	// ErrInvalidID is returned for external ids that would escape the sample directory.
	ErrInvalidID = errors.New("external id is not a local path")
)
