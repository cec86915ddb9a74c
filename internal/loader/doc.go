// Package loader decodes external sample files into channel data the sample
// store accepts.
//
// WAV, MP3, Ogg Vorbis and AIFF are supported. Decoded audio is resampled to
// the engine rate when the loader has one configured, and can be exported back
// to PCM WAV for offline renders.
//
// Decoders are registered by Format in an audio.Registry and all produce an
// audio.Source, so resampling works the same way regardless of the container.
package loader
