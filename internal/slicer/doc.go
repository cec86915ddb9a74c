// Package slicer finds rhythmic onset points inside a mono sample.
//
// Detect downsamples the signal into min/max peak buckets, derives a per-bucket
// rise envelope and runs a dual exponential-moving-average novelty detector
// over it. An adaptive suppression gain raises the acceptance thresholds right
// after each accepted onset so transient ringing does not re-trigger.
//
// The numeric constants are tuned by ear. They are kept exactly as they are;
// changing any of them changes where users' samples get cut.
//
// Detect is pure and deterministic: the same samples, threshold and max always
// produce the same points. Callers are expected to cache results (see
// sample.Store.Slices).
package slicer
