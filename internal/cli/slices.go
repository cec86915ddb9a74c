package cli

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/samplerec/internal/loader"
	"github.com/roach88/samplerec/internal/sample"
)

// SlicesOptions holds flags for the slices command.
type SlicesOptions struct {
	*RootOptions
	Thresholds []float64
	MaxSlices  int
	Rate       int
}

// ThresholdSlices is the detection at one threshold.
type ThresholdSlices struct {
	Threshold float64 `json:"threshold"`
	Count     int     `json:"count"`
	Points    []int   `json:"points"`
}

// SlicesReport is the slices command result.
type SlicesReport struct {
	File       string            `json:"file"`
	SampleRate int               `json:"sample_rate"`
	Channels   int               `json:"channels"`
	Frames     int               `json:"frames"`
	Slices     []ThresholdSlices `json:"slices"`
}

// NewSlicesCommand creates the slices command.
func NewSlicesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SlicesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "slices <file>",
		Short: "Detect slice points in a sample file",
		Long: `Decode a WAV, AIFF, MP3 or Ogg Vorbis file and print the onset points
of its first channel, as sample offsets, for each threshold.

Examples:
  samplerec slices break.wav
  samplerec slices break.wav --threshold 0.1 --threshold 0.5
  samplerec slices loop.ogg --max 16 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSlices(opts, args[0], cmd)
		},
	}

	cmd.Flags().Float64SliceVarP(&opts.Thresholds, "threshold", "t", []float64{0.5}, "detection threshold (repeatable)")
	cmd.Flags().IntVar(&opts.MaxSlices, "max", 0, "maximum slice points (default from config)")
	cmd.Flags().IntVar(&opts.Rate, "rate", 0, "resample before detection (0 keeps the file rate)")

	return cmd
}

func runSlices(opts *SlicesOptions, path string, cmd *cobra.Command) error {
	out := NewOutputFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	maxSlices := opts.MaxSlices
	if maxSlices <= 0 {
		maxSlices = opts.Config.MaxSlices
	}

	ld := loader.New(loader.WithTargetRate(opts.Rate), loader.WithLogger(slog.Default()))
	a, err := ld.LoadFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load sample", err)
	}
	out.VerboseLog("decoded %s: %d Hz, %d channels, %d frames", path, a.SampleRate, len(a.Channels), a.Frames())

	store := sample.New(
		sample.WithMaxSlices(maxSlices),
		sample.WithSliceCacheSize(opts.Config.SliceCacheSize),
		sample.WithLogger(slog.Default()))
	h := store.RegisterInline(a.Channels, a.SampleRate)

	report := SlicesReport{
		File:       filepath.Base(path),
		SampleRate: a.SampleRate,
		Channels:   len(a.Channels),
		Frames:     a.Frames(),
		Slices:     make([]ThresholdSlices, 0, len(opts.Thresholds)),
	}
	for _, thr := range opts.Thresholds {
		r := store.Slices(h, thr)
		report.Slices = append(report.Slices, ThresholdSlices{Threshold: thr, Count: r.Count, Points: r.Points})
	}

	return out.Success(report, report.lines()...)
}

func (r SlicesReport) lines() []string {
	lines := []string{fmt.Sprintf("%s: %d Hz, %d channels, %d frames", r.File, r.SampleRate, r.Channels, r.Frames)}
	for _, s := range r.Slices {
		points := make([]string, len(s.Points))
		for i, p := range s.Points {
			points[i] = strconv.Itoa(p)
		}
		lines = append(lines, fmt.Sprintf("  threshold %.3f: %d slices at %s", s.Threshold, s.Count, strings.Join(points, " ")))
	}
	return lines
}
