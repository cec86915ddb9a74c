package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/samplerec/internal/bridge"
	"github.com/roach88/samplerec/internal/ir"
	"github.com/roach88/samplerec/internal/loader"
	"github.com/roach88/samplerec/internal/record"
	"github.com/roach88/samplerec/internal/sample"
	"github.com/roach88/samplerec/internal/trace"
	"github.com/roach88/samplerec/internal/vm"
	"github.com/roach88/samplerec/internal/vm/refvm"
)

// RecordOptions holds flags for the record command.
type RecordOptions struct {
	*RootOptions
	Program    string
	Setup      string
	Loop       string
	ScopeID    uint32
	Slots      []int
	Defaults   []int
	Seconds    float64
	Rate       int
	BPM        float64
	ProjectID  string
	CallbackID int64
	Loads      []string
	Output     string
	BitDepth   int
}

// RecordReport is the record command result.
type RecordReport struct {
	Handle     ir.Handle  `json:"handle"`
	Version    ir.Version `json:"version"`
	Length     int        `json:"length"`
	SampleRate int        `json:"sample_rate"`
	Digest     string     `json:"digest"`
	Output     string     `json:"output,omitempty"`
}

// NewRecordCommand creates the record command.
func NewRecordCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecordOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Render a callback offline to a WAV file",
		Long: `Capture the callback's free variables by running --program once, then
run --setup once and --loop for every output sample in an isolated
instance, and write the result as WAV.

Programs are read from files; .asm files are assembled first. Each --slot
is the global slot of one dependency, in capture order. Files given with
--load are registered as inline samples before recording, as handles
1, 2, ... so the loop can read them.

Examples:
  samplerec record --program capture.asm --slot 1 --loop ramp.asm --seconds 2 -o ramp.wav
  samplerec record --program cap.asm --slot 0 --loop chop.asm --load break.wav --seconds 4 -o chop.wav`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecord(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Program, "program", "", "capture program (required)")
	cmd.Flags().StringVar(&opts.Setup, "setup", "", "render setup program")
	cmd.Flags().StringVar(&opts.Loop, "loop", "", "render loop program (required)")
	cmd.Flags().Uint32Var(&opts.ScopeID, "scope", 1, "callback scope id")
	cmd.Flags().IntSliceVar(&opts.Slots, "slot", nil, "global slot of each dependency (repeatable)")
	cmd.Flags().IntSliceVar(&opts.Defaults, "default", nil, "dependency ordinals the render program defaults itself")
	cmd.Flags().Float64Var(&opts.Seconds, "seconds", 1, "duration in seconds")
	cmd.Flags().IntVar(&opts.Rate, "rate", 0, "sample rate (default from config)")
	cmd.Flags().Float64Var(&opts.BPM, "bpm", 0, "tempo (default from config)")
	cmd.Flags().StringVar(&opts.ProjectID, "project", "cli", "project id")
	cmd.Flags().Int64Var(&opts.CallbackID, "callback", 0, "callback id")
	cmd.Flags().StringArrayVar(&opts.Loads, "load", nil, "sample file to register before recording (repeatable)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output WAV file (required)")
	cmd.Flags().IntVar(&opts.BitDepth, "bits", 16, "output bit depth (8, 16, 24 or 32)")
	_ = cmd.MarkFlagRequired("program")
	_ = cmd.MarkFlagRequired("loop")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func runRecord(opts *RecordOptions, cmd *cobra.Command) error {
	out := NewOutputFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	cfg := opts.Config

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	shutdown, err := startTracing(ctx, opts.RootOptions)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start tracing", err)
	}
	defer shutdown()

	msg, err := opts.message()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid record request", err)
	}
	if msg.SampleRate <= 0 {
		msg.SampleRate = cfg.SampleRate
	}

	logger := slog.Default()
	store := sample.New(
		sample.WithDefaultSampleRate(cfg.SampleRate),
		sample.WithMaxSlices(cfg.MaxSlices),
		sample.WithSliceCacheSize(cfg.SliceCacheSize),
		sample.WithLogger(logger))

	ld := loader.New(loader.WithTargetRate(msg.SampleRate), loader.WithLogger(logger))
	for _, path := range opts.Loads {
		a, err := ld.LoadFile(path)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load sample", err)
		}
		h := store.RegisterInline(a.Channels, a.SampleRate)
		out.VerboseLog("registered %s as handle %s", filepath.Base(path), h)
	}

	orch := record.New(refvm.New(sample.NewHost(store)), store,
		record.WithPublisher(bridge.NewPublisher(nil, nil, logger)),
		record.WithDefaultSampleRate(cfg.SampleRate),
		record.WithDefaultBPM(cfg.BPM),
		record.WithMemoSize(cfg.MemoSize),
		record.WithMaxSeconds(cfg.MaxRecordSecs),
		record.WithTracer(trace.Tracer("record")),
		record.WithLogger(logger))

	res, err := orch.RecordMessage(ctx, msg)
	if err != nil {
		code := "E_RECORD"
		var re *record.Error
		if errors.As(err, &re) {
			code = string(re.Code)
		}
		_ = out.Error(code, err.Error(), nil)
		return WrapExitError(ExitFailure, "record failed", err)
	}

	snap := store.Sample(res.Handle)
	a := &loader.Audio{SampleRate: snap.SampleRate, Channels: snap.Channels}
	if err := loader.WriteWAVFile(opts.Output, a, opts.BitDepth); err != nil {
		return WrapExitError(ExitCommandError, "failed to write output", err)
	}

	report := RecordReport{
		Handle:     res.Handle,
		Version:    res.Version,
		Length:     res.Length,
		SampleRate: snap.SampleRate,
		Digest:     ir.AudioDigest(snap.Channels),
		Output:     opts.Output,
	}
	return out.Success(report,
		fmt.Sprintf("recorded %d samples at %d Hz into %s", report.Length, report.SampleRate, report.Output),
		fmt.Sprintf("  handle %s version %d digest %s", report.Handle, report.Version, report.Digest[:16]))
}

// message builds the record request from the flags.
func (opts *RecordOptions) message() (bridge.Record, error) {
	program, err := readProgram(opts.Program)
	if err != nil {
		return bridge.Record{}, err
	}
	setup, err := readProgram(opts.Setup)
	if err != nil {
		return bridge.Record{}, err
	}
	loop, err := readProgram(opts.Loop)
	if err != nil {
		return bridge.Record{}, err
	}

	deps := make([]vm.Dependency, len(opts.Slots))
	for i, slot := range opts.Slots {
		deps[i] = vm.Dependency{Slot: slot}
	}
	for _, ord := range opts.Defaults {
		if ord < 0 || ord >= len(deps) {
			return bridge.Record{}, fmt.Errorf("--default %d names no dependency", ord)
		}
		deps[ord].HasDefault = true
	}

	return bridge.Record{
		ProjectID:    opts.ProjectID,
		Seconds:      opts.Seconds,
		CallbackID:   opts.CallbackID,
		Program:      program,
		ScopeID:      opts.ScopeID,
		Dependencies: deps,
		Setup:        setup,
		Loop:         loop,
		SampleRate:   opts.Rate,
		BPM:          opts.BPM,
	}, nil
}
