package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/samplerec/internal/bridge"
	"github.com/roach88/samplerec/internal/engine"
	"github.com/roach88/samplerec/internal/loader"
	"github.com/roach88/samplerec/internal/persist"
	"github.com/roach88/samplerec/internal/record"
	"github.com/roach88/samplerec/internal/sample"
	"github.com/roach88/samplerec/internal/trace"
	"github.com/roach88/samplerec/internal/vm/refvm"
)

// shutdownTimeout bounds the HTTP server drain on exit.
const shutdownTimeout = 5 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Listen     string
	Database   string
	SamplesDir string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the control loop behind a websocket endpoint",
		Long: `Start the control loop and serve it on /ws. Clients send request
envelopes (record, set_sample_data, sync_registrations, ...) and receive
replies plus every sample publish.

On start the persisted registry is replayed into the sample store and
every external sample found in the samples directory is loaded.

Example:
  samplerec serve --listen :8089 --db samplerec.db --samples ./samples`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "listen address (default from config)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "registry database (default from config)")
	cmd.Flags().StringVar(&opts.SamplesDir, "samples", "", "external samples directory (default from config)")

	return cmd
}

// startTracing installs the configured exporter. The returned function
// flushes and removes it.
func startTracing(ctx context.Context, opts *RootOptions) (func(), error) {
	cfg := opts.Config
	if cfg.Trace.Exporter == trace.ExporterNone {
		return func() {}, nil
	}
	tc := trace.DefaultConfig()
	tc.Exporter = cfg.Trace.Exporter
	tc.Endpoint = cfg.Trace.Endpoint
	tc.SamplingRate = cfg.Trace.SamplingRate
	tc.Writer = os.Stderr
	if err := trace.Initialize(ctx, tc); err != nil {
		return nil, err
	}
	return func() {
		if err := trace.Shutdown(context.Background()); err != nil {
			slog.Error("trace shutdown failed", "error", err)
		}
	}, nil
}

// server is everything serve wires together.
type server struct {
	store    *sample.Store
	registry *persist.Registry
	hub      *bridge.Hub
	ctrl     *engine.Controller
	loader   *loader.Loader
	logger   *slog.Logger
}

// newServer builds the control side: the registry journals publishes and
// the hub mirrors them to every websocket client.
func newServer(opts *ServeOptions, registry *persist.Registry, logger *slog.Logger) *server {
	cfg := opts.Config
	s := &server{registry: registry, logger: logger}

	s.store = sample.New(
		sample.WithDefaultSampleRate(cfg.SampleRate),
		sample.WithMaxSlices(cfg.MaxSlices),
		sample.WithSliceCacheSize(cfg.SliceCacheSize),
		sample.WithLogger(logger))

	ids := bridge.UUIDv7Generator{}
	s.hub = bridge.NewHub(ids,
		bridge.WithHubLogger(logger),
		bridge.WithRequestHandler(func(env bridge.Envelope, reply func(bridge.Envelope)) {
			s.ctrl.RequestFunc()(env, reply)
		}))

	publisher := bridge.NewPublisher(nil, bridge.Fanout{s.hub, persist.NewJournal(registry, logger)}, logger)
	orch := record.New(refvm.New(sample.NewHost(s.store)), s.store,
		record.WithPublisher(publisher),
		record.WithDefaultSampleRate(cfg.SampleRate),
		record.WithDefaultBPM(cfg.BPM),
		record.WithMemoSize(cfg.MemoSize),
		record.WithMaxSeconds(cfg.MaxRecordSecs),
		record.WithTracer(trace.Tracer("record")),
		record.WithLogger(logger))

	s.ctrl = engine.NewController(s.store, orch, publisher,
		engine.WithRegistry(registry),
		engine.WithIDGenerator(ids),
		engine.WithLogger(logger))
	s.loader = loader.New(loader.WithTargetRate(cfg.SampleRate), loader.WithLogger(logger))
	return s
}

// restore replays the registry into the store. It must run before the
// controller starts, while nothing else writes the store.
func (s *server) restore(ctx context.Context) error {
	stats, err := s.registry.Replay(ctx, s.store)
	if err != nil {
		return fmt.Errorf("replay registry: %w", err)
	}
	s.logger.Info("registry replayed", "cleared", stats.Cleared, "ensured", stats.Ensured)
	for _, reg := range stats.Refused {
		s.logger.Warn("registry handle refused", "handle", reg.Handle, "kind", reg.Origin.Kind)
	}
	return nil
}

// fulfill loads every pending external sample through the controller, so
// each load is published like any other write.
func (s *server) fulfill(ctx context.Context, dir string) error {
	port := s.ctrl.Port()
	defer port.Close()

	reply, err := port.Request(ctx, bridge.RequiredSamples{})
	if err != nil {
		return fmt.Errorf("required samples: %w", err)
	}
	required, ok := reply.(bridge.RequiredList)
	if !ok {
		return fmt.Errorf("required samples: unexpected reply %s", reply.Kind())
	}
	loaded := 0
	for _, msg := range s.loader.Fulfill(dir, required.Samples) {
		if _, err := port.Request(ctx, msg); err != nil {
			s.logger.Warn("sample fulfill failed", "kind", msg.Kind(), "error", err)
			continue
		}
		if msg.Kind() == bridge.KindSetSampleData {
			loaded++
		}
	}
	s.logger.Info("external samples loaded", "loaded", loaded, "pending", len(required.Samples))
	return nil
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg := opts.Config
	listen := firstNonEmpty(opts.Listen, cfg.Listen)
	dbPath := firstNonEmpty(opts.Database, cfg.Registry)
	samplesDir := firstNonEmpty(opts.SamplesDir, cfg.SamplesDir)

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := startTracing(ctx, opts.RootOptions)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start tracing", err)
	}
	defer shutdownTracing()

	slog.Info("opening registry", "path", dbPath)
	registry, err := persist.Open(dbPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open registry", err)
	}
	defer func() {
		if closeErr := registry.Close(); closeErr != nil {
			slog.Error("error closing registry", "error", closeErr)
		}
	}()

	s := newServer(opts, registry, slog.Default())
	if err := s.restore(ctx); err != nil {
		return WrapExitError(ExitCommandError, "failed to restore registry", err)
	}

	ctrlDone := make(chan error, 1)
	go func() { ctrlDone <- s.ctrl.Run(ctx) }()

	if err := s.fulfill(ctx, samplesDir); err != nil {
		slog.Warn("initial sample load incomplete", "error", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", s.hub)
	httpServer := &http.Server{Addr: listen, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	httpDone := make(chan error, 1)
	go func() { httpDone <- httpServer.ListenAndServe() }()

	slog.Info("serving", "listen", listen, "samples", samplesDir)
	fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s/ws. Press Ctrl-C to stop.\n", listen)

	var serveErr error
	select {
	case <-ctx.Done():
	case err := <-httpDone:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	}
	cancel()

	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown failed", "error", err)
	}
	s.hub.Close()

	if err := <-ctrlDone; err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "controller error", err)
	}
	if serveErr != nil {
		return WrapExitError(ExitCommandError, "server error", serveErr)
	}
	slog.Info("stopped gracefully")
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
