package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/samplerec/internal/ir"
	"github.com/roach88/samplerec/internal/persist"
	"github.com/roach88/samplerec/internal/sample"
)

// RegistryOptions holds flags shared by the registry subcommands.
type RegistryOptions struct {
	*RootOptions
	Database string
}

// NewRegistryCommand creates the registry command and its subcommands.
func NewRegistryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RegistryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Inspect and edit the persisted registration registry",
		Long: `List persisted registrations and journaled publishes, or mark
handles for clearing on the next replay.

Examples:
  samplerec registry list --db samplerec.db
  samplerec registry publishes 3
  samplerec registry invalidate 3`,
	}
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "registry database (default from config)")

	cmd.AddCommand(&cobra.Command{
		Use:           "list",
		Short:         "List registrations",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(opts, cmd, func(ctx context.Context, r *persist.Registry, out *OutputFormatter) error {
				regs, err := r.Registrations(ctx)
				if err != nil {
					return err
				}
				return out.Success(regs, registrationLines(regs)...)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:           "publishes [handle]",
		Short:         "List journaled publishes, optionally for one handle",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			h := ir.NoHandle
			if len(args) == 1 {
				var err error
				if h, err = parseHandle(args[0]); err != nil {
					return err
				}
			}
			return withRegistry(opts, cmd, func(ctx context.Context, r *persist.Registry, out *OutputFormatter) error {
				pubs, err := r.Publishes(ctx, h)
				if err != nil {
					return err
				}
				return out.Success(pubs, publishLines(pubs)...)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:           "invalidate <handle>",
		Short:         "Clear a handle's audio on the next replay",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := parseHandle(args[0])
			if err != nil {
				return err
			}
			return withRegistry(opts, cmd, func(ctx context.Context, r *persist.Registry, out *OutputFormatter) error {
				if err := r.Invalidate(ctx, h); err != nil {
					return err
				}
				return out.Success(map[string]any{"invalidated": h}, fmt.Sprintf("handle %s invalidated", h))
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:           "delete <handle>",
		Short:         "Forget a handle",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := parseHandle(args[0])
			if err != nil {
				return err
			}
			return withRegistry(opts, cmd, func(ctx context.Context, r *persist.Registry, out *OutputFormatter) error {
				if err := r.Delete(ctx, h); err != nil {
					return err
				}
				return out.Success(map[string]any{"deleted": h}, fmt.Sprintf("handle %s deleted", h))
			})
		},
	})

	return cmd
}

// withRegistry opens the registry for the duration of fn.
func withRegistry(opts *RegistryOptions, cmd *cobra.Command, fn func(context.Context, *persist.Registry, *OutputFormatter) error) error {
	path := firstNonEmpty(opts.Database, opts.Config.Registry)
	r, err := persist.Open(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open registry", err)
	}
	defer r.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := NewOutputFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if err := fn(ctx, r, out); err != nil {
		return WrapExitError(ExitFailure, "registry operation failed", err)
	}
	return nil
}

func parseHandle(s string) (ir.Handle, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil || n == 0 {
		return ir.NoHandle, NewExitError(ExitCommandError, fmt.Sprintf("invalid handle %q", s))
	}
	return ir.Handle(n), nil
}

func registrationLines(regs []sample.Registration) []string {
	if len(regs) == 0 {
		return []string{"No registrations."}
	}
	lines := make([]string, 0, len(regs))
	for _, reg := range regs {
		o := reg.Origin
		switch o.Kind {
		case ir.OriginExternal:
			lines = append(lines, fmt.Sprintf("%6s  external     %s", reg.Handle, o.ExternalID))
		case ir.OriginRecord:
			lines = append(lines, fmt.Sprintf("%6s  record       %s %ss callback %d", reg.Handle, o.ProjectID, ir.CanonicalFloat(o.Seconds), o.CallbackID))
		default:
			lines = append(lines, fmt.Sprintf("%6s  %s", reg.Handle, o.Kind))
		}
	}
	return lines
}

func publishLines(pubs []persist.Publish) []string {
	if len(pubs) == 0 {
		return []string{"No publishes."}
	}
	lines := make([]string, 0, len(pubs))
	for _, p := range pubs {
		if p.Status == persist.StatusError {
			lines = append(lines, fmt.Sprintf("%6s  v%-4d error  %s", p.Handle, p.Version, p.Error))
			continue
		}
		lines = append(lines, fmt.Sprintf("%6s  v%-4d data   %d frames x %d ch @ %d Hz", p.Handle, p.Version, p.Length, p.Channels, p.SampleRate))
	}
	return lines
}
