package cli

import (
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/samplerec/internal/vm/refvm"
)

// DisasmReport is the disasm command result.
type DisasmReport struct {
	File    string   `json:"file"`
	Bytes   int      `json:"bytes"`
	Listing []string `json:"listing"`
}

// NewDisasmCommand creates the disasm command.
func NewDisasmCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "disasm <program>",
		Short: "Disassemble a reference VM program",
		Long: `Print a program one instruction per line with byte offsets.
Files ending in .asm are assembled first, which makes this a quick
check of hand-written programs.

Examples:
  samplerec disasm loop.bin
  samplerec disasm ramp.asm --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := NewOutputFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			program, err := readProgram(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read program", err)
			}
			if len(program) == 0 {
				report := DisasmReport{File: filepath.Base(args[0]), Listing: []string{}}
				return out.Success(report, "(empty program)")
			}
			listing := strings.Split(strings.TrimSuffix(refvm.Disassemble(program), "\n"), "\n")
			report := DisasmReport{File: filepath.Base(args[0]), Bytes: len(program), Listing: listing}
			return out.Success(report, listing...)
		},
	}
	return cmd
}
