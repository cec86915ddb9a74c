// Command samplerec manages audio samples by handle, detects slice points
// and renders recorded callbacks offline.
//
// Usage:
//
//	samplerec slices break.wav --threshold 0.1
//	samplerec record --program cap.asm --slot 1 --loop ramp.asm -o ramp.wav
//	samplerec serve --config samplerec.yaml
package main

import (
	"fmt"
	"os"

	"github.com/roach88/samplerec/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
