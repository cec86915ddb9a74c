package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/samplerec/internal/vm/refvm"
)

// readProgram loads bytecode from path. Files ending in .asm are assembled;
// anything else is taken as raw bytecode. An empty path is an empty
// program.
func readProgram(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read program: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".asm") {
		code, err := refvm.Assemble(string(data))
		if err != nil {
			return nil, fmt.Errorf("assemble %s: %w", filepath.Base(path), err)
		}
		return code, nil
	}
	return data, nil
}
