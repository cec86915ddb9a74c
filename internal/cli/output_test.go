package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Success(map[string]int{"count": 3}, "ignored in json"))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, map[string]any{"count": float64(3)}, resp.Data)
	assert.NotContains(t, buf.String(), "ignored")
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Error("E_DECODE", "unsupported format", map[string]string{"file": "x.flac"}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_DECODE", resp.Error.Code)
	assert.Equal(t, "unsupported format", resp.Error.Message)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_Text(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Success([]int{1, 2}, "line one", "line two"))
	assert.Equal(t, "line one\nline two\n", buf.String())

	buf.Reset()
	require.NoError(t, formatter.Success("plain"))
	assert.Equal(t, "plain\n", buf.String())

	buf.Reset()
	require.NoError(t, formatter.Error("E001", "record failed", "hidden"))
	assert.Equal(t, "Error [E001]: record failed\n", buf.String())

	buf.Reset()
	formatter.Verbose = true
	require.NoError(t, formatter.Error("E001", "record failed", "shown"))
	assert.Contains(t, buf.String(), "Details: shown")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &bytes.Buffer{}
			errOut := &bytes.Buffer{}
			formatter := &OutputFormatter{Format: "json", Writer: out, ErrWriter: errOut, Verbose: tt.verbose}

			formatter.VerboseLog("loading %s", "kick.wav")

			assert.Empty(t, out.String(), "diagnostics never go to the result writer")
			if tt.wantLog {
				assert.Equal(t, "loading kick.wav\n", errOut.String())
			} else {
				assert.Empty(t, errOut.String())
			}
		})
	}
}

func TestExitError(t *testing.T) {
	plain := NewExitError(ExitCommandError, "file not found")
	assert.Equal(t, "file not found", plain.Error())
	assert.Equal(t, ExitCommandError, GetExitCode(plain))

	cause := errors.New("disk full")
	wrapped := WrapExitError(ExitFailure, "write failed", cause)
	assert.Equal(t, "write failed: disk full", wrapped.Error())
	assert.ErrorIs(t, wrapped, cause)

	assert.Equal(t, ExitCommandError, GetExitCode(fmt.Errorf("outer: %w", plain)))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("other")))
}
