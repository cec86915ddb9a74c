// Package config loads samplerec settings from a YAML or CUE file, a .env
// file and SAMPLEREC_* environment variables, in increasing precedence.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SAMPLEREC_"

// Config is the full set of runtime settings.
type Config struct {
	SampleRate     int     `yaml:"sample_rate" json:"sample_rate"`
	BPM            float64 `yaml:"bpm" json:"bpm"`
	MaxSlices      int     `yaml:"max_slices" json:"max_slices"`
	SliceCacheSize int     `yaml:"slice_cache_size" json:"slice_cache_size"`
	MemoSize       int     `yaml:"memo_size" json:"memo_size"`
	MaxRecordSecs  float64 `yaml:"max_record_seconds" json:"max_record_seconds"`
	Listen         string  `yaml:"listen" json:"listen"`
	Registry       string  `yaml:"registry" json:"registry"`
	SamplesDir     string  `yaml:"samples_dir" json:"samples_dir"`
	LogLevel       string  `yaml:"log_level" json:"log_level"`
	Trace          Trace   `yaml:"trace" json:"trace"`
}

// Trace configures span export.
type Trace struct {
	Exporter     string  `yaml:"exporter" json:"exporter"`
	Endpoint     string  `yaml:"endpoint" json:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate" json:"sampling_rate"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		SampleRate:     44100,
		BPM:            120,
		MaxSlices:      256,
		SliceCacheSize: 16,
		MemoSize:       32,
		MaxRecordSecs:  600,
		Listen:         ":8089",
		Registry:       "samplerec.db",
		SamplesDir:     "samples",
		LogLevel:       "info",
		Trace: Trace{
			Exporter:     "none",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
		},
	}
}

// Load builds a Config from defaults, the file at path (if non-empty), the
// given .env files and the environment. With no env files, a .env in the
// working directory is loaded when present.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if len(envFiles) == 0 {
		if _, err := os.Stat(".env"); err == nil {
			envFiles = []string{".env"}
		}
	}
	if len(envFiles) > 0 {
		if err := godotenv.Load(envFiles...); err != nil {
			return nil, fmt.Errorf("load env: %w", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	case ".cue":
		if err := c.decodeCUE(path, data); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
	return nil
}

// decodeCUE unifies the file with the embedded schema before decoding, so
// type and range errors carry CUE positions.
func (c *Config) decodeCUE(path string, data []byte) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	value := ctx.CompileBytes(data, cue.Filename(path))
	if err := value.Err(); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	value = schema.Unify(value)
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid %s: %w", path, err)
	}
	if err := value.Decode(c); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides fields from SAMPLEREC_* variables found by lookup.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	integer := func(name string, dst *int) {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	float := func(name string, dst *float64) {
		if v, ok := lookup(EnvPrefix + name); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = f
		}
	}

	integer("SAMPLE_RATE", &c.SampleRate)
	float("BPM", &c.BPM)
	integer("MAX_SLICES", &c.MaxSlices)
	integer("SLICE_CACHE_SIZE", &c.SliceCacheSize)
	integer("MEMO_SIZE", &c.MemoSize)
	float("MAX_RECORD_SECONDS", &c.MaxRecordSecs)
	str("LISTEN", &c.Listen)
	str("REGISTRY", &c.Registry)
	str("SAMPLES_DIR", &c.SamplesDir)
	str("LOG_LEVEL", &c.LogLevel)
	str("TRACE_EXPORTER", &c.Trace.Exporter)
	str("TRACE_ENDPOINT", &c.Trace.Endpoint)
	float("TRACE_SAMPLING_RATE", &c.Trace.SamplingRate)
	return errors.Join(errs...)
}

// Validate reports every out-of-range setting.
func (c *Config) Validate() error {
	var errs []error
	positive := func(name string, v float64) {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %v", name, v))
		}
	}
	positive("sample_rate", float64(c.SampleRate))
	positive("bpm", c.BPM)
	positive("max_slices", float64(c.MaxSlices))
	positive("slice_cache_size", float64(c.SliceCacheSize))
	positive("memo_size", float64(c.MemoSize))
	positive("max_record_seconds", c.MaxRecordSecs)

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level must be debug, info, warn or error, got %q", c.LogLevel))
	}
	switch c.Trace.Exporter {
	case "none", "stdout", "otlp":
	default:
		errs = append(errs, fmt.Errorf("trace.exporter must be none, stdout or otlp, got %q", c.Trace.Exporter))
	}
	if c.Trace.SamplingRate < 0 || c.Trace.SamplingRate > 1 {
		errs = append(errs, fmt.Errorf("trace.sampling_rate must be within [0, 1], got %v", c.Trace.SamplingRate))
	}
	return errors.Join(errs...)
}
