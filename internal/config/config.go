// Package config provides unified configuration loading for convbench.
// It supports loading from YAML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nvandessel/convbench/internal/constants"
	"github.com/nvandessel/convbench/internal/logging"
	"github.com/nvandessel/convbench/internal/pathutil"
)

// ErrUnknownKey is returned by Get and Set for keys that do not exist.
var ErrUnknownKey = errors.New("unknown configuration key")

// Config contains all convbench configuration settings.
type Config struct {
	// Cache controls where references and profiles are stored.
	Cache CacheConfig `json:"cache" yaml:"cache"`

	// Benchmark controls trial batches and their reduction.
	Benchmark BenchmarkConfig `json:"benchmark" yaml:"benchmark"`

	// Tolerance holds solver and agreement tolerances.
	Tolerance ToleranceConfig `json:"tolerance" yaml:"tolerance"`

	// Logging contains settings for operational and trace logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Metrics configures the Prometheus textfile output.
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
}

// CacheConfig configures the on-disk cache.
type CacheConfig struct {
	// Dir is the cache directory. Defaults to ~/.convbench/cache.
	Dir string `json:"dir" yaml:"dir"`

	// Load reuses cached profiles when true.
	Load bool `json:"load" yaml:"load"`

	// Save persists freshly tracked profiles when true.
	Save bool `json:"save" yaml:"save"`
}

// BenchmarkConfig configures trial batches.
type BenchmarkConfig struct {
	// Trials is the number of profiles per algorithm.
	Trials int `json:"trials" yaml:"trials"`

	// SteadyStateOffset is added to each profile's final error, in
	// decades, to obtain its cutoff.
	SteadyStateOffset float64 `json:"steady_state_offset" yaml:"steady_state_offset"`

	// DiscardWarmup drops the first trial from mean curves.
	DiscardWarmup bool `json:"discard_warmup" yaml:"discard_warmup"`

	// TimeBudget overrides every system's tracked time when positive.
	TimeBudget time.Duration `json:"time_budget,omitempty" yaml:"time_budget,omitempty"`
}

// ToleranceConfig holds numeric tolerances.
type ToleranceConfig struct {
	// Relative and Absolute are the molar tolerances of tracked simulations.
	Relative float64 `json:"relative" yaml:"relative"`
	Absolute float64 `json:"absolute" yaml:"absolute"`

	// AgreementRelative and AgreementAbsolute bound how far the reference
	// flows of the two algorithms may differ.
	AgreementRelative float64 `json:"agreement_relative" yaml:"agreement_relative"`
	AgreementAbsolute float64 `json:"agreement_absolute" yaml:"agreement_absolute"`
}

// LoggingConfig configures convbench's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "error", "warn", "info" (default),
	// "debug" or "trace". "debug" and "trace" also write trace.jsonl to
	// the cache directory.
	Level string `json:"level" yaml:"level"`
}

// MetricsConfig configures metrics output.
type MetricsConfig struct {
	// File receives a Prometheus textfile after every command when set.
	File string `json:"file,omitempty" yaml:"file,omitempty"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Cache: CacheConfig{
			Dir:  pathutil.DefaultCacheDir(),
			Load: true,
			Save: true,
		},
		Benchmark: BenchmarkConfig{
			Trials:            constants.DefaultTrials,
			SteadyStateOffset: constants.DefaultSteadyStateOffset,
			DiscardWarmup:     constants.DefaultDiscardWarmup,
		},
		Tolerance: ToleranceConfig{
			Relative:          constants.DefaultRelativeTolerance,
			Absolute:          constants.DefaultAbsoluteTolerance,
			AgreementRelative: constants.DefaultAgreementTolerance,
			AgreementAbsolute: constants.DefaultAgreementTolerance,
		},
		Logging: LoggingConfig{
			Level: constants.DefaultLogLevel,
		},
	}
}

// DefaultPath returns ~/.convbench/config.yaml.
func DefaultPath() (string, error) {
	dir, err := pathutil.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, constants.ConfigFileName), nil
}

// Load loads configuration from the default location and environment
// variables. Order: defaults -> ~/.convbench/config.yaml -> environment.
func Load() (*Config, error) {
	config := Default()

	if path, err := DefaultPath(); err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			fileConfig, loadErr := LoadFromFile(path)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	applyEnvOverrides(config)
	return config, nil
}

// LoadFile loads path instead of the default location, then applies
// environment overrides.
func LoadFile(path string) (*Config, error) {
	config, err := LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	applyEnvOverrides(config)
	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file. Fields absent
// from the file keep their defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", pathutil.RedactPath(path), err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", pathutil.RedactPath(path), err)
	}
	config.Cache.Dir = expandHome(os.ExpandEnv(config.Cache.Dir))
	config.Metrics.File = expandHome(os.ExpandEnv(config.Metrics.File))
	return config, nil
}

// Save writes the configuration to path, creating its directory.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Cache.Dir == "" {
		return errors.New("cache.dir must be set")
	}
	if c.Benchmark.Trials < 1 || c.Benchmark.Trials > constants.MaxTrials {
		return fmt.Errorf("benchmark.trials must be between 1 and %d, got %d", constants.MaxTrials, c.Benchmark.Trials)
	}
	if c.Benchmark.SteadyStateOffset < 0 {
		return fmt.Errorf("benchmark.steady_state_offset must be non-negative, got %g", c.Benchmark.SteadyStateOffset)
	}
	if c.Benchmark.TimeBudget < 0 {
		return fmt.Errorf("benchmark.time_budget must be non-negative, got %v", c.Benchmark.TimeBudget)
	}
	for key, v := range map[string]float64{
		"tolerance.relative":           c.Tolerance.Relative,
		"tolerance.absolute":           c.Tolerance.Absolute,
		"tolerance.agreement_relative": c.Tolerance.AgreementRelative,
		"tolerance.agreement_absolute": c.Tolerance.AgreementAbsolute,
	} {
		if v < 0 {
			return fmt.Errorf("%s must be non-negative, got %g", key, v)
		}
	}
	if c.Logging.Level != "" && !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("invalid log level: %s (valid: error, warn, info, debug, trace, or empty for default)", c.Logging.Level)
	}
	return nil
}

// Keys returns every dot-notation key accepted by Get and Set, sorted.
func Keys() []string {
	keys := make([]string, 0, len(accessors))
	for k := range accessors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the value of a dot-notation key such as "benchmark.trials".
func (c *Config) Get(key string) (any, error) {
	a, ok := accessors[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	return a.get(c), nil
}

// Set parses value and assigns it to a dot-notation key. The result is
// not validated.
func (c *Config) Set(key, value string) error {
	a, ok := accessors[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	if err := a.set(c, value); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

type accessor struct {
	get func(*Config) any
	set func(*Config, string) error
}

var accessors = map[string]accessor{
	"cache.dir": {
		func(c *Config) any { return c.Cache.Dir },
		func(c *Config, v string) error { c.Cache.Dir = expandHome(v); return nil },
	},
	"cache.load": {
		func(c *Config) any { return c.Cache.Load },
		func(c *Config, v string) error { return setBool(&c.Cache.Load, v) },
	},
	"cache.save": {
		func(c *Config) any { return c.Cache.Save },
		func(c *Config, v string) error { return setBool(&c.Cache.Save, v) },
	},
	"benchmark.trials": {
		func(c *Config) any { return c.Benchmark.Trials },
		func(c *Config, v string) error { return setInt(&c.Benchmark.Trials, v) },
	},
	"benchmark.steady_state_offset": {
		func(c *Config) any { return c.Benchmark.SteadyStateOffset },
		func(c *Config, v string) error { return setFloat(&c.Benchmark.SteadyStateOffset, v) },
	},
	"benchmark.discard_warmup": {
		func(c *Config) any { return c.Benchmark.DiscardWarmup },
		func(c *Config, v string) error { return setBool(&c.Benchmark.DiscardWarmup, v) },
	},
	"benchmark.time_budget": {
		func(c *Config) any { return c.Benchmark.TimeBudget.String() },
		func(c *Config, v string) error {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid duration: %s", v)
			}
			c.Benchmark.TimeBudget = d
			return nil
		},
	},
	"tolerance.relative": {
		func(c *Config) any { return c.Tolerance.Relative },
		func(c *Config, v string) error { return setFloat(&c.Tolerance.Relative, v) },
	},
	"tolerance.absolute": {
		func(c *Config) any { return c.Tolerance.Absolute },
		func(c *Config, v string) error { return setFloat(&c.Tolerance.Absolute, v) },
	},
	"tolerance.agreement_relative": {
		func(c *Config) any { return c.Tolerance.AgreementRelative },
		func(c *Config, v string) error { return setFloat(&c.Tolerance.AgreementRelative, v) },
	},
	"tolerance.agreement_absolute": {
		func(c *Config) any { return c.Tolerance.AgreementAbsolute },
		func(c *Config, v string) error { return setFloat(&c.Tolerance.AgreementAbsolute, v) },
	},
	"logging.level": {
		func(c *Config) any { return c.Logging.Level },
		func(c *Config, v string) error {
			if !logging.ValidLevel(v) {
				return fmt.Errorf("invalid log level: %s", v)
			}
			c.Logging.Level = v
			return nil
		},
	},
	"metrics.file": {
		func(c *Config) any { return c.Metrics.File },
		func(c *Config, v string) error { c.Metrics.File = expandHome(v); return nil },
	},
}

func setBool(dst *bool, v string) error {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid boolean: %s", v)
	}
	*dst = b
	return nil
}

func setInt(dst *int, v string) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid integer: %s", v)
	}
	*dst = n
	return nil
}

func setFloat(dst *float64, v string) error {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("invalid number: %s", v)
	}
	*dst = f
	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Unparseable numbers are ignored.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("CONVBENCH_CACHE_DIR"); v != "" {
		config.Cache.Dir = expandHome(v)
	}

	if v := os.Getenv("CONVBENCH_TRIALS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Benchmark.Trials = n
		}
	}

	if v := os.Getenv("CONVBENCH_STEADY_STATE_OFFSET"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Benchmark.SteadyStateOffset = f
		}
	}

	if v := os.Getenv("CONVBENCH_DISCARD_WARMUP"); v != "" {
		config.Benchmark.DiscardWarmup = v == "true" || v == "1"
	}

	if v := os.Getenv("CONVBENCH_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}

	if v := os.Getenv("CONVBENCH_METRICS_FILE"); v != "" {
		config.Metrics.File = expandHome(v)
	}
}

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
