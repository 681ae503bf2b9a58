// Package config loads probar's configuration: browser launch options,
// the default locator wait policy, WASM memory limits, and the project
// scorer's category weights. It follows the same
// defaults-then-file-then-env precedence the teacher's own
// internal/config package uses.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable probar reads at startup.
type Config struct {
	Browser BrowserConfig `yaml:"browser"`
	Wait    WaitConfig    `yaml:"wait"`
	Wasm    WasmConfig    `yaml:"wasm"`
	Scorer  ScorerConfig  `yaml:"scorer"`
	Logging LoggingConfig `yaml:"logging"`
}

// BrowserConfig mirrors browser.LaunchOptions; duplicated here (rather
// than imported) so this package never depends on internal/browser.
type BrowserConfig struct {
	Headless    bool   `yaml:"headless"`
	NoSandbox   bool   `yaml:"no_sandbox"`
	UserDataDir string `yaml:"user_data_dir"`
	Port        string `yaml:"port"`
}

// WaitConfig mirrors locator.WaitPolicy in YAML-friendly form (string
// durations rather than time.Duration, matching the teacher's
// LLM/Mangle timeout fields).
type WaitConfig struct {
	TimeoutTotal string `yaml:"timeout_total"`
	PollInterval string `yaml:"poll_interval"`
}

// Duration parses TimeoutTotal, defaulting to 5s on an empty/invalid
// value.
func (w WaitConfig) Duration() time.Duration {
	return parseDurationOr(w.TimeoutTotal, 5*time.Second)
}

// Poll parses PollInterval, defaulting to 50ms.
func (w WaitConfig) Poll() time.Duration {
	return parseDurationOr(w.PollInterval, 50*time.Millisecond)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// WasmConfig bounds the WASM Runtime Driver's memory.
type WasmConfig struct {
	MaxMemoryPages uint32 `yaml:"max_memory_pages"`
}

// ScorerConfig overrides the Project Scorer's category point
// ceilings, keyed by category name (scorer.CategoryXxx).
type ScorerConfig struct {
	CategoryWeights map[string]int `yaml:"category_weights"`
}

// LoggingConfig controls the shared zap.Logger construction.
type LoggingConfig struct {
	Verbose bool `yaml:"verbose"`
	JSON    bool `yaml:"json"`
}

// DefaultConfig returns probar's built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Browser: BrowserConfig{
			Headless: true,
			Port:     "9222",
		},
		Wait: WaitConfig{
			TimeoutTotal: "5s",
			PollInterval: "50ms",
		},
		Wasm: WasmConfig{
			MaxMemoryPages: 256,
		},
		Scorer:  ScorerConfig{CategoryWeights: map[string]int{}},
		Logging: LoggingConfig{Verbose: false, JSON: false},
	}
}

// Load reads a YAML config file at path, falling back to defaults if
// the file doesn't exist, then applies environment overrides —
// env wins over file, file wins over defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes cfg to path as YAML, creating parent directories as
// needed.
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// applyEnvOverrides mirrors the teacher's PROBAR_*-prefixed
// environment variable convention (the teacher used per-provider
// names like ANTHROPIC_API_KEY; this domain has no providers, so
// overrides are namespaced under PROBAR_ instead).
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("PROBAR_BROWSER_HEADLESS"); v != "" {
		c.Browser.Headless = v != "false" && v != "0"
	}
	if v := os.Getenv("PROBAR_BROWSER_PORT"); v != "" {
		c.Browser.Port = v
	}
	if v := os.Getenv("PROBAR_WAIT_TIMEOUT"); v != "" {
		c.Wait.TimeoutTotal = v
	}
	if v := os.Getenv("PROBAR_WAIT_POLL_INTERVAL"); v != "" {
		c.Wait.PollInterval = v
	}
	if v := os.Getenv("PROBAR_LOG_VERBOSE"); v != "" {
		c.Logging.Verbose = v != "false" && v != "0"
	}
	if v := os.Getenv("PROBAR_LOG_JSON"); v != "" {
		c.Logging.JSON = v != "false" && v != "0"
	}
}
