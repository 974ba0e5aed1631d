package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ChuLiYu/fontmake-mp/pkg/types"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the complete tool configuration.
// Layering: defaults < YAML file < FMP_* environment < command line flags.
type Config struct {
	Workers  int      `yaml:"workers"`   // 0 means one per CPU
	Formats  []string `yaml:"formats"`   // ttf and/or otf
	LogLevel string   `yaml:"log_level"` // debug, info, warn, error
	Trace    bool     `yaml:"trace"`     // include stack traces in failure diagnostics

	Compiler struct {
		Binary  string        `yaml:"binary"`
		Args    []string      `yaml:"args"`
		Dir     string        `yaml:"dir"`     // where master_ttf/master_otf are written, cwd when empty
		Timeout time.Duration `yaml:"timeout"` // per job, 0 disables
		Quiet   bool          `yaml:"quiet"`   // do not echo output of successful compiles
	} `yaml:"compiler"`

	Metrics struct {
		Textfile string `yaml:"textfile"`
	} `yaml:"metrics"`

	History struct {
		Path string `yaml:"path"`
	} `yaml:"history"`

	Report struct {
		Path string `yaml:"path"`
	} `yaml:"report"`

	Status struct {
		Addr string `yaml:"addr"`
	} `yaml:"status"`
}

func defaultConfig() *Config {
	cfg := &Config{
		Formats:  types.DefaultOutputKinds().Strings(),
		LogLevel: "warn",
		Trace:    true,
	}
	cfg.Compiler.Binary = "fontmake"
	return cfg
}

// loadConfig reads a YAML file over the defaults. Keys absent from the
// file keep their default value.
func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDotEnv loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is fine.
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides cfg with FMP_* variables found through lookup.
func (cfg *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("FMP_WORKERS"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid FMP_WORKERS %q: %w", v, err)
		}
		cfg.Workers = n
	}
	if v, ok := lookup("FMP_FORMATS"); ok {
		cfg.Formats = nil
		if strings.TrimSpace(v) != "" {
			cfg.Formats = strings.Split(v, ",")
		}
	}
	if v, ok := lookup("FMP_LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	if v, ok := lookup("FMP_TRACE"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid FMP_TRACE %q: %w", v, err)
		}
		cfg.Trace = b
	}
	if v, ok := lookup("FMP_COMPILER_BINARY"); ok {
		cfg.Compiler.Binary = v
	}
	if v, ok := lookup("FMP_COMPILER_DIR"); ok {
		cfg.Compiler.Dir = v
	}
	if v, ok := lookup("FMP_COMPILER_TIMEOUT"); ok {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid FMP_COMPILER_TIMEOUT %q: %w", v, err)
		}
		cfg.Compiler.Timeout = d
	}
	if v, ok := lookup("FMP_METRICS_TEXTFILE"); ok {
		cfg.Metrics.Textfile = v
	}
	if v, ok := lookup("FMP_HISTORY_PATH"); ok {
		cfg.History.Path = v
	}
	if v, ok := lookup("FMP_REPORT_PATH"); ok {
		cfg.Report.Path = v
	}
	if v, ok := lookup("FMP_STATUS_ADDR"); ok {
		cfg.Status.Addr = v
	}
	return cfg.validate()
}

func (cfg *Config) validate() error {
	if cfg.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", cfg.Workers)
	}
	if cfg.Compiler.Timeout < 0 {
		return fmt.Errorf("compiler timeout must be >= 0, got %s", cfg.Compiler.Timeout)
	}
	if _, err := cfg.outputKinds(); err != nil {
		return err
	}
	if _, err := parseLogLevel(cfg.LogLevel); err != nil {
		return err
	}
	return nil
}

// outputKinds returns the configured formats, or both when none are listed.
func (cfg *Config) outputKinds() (types.OutputKinds, error) {
	kinds, err := types.ParseOutputKinds(cfg.Formats)
	if err != nil {
		return nil, err
	}
	if len(kinds) == 0 {
		return types.DefaultOutputKinds(), nil
	}
	return kinds, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelWarn, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}
