// Package config loads plxrun settings from defaults, a YAML file, PLXRUN_
// environment variables and command-line flags, in increasing precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/caffeineduck/plxrun/controller"
	"github.com/caffeineduck/plxrun/executor"
	"github.com/caffeineduck/plxrun/history"
	"github.com/caffeineduck/plxrun/language/protolex"
)

const (
	EnvPrefix       = "PLXRUN_"
	DefaultFile     = "plxrun.yaml"
	DefaultLogLevel = "warn"
	DefaultAddr     = "127.0.0.1:8080"
)

// Config holds all settings.
type Config struct {
	Runtime     RuntimeConfig `koanf:"runtime"`
	ProgramPath string        `koanf:"program_path"`
	Log         LogConfig     `koanf:"log"`
	History     HistoryConfig `koanf:"history"`
	Serve       ServeConfig   `koanf:"serve"`

	// File is the config file that was loaded, empty if none.
	File string `koanf:"-"`
}

type RuntimeConfig struct {
	Module   string        `koanf:"module"`
	CacheDir string        `koanf:"cache_dir"`
	NoCache  bool          `koanf:"no_cache"`
	Memory   string        `koanf:"memory"`
	Timeout  time.Duration `koanf:"timeout"`
}

type LogConfig struct {
	Level string `koanf:"level"`
}

type HistoryConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
}

type ServeConfig struct {
	Addr string `koanf:"addr"`
}

// flagKeys maps flag names to config keys where they differ from the
// kebab-to-snake rule.
var flagKeys = map[string]string{
	"module":       "runtime.module",
	"cache-dir":    "runtime.cache_dir",
	"no-cache":     "runtime.no_cache",
	"memory":       "runtime.memory",
	"timeout":      "runtime.timeout",
	"log-level":    "log.level",
	"history":      "history.enabled",
	"history-path": "history.path",
	"addr":         "serve.addr",
}

func defaults() map[string]any {
	return map[string]any{
		"runtime.module":    protolex.DefaultModulePath,
		"runtime.cache_dir": "",
		"runtime.no_cache":  false,
		"runtime.memory":    "",
		"runtime.timeout":   "0s",
		"program_path":      controller.DefaultProgramPath,
		"log.level":         DefaultLogLevel,
		"history.enabled":   false,
		"history.path":      history.DefaultPath(),
		"serve.addr":        DefaultAddr,
	}
}

// Load builds a Config. cfgFile names an explicit YAML file; when empty,
// plxrun.yaml in the working directory is used if it exists. Only flags
// the user changed override lower layers.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	path := cfgFile
	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	// PLXRUN_RUNTIME__MODULE -> runtime.module
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed {
				return "", nil
			}
			key, ok := flagKeys[f.Name]
			if !ok {
				key = strings.ReplaceAll(f.Name, "-", "_")
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.File = path

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that cannot be caught by decoding.
func (c *Config) Validate() error {
	if c.Runtime.Module == "" {
		return fmt.Errorf("runtime.module must not be empty")
	}
	if c.Runtime.Memory != "" && executor.ParseMemoryLimit(c.Runtime.Memory) == 0 {
		return fmt.Errorf("invalid runtime.memory %q: use 1mb, 16mb, 64mb, 256mb or 1gb", c.Runtime.Memory)
	}
	if c.Runtime.Timeout < 0 {
		return fmt.Errorf("runtime.timeout must not be negative")
	}
	if !strings.HasPrefix(c.ProgramPath, "/") {
		return fmt.Errorf("program_path %q must be absolute", c.ProgramPath)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log.level %q", c.Log.Level)
	}
	return nil
}

// ExecutorOptions translates the runtime section into handle options.
func (c *Config) ExecutorOptions() []executor.Option {
	var opts []executor.Option
	if !c.Runtime.NoCache {
		opts = append(opts, executor.WithDiskCache(c.Runtime.CacheDir))
	}
	if pages := executor.ParseMemoryLimit(c.Runtime.Memory); pages > 0 {
		opts = append(opts, executor.WithMemoryLimit(pages))
	}
	if c.Runtime.Timeout > 0 {
		opts = append(opts, executor.WithTimeout(c.Runtime.Timeout))
	}
	return opts
}
