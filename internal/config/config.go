// Package config loads persona-memory settings from an optional YAML file
// and PERSONA_MEMORY_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/rcliao/persona-memory/internal/assemble"
	"github.com/rcliao/persona-memory/internal/engine"
	"github.com/rcliao/persona-memory/internal/heuristics"
	"github.com/rcliao/persona-memory/internal/store"
)

// EnvPrefix prefixes every environment override, e.g. PERSONA_MEMORY_DATA_DIR.
const EnvPrefix = "PERSONA_MEMORY"

// Config is the full persona-memory configuration.
type Config struct {
	DataDir        string          `mapstructure:"data_dir" yaml:"data_dir"`
	CacheSize      int             `mapstructure:"cache_size" yaml:"cache_size"`
	HeuristicsFile string          `mapstructure:"heuristics_file" yaml:"heuristics_file"`
	Log            LogConfig       `mapstructure:"log" yaml:"log"`
	Retrieval      RetrievalConfig `mapstructure:"retrieval" yaml:"retrieval"`
	Assembler      AssemblerConfig `mapstructure:"assembler" yaml:"assembler"`
}

// LogConfig selects the log level and output format (json or text). An
// empty File logs to stderr.
type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"`
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
}

// RetrievalConfig holds the defaults applied to context retrieval.
type RetrievalConfig struct {
	MaxMemories      int     `mapstructure:"max_memories" yaml:"max_memories"`
	MinImportance    float64 `mapstructure:"min_importance" yaml:"min_importance"`
	IncludeEmotional bool    `mapstructure:"include_emotional" yaml:"include_emotional"`
}

// AssemblerConfig shapes the rendered summary. Widths are in runes.
type AssemblerConfig struct {
	IdentityLimit  int `mapstructure:"identity_limit" yaml:"identity_limit"`
	IdentityWidth  int `mapstructure:"identity_width" yaml:"identity_width"`
	ImportantLimit int `mapstructure:"important_limit" yaml:"important_limit"`
	ImportantWidth int `mapstructure:"important_width" yaml:"important_width"`
	RecentLimit    int `mapstructure:"recent_limit" yaml:"recent_limit"`
	RecentWidth    int `mapstructure:"recent_width" yaml:"recent_width"`
	// SizeBudget caps the whole summary; 0 disables the cap.
	SizeBudget int `mapstructure:"size_budget" yaml:"size_budget"`
}

// DefaultDataDir returns ~/.persona-memory.
func DefaultDataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".persona-memory")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", DefaultDataDir())
	v.SetDefault("cache_size", 64)
	v.SetDefault("heuristics_file", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)

	r := engine.DefaultRetrieval()
	v.SetDefault("retrieval.max_memories", r.MaxMemories)
	v.SetDefault("retrieval.min_importance", r.MinImportance)
	v.SetDefault("retrieval.include_emotional", r.IncludeEmotional)

	a := assemble.DefaultOptions()
	v.SetDefault("assembler.identity_limit", a.IdentityLimit)
	v.SetDefault("assembler.identity_width", a.IdentityWidth)
	v.SetDefault("assembler.important_limit", a.ImportantLimit)
	v.SetDefault("assembler.important_width", a.ImportantWidth)
	v.SetDefault("assembler.recent_limit", a.RecentLimit)
	v.SetDefault("assembler.recent_width", a.RecentWidth)
	v.SetDefault("assembler.size_budget", 0)
}

// Load reads the config file at path, if any, and applies environment
// overrides on top of the defaults. A missing file at an explicit path is an
// error; an empty path means defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.DataDir = expandHome(cfg.DataDir)
	cfg.HeuristicsFile = expandHome(cfg.HeuristicsFile)
	cfg.Log.File = expandHome(cfg.Log.File)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("config: data_dir is empty")
	}
	if c.CacheSize <= 0 {
		return fmt.Errorf("config: cache_size must be positive, got %d", c.CacheSize)
	}
	if c.Retrieval.MaxMemories <= 0 {
		return fmt.Errorf("config: retrieval.max_memories must be positive, got %d", c.Retrieval.MaxMemories)
	}
	if c.Retrieval.MinImportance < 0 || c.Retrieval.MinImportance > 1 {
		return fmt.Errorf("config: retrieval.min_importance must be within [0, 1], got %v", c.Retrieval.MinImportance)
	}
	if c.Assembler.SizeBudget < 0 {
		return fmt.Errorf("config: assembler.size_budget must not be negative")
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("config: log.format must be json or text, got %q", c.Log.Format)
	}
	return nil
}

// EngineOptions converts c into engine options, loading the heuristics
// override file when one is configured.
func (c *Config) EngineOptions() (engine.Options, error) {
	h := heuristics.Default()
	if c.HeuristicsFile != "" {
		var err error
		if h, err = heuristics.Load(c.HeuristicsFile); err != nil {
			return engine.Options{}, err
		}
	}
	return engine.Options{
		DataDir:    c.DataDir,
		CacheSize:  c.CacheSize,
		Heuristics: h,
		Retrieval: store.RetrieveParams{
			MaxMemories:      c.Retrieval.MaxMemories,
			MinImportance:    c.Retrieval.MinImportance,
			IncludeEmotional: c.Retrieval.IncludeEmotional,
		},
		Assembler: assemble.Options{
			IdentityLimit:  c.Assembler.IdentityLimit,
			IdentityWidth:  c.Assembler.IdentityWidth,
			ImportantLimit: c.Assembler.ImportantLimit,
			ImportantWidth: c.Assembler.ImportantWidth,
			RecentLimit:    c.Assembler.RecentLimit,
			RecentWidth:    c.Assembler.RecentWidth,
		},
		SizeBudget: c.Assembler.SizeBudget,
	}, nil
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return p
		}
		return filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	return p
}
