package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. HIKMARA_PORT or
// HIKMARA_PIPELINE_WORKERS.
const EnvPrefix = "HIKMARA"

// Store backends.
const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
)

// Duplicate policies for re-ingested concepts.
const (
	DuplicatesFail   = "fail"
	DuplicatesIgnore = "ignore"
)

type StoreConfig struct {
	Backend   string `mapstructure:"backend" json:"backend" yaml:"backend"`
	DBPath    string `mapstructure:"db_path" json:"db_path" yaml:"db_path"`
	BadgerDir string `mapstructure:"badger_dir" json:"badger_dir" yaml:"badger_dir"`
}

type PipelineConfig struct {
	Workers          int      `mapstructure:"workers" json:"workers" yaml:"workers"`
	Tokenizer        string   `mapstructure:"tokenizer" json:"tokenizer" yaml:"tokenizer"`
	FenceTag         string   `mapstructure:"fence_tag" json:"fence_tag" yaml:"fence_tag"`
	Duplicates       string   `mapstructure:"duplicates" json:"duplicates" yaml:"duplicates"`
	MaxFileSizeBytes int64    `mapstructure:"max_file_size_bytes" json:"max_file_size_bytes" yaml:"max_file_size_bytes"`
	Exclude          []string `mapstructure:"exclude" json:"exclude" yaml:"exclude"`
	WatchDebounceMS  int      `mapstructure:"watch_debounce_ms" json:"watch_debounce_ms" yaml:"watch_debounce_ms"`
}

type LogConfig struct {
	JSON  bool   `mapstructure:"json" json:"json" yaml:"json"`
	Level string `mapstructure:"level" json:"level" yaml:"level"`
}

type Config struct {
	DataDir  string         `mapstructure:"data_dir" json:"data_dir" yaml:"data_dir"`
	Host     string         `mapstructure:"host" json:"host" yaml:"host"`
	Port     int            `mapstructure:"port" json:"port" yaml:"port"`
	Store    StoreConfig    `mapstructure:"store" json:"store" yaml:"store"`
	Pipeline PipelineConfig `mapstructure:"pipeline" json:"pipeline" yaml:"pipeline"`
	Log      LogConfig      `mapstructure:"log" json:"log" yaml:"log"`
}

func defaultDataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".hikmara")
}

func DefaultConfig() Config {
	cfg := Config{
		DataDir: defaultDataDir(),
		Host:    "127.0.0.1",
		Port:    8743,
		Store: StoreConfig{
			Backend: BackendSQLite,
		},
		Pipeline: PipelineConfig{
			Workers:          1,
			Tokenizer:        "cl100k_base",
			FenceTag:         "go",
			Duplicates:       DuplicatesFail,
			MaxFileSizeBytes: 50 * 1024 * 1024,
			Exclude:          []string{},
			WatchDebounceMS:  500,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
	cfg.resolvePaths()
	return cfg
}

// SetDefaults registers every key with viper so that environment variables
// are honoured by Unmarshal.
func SetDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("host", d.Host)
	v.SetDefault("port", d.Port)
	v.SetDefault("store.backend", d.Store.Backend)
	v.SetDefault("store.db_path", "")
	v.SetDefault("store.badger_dir", "")
	v.SetDefault("pipeline.workers", d.Pipeline.Workers)
	v.SetDefault("pipeline.tokenizer", d.Pipeline.Tokenizer)
	v.SetDefault("pipeline.fence_tag", d.Pipeline.FenceTag)
	v.SetDefault("pipeline.duplicates", d.Pipeline.Duplicates)
	v.SetDefault("pipeline.max_file_size_bytes", d.Pipeline.MaxFileSizeBytes)
	v.SetDefault("pipeline.exclude", d.Pipeline.Exclude)
	v.SetDefault("pipeline.watch_debounce_ms", d.Pipeline.WatchDebounceMS)
	v.SetDefault("log.json", d.Log.JSON)
	v.SetDefault("log.level", d.Log.Level)
}

// Load merges defaults, an optional config file and HIKMARA_* environment
// variables, in that order of precedence. With an empty configFile, a
// hikmara.{toml,yaml,json} in the working directory or the data dir is used
// when present.
func Load(configFile string) (Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "read config file %s", configFile)
		}
	} else {
		v.SetConfigName("hikmara")
		v.AddConfigPath(".")
		v.AddConfigPath(v.GetString("data_dir"))
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, errors.Wrap(err, "read config")
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "unmarshal config")
	}
	cfg.resolvePaths()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) resolvePaths() {
	if c.Store.DBPath == "" {
		c.Store.DBPath = filepath.Join(c.DataDir, "hikmara_kb.db")
	}
	if c.Store.BadgerDir == "" {
		c.Store.BadgerDir = filepath.Join(c.DataDir, "badger")
	}
}

// Validate rejects settings the pipeline cannot run with.
func (c Config) Validate() error {
	switch c.Store.Backend {
	case BackendSQLite, BackendBadger:
	default:
		return errors.WithHint(
			errors.Newf("unknown store backend %q", c.Store.Backend),
			"use \"sqlite\" or \"badger\"",
		)
	}
	switch c.Pipeline.Duplicates {
	case DuplicatesFail, DuplicatesIgnore:
	default:
		return errors.WithHint(
			errors.Newf("unknown duplicate policy %q", c.Pipeline.Duplicates),
			"use \"fail\" or \"ignore\"",
		)
	}
	if c.Pipeline.Workers < 1 {
		return errors.Newf("pipeline.workers must be at least 1, got %d", c.Pipeline.Workers)
	}
	if c.Pipeline.FenceTag == "" {
		return errors.New("pipeline.fence_tag must not be empty")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return errors.Newf("invalid port %d", c.Port)
	}
	return nil
}

func (c *Config) EnsureDirs() error {
	dirs := []string{c.DataDir}
	if c.Store.Backend == BackendBadger {
		dirs = append(dirs, c.Store.BadgerDir)
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return errors.Wrapf(err, "create %s", d)
		}
	}
	return nil
}
